package obslog

// Standard field keys for the event-diagnostic shape every validation site
// logs: {kind, chainId, eid, oappId, eventId, transactionHash,
// payloadSnippet}.
const (
	KeyKind            = "kind"
	KeyChainID         = "chain_id"
	KeyEid             = "eid"
	KeyOAppID          = "oapp_id"
	KeyOAppRouteKey    = "oapp_route_key"
	KeyRouteKey        = "route_key"
	KeyEventID         = "event_id"
	KeyTransactionHash = "transaction_hash"
	KeyPayloadSnippet  = "payload_snippet"
	KeyBlockNumber     = "block_number"

	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	KeyError = "error"
)

// Diagnostic warning kinds, named so callers don't restate the string at
// every call site.
const (
	KindSentinelObserved      = "sentinel_observed"
	KindCountMismatch         = "count_mismatch"
	KindThresholdExceedsCount = "threshold_exceeds_count"
	KindZeroAddressInArray    = "zero_address_in_array"
	KindMissingAddress        = "missing_address"
	KindBlockedButDelivered   = "blocked_but_delivered"
	KindPeerMismatch          = "peer_mismatch"
	KindRecomputeRowFailed    = "recompute_row_failed"
	KindHandlerAborted        = "handler_aborted"
)
