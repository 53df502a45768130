package events

import "fmt"

// RawPayload is the untyped `params` object the host runtime hands the
// ingestion adapter for one log. Decode turns it into a typed Event; it
// performs no address normalization or store access — that is the
// adapter's and the handlers' job — it only checks that the shape matches
// what the named Kind requires.
type RawPayload map[string]any

// Decode converts a raw event delivery into a typed Event. It returns
// ErrUnknownKind for an unrecognized kind string, and a decode error
// (wrapping the missing/mistyped field) for a malformed payload of a known
// kind — both are treated as invalid input: the caller logs a warning and
// skips the event rather than aborting the chain's stream.
func Decode(kind string, ctx BlockContext, payload RawPayload) (*Event, error) {
	switch Kind(kind) {
	case KindDefaultReceiveLibrarySet:
		eid, err := payload.int64Field("eid")
		if err != nil {
			return nil, err
		}
		lib, err := payload.stringField("newLib")
		if err != nil {
			return nil, err
		}
		return &Event{Kind: KindDefaultReceiveLibrarySet, DefaultReceiveLibrarySet: &DefaultReceiveLibrarySet{
			Ctx: ctx, Eid: eid, NewLibrary: lib,
		}}, nil

	case KindDefaultUlnConfigsSet:
		rawEntries, ok := payload["entries"].([]any)
		if !ok {
			return nil, fmt.Errorf("events: DefaultUlnConfigsSet: missing or malformed %q", "entries")
		}
		entries := make([]DefaultUlnConfigsSetEntry, 0, len(rawEntries))
		for i, re := range rawEntries {
			m, ok := re.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("events: DefaultUlnConfigsSet: entry %d is not an object", i)
			}
			entry, err := decodeUlnEntry(RawPayload(m))
			if err != nil {
				return nil, fmt.Errorf("events: DefaultUlnConfigsSet: entry %d: %w", i, err)
			}
			entries = append(entries, entry)
		}
		return &Event{Kind: KindDefaultUlnConfigsSet, DefaultUlnConfigsSet: &DefaultUlnConfigsSet{
			Ctx: ctx, Entries: entries,
		}}, nil

	case KindReceiveLibrarySet:
		receiver, err := payload.stringField("receiver")
		if err != nil {
			return nil, err
		}
		eid, err := payload.int64Field("eid")
		if err != nil {
			return nil, err
		}
		lib, err := payload.stringField("newLib")
		if err != nil {
			return nil, err
		}
		return &Event{Kind: KindReceiveLibrarySet, ReceiveLibrarySet: &ReceiveLibrarySet{
			Ctx: ctx, Receiver: receiver, Eid: eid, NewLibrary: lib,
		}}, nil

	case KindUlnConfigSet:
		oapp, err := payload.stringField("oapp")
		if err != nil {
			return nil, err
		}
		eid, err := payload.int64Field("eid")
		if err != nil {
			return nil, err
		}
		cfg, err := decodeUlnTuple(payload)
		if err != nil {
			return nil, fmt.Errorf("events: UlnConfigSet: %w", err)
		}
		return &Event{Kind: KindUlnConfigSet, UlnConfigSet: &UlnConfigSet{
			Ctx: ctx, OApp: oapp, Eid: eid, Config: cfg,
		}}, nil

	case KindPeerSet:
		oapp, err := payload.stringField("oapp")
		if err != nil {
			return nil, err
		}
		eid, err := payload.int64Field("eid")
		if err != nil {
			return nil, err
		}
		peer, err := payload.stringField("peer")
		if err != nil {
			return nil, err
		}
		return &Event{Kind: KindPeerSet, PeerSet: &PeerSet{
			Ctx: ctx, OApp: oapp, Eid: eid, Peer: peer,
		}}, nil

	case KindRateLimiterSet:
		oapp, err := payload.stringField("oapp")
		if err != nil {
			return nil, err
		}
		limit, err := payload.uint64Field("limit")
		if err != nil {
			return nil, err
		}
		window, err := payload.uint64Field("window")
		if err != nil {
			return nil, err
		}
		return &Event{Kind: KindRateLimiterSet, RateLimiterSet: &RateLimiterSet{
			Ctx: ctx, OApp: oapp, Limit: limit, Window: window,
		}}, nil

	case KindRateLimitsChanged:
		oapp, err := payload.stringField("oapp")
		if err != nil {
			return nil, err
		}
		dstEid, err := payload.int64Field("dstEid")
		if err != nil {
			return nil, err
		}
		limit, err := payload.uint64Field("limit")
		if err != nil {
			return nil, err
		}
		window, err := payload.uint64Field("window")
		if err != nil {
			return nil, err
		}
		return &Event{Kind: KindRateLimitsChanged, RateLimitsChanged: &RateLimitsChanged{
			Ctx: ctx, OApp: oapp, DstEid: dstEid, Limit: limit, Window: window,
		}}, nil

	case KindPacketDelivered:
		srcEid, err := payload.int64Field("srcEid")
		if err != nil {
			return nil, err
		}
		sender, err := payload.stringField("sender")
		if err != nil {
			return nil, err
		}
		nonce, err := payload.uint64Field("nonce")
		if err != nil {
			return nil, err
		}
		receiver, err := payload.stringField("receiver")
		if err != nil {
			return nil, err
		}
		return &Event{Kind: KindPacketDelivered, PacketDelivered: &PacketDelivered{
			Ctx:      ctx,
			Origin:   PacketOrigin{SrcEid: srcEid, Sender: sender, Nonce: nonce},
			Receiver: receiver,
		}}, nil

	default:
		return nil, ErrUnknownKind{Kind: kind}
	}
}

func decodeUlnEntry(payload RawPayload) (DefaultUlnConfigsSetEntry, error) {
	eid, err := payload.int64Field("eid")
	if err != nil {
		return DefaultUlnConfigsSetEntry{}, err
	}
	cfg, err := decodeUlnTuple(payload)
	if err != nil {
		return DefaultUlnConfigsSetEntry{}, err
	}
	return DefaultUlnConfigsSetEntry{Eid: eid, Config: cfg}, nil
}

func decodeUlnTuple(payload RawPayload) (UlnConfigTuple, error) {
	confirmations, err := payload.uint64Field("confirmations")
	if err != nil {
		return UlnConfigTuple{}, err
	}
	requiredCount, err := payload.uint8Field("requiredDvnCount")
	if err != nil {
		return UlnConfigTuple{}, err
	}
	optionalCount, err := payload.uint8Field("optionalDvnCount")
	if err != nil {
		return UlnConfigTuple{}, err
	}
	threshold, err := payload.uint8Field("optionalDvnThreshold")
	if err != nil {
		return UlnConfigTuple{}, err
	}
	requiredDvns, err := payload.stringArrayField("requiredDvns")
	if err != nil {
		return UlnConfigTuple{}, err
	}
	optionalDvns, err := payload.stringArrayField("optionalDvns")
	if err != nil {
		return UlnConfigTuple{}, err
	}
	return UlnConfigTuple{
		Confirmations:        confirmations,
		RequiredDVNCount:     requiredCount,
		OptionalDVNCount:     optionalCount,
		OptionalDVNThreshold: threshold,
		RequiredDVNs:         requiredDvns,
		OptionalDVNs:         optionalDvns,
	}, nil
}

func (p RawPayload) stringField(key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", fmt.Errorf("events: missing field %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("events: field %q is not a string", key)
	}
	return s, nil
}

func (p RawPayload) int64Field(key string) (int64, error) {
	v, ok := p[key]
	if !ok {
		return 0, fmt.Errorf("events: missing field %q", key)
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("events: field %q is not numeric", key)
	}
}

func (p RawPayload) uint64Field(key string) (uint64, error) {
	n, err := p.int64Field(key)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("events: field %q is negative", key)
	}
	return uint64(n), nil
}

func (p RawPayload) uint8Field(key string) (uint8, error) {
	n, err := p.int64Field(key)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > 255 {
		return 0, fmt.Errorf("events: field %q out of u8 range: %d", key, n)
	}
	return uint8(n), nil
}

func (p RawPayload) stringArrayField(key string) ([]string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("events: field %q is not an array", key)
	}
	out := make([]string, 0, len(raw))
	for i, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("events: field %q[%d] is not a string", key, i)
		}
		out = append(out, s)
	}
	return out, nil
}
