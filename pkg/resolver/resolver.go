// Package resolver implements the merge resolver: given
// the latest default and override raw state for one application route, it
// produces the derived OAppSecurityConfig that every downstream reader
// (packet snapshotter, query API) treats as the single source of truth.
// Resolve itself never touches a store and never suspends — it is a pure
// function of its Inputs, as the concurrency model requires.
package resolver

import (
	"sort"
	"time"

	"github.com/sekuba/dvnstats-sub001/pkg/addr"
	"github.com/sekuba/dvnstats-sub001/pkg/entities"
	"github.com/sekuba/dvnstats-sub001/pkg/libclass"
	"github.com/sekuba/dvnstats-sub001/pkg/ulnconfig"
)

// Inputs bundles the latest raw state the resolver reads for one
// OAppRouteKey, plus the block context the resulting row is stamped with.
type Inputs struct {
	ChainID      int64
	Eid          int64
	OAppID       string
	OAppRouteKey string

	DefaultLibrary  *entities.DefaultReceiveLibrary
	DefaultUln      *entities.DefaultUlnConfig
	OverrideLibrary *entities.OAppReceiveLibrary
	OverrideUln     *entities.OAppUlnConfig

	Classifier *libclass.Classifier

	EventID     string
	BlockNumber uint64
	Timestamp   time.Time
	TxHash      string
}

// Warning is an InvariantWarning surfaced by one Resolve call, for
// the caller to log with the appropriate structured context.
type Warning struct {
	Kind    string
	Message string
}

// Resolve computes the effective OAppSecurityConfig for one route (spec
// §4.F). It returns the derived row and any invariant warnings observed
// along the way; it never fails outright; there is nothing in the merge
// itself that can only be handled by aborting.
func Resolve(in Inputs) (*entities.OAppSecurityConfig, []Warning) {
	out := &entities.OAppSecurityConfig{
		OAppRouteKey:          in.OAppRouteKey,
		OAppID:                in.OAppID,
		Eid:                   in.Eid,
		ChainID:               in.ChainID,
		LastComputedBlock:     in.BlockNumber,
		LastComputedTimestamp: in.Timestamp,
		LastComputedEventID:   in.EventID,
		LastComputedTxHash:    in.TxHash,
	}

	var warnings []Warning

	effectiveLibrary, usesDefaultLibrary, fallbackLib := resolveLibrary(in)
	out.EffectiveReceiveLibrary = effectiveLibrary
	out.UsesDefaultLibrary = usesDefaultLibrary
	if in.DefaultLibrary != nil {
		out.DefaultLibraryVersionEventID = in.DefaultLibrary.LastEventID
	}
	if in.OverrideLibrary != nil {
		out.OverrideLibraryVersionEventID = in.OverrideLibrary.LastEventID
	}

	status := libclass.None
	if in.Classifier != nil {
		status = in.Classifier.Classify(in.ChainID, effectiveLibrary)
	}
	out.LibraryStatus = status.String()
	out.IsConfigTracked = status == libclass.Tracked

	if status != libclass.Tracked {
		// Short-circuit: the ULN portion is opaque for an unresolved or
		// unsupported library.
		out.UsesDefaultConfig = false
		return out, warnings
	}

	if fallbackLib {
		out.FallbackFields = append(out.FallbackFields, entities.FallbackReceiveLibrary)
	}

	defaultCfg := defaultConfigFields(in.DefaultUln)
	overrideCfg := overrideConfigFields(in.OverrideUln)
	if in.DefaultUln != nil {
		out.DefaultUlnConfigVersionID = in.DefaultUln.LastEventID
	}
	if in.OverrideUln != nil {
		out.OverrideUlnConfigVersionEventID = in.OverrideUln.LastEventID
	}

	merged, fallbacks, usesSentinel, warns := mergeUln(defaultCfg, overrideCfg)
	warnings = append(warnings, warns...)
	out.FallbackFields = append(out.FallbackFields, fallbacks...)
	sortFallbackFields(out.FallbackFields)

	out.EffectiveConfirmations = merged.Confirmations
	out.EffectiveRequiredDVNCount = merged.RequiredDVNCount
	out.EffectiveOptionalDVNCount = merged.OptionalDVNCount
	out.EffectiveOptionalDVNThreshold = merged.OptionalDVNThreshold
	out.EffectiveRequiredDVNs = merged.RequiredDVNs
	out.EffectiveOptionalDVNs = merged.OptionalDVNs
	out.UsesRequiredDVNSentinel = usesSentinel

	out.UsesDefaultConfig = equivalentToDefaultOnly(out, defaultCfg)

	return out, warnings
}

// resolveLibrary implements the library-resolution rules of §4.F. It
// returns the effective address (possibly ""), whether the default library
// was used, and whether that use should be attributed as a fallback (an
// override record exists but resolves to zero-or-missing).
func resolveLibrary(in Inputs) (effective string, usesDefault bool, fallback bool) {
	var overrideLib string
	overridePresent := in.OverrideLibrary != nil
	if overridePresent {
		overrideLib = in.OverrideLibrary.Library
	}

	if overridePresent && overrideLib != "" && !addr.IsZero(overrideLib) {
		return overrideLib, false, false
	}

	if in.DefaultLibrary != nil && in.DefaultLibrary.Library != "" && !addr.IsZero(in.DefaultLibrary.Library) {
		// An explicit override record that resolves to zero/missing is the
		// protocol's documented way of saying "unset" — falling back to the
		// default is attributed as a fallback only when that record exists.
		return in.DefaultLibrary.Library, true, overridePresent
	}

	return "", false, false
}

// defaultConfigFields converts a (possibly nil) DefaultUlnConfig into the
// Field-tagged ulnconfig.Config the merge logic operates over.
func defaultConfigFields(raw *entities.DefaultUlnConfig) ulnconfig.Config {
	if raw == nil {
		return ulnconfig.Config{}
	}
	return ulnconfig.Config{
		Confirmations:        ulnconfig.FieldFromConfirmations(raw.Confirmations),
		RequiredDVNCount:     ulnconfig.FieldFromCount(raw.RequiredDVNCount),
		OptionalDVNCount:     ulnconfig.FieldFromCount(raw.OptionalDVNCount),
		OptionalDVNThreshold: ulnconfig.FieldFromThreshold(raw.OptionalDVNThreshold),
		RequiredDVNs:         raw.RequiredDVNs,
		OptionalDVNs:         raw.OptionalDVNs,
	}
}

// overrideConfigFields converts a (possibly nil) OAppUlnConfig into the
// Field-tagged ulnconfig.Config the merge logic operates over.
func overrideConfigFields(raw *entities.OAppUlnConfig) ulnconfig.Config {
	if raw == nil {
		return ulnconfig.Config{}
	}
	return ulnconfig.Config{
		Confirmations:        ulnconfig.FieldFromConfirmations(raw.Confirmations),
		RequiredDVNCount:     ulnconfig.FieldFromCount(raw.RequiredDVNCount),
		OptionalDVNCount:     ulnconfig.FieldFromCount(raw.OptionalDVNCount),
		OptionalDVNThreshold: ulnconfig.FieldFromThreshold(raw.OptionalDVNThreshold),
		RequiredDVNs:         raw.RequiredDVNs,
		OptionalDVNs:         raw.OptionalDVNs,
	}
}

type mergedUln struct {
	Confirmations        uint64
	RequiredDVNCount     uint64
	OptionalDVNCount     uint64
	OptionalDVNThreshold uint64
	RequiredDVNs         []string
	OptionalDVNs         []string
}

// mergeUln implements the per-field ULN resolution of §4.F, for a route
// already known to use a Tracked library.
func mergeUln(def, ovr ulnconfig.Config) (mergedUln, []entities.FallbackField, bool, []Warning) {
	var out mergedUln
	var fallbacks []entities.FallbackField
	var warnings []Warning
	hasOverride := ovr.HasValues()

	// confirmations
	switch ovr.Confirmations.Kind {
	case ulnconfig.Explicit, ulnconfig.Nil:
		out.Confirmations = ovr.Confirmations.ResolvedValue()
	default:
		out.Confirmations = def.Confirmations.ResolvedValue()
		if hasOverride {
			fallbacks = append(fallbacks, entities.FallbackConfirmations)
		}
	}

	// requiredDvnCount / requiredDvns
	usesRequiredSentinel := false
	var requiredDvns []string
	switch ovr.RequiredDVNCount.Kind {
	case ulnconfig.Nil:
		usesRequiredSentinel = true
		out.RequiredDVNCount = 0
		requiredDvns = nil
	case ulnconfig.Explicit:
		out.RequiredDVNCount = ovr.RequiredDVNCount.Value
		requiredDvns = pickDvns(ovr.RequiredDVNs, def.RequiredDVNs, hasOverride, &fallbacks, entities.FallbackRequiredDVNs)
	default:
		out.RequiredDVNCount = def.RequiredDVNCount.ResolvedValue()
		if hasOverride {
			fallbacks = append(fallbacks, entities.FallbackRequiredDVNCount)
		}
		requiredDvns = pickDvns(ovr.RequiredDVNs, def.RequiredDVNs, hasOverride, &fallbacks, entities.FallbackRequiredDVNs)
	}

	// optionalDvnCount / optionalDvns
	var optionalDvns []string
	switch ovr.OptionalDVNCount.Kind {
	case ulnconfig.Nil:
		out.OptionalDVNCount = 0
		optionalDvns = nil
	case ulnconfig.Explicit:
		out.OptionalDVNCount = ovr.OptionalDVNCount.Value
		optionalDvns = pickDvns(ovr.OptionalDVNs, def.OptionalDVNs, hasOverride, &fallbacks, entities.FallbackOptionalDVNs)
	default:
		out.OptionalDVNCount = def.OptionalDVNCount.ResolvedValue()
		if hasOverride {
			fallbacks = append(fallbacks, entities.FallbackOptionalDVNCount)
		}
		optionalDvns = pickDvns(ovr.OptionalDVNs, def.OptionalDVNs, hasOverride, &fallbacks, entities.FallbackOptionalDVNs)
	}

	// optionalDvnThreshold
	if ovr.OptionalDVNThreshold.Kind == ulnconfig.Explicit && ovr.OptionalDVNThreshold.Value > 0 {
		out.OptionalDVNThreshold = ovr.OptionalDVNThreshold.Value
	} else {
		out.OptionalDVNThreshold = def.OptionalDVNThreshold.ResolvedValue()
		if hasOverride && ovr.OptionalDVNThreshold.Kind == ulnconfig.Inherit {
			fallbacks = append(fallbacks, entities.FallbackOptionalDVNThreshold)
		}
	}

	// Normalize DVN arrays: lowercase (already normalized by caller),
	// dedup, drop zero addresses, sort ascending.
	requiredDvns = normalizeDvns(requiredDvns)
	optionalDvns = normalizeDvns(optionalDvns)
	out.RequiredDVNs = requiredDvns
	out.OptionalDVNs = optionalDvns

	// Recompute counts from the resolved arrays where non-empty, per the
	// normalization invariants.
	if usesRequiredSentinel {
		out.RequiredDVNCount = 0
	} else if len(requiredDvns) > 0 {
		out.RequiredDVNCount = uint64(len(requiredDvns))
	}
	if len(optionalDvns) > 0 {
		out.OptionalDVNCount = uint64(len(optionalDvns))
	}

	if out.OptionalDVNThreshold > out.OptionalDVNCount {
		warnings = append(warnings, Warning{
			Kind:    "threshold_exceeds_count",
			Message: "effectiveOptionalDVNThreshold capped to effectiveOptionalDVNCount",
		})
		out.OptionalDVNThreshold = out.OptionalDVNCount
	}

	sort.Slice(fallbacks, func(i, j int) bool { return fallbackOrderIndex(fallbacks[i]) < fallbackOrderIndex(fallbacks[j]) })

	return out, fallbacks, usesRequiredSentinel, warnings
}

// pickDvns resolves one DVN array per §4.F: override wins if non-empty,
// else default wins. The fallback is only attributed when the override
// config has values at all — an absent override config is simply the
// unconfigured state, not a fallback (spec scenario S3 vs S4).
func pickDvns(override, def []string, hasOverride bool, fallbacks *[]entities.FallbackField, field entities.FallbackField) []string {
	if len(override) > 0 {
		return override
	}
	if len(def) > 0 {
		if hasOverride {
			*fallbacks = append(*fallbacks, field)
		}
		return def
	}
	return nil
}

// normalizeDvns lowercases (assumed already normalized), drops zero
// addresses and duplicates, and sorts ascending — spec testable property 4.
func normalizeDvns(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, a := range in {
		if a == "" || addr.IsZero(a) {
			continue
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

func fallbackOrderIndex(f entities.FallbackField) int {
	for i, candidate := range entities.FallbackFieldOrder {
		if candidate == f {
			return i
		}
	}
	return len(entities.FallbackFieldOrder)
}

func sortFallbackFields(fields []entities.FallbackField) {
	sort.Slice(fields, func(i, j int) bool { return fallbackOrderIndex(fields[i]) < fallbackOrderIndex(fields[j]) })
}

// equivalentToDefaultOnly implements the usesDefaultConfig flag: true iff
// the comparable ULN tuple equals what merging defaults with an empty
// override would produce (the comparison deliberately excludes
// receiveLibrary).
func equivalentToDefaultOnly(out *entities.OAppSecurityConfig, def ulnconfig.Config) bool {
	defaultOnly, _, defaultOnlySentinel, _ := mergeUln(def, ulnconfig.Config{})
	if out.EffectiveConfirmations != defaultOnly.Confirmations {
		return false
	}
	if out.EffectiveRequiredDVNCount != defaultOnly.RequiredDVNCount {
		return false
	}
	if out.EffectiveOptionalDVNCount != defaultOnly.OptionalDVNCount {
		return false
	}
	if out.EffectiveOptionalDVNThreshold != defaultOnly.OptionalDVNThreshold {
		return false
	}
	if out.UsesRequiredDVNSentinel != defaultOnlySentinel {
		return false
	}
	if !equalStrings(out.EffectiveRequiredDVNs, defaultOnly.RequiredDVNs) {
		return false
	}
	if !equalStrings(out.EffectiveOptionalDVNs, defaultOnly.OptionalDVNs) {
		return false
	}
	return true
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
