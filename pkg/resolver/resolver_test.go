package resolver

import (
	"testing"
	"time"

	"github.com/sekuba/dvnstats-sub001/pkg/entities"
	"github.com/sekuba/dvnstats-sub001/pkg/libclass"
)

func classifierWithTracked(chainID int64, lib string) *libclass.Classifier {
	return libclass.New(map[int64][]string{chainID: {lib}})
}

const trackedLib = "0x000000000000000000000000000000000000ab01"
const unsupportedLib = "0x0000000000000000000000000000000000dead"

func baseInputs() Inputs {
	return Inputs{
		ChainID:      1,
		Eid:          30101,
		OAppID:       "1_0xapp",
		OAppRouteKey: "1_0xapp_30101",
		Classifier:   classifierWithTracked(1, trackedLib),
		EventID:      "1_100_0",
		BlockNumber:  100,
		Timestamp:    time.Unix(1700000000, 0),
		TxHash:       "0xtx",
	}
}

// S1: sentinel required DVN count leaves only an optional-DVN quorum.
//
// This deliberately omits OverrideLibrary so the case isolates the
// required-DVN-sentinel/optional-quorum merge from the separate
// library-resolution rule (an explicit non-zero override library always
// makes UsesDefaultLibrary false, regardless of the ULN merge outcome).
// Exercising both rules in one case would make a failure ambiguous about
// which behavior broke; the library-fallback interaction has its own
// coverage in TestResolveLibraryFallbackWhenOverrideExplicitlyUnset.
func TestResolveSentinelRequiredDVNCount(t *testing.T) {
	in := baseInputs()
	in.DefaultLibrary = &entities.DefaultReceiveLibrary{Library: trackedLib}
	in.OverrideUln = &entities.OAppUlnConfig{
		RequiredDVNCount:     255, // Nil sentinel
		OptionalDVNCount:     3,
		OptionalDVNThreshold: 2,
		OptionalDVNs:         []string{"0xaaa0000000000000000000000000000000000a", "0xbbb0000000000000000000000000000000000b", "0xccc0000000000000000000000000000000000c"},
	}

	out, _ := Resolve(in)

	if !out.UsesRequiredDVNSentinel {
		t.Fatalf("expected UsesRequiredDVNSentinel=true")
	}
	if out.EffectiveRequiredDVNCount != 0 || len(out.EffectiveRequiredDVNs) != 0 {
		t.Fatalf("expected zero required DVNs, got count=%d dvns=%v", out.EffectiveRequiredDVNCount, out.EffectiveRequiredDVNs)
	}
	if out.EffectiveOptionalDVNCount != 3 {
		t.Fatalf("expected optional count 3, got %d", out.EffectiveOptionalDVNCount)
	}
	if out.EffectiveOptionalDVNThreshold != 2 {
		t.Fatalf("expected threshold 2, got %d", out.EffectiveOptionalDVNThreshold)
	}
	if out.UsesDefaultConfig {
		t.Fatalf("expected UsesDefaultConfig=false")
	}
}

// S2: an unsupported library short-circuits the ULN portion entirely.
func TestResolveUnsupportedLibraryShortCircuits(t *testing.T) {
	in := baseInputs()
	in.OverrideLibrary = &entities.OAppReceiveLibrary{Library: unsupportedLib}
	in.OverrideUln = &entities.OAppUlnConfig{
		Confirmations:    5,
		RequiredDVNCount: 2,
		RequiredDVNs:     []string{"0xaaa0000000000000000000000000000000000a", "0xbbb0000000000000000000000000000000000b"},
	}

	out, _ := Resolve(in)

	if out.LibraryStatus != libclass.Unsupported.String() {
		t.Fatalf("expected Unsupported status, got %s", out.LibraryStatus)
	}
	if out.IsConfigTracked {
		t.Fatalf("expected IsConfigTracked=false")
	}
	if out.UsesDefaultConfig {
		t.Fatalf("expected UsesDefaultConfig=false for an untracked library")
	}
	if out.EffectiveConfirmations != 0 || len(out.EffectiveRequiredDVNs) != 0 {
		t.Fatalf("expected zeroed ULN fields, got %+v", out)
	}
}

// S3: default-only route with no override record at all produces no
// fallback attribution and usesDefaultConfig=true.
func TestResolveDefaultOnlyNoOverride(t *testing.T) {
	in := baseInputs()
	in.DefaultLibrary = &entities.DefaultReceiveLibrary{Library: trackedLib}
	in.DefaultUln = &entities.DefaultUlnConfig{
		Confirmations:    10,
		RequiredDVNCount: 2,
		RequiredDVNs:     []string{"0xaaa0000000000000000000000000000000000a", "0xbbb0000000000000000000000000000000000b"},
	}

	out, _ := Resolve(in)

	if !out.UsesDefaultLibrary {
		t.Fatalf("expected UsesDefaultLibrary=true")
	}
	if len(out.FallbackFields) != 0 {
		t.Fatalf("expected no fallback fields with no override record, got %v", out.FallbackFields)
	}
	if !out.UsesDefaultConfig {
		t.Fatalf("expected UsesDefaultConfig=true")
	}
	if out.EffectiveConfirmations != 10 {
		t.Fatalf("expected confirmations 10, got %d", out.EffectiveConfirmations)
	}
}

// S4: an override record exists and has values, so Inherit fields fall
// back from the default and are recorded in canonical order.
func TestResolveOverrideFallbackAttribution(t *testing.T) {
	in := baseInputs()
	in.DefaultLibrary = &entities.DefaultReceiveLibrary{Library: trackedLib}
	in.DefaultUln = &entities.DefaultUlnConfig{
		Confirmations:    5,
		RequiredDVNCount: 2,
		RequiredDVNs:     []string{"0xaaa0000000000000000000000000000000000a", "0xbbb0000000000000000000000000000000000b"},
	}
	in.OverrideUln = &entities.OAppUlnConfig{
		OptionalDVNCount:     1,
		OptionalDVNThreshold: 1,
		OptionalDVNs:         []string{"0xccc0000000000000000000000000000000000c"},
	}

	out, _ := Resolve(in)

	wantOrder := []entities.FallbackField{
		entities.FallbackConfirmations,
		entities.FallbackRequiredDVNCount,
		entities.FallbackRequiredDVNs,
	}
	if len(out.FallbackFields) != len(wantOrder) {
		t.Fatalf("expected fallback fields %v, got %v", wantOrder, out.FallbackFields)
	}
	for i, f := range wantOrder {
		if out.FallbackFields[i] != f {
			t.Fatalf("expected fallback field %d to be %s, got %s", i, f, out.FallbackFields[i])
		}
	}
	if out.EffectiveConfirmations != 5 {
		t.Fatalf("expected confirmations 5, got %d", out.EffectiveConfirmations)
	}
	if len(out.EffectiveRequiredDVNs) != 2 {
		t.Fatalf("expected 2 required DVNs, got %v", out.EffectiveRequiredDVNs)
	}
	if len(out.EffectiveOptionalDVNs) != 1 || out.EffectiveOptionalDVNs[0] != "0xccc0000000000000000000000000000000000c" {
		t.Fatalf("expected optional DVNs from override, got %v", out.EffectiveOptionalDVNs)
	}
}

// S7: an explicit threshold exceeding the resolved count is capped, with a
// warning.
func TestResolveThresholdAutoCapped(t *testing.T) {
	in := baseInputs()
	in.DefaultLibrary = &entities.DefaultReceiveLibrary{Library: trackedLib}
	in.OverrideUln = &entities.OAppUlnConfig{
		OptionalDVNCount:     2,
		OptionalDVNThreshold: 5,
		OptionalDVNs:         []string{"0xaaa0000000000000000000000000000000000a", "0xbbb0000000000000000000000000000000000b"},
	}

	out, warnings := Resolve(in)

	if out.EffectiveOptionalDVNThreshold != 2 {
		t.Fatalf("expected threshold capped to 2, got %d", out.EffectiveOptionalDVNThreshold)
	}
	found := false
	for _, w := range warnings {
		if w.Kind == "threshold_exceeds_count" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected threshold_exceeds_count warning, got %+v", warnings)
	}
}

// Property: no library resolved at all (None) also short-circuits the ULN
// portion, with IsConfigTracked=false and no library used.
func TestResolveNoLibraryResolved(t *testing.T) {
	out, _ := Resolve(baseInputs())

	if out.LibraryStatus != libclass.None.String() {
		t.Fatalf("expected None status, got %s", out.LibraryStatus)
	}
	if out.IsConfigTracked {
		t.Fatalf("expected IsConfigTracked=false")
	}
	if out.UsesDefaultLibrary || out.EffectiveReceiveLibrary != "" {
		t.Fatalf("expected no effective library, got %+v", out)
	}
}

// Property: DVN arrays are normalized — deduped, zero addresses dropped,
// sorted ascending.
func TestMergeNormalizesDVNArrays(t *testing.T) {
	in := baseInputs()
	in.DefaultLibrary = &entities.DefaultReceiveLibrary{Library: trackedLib}
	in.OverrideUln = &entities.OAppUlnConfig{
		RequiredDVNCount: 2,
		RequiredDVNs: []string{
			"0xbbb0000000000000000000000000000000000b",
			"0xaaa0000000000000000000000000000000000a",
			"0xaaa0000000000000000000000000000000000a",
			"0x0000000000000000000000000000000000000000",
		},
	}

	out, _ := Resolve(in)

	want := []string{"0xaaa0000000000000000000000000000000000a", "0xbbb0000000000000000000000000000000000b"}
	if len(out.EffectiveRequiredDVNs) != len(want) {
		t.Fatalf("expected %v, got %v", want, out.EffectiveRequiredDVNs)
	}
	for i := range want {
		if out.EffectiveRequiredDVNs[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, out.EffectiveRequiredDVNs)
		}
	}
}

// Property: override library present but zero is attributed as a fallback,
// distinct from no override record at all (S3 vs. this case).
func TestResolveLibraryFallbackWhenOverrideExplicitlyUnset(t *testing.T) {
	in := baseInputs()
	in.DefaultLibrary = &entities.DefaultReceiveLibrary{Library: trackedLib}
	in.OverrideLibrary = &entities.OAppReceiveLibrary{Library: ""}

	out, _ := Resolve(in)

	if !out.UsesDefaultLibrary {
		t.Fatalf("expected UsesDefaultLibrary=true")
	}
	if len(out.FallbackFields) == 0 || out.FallbackFields[0] != entities.FallbackReceiveLibrary {
		t.Fatalf("expected receiveLibrary fallback recorded, got %v", out.FallbackFields)
	}
}
