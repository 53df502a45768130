// Package ulnconfig models the three-valued ULN configuration fields the
// merge resolver operates over: a field is either Inherit (take the default),
// Nil (the protocol sentinel — explicit zero, never inherit), or Explicit
// (a concrete value). Go has no native way to distinguish "absent" from
// "explicitly zero" on a plain uint, so each field is represented as a small
// tagged struct instead of a bare integer.
package ulnconfig

import "fmt"

// Kind tags which variant a Field holds.
type Kind uint8

const (
	// Inherit means the field carries no opinion; fall back to the default.
	Inherit Kind = iota
	// Nil is the protocol sentinel: explicit zero, do not inherit.
	Nil
	// Explicit carries a concrete, non-sentinel value.
	Explicit
)

func (k Kind) String() string {
	switch k {
	case Inherit:
		return "inherit"
	case Nil:
		return "nil"
	case Explicit:
		return "explicit"
	default:
		return "unknown"
	}
}

// Field is a tagged count/threshold value with Inherit/Nil/Explicit
// semantics.
type Field struct {
	Kind  Kind
	Value uint64
}

// Sentinels per the protocol's wire encoding.
const (
	RequiredDVNCountSentinel uint8  = 255 // u8 max
	OptionalDVNCountSentinel uint8  = 255 // u8 max
	ConfirmationsSentinel    uint64 = 1<<64 - 1
)

// FieldFromCount interprets a raw u8 count field (requiredDvnCount or
// optionalDvnCount) using its sentinel semantics.
func FieldFromCount(raw uint8) Field {
	if raw == RequiredDVNCountSentinel { // shared sentinel value with optional
		return Field{Kind: Nil}
	}
	if raw == 0 {
		return Field{Kind: Inherit}
	}
	return Field{Kind: Explicit, Value: uint64(raw)}
}

// FieldFromConfirmations interprets the raw u64 confirmations field.
func FieldFromConfirmations(raw uint64) Field {
	if raw == ConfirmationsSentinel {
		return Field{Kind: Nil}
	}
	if raw == 0 {
		return Field{Kind: Inherit}
	}
	return Field{Kind: Explicit, Value: raw}
}

// FieldFromThreshold interprets the raw u8 optionalDvnThreshold field. The
// threshold has no dedicated sentinel: zero means Inherit, any positive
// value is Explicit.
func FieldFromThreshold(raw uint8) Field {
	if raw == 0 {
		return Field{Kind: Inherit}
	}
	return Field{Kind: Explicit, Value: uint64(raw)}
}

// ResolvedValue collapses the field to its effective numeric value: Nil and
// Inherit both collapse to 0 at this layer (callers distinguish "used
// default" vs. "sentinel" via HasValue/Kind, not via this return value).
func (f Field) ResolvedValue() uint64 {
	if f.Kind == Explicit {
		return f.Value
	}
	return 0
}

// HasValue reports whether the field carries an opinion at all — i.e. is
// not Inherit. Both Nil and Explicit count as "has a value" for the purpose
// of deciding whether an override config "has values".
func (f Field) HasValue() bool {
	return f.Kind != Inherit
}

// Config is the raw ULN configuration shape shared by DefaultUlnConfig and
// OAppUlnConfig: six fields exactly as emitted on the wire.
type Config struct {
	Confirmations        Field
	RequiredDVNCount     Field
	OptionalDVNCount     Field
	OptionalDVNThreshold Field
	RequiredDVNs         []string // normalized, deduped, sorted
	OptionalDVNs         []string // normalized, deduped, sorted
}

// HasValues reports whether any field is non-Inherit or either DVN array is
// non-empty — the "override.hasValues" test used throughout §4.F.
func (c Config) HasValues() bool {
	if c.Confirmations.HasValue() || c.RequiredDVNCount.HasValue() ||
		c.OptionalDVNCount.HasValue() || c.OptionalDVNThreshold.HasValue() {
		return true
	}
	return len(c.RequiredDVNs) > 0 || len(c.OptionalDVNs) > 0
}

// ValidationWarning describes a non-fatal invariant violation discovered
// while building a Config from raw wire values.
type ValidationWarning struct {
	Kind    string
	Message string
}

func (w ValidationWarning) Error() string {
	return fmt.Sprintf("%s: %s", w.Kind, w.Message)
}

// Validate normalizes and checks a freshly decoded Config, capping
// optionalDvnThreshold to optionalDvnCount when it is exceeded and
// collecting any warnings raised along the way. It never returns a hard
// error: violations are corrected in place and reported as warnings
// instead.
func (c *Config) Validate() []ValidationWarning {
	var warnings []ValidationWarning

	if c.OptionalDVNThreshold.Kind == Explicit && c.OptionalDVNCount.Kind == Explicit &&
		c.OptionalDVNThreshold.Value > c.OptionalDVNCount.Value {
		warnings = append(warnings, ValidationWarning{
			Kind:    "threshold_exceeds_count",
			Message: fmt.Sprintf("optionalDvnThreshold %d capped to optionalDvnCount %d", c.OptionalDVNThreshold.Value, c.OptionalDVNCount.Value),
		})
		c.OptionalDVNThreshold.Value = c.OptionalDVNCount.Value
	}

	if c.RequiredDVNCount.Kind == Explicit && int(c.RequiredDVNCount.Value) != len(c.RequiredDVNs) && len(c.RequiredDVNs) > 0 {
		warnings = append(warnings, ValidationWarning{
			Kind:    "required_dvn_count_mismatch",
			Message: fmt.Sprintf("requiredDvnCount %d does not match %d required DVNs supplied", c.RequiredDVNCount.Value, len(c.RequiredDVNs)),
		})
	}
	if c.OptionalDVNCount.Kind == Explicit && int(c.OptionalDVNCount.Value) != len(c.OptionalDVNs) && len(c.OptionalDVNs) > 0 {
		warnings = append(warnings, ValidationWarning{
			Kind:    "optional_dvn_count_mismatch",
			Message: fmt.Sprintf("optionalDvnCount %d does not match %d optional DVNs supplied", c.OptionalDVNCount.Value, len(c.OptionalDVNs)),
		})
	}

	if c.RequiredDVNCount.Kind == Nil {
		warnings = append(warnings, ValidationWarning{Kind: "required_dvn_sentinel", Message: "requiredDvnCount sentinel observed"})
	}
	if c.OptionalDVNCount.Kind == Nil {
		warnings = append(warnings, ValidationWarning{Kind: "optional_dvn_sentinel", Message: "optionalDvnCount sentinel observed"})
	}
	if c.Confirmations.Kind == Nil {
		warnings = append(warnings, ValidationWarning{Kind: "confirmations_sentinel", Message: "confirmations sentinel observed"})
	}

	return warnings
}
