// Package libclass classifies a resolved receive-library address for a
// given chain as Tracked (the ULN implementation this core understands),
// Unsupported (some other non-zero library), or None (no library resolved).
package libclass

// Status is the outcome of classifying a library address.
type Status uint8

const (
	// None means no library address was resolved at all.
	None Status = iota
	// Tracked means the address matches this chain's known ULN implementation.
	Tracked
	// Unsupported means a non-zero library was resolved but it isn't the one
	// this core understands; the ULN portion of the configuration is opaque.
	Unsupported
)

func (s Status) String() string {
	switch s {
	case None:
		return "None"
	case Tracked:
		return "Tracked"
	case Unsupported:
		return "Unsupported"
	default:
		return "Unknown"
	}
}

// Classifier holds the per-chain set of tracked receive-library addresses.
// Addresses must already be normalized (lowercase, 0x-prefixed, 40 hex
// chars) by the caller.
type Classifier struct {
	tracked map[int64]map[string]struct{}
}

// New builds a Classifier from a per-chain list of tracked library
// addresses. Typically seeded with the hard-coded defaults (see
// DefaultTrackedLibraries) and then merged with any deployment-specific
// overrides from configuration.
func New(trackedByChain map[int64][]string) *Classifier {
	c := &Classifier{tracked: make(map[int64]map[string]struct{}, len(trackedByChain))}
	for chainID, libs := range trackedByChain {
		set := make(map[string]struct{}, len(libs))
		for _, lib := range libs {
			set[lib] = struct{}{}
		}
		c.tracked[chainID] = set
	}
	return c
}

// Classify returns the library status for a resolved, normalized,
// non-empty-or-zero-checked address. Pass "" for "no library resolved".
func (c *Classifier) Classify(chainID int64, libraryAddress string) Status {
	if libraryAddress == "" {
		return None
	}
	if set, ok := c.tracked[chainID]; ok {
		if _, tracked := set[libraryAddress]; tracked {
			return Tracked
		}
	}
	return Unsupported
}

// IsTracked is a convenience wrapper for the common case.
func (c *Classifier) IsTracked(chainID int64, libraryAddress string) bool {
	return c.Classify(chainID, libraryAddress) == Tracked
}

// Merge returns a new Classifier with overrides layered on top of base: for
// any chain present in overrides, the override's tracked set entirely
// replaces the base's for that chain; chains absent from overrides keep
// base's set. This lets deployment configuration extend or replace the
// hard-coded map (§9 Open Question) without changing classifier semantics
// for chains nobody overrides.
func Merge(base *Classifier, overrides map[int64][]string) *Classifier {
	merged := make(map[int64][]string, len(base.tracked)+len(overrides))
	for chainID, set := range base.tracked {
		libs := make([]string, 0, len(set))
		for lib := range set {
			libs = append(libs, lib)
		}
		merged[chainID] = libs
	}
	for chainID, libs := range overrides {
		merged[chainID] = libs
	}
	return New(merged)
}
