// Package catalog loads the bundled chains/DVNs JSON document once at
// startup into an immutable value: the per-chain native chain ID and eid
// deployments the library classifier and DVN directory consult, plus the
// best-known display name for every DVN address. Malformed entries are
// skipped with a warning rather than failing the whole load.
package catalog

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/sekuba/dvnstats-sub001/internal/obslog"
	"github.com/sekuba/dvnstats-sub001/pkg/addr"
)

// Deployment names one eid deployed on a chain, at a given stage
// (mainnet/testnet/sandbox, as the source document uses it).
type Deployment struct {
	Eid   int64
	Stage string
}

// ChainEntry is one chain's section of the bundled document: its native
// chain ID and the eid deployments hosted on it.
type ChainEntry struct {
	NativeChainID int64
	Deployments   []Deployment
}

// Catalog is the parsed, immutable bundled document. Zero value is an
// empty, usable catalog (no chains, no DVN names known).
type Catalog struct {
	chains map[string]ChainEntry        // keyed by the document's chain key, informational only
	byEid  map[int64]int64              // eid -> nativeChainId, for classifier/eid-to-chain lookups
	dvns   map[string]map[string]string // nativeChainId (as string) -> normalized address -> name
}

// rawDocument mirrors the bundled JSON shape exactly:
//
//	{ "<chainKey>": {
//	    "chainDetails": {"nativeChainId": N},
//	    "deployments": [{"eid": N, "stage": "mainnet"}],
//	    "dvns": {"0xaddr": {"canonicalName": "..."} | {"name": "..."} | {"id": "..."}}
//	  }, ... }
type rawDocument map[string]rawChainEntry

type rawChainEntry struct {
	ChainDetails struct {
		NativeChainID json.Number `json:"nativeChainId"`
	} `json:"chainDetails"`
	Deployments []rawDeployment        `json:"deployments"`
	Dvns        map[string]rawDvnEntry `json:"dvns"`
}

type rawDeployment struct {
	Eid   json.Number `json:"eid"`
	Stage string      `json:"stage"`
}

type rawDvnEntry struct {
	CanonicalName string `json:"canonicalName"`
	Name          string `json:"name"`
	ID            string `json:"id"`
}

// displayName resolves the DVN name-resolution order: canonical name,
// then name, then id.
func (e rawDvnEntry) displayName() string {
	if e.CanonicalName != "" {
		return e.CanonicalName
	}
	if e.Name != "" {
		return e.Name
	}
	return e.ID
}

// Load parses the bundled catalog document from r. Entries that cannot be
// parsed into a usable chain/eid/DVN mapping are skipped with a warning;
// Load itself only fails if r cannot be read as JSON at all.
func Load(r io.Reader) (*Catalog, error) {
	var doc map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("catalog: decode bundled document: %w", err)
	}

	cat := &Catalog{
		chains: make(map[string]ChainEntry, len(doc)),
		byEid:  make(map[int64]int64),
		dvns:   make(map[string]map[string]string),
	}

	for chainKey, rawEntry := range doc {
		var entry rawChainEntry
		if err := json.Unmarshal(rawEntry, &entry); err != nil {
			obslog.Warn("catalog: skipping malformed chain entry",
				obslog.KeyKind, "malformed_catalog_entry", "chain_key", chainKey, obslog.KeyError, err)
			continue
		}
		nativeChainID, err := entry.ChainDetails.NativeChainID.Int64()
		if err != nil {
			obslog.Warn("catalog: skipping chain entry with malformed nativeChainId",
				obslog.KeyKind, "malformed_catalog_entry", "chain_key", chainKey, obslog.KeyError, err)
			continue
		}

		var deployments []Deployment
		for _, d := range entry.Deployments {
			eid, err := d.Eid.Int64()
			if err != nil {
				obslog.Warn("catalog: skipping deployment with malformed eid",
					obslog.KeyKind, "malformed_catalog_entry", "chain_key", chainKey, obslog.KeyError, err)
				continue
			}
			deployments = append(deployments, Deployment{Eid: eid, Stage: d.Stage})
			cat.byEid[eid] = nativeChainID
		}
		cat.chains[chainKey] = ChainEntry{NativeChainID: nativeChainID, Deployments: deployments}

		names := make(map[string]string, len(entry.Dvns))
		for rawAddr, dvnEntry := range entry.Dvns {
			normalized, err := addr.Normalize(rawAddr)
			if err != nil {
				obslog.Warn("catalog: skipping dvn entry with malformed address",
					obslog.KeyKind, "malformed_catalog_entry", "chain_key", chainKey, "raw_address", rawAddr, obslog.KeyError, err)
				continue
			}
			name := dvnEntry.displayName()
			if name == "" {
				continue
			}
			names[normalized] = name
		}
		if len(names) > 0 {
			cat.dvns[fmt.Sprintf("%d", nativeChainID)] = names
		}
	}

	return cat, nil
}

// ChainIDForEid returns the native chain ID hosting a given eid, if the
// bundled document named that deployment.
func (c *Catalog) ChainIDForEid(eid int64) (int64, bool) {
	if c == nil {
		return 0, false
	}
	chainID, ok := c.byEid[eid]
	return chainID, ok
}

// DvnName resolves the best-known display name for a DVN address on a
// chain: canonical name from the bundled catalog, falling back to the
// address itself when unknown.
func (c *Catalog) DvnName(chainID int64, normalizedAddress string) string {
	if c != nil {
		if names, ok := c.dvns[fmt.Sprintf("%d", chainID)]; ok {
			if name, ok := names[normalizedAddress]; ok {
				return name
			}
		}
	}
	return normalizedAddress
}

// Chains returns the parsed chain entries, keyed by the document's chain
// key, for diagnostic/listing purposes (e.g. `dvnstats catalog validate`).
func (c *Catalog) Chains() map[string]ChainEntry {
	if c == nil {
		return nil
	}
	out := make(map[string]ChainEntry, len(c.chains))
	for k, v := range c.chains {
		out[k] = v
	}
	return out
}
