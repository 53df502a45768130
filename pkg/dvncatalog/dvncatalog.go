// Package dvncatalog implements the DVN directory: given a chain and a
// set of addresses referenced by a resolved configuration, it ensures a
// DvnMetadata row exists for each, named via the bundled catalog's
// resolution order.
package dvncatalog

import (
	"context"
	"fmt"

	"github.com/sekuba/dvnstats-sub001/internal/obslog"
	"github.com/sekuba/dvnstats-sub001/pkg/addr"
	"github.com/sekuba/dvnstats-sub001/pkg/catalog"
	"github.com/sekuba/dvnstats-sub001/pkg/entities"
	"github.com/sekuba/dvnstats-sub001/pkg/store"
)

// Directory ensures DvnMetadata rows exist for the DVN addresses observed
// in resolved configurations, naming them from the bundled catalog.
type Directory struct {
	store store.Store
	cat   *catalog.Catalog
}

// New builds a Directory backed by s, naming entries from cat (which may
// be nil — addresses then fall back to their own hex form as the name).
func New(s store.Store, cat *catalog.Catalog) *Directory {
	return &Directory{store: s, cat: cat}
}

// EnsureAddresses ensures a DvnMetadata row exists for every non-zero
// address in addresses, on chainID. Name resolution order: chain-specific
// canonical name from the bundled catalog, else the
// address as-is. If a row exists under an older name, it is updated to
// the newer one. Zero addresses are skipped.
func (d *Directory) EnsureAddresses(ctx context.Context, chainID int64, addresses []string) error {
	for _, address := range addresses {
		if address == "" || addr.IsZero(address) {
			continue
		}
		if err := d.ensureOne(ctx, chainID, address); err != nil {
			return fmt.Errorf("dvncatalog: ensure %s on chain %d: %w", address, chainID, err)
		}
	}
	return nil
}

func (d *Directory) ensureOne(ctx context.Context, chainID int64, address string) error {
	name := address
	if d.cat != nil {
		name = d.cat.DvnName(chainID, address)
	}

	existing, err := d.store.GetDvnMetadata(ctx, chainID, address)
	if err != nil && err != store.ErrNotFound {
		return err
	}
	if existing != nil && existing.Name == name {
		return nil
	}

	rec := &entities.DvnMetadata{
		ID:      fmt.Sprintf("%d_%s", chainID, address),
		ChainID: chainID,
		Address: address,
		Name:    name,
	}
	if err := d.store.PutDvnMetadata(ctx, rec); err != nil {
		return err
	}
	if existing != nil && existing.Name != name {
		obslog.DebugCtx(ctx, "dvn display name updated from bundled catalog",
			obslog.KeyChainID, chainID, "address", address, "old_name", existing.Name, "new_name", name)
	}
	return nil
}
