package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sekuba/dvnstats-sub001/pkg/catalog"
	"github.com/sekuba/dvnstats-sub001/pkg/dvncatalog"
	"github.com/sekuba/dvnstats-sub001/pkg/handlers"
	"github.com/sekuba/dvnstats-sub001/pkg/ingest"
	"github.com/sekuba/dvnstats-sub001/pkg/libclass"
	"github.com/sekuba/dvnstats-sub001/pkg/metrics"
	"github.com/sekuba/dvnstats-sub001/pkg/store"
)

var replayCatalogPath string

var replayCmd = &cobra.Command{
	Use:   "replay <path>",
	Short: "Replay a recorded JSONL event log into a fresh in-memory store",
	Long: `Feed a recorded JSONL event log through the dispatch path into a
fresh MemoryStore and dump the resulting entities as JSON to stdout.

Used for the determinism property tests and for local debugging: replaying
the same log twice against a fresh store must produce byte-identical output.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayCatalogPath, "catalog", "", "optional bundled catalog document, for DVN name resolution")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open replay log: %w", err)
	}
	defer f.Close()

	var cat *catalog.Catalog
	if replayCatalogPath != "" {
		cat, err = loadCatalog(replayCatalogPath)
		if err != nil {
			return fmt.Errorf("failed to load catalog: %w", err)
		}
	}

	s := store.NewMemoryStore()
	hc := &handlers.Context{
		Store:      s,
		Classifier: libclass.New(libclass.DefaultTrackedLibraries),
		Dvn:        dvncatalog.New(s, cat),
		Metrics:    metrics.New(nil),
	}

	ctx := context.Background()
	if err := ingest.Replay(ctx, f, hc); err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot store: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snapshot)
}
