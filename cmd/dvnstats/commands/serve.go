package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/sekuba/dvnstats-sub001/internal/obslog"
	"github.com/sekuba/dvnstats-sub001/internal/telemetry"
	"github.com/sekuba/dvnstats-sub001/pkg/api"
	"github.com/sekuba/dvnstats-sub001/pkg/catalog"
	"github.com/sekuba/dvnstats-sub001/pkg/config"
	"github.com/sekuba/dvnstats-sub001/pkg/dvncatalog"
	"github.com/sekuba/dvnstats-sub001/pkg/events"
	"github.com/sekuba/dvnstats-sub001/pkg/handlers"
	"github.com/sekuba/dvnstats-sub001/pkg/ingest"
	"github.com/sekuba/dvnstats-sub001/pkg/libclass"
	"github.com/sekuba/dvnstats-sub001/pkg/metrics"
	"github.com/sekuba/dvnstats-sub001/pkg/store/postgres"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the indexer: ingest events, serve the read API and metrics",
	Long: `Start the dvnstats indexer.

Loads configuration and the bundled chains/DVNs catalog, opens the
Postgres store, starts one dispatch loop per configured chain, and
serves the read-only HTTP API and Prometheus metrics. Raw events are
read as newline-delimited JSON records from stdin, one per line, each
routed to its chain's dispatch loop by its "chainId" field.

Blocks until SIGINT/SIGTERM, then drains in-flight events and shuts
down the API and store within the configured shutdown timeout.`,
	RunE: runServe,
}

// eventRecord is one line of the live event feed: the same shape the
// replay log uses, read one record per line from stdin.
type eventRecord struct {
	Kind            string                 `json:"kind"`
	ChainID         int64                  `json:"chainId"`
	BlockNumber     uint64                 `json:"blockNumber"`
	BlockTimestamp  int64                  `json:"blockTimestamp"`
	LogIndex        uint32                 `json:"logIndex"`
	TransactionHash string                 `json:"transactionHash"`
	Params          map[string]interface{} `json:"params"`
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if err := obslog.Init(obslog.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			obslog.Error("telemetry shutdown error", obslog.KeyError, err)
		}
	}()

	cat, err := loadCatalog(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	obslog.Info("catalog loaded", "chains", len(cat.Chains()))

	st, err := postgres.New(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	metricsRegistry := metrics.New(reg)

	hc := &handlers.Context{
		Store:      st,
		Classifier: libclass.New(trackedLibrariesByChain(cfg)),
		Dvn:        dvncatalog.New(st, cat),
		Metrics:    metricsRegistry,
		Preload:    cfg.Ingest.Preload,
	}

	adapter := ingest.New(hc)
	for _, chainCfg := range cfg.Chains {
		adapter.Chain(chainCfg.ChainID)
	}
	for _, entry := range cat.Chains() {
		adapter.Chain(entry.NativeChainID)
	}
	adapter.Start(ctx)
	defer adapter.Stop(cfg.ShutdownTimeout)

	stdinDone := make(chan error, 1)
	go func() { stdinDone <- feedStdin(ctx, adapter) }()

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(cfg.API, st)
		go func() {
			if err := apiServer.Start(ctx); err != nil {
				obslog.Error("api server error", obslog.KeyError, err)
			}
		}()
		obslog.Info("read api enabled", "port", cfg.API.Port)
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		}
		go func() {
			obslog.Info("metrics server listening", "port", cfg.Metrics.Port)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				obslog.Error("metrics server error", obslog.KeyError, err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	obslog.Info("dvnstats is running")

	select {
	case <-sigCh:
		signal.Stop(sigCh)
		obslog.Info("shutdown signal received, initiating graceful shutdown")
		cancel()
	case err := <-stdinDone:
		if err != nil {
			obslog.Error("event feed error", obslog.KeyError, err)
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	if apiServer != nil {
		_ = apiServer.Stop(shutdownCtx)
	}

	obslog.Info("dvnstats stopped")
	return nil
}

// feedStdin reads newline-delimited JSON event records from stdin and
// routes each to its chain's dispatch loop, bridging the host runtime's
// event delivery contract into the ingestion adapter.
func feedStdin(ctx context.Context, adapter *ingest.Adapter) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec eventRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			obslog.Warn("serve: skipping malformed event record", obslog.KeyError, err)
			continue
		}

		bctx := events.BlockContext{
			ChainID:     rec.ChainID,
			BlockNumber: rec.BlockNumber,
			LogIndex:    rec.LogIndex,
			Timestamp:   time.Unix(rec.BlockTimestamp, 0).UTC(),
			TxHash:      rec.TransactionHash,
		}

		select {
		case adapter.Chain(rec.ChainID) <- ingest.Delivery{Kind: rec.Kind, Ctx: bctx, Payload: events.RawPayload(rec.Params)}:
		case <-ctx.Done():
			return nil
		}
	}
	return scanner.Err()
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog file %s: %w", path, err)
	}
	defer f.Close()
	return catalog.Load(f)
}

// trackedLibrariesByChain merges the built-in tracked-library defaults
// with any per-chain overrides from configuration.
func trackedLibrariesByChain(cfg *config.Config) map[int64][]string {
	merged := make(map[int64][]string, len(libclass.DefaultTrackedLibraries)+len(cfg.Chains))
	for chainID, libs := range libclass.DefaultTrackedLibraries {
		merged[chainID] = append([]string(nil), libs...)
	}
	for _, c := range cfg.Chains {
		if len(c.TrackedLibraries) > 0 {
			merged[c.ChainID] = c.TrackedLibraries
		}
	}
	return merged
}
