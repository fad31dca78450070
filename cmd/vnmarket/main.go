// Command vnmarket launches one node of the distributed equity-bar
// proxy/cache: in core mode it runs the Fetch & Distribution Worker
// and HTTP server; in follower mode (core_network_url set) the
// worker is replaced by the Sync Puller. The launcher itself is
// deliberately thin — cobra flag parsing and config loading are
// ambient concerns, not part of the core design (§1 "Out of scope").
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/vnmarket/internal/config"
	"github.com/sawpanic/vnmarket/internal/gossip"
	"github.com/sawpanic/vnmarket/internal/httpapi"
	"github.com/sawpanic/vnmarket/internal/ingest"
	"github.com/sawpanic/vnmarket/internal/reputation"
	"github.com/sawpanic/vnmarket/internal/store"
	"github.com/sawpanic/vnmarket/internal/telemetry"
	"github.com/sawpanic/vnmarket/internal/tickergroup"
	"github.com/sawpanic/vnmarket/internal/upstream"
	"github.com/sawpanic/vnmarket/internal/worker"
)

const version = "v0.1.0"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	var configPath string

	rootCmd := &cobra.Command{
		Use:     "vnmarket",
		Short:   "Distributed proxy and cache for Vietnamese equity OHLCV bars",
		Version: version,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run this node in core or follower mode, per config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(configPath)
		},
	}
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to node YAML config")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the vnmarket version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Println(version)
			return nil
		},
	}

	rootCmd.AddCommand(serveCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("vnmarket: fatal startup error")
	}
}

func runNode(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	nodeLog := log.With().Str("node", cfg.Name).Logger()

	symbolStore := store.New()
	reputationRegistry := reputation.New()
	watermark := ingest.NewWatermark()
	metrics := telemetry.New()

	tokens := ingest.Tokens{Primary: cfg.PrimaryToken, Secondary: cfg.SecondaryToken}
	pipeline := ingest.New(symbolStore, reputationRegistry, watermark, tokens, nodeLog)

	var catalogue tickergroup.Catalogue
	if !cfg.IsFollower() {
		catalogue, err = tickergroup.Load(cfg.TickerGroup)
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// upstreamClient stays nil in follower mode, which runs the Sync
	// Puller instead and has no breaker state to report at /health.
	var upstreamClient *upstream.Client

	if cfg.IsFollower() {
		follower := worker.NewFollower(cfg.CoreNetworkURL, symbolStore, cfg.Cycle.FollowerRefresh(), nodeLog)
		go follower.Run(ctx)
		nodeLog.Info().Str("core", cfg.CoreNetworkURL).Msg("running in follower mode")
	} else {
		upstreamClient = upstream.New(upstream.Config{
			ChartURL:       cfg.ChartURL,
			LimitPerMinute: cfg.LimitPerMinute,
			Metrics:        metrics,
			Logger:         nodeLog,
		})
		fanout := gossip.New(gossip.Config{
			InternalPeers: cfg.InternalPeers,
			PublicPeers:   cfg.PublicPeers,
			PrimaryToken:  cfg.PrimaryToken,
			Metrics:       metrics,
			Logger:        nodeLog,
		})
		selector := worker.NewOfficeHoursSelector(cfg.Cycle.OfficeHours(), cfg.Cycle.NonOfficeHours())

		w := worker.New(worker.Config{
			Fetcher:    upstreamClient,
			Store:      symbolStore,
			Broadcast:  fanout.Broadcast,
			Symbols:    catalogue.AllSymbols(),
			Production: cfg.IsProduction(),
			Selector:   selector,
			Logger:     nodeLog,
		})
		go w.Run(ctx)
		nodeLog.Info().Int("symbols", len(catalogue.AllSymbols())).Msg("running in core mode")
	}

	server, err := httpapi.NewServer(httpapi.Config{
		Host:           "0.0.0.0",
		Port:           cfg.ListenPort,
		Pipeline:       pipeline,
		Store:          symbolStore,
		Registry:       reputationRegistry,
		Metrics:        metrics,
		TickerGroup:    catalogue,
		UpstreamClient: upstreamClient,
		NodeName:       cfg.Name,
		Logger:         nodeLog,
	})
	if err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return err
	case <-sig:
		nodeLog.Info().Msg("shutdown signal received")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	}
}
