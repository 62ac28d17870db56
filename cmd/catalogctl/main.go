package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeridianExplorer/noobaa-core/pkg/catalogmgr"
	"github.com/MeridianExplorer/noobaa-core/pkg/clusterrpc"
	"github.com/MeridianExplorer/noobaa-core/pkg/docstore"
	"github.com/MeridianExplorer/noobaa-core/pkg/log"
	"github.com/MeridianExplorer/noobaa-core/pkg/metrics"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "catalogctl",
	Short:   "catalogctl operates the metadata and placement core's Catalog Manager",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"catalogctl version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Path to a catalogmgr config YAML file")
	rootCmd.PersistentFlags().String("mongo-uri", "", "MongoDB connection URI (empty runs an in-memory fixture store)")
	rootCmd.PersistentFlags().String("mongo-db", "catalog", "MongoDB database name")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// newManager builds a Manager from the root command's persistent flags. A
// blank --mongo-uri runs against an in-memory MemStore, so catalogctl can
// drive fixtures without a live Mongo cluster, matching the teacher's own
// "apply against whatever's configured" CLI style.
func newManager(cmd *cobra.Command) (*catalogmgr.Manager, func(), error) {
	ctx := context.Background()

	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := catalogmgr.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	mongoURI, _ := cmd.Flags().GetString("mongo-uri")
	mongoDB, _ := cmd.Flags().GetString("mongo-db")

	var store docstore.Store
	var closeStore func()
	if mongoURI == "" {
		store = docstore.NewMemStore()
		closeStore = func() {}
	} else {
		mongoStore, err := docstore.Dial(ctx, mongoURI, mongoDB)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to mongo: %w", err)
		}
		store = mongoStore
		closeStore = func() { _ = mongoStore.Close(context.Background()) }
	}

	var redirector clusterrpc.Redirector
	if cfg.SelfAddr == "" {
		broker := clusterrpc.NewLocalBroker()
		broker.Start()
		redirector = broker
	} else {
		redirector = clusterrpc.NewGRPCRedirector(cfg.SelfAddr, cfg.PeerAddrs)
	}

	var cache *catalogmgr.Cache
	if cfg.CachePath != "" {
		cache, err = catalogmgr.OpenCache(cfg.CachePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open cache: %w", err)
		}
	}

	mgr := catalogmgr.NewManager(cfg, store, redirector, cache)

	cleanup := func() {
		closeStore()
		if cache != nil {
			_ = cache.Close()
		}
	}
	return mgr, cleanup, nil
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Force the Catalog Manager to load the current snapshot and report its state",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, cleanup, err := newManager(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		snap, err := mgr.Refresh(cmd.Context())
		if err != nil {
			return fmt.Errorf("refresh: %w", err)
		}

		state := catalogmgr.State(mgr.State())
		fmt.Printf("state: %s\n", state)
		fmt.Printf("snapshot age: %s\n", mgr.SnapshotAge())
		fmt.Printf("collisions: %d\n", len(snap.Collisions()))
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get COLLECTION ID",
	Short: "Look up one reference-resolved document by id",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[1]

		mgr, cleanup, err := newManager(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		snap, err := mgr.Refresh(cmd.Context())
		if err != nil {
			return fmt.Errorf("refresh: %w", err)
		}

		doc, ok := snap.ByID(id)
		if !ok {
			return fmt.Errorf("no document with id %q", id)
		}

		printDocument(doc)
		return nil
	},
}

func printDocument(doc map[string]interface{}) {
	for k, v := range doc {
		fmt.Printf("%s: %v\n", k, v)
	}
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Catalog Manager as a long-lived process exposing /metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, cleanup, err := newManager(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		metrics.SetVersion(Version)
		metrics.RegisterComponent("docstore", false, "not yet refreshed")
		metrics.RegisterComponent("clusterrpc", true, "")
		metrics.RegisterComponent("catalog", false, "not yet refreshed")

		if _, err := mgr.Refresh(cmd.Context()); err != nil {
			log.Logger.Warn().Err(err).Msg("initial refresh failed, continuing cold")
			metrics.UpdateComponent("docstore", false, err.Error())
			metrics.UpdateComponent("catalog", false, err.Error())
		} else {
			metrics.UpdateComponent("docstore", true, "")
			metrics.UpdateComponent("catalog", true, "")
		}

		collector := metrics.NewCollector(mgr)
		collector.Start()
		defer collector.Stop()

		go func() {
			http.Handle("/metrics", metrics.Handler())
			http.Handle("/health", metrics.HealthHandler())
			http.Handle("/ready", metrics.ReadyHandler())
			http.Handle("/live", metrics.LivenessHandler())
			if err := http.ListenAndServe(metricsAddr, nil); err != nil {
				fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
			}
		}()
		fmt.Printf("catalogctl serving metrics on http://%s/metrics (health on /health, /ready, /live)\n", metricsAddr)

		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		for {
			select {
			case <-ticker.C:
				if _, err := mgr.Refresh(cmd.Context()); err != nil {
					log.Logger.Warn().Err(err).Msg("background refresh failed")
					metrics.UpdateComponent("catalog", false, err.Error())
				} else {
					metrics.UpdateComponent("catalog", true, "")
				}
			case <-sigCh:
				fmt.Println("shutting down")
				return nil
			}
		}
	},
}

func init() {
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the Prometheus /metrics endpoint")
}
