package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/serandules/throttle/pkg/config"
	"github.com/serandules/throttle/pkg/middleware"
	"github.com/serandules/throttle/pkg/telemetry/logging"
	"github.com/serandules/throttle/pkg/throttle"
	"github.com/serandules/throttle/pkg/throttle/store"
	"github.com/serandules/throttle/pkg/throttle/tierstore"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the admission control service",
	Long: `Start the admission control service with the specified configuration.

The service exposes the admission API on /v1/check, Prometheus metrics on
/metrics, and a health probe on /healthz. The configuration file is watched
while running, so the kill switch can be flipped without a restart.

Examples:
  # Start with default config
  throttle run

  # Start with custom config
  throttle run --config /etc/throttle/config.yaml

  # Validate config without starting the service
  throttle run --dry-run`,
	RunE: runService,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the service")
}

func runService(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Logging.Level = runFlags.logLevel
	}

	logger, err := logging.New(cfg.Logging, os.Stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if runFlags.dryRun {
		fmt.Println("configuration valid")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	counters, healthy, cleanup, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	source, err := buildTierSource(cfg)
	if err != nil {
		return err
	}

	engine := throttle.NewEngine(throttle.Config{
		Store:     counters,
		Namespace: cfg.Throttle.Namespace,
		IPLimits:  cfg.Throttle.BuildIPLimits(),
		Disabled:  cfg.Throttle.Disabled,
		Logger:    logger,
		Metrics:   throttle.NewMetrics(),
	})
	resolver := throttle.NewResolver(source, cfg.Throttle.DefaultTier)

	// The config file stays authoritative for the kill switch while running.
	go func() {
		err := config.Watch(ctx, cfgFile, logger, func(next *config.Config) {
			engine.SetDisabled(next.Throttle.Disabled)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("config watcher stopped", "error", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/v1/check", &checkHandler{
		engine:   engine,
		resolver: resolver,
		source:   source,
		logger:   logger,
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := healthy(r.Context()); err != nil {
			http.Error(w, "counter store unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	var handler http.Handler = mux
	if cfg.Server.SelfProtect {
		handler = middleware.PerIP(engine, logger)(handler)
	}
	handler = middleware.RequestID(handler)

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddress,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("admission service listening",
			"address", cfg.Server.ListenAddress,
			"store", cfg.Throttle.Store,
			"disabled", cfg.Throttle.Disabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildStore creates the configured counter store and returns it together
// with a health probe and a cleanup function.
func buildStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, func(context.Context) error, func(), error) {
	switch cfg.Throttle.Store {
	case "memory":
		mem := store.NewMemory()

		// The memory store evaluates expiry lazily, so sweep it on a
		// schedule to keep idle keys from accumulating.
		janitor := cron.New()
		_, err := janitor.AddFunc(cfg.Throttle.PurgeSchedule, func() {
			if n := mem.PurgeExpired(); n > 0 {
				logger.Debug("purged expired counters", "count", n)
			}
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("invalid purge schedule %q: %w", cfg.Throttle.PurgeSchedule, err)
		}
		janitor.Start()

		healthy := func(context.Context) error { return nil }
		cleanup := func() {
			<-janitor.Stop().Done()
			mem.Close()
		}
		return mem, healthy, cleanup, nil

	default: // "redis", enforced by config validation
		client := redis.NewClient(&redis.Options{
			Addr:        cfg.Redis.Address,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
			ReadTimeout: cfg.Redis.ReadTimeout,
			PoolSize:    cfg.Redis.PoolSize,
		})
		rs := store.NewRedis(client)

		pingCtx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout)
		defer cancel()
		if err := rs.Ping(pingCtx); err != nil {
			rs.Close()
			return nil, nil, nil, fmt.Errorf("counter store unreachable at %s: %w", cfg.Redis.Address, err)
		}

		cleanup := func() {
			if err := rs.Close(); err != nil {
				logger.Warn("closing counter store", "error", err)
			}
		}
		return rs, rs.Ping, cleanup, nil
	}
}

// buildTierSource creates the configured tier policy source.
func buildTierSource(cfg *config.Config) (throttle.TierSource, error) {
	if cfg.Throttle.TierDB != "" {
		return tierstore.NewSQLite(cfg.Throttle.TierDB)
	}
	return tierstore.NewStatic(cfg.Throttle.BuildTiers()), nil
}
