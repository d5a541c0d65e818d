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

	"github.com/camlog/camlog/pkg/api"
	"github.com/camlog/camlog/pkg/combatlog"
	"github.com/camlog/camlog/pkg/event"
	"github.com/camlog/camlog/pkg/logging"
	"github.com/camlog/camlog/pkg/metrics"
	"github.com/camlog/camlog/pkg/predict"
	"github.com/camlog/camlog/pkg/routes"
	"github.com/camlog/camlog/pkg/store"
)

var (
	serveLogFile   string
	serveDBPath    string
	serveConfig    string
	servePort      int
	serveHost      string
	serveFromStart bool
	serveLogLevel  string
	serveLogFormat string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch a combat log and serve the API",
	Long: `Watch a combat log file and serve parsed events, sessions and stats
over HTTP, with live events on GET /api/stream (Server-Sent Events).`,
	Example: `  # Watch the default log and serve on 127.0.0.1:8420
  camlog serve --log-file ~/daoc/chat.log

  # Parse the whole existing file before tailing
  camlog serve --log-file chat.log --from-start

  # Use a config file for auth, rate limiting and CORS
  camlog serve --log-file chat.log --config camlog.yaml`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveLogFile, "log-file", "f", "", "combat log file to watch (required)")
	serveCmd.Flags().StringVar(&serveDBPath, "db", "camlog.db", "SQLite database path (:memory: for none)")
	serveCmd.Flags().StringVarP(&serveConfig, "config", "c", "", "YAML config file with server overrides")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "override the listen port")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "override the bind address")
	serveCmd.Flags().BoolVar(&serveFromStart, "from-start", false, "parse the whole existing file before tailing")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	serveCmd.Flags().StringVar(&serveLogFormat, "log-format", "text", "log format (text, json)")
	_ = serveCmd.MarkFlagRequired("log-file")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logging.New(logging.Config{
		Level:  logging.ParseLevel(serveLogLevel),
		Format: logging.ParseFormat(serveLogFormat),
	})

	cfg, err := loadServerConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(serveDBPath, store.WithLogger(log))
	if err != nil {
		return err
	}
	defer st.Close()

	bus := event.NewBus(event.WithLogger(log))
	defer bus.Close()

	stats := metrics.New()

	srv := api.NewServer(cfg,
		api.WithLogger(log),
		api.WithDataSource(st),
		api.WithObserver(stats),
	)
	if err := srv.Route(routes.All(st, predict.NewDamageRatio(st), nil)...); err != nil {
		return err
	}
	if err := srv.Route(
		routes.Health(st.Ping),
		api.RouteDefinition{
			Method:  http.MethodGet,
			Path:    "/metrics",
			Handler: api.WrapHTTP(stats.Handler()),
			Summary: "Prometheus metrics",
			Tags:    []string{"meta"},
		},
	); err != nil {
		return err
	}
	srv.AttachMonitor(bus)
	defer srv.DetachMonitor()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		return err
	}
	log.Info("camlog serving", "addr", srv.Addr(), "log_file", serveLogFile, "db", serveDBPath)

	watcherOpts := []combatlog.WatcherOption{
		combatlog.WithWatcherLogger(log),
		combatlog.WithMetrics(stats),
	}
	if serveFromStart {
		watcherOpts = append(watcherOpts, combatlog.FromStart())
	}
	watcher := combatlog.NewWatcher(serveLogFile, st, bus, watcherOpts...)

	watchErr := make(chan error, 1)
	go func() { watchErr <- watcher.Run(ctx) }()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-watchErr:
		if err != nil {
			log.Error("watcher failed", "error", err)
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

// loadServerConfig merges the optional config file and flag overrides onto
// the defaults. Flags win over the file.
func loadServerConfig() (*api.ServerConfig, error) {
	var overrides *api.Overrides
	if serveConfig != "" {
		o, err := api.LoadOverrides(serveConfig)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		overrides = o
	}

	cfg := api.MergeConfig(overrides)
	if servePort != 0 {
		cfg.Port = servePort
	}
	if serveHost != "" {
		cfg.Host = serveHost
	}
	return cfg, nil
}
