package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aeolun/lanchat/pkg/client"
	"github.com/aeolun/lanchat/pkg/client/assets"
	"github.com/aeolun/lanchat/pkg/client/ui"
	"github.com/aeolun/lanchat/pkg/event"
	"github.com/aeolun/lanchat/pkg/state"
	"github.com/aeolun/lanchat/pkg/transport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

type runOptions struct {
	configPath    string
	port          int
	username      string
	bind          string
	broadcast     string
	metricsListen string
	logLevel      string
	headless      bool
}

// loadConfig reads the config file and applies command-line overrides
func loadConfig(opts runOptions) (client.TOMLConfig, error) {
	cfg, err := client.LoadClientConfig(opts.configPath)
	if err != nil {
		return client.TOMLConfig{}, err
	}

	if opts.port != 0 {
		cfg.Network.Port = opts.port
	}
	if opts.username != "" {
		cfg.User.Username = opts.username
	}
	if opts.bind != "" {
		cfg.Network.BindAddress = opts.bind
	}
	if opts.broadcast != "" {
		cfg.Network.BroadcastAddress = opts.broadcast
	}
	if opts.metricsListen != "" {
		cfg.Metrics.Listen = opts.metricsListen
	}
	if opts.logLevel != "" {
		cfg.Local.LogLevel = opts.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return client.TOMLConfig{}, fmt.Errorf("invalid command-line override: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *client.TOMLConfig, headless bool) (*log.Logger, io.Closer, error) {
	path, err := cfg.GetLogFilePath()
	if err != nil {
		return nil, nil, err
	}
	if headless {
		path = ""
	}
	logger, closer := client.NewLogger(cfg.Local.LogLevel, path)
	if !headless && path == "" {
		// stderr belongs to the terminal UI
		logger.Writer = &log.IOWriter{Writer: io.Discard}
	}
	return logger, closer, nil
}

func run(cmd *cobra.Command, opts runOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger, logCloser, err := newLogger(&cfg, opts.headless)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	// Settings
	dbPath, err := cfg.GetSettingsDBPath()
	if err != nil {
		return err
	}
	settings, err := client.OpenSettings(dbPath)
	if err != nil {
		return err
	}
	defer settings.Close()

	if settings.GetFirstRun() {
		logger.Info().Str("config", opts.configPath).Str("settings", dbPath).Msg("first run")
		if err := settings.SetFirstRunComplete(); err != nil {
			logger.Warn().Err(err).Msg("failed to record first run")
		}
	}
	if last := settings.GetLastUsername(); last != "" && last != cfg.Username() {
		logger.Info().Str("previous", last).Str("current", cfg.Username()).Msg("username changed")
	}
	if err := settings.SetLastUsername(cfg.Username()); err != nil {
		logger.Warn().Err(err).Msg("failed to store username")
	}

	var notifier client.Notifier = client.NopNotifier{}
	if cfg.Local.Notifications {
		iconPath, err := assets.GetIconPath(settings.GetSettingsDir(), settings)
		if err != nil {
			logger.Debug().Err(err).Msg("notification icon unavailable")
		}
		notifier = client.DesktopNotifier{IconPath: iconPath}
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := transport.NewMetrics(reg)

	// Core
	bus := event.NewDispatcher(logger)
	defer bus.Close()

	store := state.NewStore(bus, logger)

	srv, err := transport.NewUDPServer(bus, cfg.ListenAddress(),
		transport.WithLogger(logger),
		transport.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}

	c, err := client.New(&cfg, bus, store, srv,
		client.WithLogger(logger),
		client.WithMetrics(metrics),
		client.WithSettings(settings),
		client.WithNotifier(notifier),
	)
	if err != nil {
		srv.Close()
		return err
	}
	c.Register()
	defer c.Close()

	var bridge *ui.Bridge
	if !opts.headless {
		bridge = ui.NewBridge(bus)
		defer bridge.Close()
	}

	if err := srv.Start(); err != nil {
		srv.Close()
		return err
	}

	metricsServer := serveMetrics(cfg.Metrics.Listen, reg, logger)

	if err := c.Announce(); err != nil {
		logger.Warn().Err(err).Msg("entry announcement failed")
	}

	hostname, _ := cfg.Hostname()
	runErr := runFrontend(cmd.Context(), opts.headless, bus, bridge, settings, cfg.Username(), hostname, logger)

	// Shutdown: announce exit, let the transport flush it, then release everything
	if err := c.Leave(); err != nil {
		logger.Warn().Err(err).Msg("exit announcement failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown().WaitContext(ctx); err != nil {
		logger.Warn().Err(err).Msg("transport shutdown")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("metrics server shutdown")
		}
	}

	logger.Info().Msg("stopped")
	return runErr
}

// runFrontend blocks until the user quits the UI or, headless, until a signal arrives
func runFrontend(ctx context.Context, headless bool, bus *event.Dispatcher, bridge *ui.Bridge, settings client.SettingsStore, username, hostname string, logger *log.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if headless {
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		logger.Info().Str("user", username).Msg("running headless")
		<-ctx.Done()
		return nil
	}

	model := ui.NewModel(bus, bridge, settings, username, version).WithHost(hostname)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("terminal UI: %w", err)
	}
	return nil
}

// serveMetrics starts the Prometheus endpoint when listen is set
func serveMetrics(listen string, reg *prometheus.Registry, logger *log.Logger) *http.Server {
	if listen == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	server := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", listen).Msg("serving metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server")
		}
	}()

	return server
}
