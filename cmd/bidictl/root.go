package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/vango-dev/webdriverbidi/internal/config"
	"github.com/vango-dev/webdriverbidi/internal/errors"
	"github.com/vango-dev/webdriverbidi/pkg/driver"
	"github.com/vango-dev/webdriverbidi/pkg/recorder"
	"github.com/vango-dev/webdriverbidi/pkg/transport"
)

// stopTimeout bounds the shutdown of a session after a command finishes.
const stopTimeout = 5 * time.Second

type globalOptions struct {
	configPath  string
	url         string
	timeout     time.Duration
	logLevel    string
	record      string
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "bidictl",
		Short: "Drive a WebDriver BiDi remote end",
		Long: `bidictl connects to a browser speaking WebDriver BiDi and runs one
command against it.

Settings come from bidi.toml or bidi.json in the current directory or
any parent, and flags override them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "config file (default: nearest bidi.toml or bidi.json)")
	pf.StringVar(&g.url, "url", "", "websocket session URL of the remote end")
	pf.DurationVar(&g.timeout, "timeout", 0, "command timeout, 0 disables it")
	pf.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&g.record, "record", "", "record wire traffic to this SQLite file")
	pf.StringVar(&g.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	rootCmd.AddCommand(
		statusCmd(g),
		evalCmd(g),
		sendCmd(g),
		listenCmd(g),
		treeCmd(g),
		framesCmd(g),
		versionCmd(),
	)
	return rootCmd
}

// loadConfig resolves the config file and applies flag overrides.
func (g *globalOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case g.configPath != "":
		cfg, err = config.LoadFile(g.configPath)
	default:
		cwd, _ := os.Getwd()
		if path := config.Find(cwd); path != "" {
			cfg, err = config.LoadFile(path)
		} else {
			cfg = config.New()
		}
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("url") {
		cfg.URL = g.url
	}
	if flags.Changed("timeout") {
		cfg.Transport.CommandTimeout = g.timeout.String()
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = g.logLevel
	}
	if flags.Changed("record") {
		cfg.Recorder.Path = g.record
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = g.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.Level()}))
}

// session is a connected driver plus the optional recorder and metrics
// endpoint around it.
type session struct {
	*driver.Driver

	logger   *slog.Logger
	store    *recorder.Store
	recorder *recorder.Recorder
	metrics  *metricsServer
}

// connect opens a session. Extra transport options are applied after the
// ones the config implies.
func (g *globalOptions) connect(cmd *cobra.Command, extra ...transport.Option) (*session, error) {
	cfg, err := g.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()
	s := &session{logger: newLogger(cmd.ErrOrStderr(), cfg)}

	opts := append(cfg.TransportOptions(), transport.WithTracer(otel.Tracer("bidictl")))

	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, transport.WithMetrics(transport.NewMetrics(
			transport.WithNamespace(cfg.Metrics.Namespace),
			transport.WithRegistry(reg),
		)))
		if s.metrics, err = startMetrics(cfg.Metrics.Addr, reg, s.logger); err != nil {
			return nil, errors.New("E140").Wrap(err).WithDetail("Cannot listen on " + cfg.Metrics.Addr)
		}
	}

	if cfg.Recorder.Path != "" {
		if err := s.openRecorder(ctx, cfg); err != nil {
			s.close()
			return nil, err
		}
		opts = append(opts, transport.WithFrameObserver(s.recorder))
	}
	opts = append(opts, extra...)

	d, err := driver.NewWebSocket(cfg.WebSocketOptions(s.logger),
		driver.WithLogger(s.logger),
		driver.WithTransportOptions(opts...),
	)
	if err != nil {
		s.close()
		return nil, err
	}
	s.Driver = d

	if err := d.Start(ctx, cfg.URL); err != nil {
		s.close()
		return nil, errors.FromTransport(err, "E060").WithDetail("Could not connect to " + cfg.URL)
	}
	return s, nil
}

func (s *session) openRecorder(ctx context.Context, cfg *config.Config) error {
	store, err := recorder.Open(cfg.Recorder.Path)
	if err != nil {
		return errors.New("E142").Wrap(err)
	}
	if err := store.Init(ctx); err != nil {
		store.Close()
		return errors.New("E142").Wrap(err)
	}
	s.store = store
	s.recorder = recorder.New(store,
		recorder.WithBuffer(cfg.Recorder.Buffer),
		recorder.WithLogger(s.logger),
	)
	return nil
}

// close stops the driver, flushes the recorder and shuts the metrics
// endpoint down. It is safe on a partially opened session.
func (s *session) close() {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	if s.Driver != nil {
		if err := s.Stop(ctx); err != nil {
			s.logger.Debug("disconnect", "error", err)
		}
	}
	if s.recorder != nil {
		if err := s.recorder.Close(ctx); err != nil {
			s.logger.Warn("recorder flush incomplete", "error", err)
		}
		if n := s.recorder.Dropped(); n > 0 {
			s.logger.Warn("recorder dropped frames", "count", n)
		}
	}
	if s.store != nil {
		s.store.Close()
	}
	if s.metrics != nil {
		s.metrics.Shutdown(ctx)
	}
}

// remote maps a driver error to a coded CLI error.
func remote(err error) error {
	if err == nil {
		return nil
	}
	return errors.FromTransport(err, "E061")
}
