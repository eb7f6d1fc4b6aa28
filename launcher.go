// Package launcher keeps the nockpool miner installed, current, and
// running. It resolves the latest release, installs it into a per-user
// version store, and supervises the miner process, restarting it when it
// exits, when it prints the restart sentinel, or when an update lands.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/swpsco/nockpool-launcher/internal/config"
	"github.com/swpsco/nockpool-launcher/internal/history"
	"github.com/swpsco/nockpool-launcher/internal/history/factory"
	"github.com/swpsco/nockpool-launcher/internal/hostinfo"
	"github.com/swpsco/nockpool-launcher/internal/metrics"
	"github.com/swpsco/nockpool-launcher/internal/release"
	"github.com/swpsco/nockpool-launcher/internal/server"
	"github.com/swpsco/nockpool-launcher/internal/store"
	"github.com/swpsco/nockpool-launcher/internal/supervisor"
	"github.com/swpsco/nockpool-launcher/internal/updater"
)

// Re-export config loading for external consumers.

type Config = config.Config

func LoadConfig(path string) (Config, error) { return config.Load(path) }

func DefaultConfig() Config { return config.Default() }

// Options control one launcher run.
type Options struct {
	Config Config
	// MinerArgs are passed through unmodified to the miner process.
	MinerArgs []string
	// NoUpdate skips the startup update check; a version must already be
	// installed.
	NoUpdate bool
	// DisableUpdateLoop skips the background update poll; the startup
	// check still runs unless NoUpdate is also set.
	DisableUpdateLoop bool
	// Logger overrides the one built from Config.Log.
	Logger *slog.Logger
}

// Launcher wires the installation store, release resolver, update
// coordinator, and process supervisor together.
type Launcher struct {
	opts   Options
	cfg    Config
	logger *slog.Logger

	store *store.Store
	upd   *updater.Updater
	sup   *supervisor.Supervisor
}

// New builds a launcher from options. Filesystem and network resources are
// only touched by Run.
func New(opts Options) (*Launcher, error) {
	cfg := opts.Config.WithDefaults()
	logger := opts.Logger
	if logger == nil {
		logger = cfg.Log.NewSlogger()
	}
	dataDir := cfg.DataDir
	if dataDir == "" {
		d, err := store.DefaultBaseDir()
		if err != nil {
			return nil, fmt.Errorf("resolve data dir: %w", err)
		}
		dataDir = d
	}
	cfg.DataDir = dataDir
	return &Launcher{
		opts:   opts,
		cfg:    cfg,
		logger: logger,
		store:  store.New(dataDir, cfg.BinName),
	}, nil
}

// Run installs or updates the miner, then supervises it until ctx is
// cancelled. A nil return means a clean operator shutdown; any error is a
// startup failure.
func (l *Launcher) Run(ctx context.Context) error {
	sinks, err := l.openSinks()
	if err != nil {
		return err
	}
	defer closeSinks(sinks)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	if l.cfg.MetricsListen != "" {
		msrv := serveMetrics(l.cfg.MetricsListen)
		defer shutdownHTTP(msrv)
		l.logger.Info("metrics listening", "addr", l.cfg.MetricsListen)
	}

	profile := hostinfo.DescribeHost(l.cfg.DataDir)
	client := release.NewClient(l.cfg.UpdateURL, l.cfg.BinName, l.cfg.PostHostProfile)
	l.upd = updater.New(client, l.store, profile, l.logger, sinks)

	if l.opts.NoUpdate {
		if _, ok := l.store.LocalVersion(); !ok {
			return errors.New("no current version installed and updates are disabled")
		}
	} else {
		if _, err := l.upd.EnsureLatest(ctx); err != nil {
			return fmt.Errorf("initial update: %w", err)
		}
	}
	if version, ok := l.store.LocalVersion(); ok {
		metrics.SetCurrentVersion("", version)
		l.logger.Info("miner ready", "version", version, "dir", l.cfg.DataDir)
	}

	if !l.opts.DisableUpdateLoop {
		l.upd.Start(ctx, l.cfg.UpdateInterval)
	} else {
		l.logger.Info("update loop disabled")
	}

	stdoutLog, stderrLog, err := l.cfg.Log.File.Writers(l.cfg.BinName)
	if err != nil {
		return fmt.Errorf("open miner logs: %w", err)
	}
	defer closeWriter(stdoutLog)
	defer closeWriter(stderrLog)

	l.sup = supervisor.New(supervisor.Config{
		BinaryPath: l.store.BinaryPath,
		Args:       l.opts.MinerArgs,
		Sentinel:   l.cfg.Sentinel,
		Updates:    l.upd.Updates(),
		Logger:     l.logger,
		Sinks:      sinks,
		StdoutLog:  wc(stdoutLog),
		StderrLog:  wc(stderrLog),
	})

	if l.cfg.ServerListen != "" {
		ssrv := server.NewServer(l.cfg.ServerListen, l.cfg.ServerBasePath, l)
		defer shutdownHTTP(ssrv)
		l.logger.Info("status server listening", "addr", l.cfg.ServerListen)
	}

	return l.sup.Run(ctx)
}

// CurrentVersion reports the promoted miner version.
func (l *Launcher) CurrentVersion() (string, bool) { return l.store.LocalVersion() }

// MinerStatus reports the supervised miner process.
func (l *Launcher) MinerStatus() supervisor.Status {
	if l.sup == nil {
		return supervisor.Status{}
	}
	return l.sup.Status()
}

// CheckNow runs one update cycle immediately.
func (l *Launcher) CheckNow(ctx context.Context) (bool, error) {
	if l.upd == nil {
		return false, errors.New("updater not running")
	}
	return l.upd.EnsureLatest(ctx)
}

var _ server.Backend = (*Launcher)(nil)

func (l *Launcher) openSinks() ([]history.Sink, error) {
	sinks := make([]history.Sink, 0, len(l.cfg.HistorySinks))
	for _, dsn := range l.cfg.HistorySinks {
		s, err := factory.NewSinkFromDSN(dsn)
		if err != nil {
			closeSinks(sinks)
			return nil, fmt.Errorf("history sink %q: %w", dsn, err)
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

func closeSinks(sinks []history.Sink) {
	for _, s := range sinks {
		if c, ok := s.(io.Closer); ok {
			_ = c.Close()
		}
	}
}

func closeWriter(w io.WriteCloser) {
	if w != nil {
		_ = w.Close()
	}
}

// wc narrows a possibly-nil WriteCloser to the Writer the supervisor takes.
// A typed nil inside a non-nil interface would defeat the supervisor's nil
// check.
func wc(w io.WriteCloser) io.Writer {
	if w == nil {
		return nil
	}
	return w
}

// serveMetrics exposes /metrics on its own server using the default
// registry.
func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

func shutdownHTTP(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
