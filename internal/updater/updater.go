package updater

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/swpsco/nockpool-launcher/internal/history"
	"github.com/swpsco/nockpool-launcher/internal/hostinfo"
	"github.com/swpsco/nockpool-launcher/internal/metrics"
	"github.com/swpsco/nockpool-launcher/internal/release"
)

// Resolver maps the host profile to a downloadable build. Satisfied by
// *release.Client.
type Resolver interface {
	Resolve(ctx context.Context, profile hostinfo.Profile) (release.Descriptor, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// Installer is the slice of the installation store the updater drives.
// Satisfied by *store.Store.
type Installer interface {
	LocalVersion() (string, bool)
	Install(version string, payload []byte) error
	Promote(version string) error
}

// Updater owns the fetch-compare-install-promote cycle. Every cycle runs as
// one critical section so the startup check and the background poll can
// never race to install the same version twice or promote out of order.
type Updater struct {
	mu       sync.Mutex
	resolver Resolver
	store    Installer
	profile  hostinfo.Profile
	logger   *slog.Logger
	sinks    []history.Sink

	// single-shot update-ready notification; a second update before the
	// supervisor observes the first collapses into one restart.
	updateCh chan string
}

func New(resolver Resolver, store Installer, profile hostinfo.Profile, logger *slog.Logger, sinks []history.Sink) *Updater {
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{
		resolver: resolver,
		store:    store,
		profile:  profile,
		logger:   logger,
		sinks:    sinks,
		updateCh: make(chan string, 1),
	}
}

// Updates is the update-ready notification channel consumed by the process
// supervisor. Notifications are only sent for versions that are fully
// installed and promoted.
func (u *Updater) Updates() <-chan string { return u.updateCh }

// EnsureLatest synchronously brings the local install up to the remote
// version. It reports whether an update was applied. Versions compare as
// opaque strings: any difference, including a remote rollback, triggers an
// update.
func (u *Updater) EnsureLatest(ctx context.Context) (bool, error) {
	version, changed, err := u.check(ctx)
	if err != nil {
		return false, err
	}
	if changed {
		u.logger.Info("installed new version", "version", version)
	} else {
		u.logger.Info("you are on the latest version", "version", version)
	}
	return changed, nil
}

// Start runs the background poll until ctx is cancelled. Per-tick failures
// are logged and absorbed; the loop always continues at the next interval.
// The poll never touches the running miner itself; applied updates surface
// through the update-ready notification.
func (u *Updater) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			u.logger.Info("checking for updates...")
			version, changed, err := u.check(ctx)
			if err != nil {
				u.logger.Warn("background update check failed", "error", err)
				continue
			}
			if !changed {
				u.logger.Info("already on the latest version")
				continue
			}
			u.logger.Info("update found in background", "version", version)
		}
	}()
}

// check performs one resolve-compare-install-promote cycle under the lock.
// The local version is read inside the same critical section as the install
// that follows it.
func (u *Updater) check(ctx context.Context) (string, bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	metrics.IncUpdateCheck()

	local, hasLocal := u.store.LocalVersion()

	desc, err := u.resolver.Resolve(ctx, u.profile)
	if err != nil {
		metrics.IncUpdateFailure("resolve")
		return "", false, err
	}
	if hasLocal && local == desc.Version {
		return desc.Version, false, nil
	}

	u.logger.Info("new version available, downloading...", "version", desc.Version, "asset", desc.Asset)
	payload, err := u.resolver.Download(ctx, desc.URL)
	if err != nil {
		metrics.IncUpdateFailure("download")
		return "", false, err
	}
	if err := u.store.Install(desc.Version, payload); err != nil {
		metrics.IncUpdateFailure("install")
		return "", false, err
	}
	if err := u.store.Promote(desc.Version); err != nil {
		metrics.IncUpdateFailure("promote")
		return "", false, err
	}

	metrics.IncUpdateApplied()
	metrics.SetCurrentVersion(local, desc.Version)
	u.record(ctx, history.Event{
		Type:       history.EventUpdateApplied,
		OccurredAt: time.Now().UTC(),
		Version:    desc.Version,
	})

	// Notify only after install+promote so the supervisor's relaunch
	// always finds the new build behind the current pointer. A previous
	// pending notification still covers this version; one restart serves
	// both.
	select {
	case u.updateCh <- desc.Version:
	default:
	}
	return desc.Version, true, nil
}

func (u *Updater) record(ctx context.Context, e history.Event) {
	for _, s := range u.sinks {
		if err := s.Send(ctx, e); err != nil && !errors.Is(err, context.Canceled) {
			u.logger.Warn("history sink send failed", "error", err)
		}
	}
}
