// Package daemon ties the supervisor, history journal, and notifications
// together behind a single-instance lock, and exposes the operations the IPC
// layer serves.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"cardbox/internal/config"
	"cardbox/internal/history"
	"cardbox/internal/ingest"
	"cardbox/internal/logging"
	"cardbox/internal/notifications"
	"cardbox/internal/supervisor"
	"cardbox/internal/volume"
)

// Daemon coordinates the ingest supervisor and enforces single-instance
// execution through a lock file in the log directory.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	supervisor *supervisor.Supervisor
	journal    *history.Store
	notifier   notifications.Service

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	startedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	StartedAt     time.Time
	Snapshot      ingest.Snapshot
	TargetDir     string
	LockPath      string
	SocketPath    string
	HistoryDBPath string
}

// New constructs a daemon with initialized dependencies. The history journal
// is opened here so a broken database fails startup, not the first session.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	journal, err := history.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open history journal: %w", err)
	}

	notifier := notifications.NewService(cfg)
	detector := volume.NewDetector(cfg, logger)
	sup := supervisor.New(cfg, detector, notifier, journal, logger)

	return &Daemon{
		cfg:        cfg,
		logger:     logging.WithComponent(logger, "daemon"),
		supervisor: sup,
		journal:    journal,
		notifier:   notifier,
		lockPath:   cfg.LockPath(),
		lock:       flock.New(cfg.LockPath()),
	}, nil
}

// Start acquires the daemon lock and launches the supervisor.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another cardbox daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.supervisor.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start supervisor: %w", err)
	}

	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("cardbox daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldTarget, d.cfg.Paths.TargetDir),
	)
	return nil
}

// Stop shuts the supervisor down and releases the daemon lock. A running
// session winds down cooperatively before Stop returns.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.supervisor.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("cardbox daemon stopped")
}

// Close stops the daemon and releases held resources.
func (d *Daemon) Close() error {
	d.Stop()
	if d.journal != nil {
		return d.journal.Close()
	}
	return nil
}

// Status reports current daemon and ingest state.
func (d *Daemon) Status() Status {
	return Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		StartedAt:     d.startedAt,
		Snapshot:      d.supervisor.Status(),
		TargetDir:     d.cfg.Paths.TargetDir,
		LockPath:      d.lockPath,
		SocketPath:    d.cfg.SocketPath(),
		HistoryDBPath: d.cfg.HistoryDBPath(),
	}
}

// StartIngest triggers an immediate ingest pass and returns the chosen
// source mount path.
func (d *Daemon) StartIngest() (string, error) {
	return d.supervisor.StartIngest()
}

// StopIngest cancels the running ingest session.
func (d *Daemon) StopIngest() error {
	return d.supervisor.StopIngest()
}

// History returns the newest journal entries, most recent first.
func (d *Daemon) History(ctx context.Context, limit int) ([]history.Entry, error) {
	if d.journal == nil {
		return nil, errors.New("history journal unavailable")
	}
	return d.journal.Recent(ctx, limit)
}

// HistoryTotals aggregates the whole journal.
func (d *Daemon) HistoryTotals(ctx context.Context) (history.Stats, error) {
	if d.journal == nil {
		return history.Stats{}, errors.New("history journal unavailable")
	}
	return d.journal.Totals(ctx)
}

// TestNotification sends a test message through the configured notifier.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "notifications disabled: no ntfy topic configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, err.Error(), err
	}
	return true, "test notification sent", nil
}

// LogPath returns the daemon log file location.
func (d *Daemon) LogPath() string {
	return d.cfg.LogPath()
}
