// Package supervisor runs the poll loop that turns volume detection into
// ingest sessions. One session runs at a time; each completed source is
// remembered until every source volume has been removed, so reinserting the
// same card does not trigger a second copy.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"cardbox/internal/config"
	"cardbox/internal/history"
	"cardbox/internal/ingest"
	"cardbox/internal/logging"
	"cardbox/internal/notifications"
	"cardbox/internal/volume"
)

// ErrIngestActive is returned when a manual start races an already running
// session.
var ErrIngestActive = errors.New("an ingest session is already running")

// ErrNoIngest is returned when a stop request finds no running session.
var ErrNoIngest = errors.New("no ingest session is running")

// ErrTargetUnavailable is returned when a manual start finds the target store
// missing or not writable.
var ErrTargetUnavailable = errors.New("target store is not mounted or not writable")

// ErrNoSource is returned when a manual start finds no source volume to copy.
var ErrNoSource = errors.New("no source volume detected")

// Supervisor owns the detect-then-ingest loop. Construct with New, drive with
// Start/Stop; Status, StartIngest, and StopIngest are safe from any goroutine.
type Supervisor struct {
	cfg      *config.Config
	detector *volume.Detector
	notifier notifications.Service
	journal  *history.Store
	logger   *slog.Logger
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	running    bool
	session    *ingest.Session
	startedAt  time.Time
	processed  map[string]struct{}
	sawSources bool
	latest     ingest.Snapshot
}

// New creates a supervisor. journal may be nil to disable history recording.
func New(cfg *config.Config, detector *volume.Detector, notifier notifications.Service, journal *history.Store, logger *slog.Logger) *Supervisor {
	interval := time.Duration(cfg.Detect.PollInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Supervisor{
		cfg:       cfg,
		detector:  detector,
		notifier:  notifier,
		journal:   journal,
		logger:    logging.WithComponent(logger, "supervisor"),
		interval:  interval,
		processed: make(map[string]struct{}),
		latest:    ingest.Snapshot{StatusMessage: "starting up"},
	}
}

// Start launches the poll loop. Safe to call once; subsequent calls are
// no-ops until Stop.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.loop()

	s.logger.Info("supervisor started",
		logging.Duration("poll_interval", s.interval),
		logging.String(logging.FieldTarget, s.detector.Target()),
	)
	return nil
}

// Stop cancels the loop and any running session, then waits for both to
// drain. A session mid-copy finishes its current file before winding down.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.logger.Info("supervisor stopped")
}

// Running reports whether the poll loop is active.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status returns the latest published snapshot.
func (s *Supervisor) Status() ingest.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

func (s *Supervisor) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.poll()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.poll()
		}
	}
}

// poll runs one detection pass: refresh target and source presence, update
// the idle status, and start a session when an unprocessed source is waiting.
func (s *Supervisor) poll() {
	targetOK := s.detector.TargetWritable()
	sources := s.detector.CandidateSources()

	s.mu.Lock()
	active := s.session != nil

	// All sources removed: forget what was processed so the next insert
	// copies again, and drop stale per-session fields from the status.
	if s.sawSources && len(sources) == 0 {
		if len(s.processed) > 0 {
			s.logger.Info("all source volumes removed, resetting processed set",
				logging.Int("processed", len(s.processed)),
			)
		}
		s.processed = make(map[string]struct{})
		if !active {
			s.latest = ingest.Snapshot{}
		}
	}
	s.sawSources = len(sources) > 0

	if active {
		s.mu.Unlock()
		return
	}

	next := s.nextSourceLocked(sources)
	if targetOK && next != nil {
		s.startSessionLocked(*next)
		s.mu.Unlock()
		return
	}

	s.latest.IsCopying = false
	s.latest.CurrentFile = ""
	s.latest.ActiveSource = ""
	s.latest.TargetPresent = targetOK
	switch {
	case !targetOK:
		s.latest.StatusMessage = "insert target store"
	case len(sources) == 0:
		s.latest.StatusMessage = "waiting for source volume"
	default:
		s.latest.StatusMessage = "no new source to ingest"
	}
	s.mu.Unlock()
}

// nextSourceLocked picks the first source not yet processed, preserving mount
// table order. Caller holds s.mu.
func (s *Supervisor) nextSourceLocked(sources []volume.Source) *volume.Source {
	for i := range sources {
		if _, done := s.processed[sources[i].Path]; !done {
			return &sources[i]
		}
	}
	return nil
}

// startSessionLocked spawns the ingest goroutine for src. Caller holds s.mu.
func (s *Supervisor) startSessionLocked(src volume.Source) {
	sess := ingest.NewSession(src.Path, s.detector.Target(), s.detector, s.logger, s.publish)
	s.session = sess
	s.startedAt = time.Now()

	s.logger.Info("source volume detected, starting ingest",
		logging.String(logging.FieldSource, src.Path),
		logging.String("device", src.Device),
		logging.String("fstype", src.FSType),
		logging.String(logging.FieldSession, sess.ID()),
	)

	s.wg.Add(1)
	go s.runSession(sess)
}

func (s *Supervisor) runSession(sess *ingest.Session) {
	defer s.wg.Done()

	if err := s.notifier.NotifyIngestStarted(s.ctx, sess.Source()); err != nil {
		s.logger.Warn("start notification failed", logging.Error(err))
	}

	res := sess.Run(s.ctx)
	s.finishSession(res)
}

// finishSession marks completed sources as processed, records the journal
// entry, and sends the terminal notification. The one-session slot is
// released last, so a waiting source cannot start (and notify) before this
// session's terminal notification went out.
func (s *Supervisor) finishSession(res ingest.Result) {
	s.mu.Lock()
	startedAt := s.startedAt
	if res.State == ingest.StateCompleted {
		s.processed[res.Source] = struct{}{}
	}
	s.mu.Unlock()

	s.logger.Info("ingest session finished",
		logging.String(logging.FieldSession, res.ID),
		logging.String(logging.FieldSource, res.Source),
		logging.String("outcome", res.State.String()),
		logging.Int("copied", res.Copied),
		logging.Int("skipped", res.Skipped),
		logging.Int("errors", res.Errors),
		logging.Duration("elapsed", res.Duration),
	)

	if s.journal != nil {
		snap := s.Status()
		entry := history.Entry{
			SessionID:    res.ID,
			Source:       res.Source,
			Outcome:      res.State.String(),
			TotalFiles:   res.Total,
			CopiedFiles:  res.Copied,
			SkippedFiles: res.Skipped,
			ErrorFiles:   res.Errors,
			Message:      snap.StatusMessage,
			StartedAt:    startedAt,
			FinishedAt:   time.Now(),
		}
		if _, err := s.journal.Record(context.Background(), entry); err != nil {
			s.logger.Warn("history record failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the history database in the log directory"),
			)
		}
	}

	// Notifications after a cancelled daemon shutdown still get a short
	// window to go out.
	ctx, cancelNotify := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelNotify()

	var err error
	switch res.State {
	case ingest.StateCompleted:
		err = s.notifier.NotifyIngestCompleted(ctx, res.Source, res.Copied, res.Skipped, res.Errors, res.Duration)
	case ingest.StateCancelled:
		err = s.notifier.NotifyIngestCancelled(ctx, res.Source)
	case ingest.StateAborted:
		err = s.notifier.NotifyIngestAborted(ctx, res.Source, s.Status().StatusMessage)
	}
	if err != nil {
		s.logger.Warn("terminal notification failed", logging.Error(err))
	}

	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
}

// publish receives session snapshots and makes them the supervisor's status.
func (s *Supervisor) publish(snap ingest.Snapshot) {
	s.mu.Lock()
	s.latest = snap
	s.mu.Unlock()
}

// StartIngest triggers an immediate ingest instead of waiting for the next
// poll. A source already marked processed is copied again; dedup makes that
// a skip-heavy pass rather than a duplicate copy.
func (s *Supervisor) StartIngest() (string, error) {
	targetOK := s.detector.TargetWritable()
	sources := s.detector.CandidateSources()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return "", errors.New("supervisor is not running")
	}
	if s.session != nil {
		return "", ErrIngestActive
	}
	if !targetOK {
		return "", ErrTargetUnavailable
	}
	if len(sources) == 0 {
		return "", ErrNoSource
	}

	src := s.nextSourceLocked(sources)
	if src == nil {
		// Everything present was processed; a manual start re-ingests the
		// first source anyway.
		delete(s.processed, sources[0].Path)
		src = &sources[0]
	}
	s.startSessionLocked(*src)
	return src.Path, nil
}

// StopIngest requests cooperative cancellation of the running session. The
// file mid-copy is finished, never truncated.
func (s *Supervisor) StopIngest() error {
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()

	if sess == nil {
		return ErrNoIngest
	}
	sess.Stop()
	s.logger.Info("ingest cancellation requested",
		logging.String(logging.FieldSession, sess.ID()),
	)
	return nil
}
