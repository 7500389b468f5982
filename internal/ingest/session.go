package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"cardbox/internal/ingest/capture"
	"cardbox/internal/logging"
)

// State is the session lifecycle position.
type State int

const (
	StateIdle State = iota
	StateScanning
	StateCopying
	StateCompleted
	StateCancelled
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateCopying:
		return "copying"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether the session has finished, one way or another.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateAborted
}

// Snapshot is the externally visible status record. It is always produced as
// a complete copy under the session lock, so readers never observe a torn
// update.
type Snapshot struct {
	IsCopying       bool    `json:"is_copying"`
	CurrentFile     string  `json:"current_file"`
	ProgressPercent float64 `json:"progress_percent"`
	TotalFiles      int     `json:"total_files"`
	CopiedFiles     int     `json:"copied_files"`
	SkippedFiles    int     `json:"skipped_files"`
	ErrorFiles      int     `json:"error_files"`
	StatusMessage   string  `json:"status_message"`
	TargetPresent   bool    `json:"target_present"`
	ActiveSource    string  `json:"active_source"`
}

// Result summarizes a finished session.
type Result struct {
	ID       string
	Source   string
	State    State
	Total    int
	Copied   int
	Skipped  int
	Errors   int
	Duration time.Duration
}

// TargetProber re-checks that the target store is mounted and writable.
// Every call must probe; the answer is never cached for correctness.
type TargetProber interface {
	TargetWritable() bool
}

// Publisher receives a status snapshot after every state change.
type Publisher func(Snapshot)

// Session drives one full copy pass over a source volume. Construct with
// NewSession, run once with Run; Stop and Snapshot are safe to call
// concurrently from other goroutines.
type Session struct {
	id       string
	source   string
	target   string
	prober   TargetProber
	ingestor *Ingestor
	logger   *slog.Logger
	publish  Publisher

	stopRequested atomic.Bool

	mu    sync.Mutex
	state State
	snap  Snapshot
}

// NewSession prepares a session copying from source into target. publish may
// be nil.
func NewSession(source, target string, prober TargetProber, logger *slog.Logger, publish Publisher) *Session {
	id := uuid.NewString()
	sessionLogger := logging.WithComponent(logger, "session").With(
		logging.String(logging.FieldSession, id),
		logging.String(logging.FieldSource, source),
	)
	return &Session{
		id:       id,
		source:   source,
		target:   target,
		prober:   prober,
		ingestor: NewIngestor(logger),
		logger:   sessionLogger,
		publish:  publish,
		state:    StateIdle,
		snap:     Snapshot{StatusMessage: "idle"},
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Source returns the source volume mount path.
func (s *Session) Source() string { return s.source }

// Stop requests cooperative cancellation. The session winds down before the
// next file; a file mid-copy is finished, never truncated. Idempotent.
func (s *Session) Stop() {
	s.stopRequested.Store(true)
}

// Snapshot returns a copy of the current status.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run executes the full pass synchronously and returns the terminal result.
// Cancelling ctx behaves like Stop: the session winds down between files.
func (s *Session) Run(ctx context.Context) Result {
	started := time.Now()

	if !s.prober.TargetWritable() {
		s.transition(StateAborted, func(snap *Snapshot) {
			snap.StatusMessage = "target store not writable"
			snap.TargetPresent = false
		})
		s.logger.Warn("session refused to start",
			logging.String(logging.FieldEventType, "target_unwritable"),
			logging.String(logging.FieldTarget, s.target),
			logging.String(logging.FieldErrorHint, "check that the target store is mounted and writable"),
		)
		return s.result(started)
	}

	s.transition(StateScanning, func(snap *Snapshot) {
		snap.IsCopying = true
		snap.TargetPresent = true
		snap.ActiveSource = s.source
		snap.StatusMessage = "scanning source volume"
	})
	s.logger.Info("scanning source volume")

	files, err := enumerateFiles(s.source)
	if err != nil {
		s.transition(StateAborted, func(snap *Snapshot) {
			snap.IsCopying = false
			snap.StatusMessage = "source volume not readable"
		})
		s.logger.Error("source enumeration failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "scan_failed"),
			logging.String(logging.FieldErrorHint, "check that the source volume is still mounted"),
		)
		return s.result(started)
	}

	if s.cancelled(ctx) {
		s.transition(StateCancelled, func(snap *Snapshot) {
			snap.IsCopying = false
			snap.StatusMessage = "copying cancelled"
		})
		return s.result(started)
	}

	if len(files) == 0 {
		s.transition(StateCompleted, func(snap *Snapshot) {
			snap.IsCopying = false
			snap.StatusMessage = "no files found on source volume"
		})
		s.logger.Info("no files found on source volume")
		return s.result(started)
	}

	s.transition(StateCopying, func(snap *Snapshot) {
		snap.TotalFiles = len(files)
		snap.StatusMessage = "copying files"
	})
	s.logger.Info("copying files", logging.Int("total", len(files)))

	for _, file := range files {
		if s.cancelled(ctx) {
			s.transition(StateCancelled, func(snap *Snapshot) {
				snap.IsCopying = false
				snap.StatusMessage = "copying cancelled"
			})
			s.logger.Info("copying cancelled",
				logging.String(logging.FieldEventType, "session_cancelled"),
			)
			return s.result(started)
		}

		if !s.prober.TargetWritable() {
			s.transition(StateAborted, func(snap *Snapshot) {
				snap.IsCopying = false
				snap.TargetPresent = false
				snap.StatusMessage = "target store disconnected during copy"
			})
			s.logger.Error("target store disconnected during copy",
				logging.String(logging.FieldEventType, "target_lost"),
				logging.String(logging.FieldTarget, s.target),
				logging.String(logging.FieldErrorHint, "reconnect the target store; already copied files are kept"),
			)
			return s.result(started)
		}

		s.copyOne(file)
	}

	s.transition(StateCompleted, func(snap *Snapshot) {
		snap.IsCopying = false
		snap.ProgressPercent = 100.0
		snap.StatusMessage = fmt.Sprintf("copy complete: %d copied, %d skipped, %d errors",
			snap.CopiedFiles, snap.SkippedFiles, snap.ErrorFiles)
	})
	res := s.result(started)
	s.logger.Info("session complete",
		logging.Int("copied", res.Copied),
		logging.Int("skipped", res.Skipped),
		logging.Int("errors", res.Errors),
		logging.Duration("elapsed", res.Duration),
	)
	return res
}

// copyOne processes a single file: bucket by capture date, ingest, account.
func (s *Session) copyOne(file string) {
	name := filepath.Base(file)

	capturedAt, err := capture.Date(file)
	if err != nil {
		s.logger.Warn("capture date unavailable",
			logging.Error(err),
			logging.String(logging.FieldFile, name),
			logging.String(logging.FieldEventType, "capture_date_failed"),
			logging.String(logging.FieldErrorHint, "source file may be unreadable"),
		)
		s.account(OutcomeFailed, name)
		return
	}

	destDir := filepath.Join(s.target, capture.Bucket(capturedAt))
	outcome, destPath, err := s.ingestor.Ingest(file, destDir)
	if err != nil {
		s.logger.Warn("file ingest failed",
			logging.Error(err),
			logging.String(logging.FieldFile, name),
			logging.String(logging.FieldEventType, "file_ingest_failed"),
			logging.String(logging.FieldErrorHint, "session continues with the next file"),
		)
	} else if outcome == OutcomeCopied {
		s.logger.Debug("file copied", logging.String(logging.FieldFile, filepath.Base(destPath)))
	}
	s.account(outcome, name)
}

// account increments the counter matching outcome and republishes progress.
func (s *Session) account(outcome Outcome, currentFile string) {
	s.mu.Lock()
	switch outcome {
	case OutcomeCopied:
		s.snap.CopiedFiles++
	case OutcomeSkipped:
		s.snap.SkippedFiles++
	case OutcomeFailed:
		s.snap.ErrorFiles++
	}
	s.snap.CurrentFile = currentFile
	if s.snap.TotalFiles > 0 {
		visited := s.snap.CopiedFiles + s.snap.SkippedFiles + s.snap.ErrorFiles
		s.snap.ProgressPercent = float64(visited) / float64(s.snap.TotalFiles) * 100
	}
	snap := s.snap
	publish := s.publish
	s.mu.Unlock()

	if publish != nil {
		publish(snap)
	}
}

func (s *Session) cancelled(ctx context.Context) bool {
	return s.stopRequested.Load() || ctx.Err() != nil
}

// transition moves to a new state, mutates the snapshot under the lock, and
// publishes the updated copy.
func (s *Session) transition(next State, mutate func(*Snapshot)) {
	s.mu.Lock()
	s.state = next
	if mutate != nil {
		mutate(&s.snap)
	}
	snap := s.snap
	publish := s.publish
	s.mu.Unlock()

	if publish != nil {
		publish(snap)
	}
}

func (s *Session) result(started time.Time) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Result{
		ID:       s.id,
		Source:   s.source,
		State:    s.state,
		Total:    s.snap.TotalFiles,
		Copied:   s.snap.CopiedFiles,
		Skipped:  s.snap.SkippedFiles,
		Errors:   s.snap.ErrorFiles,
		Duration: time.Since(started),
	}
}

// enumerateFiles walks root and returns every regular file in deterministic
// (lexical) order, excluding hidden files. Unreadable subdirectories are
// logged by the caller via the walk error only when the root itself fails;
// per-entry errors skip that entry and keep going.
func enumerateFiles(root string) ([]string, error) {
	var files []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			// Skip unreadable entries; the rest of the volume is still worth copying.
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return files, nil
}
