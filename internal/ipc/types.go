package ipc

import (
	"time"

	"cardbox/internal/ingest"
)

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse combines daemon runtime information with the latest ingest
// snapshot.
type StatusResponse struct {
	Running       bool            `json:"running"`
	PID           int             `json:"pid"`
	StartedAt     time.Time       `json:"started_at"`
	TargetDir     string          `json:"target_dir"`
	LockPath      string          `json:"lock_path"`
	HistoryDBPath string          `json:"history_db_path"`
	Snapshot      ingest.Snapshot `json:"snapshot"`
}

// IngestStartRequest triggers an immediate ingest pass.
type IngestStartRequest struct{}

// IngestStartResponse reports whether a session was started.
type IngestStartResponse struct {
	Started bool   `json:"started"`
	Source  string `json:"source"`
	Message string `json:"message"`
}

// IngestStopRequest cancels the running ingest session.
type IngestStopRequest struct{}

// IngestStopResponse reports the cancellation outcome.
type IngestStopResponse struct {
	Stopped bool   `json:"stopped"`
	Message string `json:"message"`
}

// ShutdownRequest asks the daemon process to exit.
type ShutdownRequest struct{}

// ShutdownResponse acknowledges a shutdown request.
type ShutdownResponse struct {
	Stopping bool `json:"stopping"`
}

// HistoryEntry is one recorded ingest session.
type HistoryEntry struct {
	ID           int64     `json:"id"`
	SessionID    string    `json:"session_id"`
	Source       string    `json:"source"`
	Outcome      string    `json:"outcome"`
	TotalFiles   int       `json:"total_files"`
	CopiedFiles  int       `json:"copied_files"`
	SkippedFiles int       `json:"skipped_files"`
	ErrorFiles   int       `json:"error_files"`
	Message      string    `json:"message"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// HistoryListRequest fetches the newest journal entries. Limit <= 0 returns
// everything.
type HistoryListRequest struct {
	Limit int `json:"limit"`
}

// HistoryListResponse contains journal entries, most recent first, plus
// whole-journal totals.
type HistoryListResponse struct {
	Entries     []HistoryEntry `json:"entries"`
	Sessions    int            `json:"sessions"`
	CopiedFiles int            `json:"copied_files"`
	ErrorFiles  int            `json:"error_files"`
}

// LogTailRequest fetches log lines based on offset and follow semantics.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
