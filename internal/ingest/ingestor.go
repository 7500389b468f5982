// Package ingest implements the copy engine: per-file ingestion with
// duplicate detection, and the session state machine that drives a full pass
// over a source volume.
package ingest

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"cardbox/internal/fileutil"
	"cardbox/internal/logging"
)

// Outcome describes what happened to a single source file.
type Outcome int

const (
	// OutcomeCopied means the file was written to the target store,
	// possibly under a suffixed name.
	OutcomeCopied Outcome = iota
	// OutcomeSkipped means an identical copy already existed.
	OutcomeSkipped
	// OutcomeFailed means an I/O error prevented the copy.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCopied:
		return "copied"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Ingestor copies single files into date buckets, resolving name collisions
// by content comparison and suffix renaming. It only ever creates directories
// and files under the target store; sources are never modified.
type Ingestor struct {
	logger *slog.Logger
}

// NewIngestor returns an Ingestor logging through the given logger.
func NewIngestor(logger *slog.Logger) *Ingestor {
	return &Ingestor{logger: logging.WithComponent(logger, "ingestor")}
}

// Ingest copies sourceFile into destDir. The returned path is the final
// destination (which may carry a collision suffix); it is empty when the
// outcome is Skipped or Failed. Errors are returned for logging but must not
// abort the surrounding session: each file succeeds or fails independently.
func (i *Ingestor) Ingest(sourceFile, destDir string) (Outcome, string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return OutcomeFailed, "", fmt.Errorf("create bucket %s: %w", destDir, err)
	}

	name := filepath.Base(sourceFile)
	destPath := filepath.Join(destDir, name)

	if _, err := os.Stat(destPath); err == nil {
		same, hashErr := fileutil.SameContent(sourceFile, destPath)
		if hashErr != nil {
			// Unreadable content compares as divergent, so the copy below
			// lands under a fresh name instead of being wrongly skipped.
			i.logger.Warn("content comparison failed",
				logging.Error(hashErr),
				logging.String(logging.FieldFile, name),
				logging.String(logging.FieldEventType, "hash_compare_failed"),
				logging.String(logging.FieldErrorHint, "check source and target media for read errors"),
			)
		}
		if same {
			i.logger.Debug("skipping identical file", logging.String(logging.FieldFile, name))
			return OutcomeSkipped, "", nil
		}
		renamed, err := nextAvailableName(destDir, name)
		if err != nil {
			return OutcomeFailed, "", err
		}
		destPath = renamed
		i.logger.Info("name collision, copying under new name",
			logging.String(logging.FieldFile, name),
			logging.String("renamed_to", filepath.Base(destPath)),
		)
	} else if !os.IsNotExist(err) {
		return OutcomeFailed, "", fmt.Errorf("stat destination %s: %w", destPath, err)
	}

	if err := fileutil.CopyFile(sourceFile, destPath); err != nil {
		return OutcomeFailed, "", fmt.Errorf("copy %s: %w", name, err)
	}
	return OutcomeCopied, destPath, nil
}

// nextAvailableName returns the first destDir/base_N.ext (N = 1, 2, ...) that
// does not exist yet.
func nextAvailableName(destDir, name string) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		candidate := filepath.Join(destDir, fmt.Sprintf("%s_%d%s", base, n, ext))
		_, err := os.Stat(candidate)
		if os.IsNotExist(err) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("probe candidate name %s: %w", candidate, err)
		}
	}
}
