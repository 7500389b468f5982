package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"cardbox/internal/logging"
)

// stubProber answers TargetWritable from a scripted sequence, repeating the
// last answer once the script runs out.
type stubProber struct {
	mu      sync.Mutex
	answers []bool
}

func (p *stubProber) TargetWritable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.answers) == 0 {
		return true
	}
	answer := p.answers[0]
	if len(p.answers) > 1 {
		p.answers = p.answers[1:]
	}
	return answer
}

func alwaysWritable() *stubProber { return &stubProber{} }

func newSourceVolume(t *testing.T, files map[string]string) string {
	t.Helper()
	source := t.TempDir()
	for name, content := range files {
		path := filepath.Join(source, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return source
}

func countFiles(t *testing.T, root string) int {
	t.Helper()
	count := 0
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return count
}

func TestSessionCopiesEverything(t *testing.T) {
	source := newSourceVolume(t, map[string]string{
		"IMG_0001.jpg":        "one",
		"IMG_0002.jpg":        "two",
		"DCIM/VID_0003.mp4":   "three",
		".Trashes/ignored":    "hidden dir file",
		".hidden_config.json": "hidden",
	})
	target := t.TempDir()

	var published []Snapshot
	sess := NewSession(source, target, alwaysWritable(), logging.NewNop(), func(s Snapshot) {
		published = append(published, s)
	})
	res := sess.Run(context.Background())

	if res.State != StateCompleted {
		t.Fatalf("state: got %v, want completed", res.State)
	}
	// Dot-prefixed file names are excluded. The exclusion is per file, so the
	// dot-free file under .Trashes/ is still copied.
	if res.Copied != 4 {
		t.Fatalf("copied: got %d, want 4", res.Copied)
	}
	if res.Errors != 0 || res.Skipped != 0 {
		t.Fatalf("unexpected counters: %+v", res)
	}
	if got := countFiles(t, target); got != 4 {
		t.Fatalf("target file count: got %d, want 4", got)
	}

	final := sess.Snapshot()
	if final.ProgressPercent != 100.0 {
		t.Fatalf("progress: got %v, want 100", final.ProgressPercent)
	}
	if final.IsCopying {
		t.Fatal("is_copying should be false after completion")
	}
	if len(published) == 0 {
		t.Fatal("expected snapshots to be published")
	}
	// Progress never moves backwards across the published snapshots and the
	// completion transition lands exactly on 100.
	last := 0.0
	for _, snap := range published {
		if snap.ProgressPercent < last {
			t.Fatalf("progress went backwards: %v after %v", snap.ProgressPercent, last)
		}
		last = snap.ProgressPercent
	}
	if last != 100.0 {
		t.Fatalf("last published progress: got %v, want 100", last)
	}
}

func TestSessionSkipsDuplicatesOnSecondPass(t *testing.T) {
	source := newSourceVolume(t, map[string]string{
		"IMG_0001.jpg": "one",
		"IMG_0002.jpg": "two",
	})
	target := t.TempDir()

	first := NewSession(source, target, alwaysWritable(), logging.NewNop(), nil)
	if res := first.Run(context.Background()); res.Copied != 2 {
		t.Fatalf("first pass copied %d, want 2", res.Copied)
	}

	second := NewSession(source, target, alwaysWritable(), logging.NewNop(), nil)
	res := second.Run(context.Background())
	if res.State != StateCompleted {
		t.Fatalf("state: got %v, want completed", res.State)
	}
	if res.Skipped != 2 || res.Copied != 0 {
		t.Fatalf("second pass: copied %d skipped %d, want 0/2", res.Copied, res.Skipped)
	}
	if got := countFiles(t, target); got != 2 {
		t.Fatalf("target file count changed: got %d, want 2", got)
	}
}

func TestSessionRenamesChangedContent(t *testing.T) {
	source := newSourceVolume(t, map[string]string{"IMG_0001.jpg": "take one"})
	target := t.TempDir()

	if res := NewSession(source, target, alwaysWritable(), logging.NewNop(), nil).Run(context.Background()); res.Copied != 1 {
		t.Fatalf("first pass copied %d, want 1", res.Copied)
	}
	if err := os.WriteFile(filepath.Join(source, "IMG_0001.jpg"), []byte("take two"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := NewSession(source, target, alwaysWritable(), logging.NewNop(), nil).Run(context.Background())
	if res.Copied != 1 || res.Skipped != 0 {
		t.Fatalf("second pass: copied %d skipped %d, want 1/0", res.Copied, res.Skipped)
	}
	if got := countFiles(t, target); got != 2 {
		t.Fatalf("target file count: got %d, want 2 (original plus rename)", got)
	}
}

func TestSessionEmptySourceCompletes(t *testing.T) {
	source := t.TempDir()
	target := t.TempDir()

	sess := NewSession(source, target, alwaysWritable(), logging.NewNop(), nil)
	res := sess.Run(context.Background())
	if res.State != StateCompleted {
		t.Fatalf("state: got %v, want completed", res.State)
	}
	if res.Total != 0 {
		t.Fatalf("total: got %d, want 0", res.Total)
	}
	if msg := sess.Snapshot().StatusMessage; msg != "no files found on source volume" {
		t.Fatalf("status message: got %q", msg)
	}
}

func TestSessionAbortsWhenTargetUnwritable(t *testing.T) {
	source := newSourceVolume(t, map[string]string{"IMG_0001.jpg": "one"})
	target := t.TempDir()

	sess := NewSession(source, target, &stubProber{answers: []bool{false}}, logging.NewNop(), nil)
	res := sess.Run(context.Background())
	if res.State != StateAborted {
		t.Fatalf("state: got %v, want aborted", res.State)
	}
	if res.Copied != 0 {
		t.Fatalf("nothing should be copied, got %d", res.Copied)
	}
	if sess.Snapshot().TargetPresent {
		t.Fatal("target_present should be false")
	}
}

func TestSessionAbortsWhenTargetLostMidCopy(t *testing.T) {
	source := newSourceVolume(t, map[string]string{
		"IMG_0001.jpg": "one",
		"IMG_0002.jpg": "two",
		"IMG_0003.jpg": "three",
	})
	target := t.TempDir()

	// Writable at session start and for the first file, then gone.
	prober := &stubProber{answers: []bool{true, true, false}}
	sess := NewSession(source, target, prober, logging.NewNop(), nil)
	res := sess.Run(context.Background())

	if res.State != StateAborted {
		t.Fatalf("state: got %v, want aborted", res.State)
	}
	if res.Copied != 1 {
		t.Fatalf("copied: got %d, want 1 (files already copied are kept)", res.Copied)
	}
	if got := countFiles(t, target); got != 1 {
		t.Fatalf("target file count: got %d, want 1", got)
	}
}

func TestSessionStopCancelsBetweenFiles(t *testing.T) {
	source := newSourceVolume(t, map[string]string{
		"IMG_0001.jpg": "one",
		"IMG_0002.jpg": "two",
	})
	target := t.TempDir()

	sess := NewSession(source, target, alwaysWritable(), logging.NewNop(), nil)
	sess.Stop()
	res := sess.Run(context.Background())

	if res.State != StateCancelled {
		t.Fatalf("state: got %v, want cancelled", res.State)
	}
	if res.Copied != 0 {
		t.Fatalf("copied: got %d, want 0", res.Copied)
	}
	if msg := sess.Snapshot().StatusMessage; msg != "copying cancelled" {
		t.Fatalf("status message: got %q", msg)
	}
}

func TestSessionContextCancellation(t *testing.T) {
	source := newSourceVolume(t, map[string]string{"IMG_0001.jpg": "one"})
	target := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := NewSession(source, target, alwaysWritable(), logging.NewNop(), nil).Run(ctx)
	if res.State != StateCancelled {
		t.Fatalf("state: got %v, want cancelled", res.State)
	}
}

func TestSessionPerFileErrorsDoNotAbort(t *testing.T) {
	source := newSourceVolume(t, map[string]string{
		"IMG_0001.jpg": "one",
		"IMG_0002.jpg": "two",
	})
	target := t.TempDir()
	// Make one source file unreadable so its copy fails.
	if err := os.Chmod(filepath.Join(source, "IMG_0001.jpg"), 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(filepath.Join(source, "IMG_0001.jpg"), 0o644) })
	if os.Getuid() == 0 {
		t.Skip("permission bits do not apply to root")
	}

	res := NewSession(source, target, alwaysWritable(), logging.NewNop(), nil).Run(context.Background())
	if res.State != StateCompleted {
		t.Fatalf("state: got %v, want completed", res.State)
	}
	if res.Errors != 1 || res.Copied != 1 {
		t.Fatalf("counters: copied %d errors %d, want 1/1", res.Copied, res.Errors)
	}
}

func TestSessionAbortsWhenSourceUnreadable(t *testing.T) {
	target := t.TempDir()
	sess := NewSession(filepath.Join(t.TempDir(), "gone"), target, alwaysWritable(), logging.NewNop(), nil)
	res := sess.Run(context.Background())
	if res.State != StateAborted {
		t.Fatalf("state: got %v, want aborted", res.State)
	}
	if msg := sess.Snapshot().StatusMessage; msg != "source volume not readable" {
		t.Fatalf("status message: got %q", msg)
	}
}

func TestStateTerminal(t *testing.T) {
	for _, state := range []State{StateCompleted, StateCancelled, StateAborted} {
		if !state.Terminal() {
			t.Fatalf("%v should be terminal", state)
		}
	}
	for _, state := range []State{StateIdle, StateScanning, StateCopying} {
		if state.Terminal() {
			t.Fatalf("%v should not be terminal", state)
		}
	}
}
