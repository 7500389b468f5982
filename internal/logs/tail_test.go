package logs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeLog(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cardbox.log")
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTailLastLines(t *testing.T) {
	path := writeLog(t, "one\ntwo\nthree\nfour\n")

	result, err := Tail(context.Background(), path, TailOptions{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Lines) != 2 || result.Lines[0] != "three" || result.Lines[1] != "four" {
		t.Fatalf("lines: %v", result.Lines)
	}
	if result.Offset == 0 {
		t.Fatal("offset should point at end of file")
	}
}

func TestTailFromOffsetResumes(t *testing.T) {
	path := writeLog(t, "one\ntwo\n")

	first, err := Tail(context.Background(), path, TailOptions{Offset: 0})
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Lines) != 2 {
		t.Fatalf("first read: %v", first.Lines)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString("three\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	second, err := Tail(context.Background(), path, TailOptions{Offset: first.Offset})
	if err != nil {
		t.Fatal(err)
	}
	if len(second.Lines) != 1 || second.Lines[0] != "three" {
		t.Fatalf("second read: %v", second.Lines)
	}
}

func TestTailMissingFile(t *testing.T) {
	result, err := Tail(context.Background(), filepath.Join(t.TempDir(), "absent.log"), TailOptions{Offset: -1, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Lines) != 0 || result.Offset != 0 {
		t.Fatalf("missing file should yield empty result: %+v", result)
	}
}

func TestTailLimitLargerThanFile(t *testing.T) {
	path := writeLog(t, "only\n")
	result, err := Tail(context.Background(), path, TailOptions{Offset: -1, Limit: 100})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Lines) != 1 || result.Lines[0] != "only" {
		t.Fatalf("lines: %v", result.Lines)
	}
}

func TestTailFollowTimesOutEmpty(t *testing.T) {
	path := writeLog(t, "line\n")
	first, err := Tail(context.Background(), path, TailOptions{Offset: -1, Limit: 1})
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	result, err := Tail(context.Background(), path, TailOptions{
		Offset: first.Offset,
		Follow: true,
		Wait:   300 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Lines) != 0 {
		t.Fatalf("no new lines expected: %v", result.Lines)
	}
	if time.Since(start) < 250*time.Millisecond {
		t.Fatal("follow should have waited for the deadline")
	}
}

func TestTailFollowCancelled(t *testing.T) {
	path := writeLog(t, "line\n")
	first, err := Tail(context.Background(), path, TailOptions{Offset: -1, Limit: 1})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Tail(ctx, path, TailOptions{Offset: first.Offset, Follow: true, Wait: 5 * time.Second}); err == nil {
		t.Fatal("expected context error")
	}
}
