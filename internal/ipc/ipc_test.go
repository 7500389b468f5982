package ipc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cardbox/internal/config"
	"cardbox/internal/daemon"
	"cardbox/internal/logging"
)

func newTestServer(t *testing.T) (*Client, chan struct{}) {
	t.Helper()

	cfg := config.Default()
	cfg.Paths.TargetDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()

	d, err := daemon.New(&cfg, logging.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = d.Close() })

	shutdownCalled := make(chan struct{}, 1)
	socket := filepath.Join(cfg.Paths.LogDir, "cardbox.sock")
	server, err := NewServer(context.Background(), socket, d, logging.NewNop(), func() {
		shutdownCalled <- struct{}{}
	})
	if err != nil {
		t.Fatal(err)
	}
	server.Serve()
	t.Cleanup(server.Close)

	client, err := Dial(socket)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = client.Close() })

	return client, shutdownCalled
}

func TestStatusRoundTrip(t *testing.T) {
	client, _ := newTestServer(t)

	resp, err := client.Status()
	if err != nil {
		t.Fatal(err)
	}
	if resp.Running {
		t.Fatal("daemon was never started")
	}
	if resp.PID != os.Getpid() {
		t.Fatalf("pid: got %d, want %d", resp.PID, os.Getpid())
	}
	if resp.LockPath == "" || resp.HistoryDBPath == "" {
		t.Fatalf("paths missing: %+v", resp)
	}
}

func TestIngestStopWithoutSession(t *testing.T) {
	client, _ := newTestServer(t)

	resp, err := client.IngestStop()
	if err != nil {
		t.Fatal(err)
	}
	if resp.Stopped {
		t.Fatal("nothing was running to stop")
	}
	if resp.Message == "" {
		t.Fatal("expected explanatory message")
	}
}

func TestIngestStartWithoutRunningSupervisor(t *testing.T) {
	client, _ := newTestServer(t)

	// The daemon was constructed but never started, so a manual trigger is
	// rejected through the RPC error path.
	if _, err := client.IngestStart(); err == nil {
		t.Fatal("expected error when supervisor is not running")
	}
}

func TestHistoryListEmpty(t *testing.T) {
	client, _ := newTestServer(t)

	resp, err := client.HistoryList(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Entries) != 0 || resp.Sessions != 0 {
		t.Fatalf("journal should be empty: %+v", resp)
	}
}

func TestShutdownInvokesCallback(t *testing.T) {
	client, shutdownCalled := newTestServer(t)

	resp, err := client.Shutdown()
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Stopping {
		t.Fatal("expected stopping acknowledgement")
	}
	<-shutdownCalled
}

func TestTestNotificationDisabled(t *testing.T) {
	client, _ := newTestServer(t)

	resp, err := client.TestNotification()
	if err != nil {
		t.Fatal(err)
	}
	if resp.Sent {
		t.Fatal("no topic configured, nothing should be sent")
	}
	if resp.Message == "" {
		t.Fatal("expected explanatory message")
	}
}
