package notifications

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cardbox/internal/config"
)

type recordedRequest struct {
	title    string
	tags     string
	priority string
	body     string
}

func newNtfyTestServer(t *testing.T) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var requests []recordedRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, recordedRequest{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func testService(t *testing.T, topic string) Service {
	t.Helper()
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = topic
	cfg.Notifications.RequestTimeout = 2
	cfg.Notifications.Ingest = true
	cfg.Notifications.Errors = true
	return NewService(&cfg)
}

func TestNotifyIngestCompleted(t *testing.T) {
	server, requests := newNtfyTestServer(t)
	svc := testService(t, server.URL)

	err := svc.NotifyIngestCompleted(context.Background(), "/media/user/SD", 42, 3, 0, 90*time.Second)
	if err != nil {
		t.Fatal(err)
	}

	if len(*requests) != 1 {
		t.Fatalf("requests: got %d, want 1", len(*requests))
	}
	req := (*requests)[0]
	if !strings.Contains(req.title, "Ingest Complete") {
		t.Fatalf("title: %q", req.title)
	}
	if !strings.Contains(req.body, "42 copied") || !strings.Contains(req.body, "3 skipped") {
		t.Fatalf("body: %q", req.body)
	}
	if req.priority != "" {
		t.Fatalf("clean completion should not be high priority: %q", req.priority)
	}
}

func TestNotifyIngestCompletedWithErrorsIsHighPriority(t *testing.T) {
	server, requests := newNtfyTestServer(t)
	svc := testService(t, server.URL)

	if err := svc.NotifyIngestCompleted(context.Background(), "/media/user/SD", 10, 0, 2, time.Minute); err != nil {
		t.Fatal(err)
	}
	req := (*requests)[0]
	if req.priority != "high" {
		t.Fatalf("priority: got %q, want high", req.priority)
	}
	if !strings.Contains(req.title, "with errors") {
		t.Fatalf("title: %q", req.title)
	}
}

func TestNotifyIngestAborted(t *testing.T) {
	server, requests := newNtfyTestServer(t)
	svc := testService(t, server.URL)

	if err := svc.NotifyIngestAborted(context.Background(), "/media/user/SD", "target store disconnected during copy"); err != nil {
		t.Fatal(err)
	}
	req := (*requests)[0]
	if !strings.Contains(req.body, "target store disconnected") {
		t.Fatalf("body: %q", req.body)
	}
	if req.priority != "high" {
		t.Fatalf("priority: got %q, want high", req.priority)
	}
}

func TestIngestEventsGate(t *testing.T) {
	server, requests := newNtfyTestServer(t)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Ingest = false
	cfg.Notifications.Errors = true
	svc := NewService(&cfg)

	if err := svc.NotifyIngestStarted(context.Background(), "/media/user/SD"); err != nil {
		t.Fatal(err)
	}
	if err := svc.NotifyIngestCompleted(context.Background(), "/media/user/SD", 1, 0, 0, time.Second); err != nil {
		t.Fatal(err)
	}
	if len(*requests) != 0 {
		t.Fatalf("ingest events should be gated off, saw %d requests", len(*requests))
	}

	// Error events stay enabled independently.
	if err := svc.NotifyIngestAborted(context.Background(), "/media/user/SD", "reason"); err != nil {
		t.Fatal(err)
	}
	if len(*requests) != 1 {
		t.Fatalf("aborted notification should go out, saw %d requests", len(*requests))
	}
}

func TestNoTopicMeansNoop(t *testing.T) {
	svc := testService(t, "")
	if err := svc.NotifyIngestStarted(context.Background(), "/media/user/SD"); err != nil {
		t.Fatal(err)
	}
	if err := svc.TestNotification(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestServerErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic over quota", http.StatusTooManyRequests)
	}))
	t.Cleanup(server.Close)

	svc := testService(t, server.URL)
	err := svc.TestNotification(context.Background())
	if err == nil {
		t.Fatal("expected error from 429 response")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Fatalf("error should carry status code: %v", err)
	}
}
