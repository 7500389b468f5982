// Package notifications pushes ingest events to an ntfy topic. With no topic
// configured every call is a no-op.
package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cardbox/internal/config"
)

const userAgent = "cardbox/0.1.0"

// Service defines the notification surface exposed to the supervisor.
type Service interface {
	NotifyIngestStarted(ctx context.Context, source string) error
	NotifyIngestCompleted(ctx context.Context, source string, copied, skipped, errors int, duration time.Duration) error
	NotifyIngestCancelled(ctx context.Context, source string) error
	NotifyIngestAborted(ctx context.Context, source, reason string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:     topic,
		client:       &http.Client{Timeout: timeout},
		ingestEvents: cfg.Notifications.Ingest,
		errorEvents:  cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	ingestEvents bool
	errorEvents  bool
}

func (n *ntfyService) NotifyIngestStarted(ctx context.Context, source string) error {
	if !n.ingestEvents {
		return nil
	}
	data := payload{
		title:   "cardbox - Ingest Started",
		message: fmt.Sprintf("Source volume detected, copying from %s", source),
		tags:    []string{"cardbox", "ingest", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyIngestCompleted(ctx context.Context, source string, copied, skipped, errors int, duration time.Duration) error {
	if !n.ingestEvents {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration <= 0 {
		duration = time.Second
	}

	var title string
	if errors == 0 {
		title = "cardbox - Ingest Complete"
	} else {
		title = "cardbox - Ingest Complete (with errors)"
	}
	data := payload{
		title: title,
		message: fmt.Sprintf("%s: %d copied, %d skipped, %d errors in %s",
			source, copied, skipped, errors, duration),
		tags: []string{"cardbox", "ingest", "completed"},
	}
	if errors > 0 {
		data.priority = "high"
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyIngestCancelled(ctx context.Context, source string) error {
	if !n.ingestEvents {
		return nil
	}
	data := payload{
		title:   "cardbox - Ingest Cancelled",
		message: fmt.Sprintf("Copy from %s was cancelled; partial results kept", source),
		tags:    []string{"cardbox", "ingest", "cancelled"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyIngestAborted(ctx context.Context, source, reason string) error {
	if !n.errorEvents {
		return nil
	}
	data := payload{
		title:    "cardbox - Ingest Aborted",
		message:  fmt.Sprintf("Copy from %s aborted: %s", source, reason),
		tags:     []string{"cardbox", "ingest", "aborted"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "cardbox - Test",
		message:  "Notification system test",
		tags:     []string{"cardbox", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyIngestStarted(context.Context, string) error { return nil }

func (noopService) NotifyIngestCompleted(context.Context, string, int, int, int, time.Duration) error {
	return nil
}

func (noopService) NotifyIngestCancelled(context.Context, string) error { return nil }

func (noopService) NotifyIngestAborted(context.Context, string, string) error { return nil }

func (noopService) TestNotification(context.Context) error { return nil }
