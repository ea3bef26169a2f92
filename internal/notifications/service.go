package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tally/internal/config"
	"tally/internal/ledger"
)

const userAgent = "tally/0.1.0"

// Event names a run outcome worth announcing.
type Event string

const (
	EventRunCompleted Event = "run_completed"
	EventRunFailed    Event = "run_failed"
	EventTest         Event = "test"
)

// Payload carries the run details rendered into a notification.
type Payload struct {
	File     string
	Records  int64
	Elapsed  time.Duration
	Balances []ledger.CurrencyBalance
	Err      string
}

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy publisher, or a no-op when no topic is configured.
func NewService(cfg *config.Config) Service {
	if cfg == nil || strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		return noopService{}
	}
	timeout := cfg.NotifyTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: strings.TrimSpace(cfg.Notifications.NtfyTopic),
		client:   &http.Client{Timeout: timeout},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := render(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func render(event Event, p Payload) (message, bool) {
	file := strings.TrimSpace(p.File)
	if file == "" {
		file = "unknown file"
	}
	switch event {
	case EventRunCompleted:
		var b strings.Builder
		fmt.Fprintf(&b, "%s: %d records", file, p.Records)
		if p.Elapsed > 0 {
			fmt.Fprintf(&b, " in %s", p.Elapsed.Round(time.Second))
		}
		for _, bal := range p.Balances {
			fmt.Fprintf(&b, "\n%s %s (%d)", bal.Currency, ledger.FormatAmount(bal.Currency, bal.Total), bal.Count)
		}
		return message{
			title: "Tally - Run Complete",
			body:  b.String(),
			tags:  []string{"tally", "run", "completed"},
		}, true
	case EventRunFailed:
		reason := strings.TrimSpace(p.Err)
		if reason == "" {
			reason = "unknown error"
		}
		return message{
			title:    "Tally - Run Failed",
			body:     fmt.Sprintf("%s stopped after %d records: %s", file, p.Records, reason),
			tags:     []string{"tally", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Tally - Test",
			body:     "Notification delivery works",
			tags:     []string{"tally", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Title", msg.title)
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" {
		req.Header.Set("Priority", msg.priority)
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

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
