package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/pipeline"
)

// Event types.
const (
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
)

// SignatureHeader carries "sha256=<hex hmac of the body>".
const SignatureHeader = "X-Harvest-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"`
	RunID     string `json:"run_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// CompletedData is the Data of a run.completed event.
type CompletedData struct {
	Records     int                  `json:"records"`
	Dropped     int                  `json:"dropped,omitempty"`
	Cost        *models.CostEstimate `json:"cost"`
	WrittenPath string               `json:"written_path"`
}

// FailedData is the Data of a run.failed event.
type FailedData struct {
	State string              `json:"state"`
	Error *models.ErrorDetail `json:"error"`
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches body under secret.
func Verify(secret string, body []byte, signature string) bool {
	if !strings.HasPrefix(signature, "sha256=") {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}

// Deliver sends a webhook event synchronously.
// The request body is signed with HMAC-SHA256 if secret is non-empty.
func Deliver(ctx context.Context, client *http.Client, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Harvest-Webhook/1.0")
	if secret != "" {
		req.Header.Set(SignatureHeader, Sign(secret, body))
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// DefaultRetryDelays are the waits before each delivery attempt.
var DefaultRetryDelays = []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second}

// Notifier posts pipeline outcomes to a URL. It implements pipeline.Notifier.
type Notifier struct {
	URL    string
	Secret string

	// RetryDelays defaults to DefaultRetryDelays.
	RetryDelays []time.Duration
	Client      *http.Client
	Now         func() time.Time

	wg sync.WaitGroup
}

// NewNotifier returns a Notifier for url, or nil when url is empty.
func NewNotifier(url, secret string) *Notifier {
	if url == "" {
		return nil
	}
	return &Notifier{URL: url, Secret: secret}
}

// Completed sends run.completed.
func (n *Notifier) Completed(_ context.Context, out *pipeline.Outcome) {
	cost := out.Cost
	n.DeliverAsync(&Event{
		Type:      EventRunCompleted,
		RunID:     out.RunID,
		Timestamp: n.now().Unix(),
		Data: CompletedData{
			Records:     len(out.Records),
			Dropped:     len(out.Dropped),
			Cost:        &cost,
			WrittenPath: out.WrittenPath,
		},
	})
}

// Failed sends run.failed.
func (n *Notifier) Failed(_ context.Context, stepErr *pipeline.StepError) {
	n.DeliverAsync(&Event{
		Type:      EventRunFailed,
		RunID:     stepErr.RunID,
		Timestamp: n.now().Unix(),
		Data: FailedData{
			State: string(stepErr.State),
			Error: models.AsScrapeError(stepErr.Err).ToDetail(),
		},
	})
}

// DeliverAsync sends event in the background, retrying per RetryDelays.
func (n *Notifier) DeliverAsync(event *Event) {
	delays := n.RetryDelays
	if len(delays) == 0 {
		delays = DefaultRetryDelays
	}
	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		for attempt, delay := range delays {
			if delay > 0 {
				time.Sleep(delay)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := Deliver(ctx, client, n.URL, n.Secret, event)
			cancel()
			if err == nil {
				slog.Info("webhook delivered",
					"url", n.URL,
					"event", event.Type,
					"run_id", event.RunID,
					"attempt", attempt+1,
				)
				return
			}
			slog.Warn("webhook delivery failed",
				"url", n.URL,
				"event", event.Type,
				"run_id", event.RunID,
				"attempt", attempt+1,
				"error", err,
			)
		}
		slog.Error("webhook delivery exhausted all retries",
			"url", n.URL,
			"event", event.Type,
			"run_id", event.RunID,
		)
	}()
}

// Wait blocks until every pending delivery has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now()
}
