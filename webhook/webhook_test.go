package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/pipeline"
)

type capture struct {
	mu        sync.Mutex
	bodies    [][]byte
	signature []string
}

func (c *capture) handler(statuses ...int) http.HandlerFunc {
	var calls atomic.Int32
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.bodies = append(c.bodies, body)
		c.signature = append(c.signature, r.Header.Get(SignatureHeader))
		c.mu.Unlock()

		n := int(calls.Add(1)) - 1
		if n < len(statuses) {
			w.WriteHeader(statuses[n])
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func TestSignVerify(t *testing.T) {
	body := []byte(`{"type":"run.completed"}`)
	sig := Sign("s3cret", body)
	require.True(t, Verify("s3cret", body, sig))
	require.False(t, Verify("other", body, sig))
	require.False(t, Verify("s3cret", []byte(`{}`), sig))
	require.False(t, Verify("s3cret", body, sig[len("sha256="):]))
}

func TestNotifier_Completed(t *testing.T) {
	c := &capture{}
	srv := httptest.NewServer(c.handler())
	defer srv.Close()

	n := NewNotifier(srv.URL, "s3cret")
	n.Now = func() time.Time { return time.Unix(1700000000, 0) }
	n.Completed(context.Background(), &pipeline.Outcome{
		RunResult: models.RunResult{
			RunID:       "cars",
			Records:     []models.Record{models.RecordOf("name", "Civic")},
			Cost:        models.CostEstimate{Usage: models.UsageStats{PromptTokens: 1000, CompletionTokens: 500, Model: "gpt-x"}, EstimatedCostUSD: 0.025},
			WrittenPath: "outputs/cars.json",
		},
	})
	n.Wait()

	require.Len(t, c.bodies, 1)
	require.True(t, Verify("s3cret", c.bodies[0], c.signature[0]))
	require.JSONEq(t, `{
		"type": "run.completed",
		"run_id": "cars",
		"timestamp": 1700000000,
		"data": {
			"records": 1,
			"cost": {"prompt_tokens":1000,"completion_tokens":500,"model":"gpt-x","estimated_cost_usd":0.025},
			"written_path": "outputs/cars.json"
		}
	}`, string(c.bodies[0]))
}

func TestNotifier_FailedRetries(t *testing.T) {
	c := &capture{}
	srv := httptest.NewServer(c.handler(http.StatusInternalServerError, http.StatusBadGateway))
	defer srv.Close()

	n := NewNotifier(srv.URL, "")
	n.RetryDelays = []time.Duration{0, time.Millisecond, time.Millisecond}
	n.Failed(context.Background(), &pipeline.StepError{
		RunID: "r1",
		State: pipeline.StateRendering,
		Code:  models.ErrCodeTimeout,
		Err:   models.NewScrapeError(models.ErrCodeTimeout, "page did not load", nil),
	})
	n.Wait()

	require.Len(t, c.bodies, 3)
	require.Empty(t, c.signature[2], "unsigned without a secret")

	var ev struct {
		Type string `json:"type"`
		Data struct {
			State string             `json:"state"`
			Error models.ErrorDetail `json:"error"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(c.bodies[2], &ev))
	require.Equal(t, EventRunFailed, ev.Type)
	require.Equal(t, "rendering", ev.Data.State)
	require.Equal(t, models.ErrCodeTimeout, ev.Data.Error.Code)
	require.Equal(t, models.ClassRender, ev.Data.Error.Class)
}

func TestNotifier_GivesUp(t *testing.T) {
	c := &capture{}
	srv := httptest.NewServer(c.handler(500, 500, 500, 500))
	defer srv.Close()

	n := NewNotifier(srv.URL, "")
	n.RetryDelays = []time.Duration{0, time.Millisecond}
	n.DeliverAsync(&Event{Type: EventRunCompleted, RunID: "r"})
	n.Wait()
	require.Len(t, c.bodies, 2)
}

func TestNewNotifier_EmptyURL(t *testing.T) {
	require.Nil(t, NewNotifier("", "secret"))
}
