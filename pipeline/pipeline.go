// Package pipeline runs one render, extract, estimate and persist cycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/pricing"
	"github.com/use-agent/harvest/sink"
)

// State is a pipeline step.
type State string

const (
	StateIdle       State = "idle"
	StateRendering  State = "rendering"
	StateExtracting State = "extracting"
	StateEstimating State = "estimating"
	StatePersisting State = "persisting"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// ErrBusy is returned when Run is called while another run is in progress
// on the same Pipeline.
var ErrBusy = errors.New("pipeline: run already in progress")

// Renderer produces the rendered HTML for a request.
type Renderer interface {
	Render(ctx context.Context, req models.RenderRequest) (*models.RenderedPage, error)
}

// Extractor turns a rendered page into schema records.
type Extractor interface {
	ExtractPage(ctx context.Context, page *models.RenderedPage, schema models.Schema, instruction string, scope models.ContentScope) (*models.Extraction, error)
}

// Sink persists a finished run.
type Sink interface {
	Write(ctx context.Context, result models.RunResult) (string, error)
}

// SnapshotWriter is implemented by sinks that can also keep the rendered HTML.
type SnapshotWriter interface {
	WriteSnapshot(ctx context.Context, runID, html string) (string, error)
}

// Notifier is told about every finished run.
type Notifier interface {
	Completed(ctx context.Context, out *Outcome)
	Failed(ctx context.Context, err *StepError)
}

// Job is the input of one run.
type Job struct {
	// RunID names the artifact. Generated when empty.
	RunID        string
	Request      models.RenderRequest
	Schema       models.Schema
	Instruction  string
	SaveSnapshot bool

	// Scope narrows the page before extraction; empty uses the extractor's
	// default.
	Scope models.ContentScope
}

// Outcome is a successful run plus its diagnostics.
type Outcome struct {
	models.RunResult

	// Dropped lists backend records rejected by schema validation.
	Dropped      []models.RecordViolation
	SnapshotPath string
	Timing       models.TimingInfo
}

// StepError reports the step a run failed in. Err carries the ScrapeError.
type StepError struct {
	RunID string
	State State
	Code  string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("run %s failed while %s: %v", e.RunID, e.State, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Options tunes a Pipeline.
type Options struct {
	// Prices is the table used to estimate cost.
	Prices pricing.Table

	// AllowUnpricedModels substitutes a zero-cost estimate, with a warning,
	// for models missing from Prices. Otherwise an unknown model fails the run.
	AllowUnpricedModels bool

	// OnTransition, when set, is called on every state change.
	OnTransition func(runID string, from, to State)

	Notifier Notifier

	// Now defaults to time.Now.
	Now func() time.Time
}

// Pipeline sequences the components of a run. A Pipeline runs one job at a
// time; use separate instances for concurrent runs.
type Pipeline struct {
	renderer  Renderer
	extractor Extractor
	sink      Sink
	opts      Options

	running atomic.Bool
	mu      sync.Mutex
	state   State
}

// New creates a Pipeline in the Idle state.
func New(renderer Renderer, extractor Extractor, s Sink, opts Options) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{
		renderer:  renderer,
		extractor: extractor,
		sink:      s,
		opts:      opts,
		state:     StateIdle,
	}
}

// State returns the current state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// NewRunID returns an id of the form YYYYMMDDThhmmssZ-<8 hex>.
func NewRunID(t time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return t.UTC().Format("20060102T150405Z") + "-" + suffix
}

// Run executes job. Steps run strictly in order and the first failure ends
// the run with a *StepError; nothing is written unless every step succeeded.
// Input problems found before rendering starts are returned as a plain
// INVALID_INPUT ScrapeError and leave the pipeline Idle.
func (p *Pipeline) Run(ctx context.Context, job Job) (*Outcome, error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer p.running.Store(false)

	p.mu.Lock()
	p.state = StateIdle
	p.mu.Unlock()

	runID := job.RunID
	if runID == "" {
		runID = NewRunID(p.opts.Now())
	}
	if err := sink.ValidateRunID(runID); err != nil {
		return nil, err
	}
	if err := job.Schema.Validate(); err != nil {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), err)
	}

	start := p.opts.Now()
	out := &Outcome{RunResult: models.RunResult{RunID: runID}}
	log := slog.With("run_id", runID)

	p.transition(runID, StateRendering)
	stepStart := p.opts.Now()
	page, err := p.renderer.Render(ctx, job.Request)
	if err != nil {
		return nil, p.fail(ctx, runID, StateRendering, err)
	}
	out.Timing.RenderingMs = p.since(stepStart)
	log.Info("page rendered", "source", job.Request.Source, "bytes", len(page.HTML), "ms", out.Timing.RenderingMs)

	p.transition(runID, StateExtracting)
	stepStart = p.opts.Now()
	ext, err := p.extractor.ExtractPage(ctx, page, job.Schema, job.Instruction, job.Scope)
	if err != nil {
		return nil, p.fail(ctx, runID, StateExtracting, err)
	}
	out.Timing.ExtractingMs = p.since(stepStart)
	out.Records = ext.Records
	out.Dropped = ext.Dropped

	p.transition(runID, StateEstimating)
	cost, err := pricing.Estimate(ext.Usage, p.opts.Prices)
	if err != nil {
		if !p.opts.AllowUnpricedModels || !errors.Is(err, pricing.ErrUnknownModel) {
			return nil, p.fail(ctx, runID, StateEstimating, err)
		}
		log.Warn("model has no price, reporting zero cost", "model", ext.Usage.Model)
		cost = pricing.Unpriced(ext.Usage)
	}
	out.Cost = cost

	p.transition(runID, StatePersisting)
	stepStart = p.opts.Now()
	path, err := p.sink.Write(ctx, out.RunResult)
	if err != nil {
		return nil, p.fail(ctx, runID, StatePersisting, err)
	}
	out.WrittenPath = path
	if job.SaveSnapshot {
		if sw, ok := p.sink.(SnapshotWriter); ok {
			snap, err := sw.WriteSnapshot(ctx, runID, page.HTML)
			if err != nil {
				log.Warn("snapshot not saved", "error", err)
			}
			out.SnapshotPath = snap
		}
	}
	out.Timing.PersistingMs = p.since(stepStart)
	out.Timing.TotalMs = p.since(start)

	p.transition(runID, StateDone)
	log.Info("run completed",
		"records", len(out.Records),
		"cost_usd", out.Cost.EstimatedCostUSD,
		"path", path,
		"ms", out.Timing.TotalMs,
	)
	if p.opts.Notifier != nil {
		p.opts.Notifier.Completed(ctx, out)
	}
	return out, nil
}

func (p *Pipeline) fail(ctx context.Context, runID string, state State, err error) *StepError {
	stepErr := &StepError{
		RunID: runID,
		State: state,
		Code:  models.CodeOf(err),
		Err:   err,
	}
	p.transition(runID, StateFailed)
	slog.Error("run failed", "run_id", runID, "state", state, "code", stepErr.Code, "error", err)
	if p.opts.Notifier != nil {
		p.opts.Notifier.Failed(ctx, stepErr)
	}
	return stepErr
}

func (p *Pipeline) transition(runID string, to State) {
	p.mu.Lock()
	from := p.state
	p.state = to
	p.mu.Unlock()

	slog.Debug("state change", "run_id", runID, "from", from, "to", to)
	if p.opts.OnTransition != nil {
		p.opts.OnTransition(runID, from, to)
	}
}

func (p *Pipeline) since(t time.Time) int64 {
	return p.opts.Now().Sub(t).Milliseconds()
}
