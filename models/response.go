package models

// RunRequest is the payload for POST /api/v1/runs.
type RunRequest struct {
	// RunID names the artifact. Generated when empty.
	RunID string `json:"run_id,omitempty" binding:"omitempty,max=128"`

	// Source is the page URL to render. Required.
	Source string `json:"source" binding:"required,url"`

	// Wait is "networkidle" (default), "delay:<duration>" or "selector:<css>".
	Wait string `json:"wait,omitempty"`

	// Mode is "browser" (default) or "http".
	Mode string `json:"mode,omitempty" binding:"omitempty,oneof=browser http"`

	Actions   []Action          `json:"actions,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Stealth   bool              `json:"stealth,omitempty"`
	BlockAds  bool              `json:"block_ads,omitempty"`

	// Schema declares the fields to extract. Required.
	Schema Schema `json:"schema" binding:"required"`

	// Instruction is the natural-language extraction prompt.
	Instruction string `json:"instruction,omitempty"`

	// Scope narrows the page before extraction. Empty uses the server
	// default.
	Scope ContentScope `json:"scope,omitempty"`

	// SaveSnapshot also stores the rendered HTML next to the artifact.
	SaveSnapshot bool `json:"save_snapshot,omitempty"`
}

// ToRenderRequest converts the payload into a RenderRequest.
func (r *RunRequest) ToRenderRequest() (RenderRequest, error) {
	wait, err := ParseWaitPolicy(r.Wait)
	if err != nil {
		return RenderRequest{}, NewScrapeError(ErrCodeInvalidInput, err.Error(), err)
	}
	req := RenderRequest{
		Source:    r.Source,
		Wait:      wait,
		Mode:      FetchMode(r.Mode),
		Actions:   r.Actions,
		Headers:   r.Headers,
		UserAgent: r.UserAgent,
		Stealth:   r.Stealth,
		BlockAds:  r.BlockAds,
	}
	if req.Mode == "" {
		req.Mode = FetchBrowser
	}
	return req, req.Validate()
}

// RunResponse is the response for POST /api/v1/runs and GET /api/v1/runs/:id.
type RunResponse struct {
	Success     bool          `json:"success"`
	RunID       string        `json:"run_id,omitempty"`
	Records     []Record      `json:"records,omitempty"`
	Cost        *CostEstimate `json:"cost,omitempty"`
	WrittenPath string        `json:"written_path,omitempty"`

	// Dropped counts backend records rejected by schema validation.
	Dropped int `json:"dropped,omitempty"`

	// FailedState names the pipeline step that failed.
	FailedState string `json:"failed_state,omitempty"`

	Timing TimingInfo   `json:"timing"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// TimingInfo breaks down the time spent in each pipeline step.
type TimingInfo struct {
	TotalMs      int64 `json:"total_ms"`
	RenderingMs  int64 `json:"rendering_ms,omitempty"`
	ExtractingMs int64 `json:"extracting_ms,omitempty"`
	PersistingMs int64 `json:"persisting_ms,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string       `json:"status"` // "healthy" or "degraded"
	Uptime  string       `json:"uptime"`
	Browser BrowserStats `json:"browser"`
	Version string       `json:"version"`
}

// BrowserStats reports the renderer's browser usage.
type BrowserStats struct {
	Launched      bool `json:"launched"`
	ActiveRenders int  `json:"active_renders"`
	MaxRenders    int  `json:"max_renders"`
}
