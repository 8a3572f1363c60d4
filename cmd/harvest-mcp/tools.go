package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// runCost mirrors the cost object of a run.
type runCost struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	Model            string  `json:"model"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

// apiError mirrors the Harvest API error detail.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// runResponse mirrors the Harvest API run response.
type runResponse struct {
	Success     bool              `json:"success"`
	RunID       string            `json:"run_id"`
	Records     []json.RawMessage `json:"records"`
	Cost        *runCost          `json:"cost"`
	WrittenPath string            `json:"written_path"`
	Dropped     int               `json:"dropped"`
	FailedState string            `json:"failed_state"`
	Error       *apiError         `json:"error"`
}

type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// do sends a request to the Harvest API and returns the response body.
func (a *apiClient) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(a.baseURL, "/")+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", a.apiKey)

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func handleExtractRecords(api *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		pageURL, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}
		schemaStr, err := request.RequireString("schema")
		if err != nil {
			return mcp.NewToolResultError("schema is required"), nil
		}

		var schemaJSON json.RawMessage
		if err := json.Unmarshal([]byte(schemaStr), &schemaJSON); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("schema must be valid JSON: %v", err)), nil
		}

		payload := map[string]any{
			"source": pageURL,
			"schema": schemaJSON,
		}
		for _, key := range []string{"instruction", "wait", "mode", "run_id"} {
			if v := request.GetString(key, ""); v != "" {
				payload[key] = v
			}
		}
		scope := map[string]any{}
		if sel := strings.TrimSpace(request.GetString("selector", "")); sel != "" {
			scope["selector"] = sel
		}
		if ex := splitList(request.GetString("exclude", "")); len(ex) > 0 {
			scope["exclude_tags"] = ex
		}
		if len(scope) > 0 {
			payload["scope"] = scope
		}

		respBody, err := api.do(ctx, http.MethodPost, "/api/v1/runs", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("extract request failed: %v", err)), nil
		}
		return formatRun(respBody, "extraction failed")
	}
}

func handleGetRun(api *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		runID, err := request.RequireString("run_id")
		if err != nil {
			return mcp.NewToolResultError("run_id is required"), nil
		}

		respBody, err := api.do(ctx, http.MethodGet, "/api/v1/runs/"+url.PathEscape(runID), nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("get run failed: %v", err)), nil
		}
		return formatRun(respBody, "run not available")
	}
}

func formatRun(respBody []byte, failure string) (*mcp.CallToolResult, error) {
	var run runResponse
	if err := json.Unmarshal(respBody, &run); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
	}
	if !run.Success {
		errMsg := failure
		if run.Error != nil {
			errMsg = fmt.Sprintf("[%s] %s", run.Error.Code, run.Error.Message)
		}
		if run.FailedState != "" {
			errMsg += " (while " + run.FailedState + ")"
		}
		return mcp.NewToolResultError(errMsg), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Run %s: %d records", run.RunID, len(run.Records))
	if run.Dropped > 0 {
		fmt.Fprintf(&sb, " (%d dropped by schema validation)", run.Dropped)
	}
	sb.WriteString("\n")
	if run.WrittenPath != "" {
		fmt.Fprintf(&sb, "Saved to %s\n", run.WrittenPath)
	}
	if c := run.Cost; c != nil {
		fmt.Fprintf(&sb, "Cost: $%.6f (%d prompt + %d completion tokens, %s)\n",
			c.EstimatedCostUSD, c.PromptTokens, c.CompletionTokens, c.Model)
	}
	sb.WriteString("\n")
	for _, rec := range run.Records {
		sb.Write(rec)
		sb.WriteString("\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
