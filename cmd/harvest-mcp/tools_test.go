package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
)

func newAPI(t *testing.T, handler http.HandlerFunc) *apiClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &apiClient{baseURL: srv.URL, apiKey: "k", http: srv.Client()}
}

func callTool(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (*mcp.CallToolResult, string) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return res, text.Text
}

func TestExtractRecords(t *testing.T) {
	var got map[string]any
	api := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/runs", r.URL.Path)
		require.Equal(t, "k", r.Header.Get("X-API-Key"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"success":true,"run_id":"cars","records":[{"name":"Civic","price":21000}],` +
			`"cost":{"prompt_tokens":1000,"completion_tokens":500,"model":"gpt-x","estimated_cost_usd":0.025},` +
			`"written_path":"outputs/cars.json","dropped":1}`))
	})

	res, text := callTool(t, handleExtractRecords(api), map[string]any{
		"url":         "https://example.com/cars",
		"schema":      `{"name":"cars","fields":[{"name":"name","type":"string"}]}`,
		"instruction": "List the cars.",
	})
	require.False(t, res.IsError)
	require.Contains(t, text, "Run cars: 1 records (1 dropped by schema validation)")
	require.Contains(t, text, "Cost: $0.025000 (1000 prompt + 500 completion tokens, gpt-x)")
	require.Contains(t, text, `{"name":"Civic","price":21000}`)

	require.Equal(t, "https://example.com/cars", got["source"])
	require.Equal(t, "List the cars.", got["instruction"])
	require.NotContains(t, got, "wait")
	require.NotContains(t, got, "scope")
}

func TestExtractRecords_Scope(t *testing.T) {
	var got map[string]any
	api := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"success":true,"run_id":"cars"}`))
	})

	res, _ := callTool(t, handleExtractRecords(api), map[string]any{
		"url":      "https://example.com/cars",
		"schema":   `{"name":"cars","fields":[{"name":"name","type":"string"}]}`,
		"selector": "ansrp-srp-tile-v3",
		"exclude":  ".ad, , nav",
	})
	require.False(t, res.IsError)
	require.Equal(t, map[string]any{
		"selector":     "ansrp-srp-tile-v3",
		"exclude_tags": []any{".ad", "nav"},
	}, got["scope"])
}

func TestExtractRecords_BadSchema(t *testing.T) {
	api := newAPI(t, func(http.ResponseWriter, *http.Request) { t.Fatal("API must not be called") })
	res, text := callTool(t, handleExtractRecords(api), map[string]any{"url": "https://example.com", "schema": "{nope"})
	require.True(t, res.IsError)
	require.Contains(t, text, "schema must be valid JSON")
}

func TestGetRun_Failure(t *testing.T) {
	api := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/runs/missing", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"error":{"code":"NOT_FOUND","message":"no artifact"}}`))
	})
	res, text := callTool(t, handleGetRun(api), map[string]any{"run_id": "missing"})
	require.True(t, res.IsError)
	require.Equal(t, "[NOT_FOUND] no artifact", text)
}
