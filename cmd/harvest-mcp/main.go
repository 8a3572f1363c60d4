package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	apiURL := os.Getenv("HARVEST_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("HARVEST_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "HARVEST_API_KEY is required")
		os.Exit(1)
	}

	s := newServer(&apiClient{
		baseURL: apiURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 300 * time.Second},
	})

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func newServer(api *apiClient) *server.MCPServer {
	s := server.NewMCPServer(
		"harvest",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	extractTool := mcp.NewTool("extract_records",
		mcp.WithDescription("Render a web page, extract records matching a field schema with an LLM, save them as a JSON artifact and report the estimated cost."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the page to extract from"),
		),
		mcp.WithString("schema",
			mcp.Required(),
			mcp.Description(`Field schema as JSON, e.g. {"name":"cars","fields":[{"name":"name","type":"string"},{"name":"price","type":"number"}]}. Types: string, number, boolean, string_list.`),
		),
		mcp.WithString("instruction",
			mcp.Description("What to extract, in plain language"),
		),
		mcp.WithString("wait",
			mcp.Description("Wait policy: 'networkidle' (default), 'delay:<duration>' or 'selector:<css>'"),
		),
		mcp.WithString("mode",
			mcp.Description("Fetch mode: 'browser' (default) renders JavaScript, 'http' fetches the raw page"),
			mcp.Enum("browser", "http"),
		),
		mcp.WithString("run_id",
			mcp.Description("Artifact name; generated when omitted"),
		),
		mcp.WithString("selector",
			mcp.Description("CSS selector for the elements holding the records, e.g. one listing tile; the rest of the page is ignored"),
		),
		mcp.WithString("exclude",
			mcp.Description("Comma-separated CSS selectors removed before extraction, e.g. '.ad, nav'"),
		),
	)
	s.AddTool(extractTool, handleExtractRecords(api))

	getRunTool := mcp.NewTool("get_run",
		mcp.WithDescription("Fetch the records and cost of a previous run by its id."),
		mcp.WithString("run_id",
			mcp.Required(),
			mcp.Description("The run id returned by extract_records"),
		),
	)
	s.AddTool(getRunTool, handleGetRun(api))

	return s
}
