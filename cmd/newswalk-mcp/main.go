package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/newswalk/models"
)

func main() {
	apiURL := os.Getenv("NEWSWALK_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("NEWSWALK_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "NEWSWALK_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"newswalk",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	newsSearchTool := mcp.NewTool("news_search",
		mcp.WithDescription("Search the news site for a phrase, walk the paginated results newest first and return every article inside the lookback window. Also writes a spreadsheet report on the server."),
		mcp.WithString("search_phrase",
			mcp.Required(),
			mcp.Description("The phrase to search for"),
		),
		mcp.WithString("section",
			mcp.Required(),
			mcp.Description("Site section to restrict the search to ('all' for no restriction)"),
			mcp.Enum(
				"all", "world", "business", "legal", "markets", "breakingviews",
				"technology", "sustainability", "science", "sports", "lifestyle",
			),
		),
		mcp.WithNumber("date_range",
			mcp.Required(),
			mcp.Description("Lookback window in months; 0 and 1 both mean the current month"),
		),
		mcp.WithNumber("max_age",
			mcp.Description("Serve a cached walk no older than this many milliseconds (default: 0, no cache)"),
		),
	)
	s.AddTool(newsSearchTool, handleNewsSearch(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiPost sends a POST request to the newswalk API and returns the response body.
func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// pollJobCompletion polls a job endpoint until it leaves the pending and
// processing states or the context is cancelled.
func pollJobCompletion(ctx context.Context, client *http.Client, apiURL, apiKey, endpoint string) (*models.SearchJobStatusResponse, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+endpoint, nil)
			if err != nil {
				return nil, fmt.Errorf("create poll request: %w", err)
			}
			req.Header.Set("X-API-Key", apiKey)

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("poll request failed: %w", err)
			}

			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("read poll response: %w", err)
			}
			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("poll returned %d: %s", resp.StatusCode, apiErrorMessage(body))
			}

			var status models.SearchJobStatusResponse
			if err := json.Unmarshal(body, &status); err != nil {
				return nil, fmt.Errorf("parse poll status: %w", err)
			}

			switch status.Status {
			case models.JobPending, models.JobProcessing:
			default:
				return &status, nil
			}
		}
	}
}

// apiErrorMessage extracts "[CODE] message" from an error body.
func apiErrorMessage(body []byte) string {
	var errResp models.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == nil {
		return strings.TrimSpace(string(body))
	}
	return fmt.Sprintf("[%s] %s", errResp.Error.Code, errResp.Error.Message)
}

func handleNewsSearch(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		phrase, err := request.RequireString("search_phrase")
		if err != nil {
			return mcp.NewToolResultError("search_phrase is required"), nil
		}
		section, err := request.RequireString("section")
		if err != nil {
			return mcp.NewToolResultError("section is required"), nil
		}
		dateRange, err := request.RequireFloat("date_range")
		if err != nil {
			return mcp.NewToolResultError("date_range is required"), nil
		}

		payload := map[string]any{
			models.PayloadSearchPhrase: phrase,
			models.PayloadSection:      section,
			models.PayloadDateRange:    dateRange,
		}
		if maxAge := request.GetFloat("max_age", 0); maxAge > 0 {
			payload["max_age"] = int(maxAge)
		}

		// POST to create the search job.
		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/search", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search request failed: %v", err)), nil
		}

		var created models.SearchJobResponse
		if err := json.Unmarshal(respBody, &created); err != nil || created.ID == "" {
			return mcp.NewToolResultError("search job creation failed: " + apiErrorMessage(respBody)), nil
		}

		// Poll for completion.
		status, err := pollJobCompletion(ctx, client, apiURL, apiKey, "/api/v1/search/"+created.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling search job failed: %v", err)), nil
		}

		if status.Status == models.JobFailed {
			errMsg := "search failed"
			if status.Failure != nil {
				errMsg = fmt.Sprintf("[%s] %s", status.Failure.Code, status.Failure.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		return mcp.NewToolResultText(formatStatus(status)), nil
	}
}

// formatStatus renders a finished job as a short header plus the records
// as indented JSON.
func formatStatus(status *models.SearchJobStatusResponse) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Search %s: %s\n", status.ID, status.Status))
	if w := status.Walk; w != nil {
		sb.WriteString(fmt.Sprintf("Walk ended %s (%s): %d pages, %d items seen, %d retained\n",
			w.State, w.Reason, w.Pages, w.Seen, w.Retained))
		if w.Error != "" {
			sb.WriteString("Walk error: " + w.Error + "\n")
		}
	}
	if status.ReportPath != "" {
		sb.WriteString("Report: " + status.ReportPath + "\n")
	}
	sb.WriteString("\n")

	records, err := json.MarshalIndent(status.Records, "", "  ")
	if err != nil {
		sb.WriteString(fmt.Sprintf("failed to encode records: %v", err))
		return sb.String()
	}
	sb.Write(records)
	return sb.String()
}
