// Package dispatch triggers the remote scrape workflow and maintains the
// run-counter file that rate-limits dispatches. The counter lives in the
// repository itself, updated through the contents API with the file SHA as
// a compare-and-swap token — process memory is never trusted across
// invocations.
package dispatch

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/leadgrab/leadgrab/config"
)

// ErrConflict signals a lost compare-and-swap race on the counter file.
var ErrConflict = errors.New("dispatch: counter update conflict")

// Counter is the JSON document stored in the counter file.
type Counter struct {
	Count int    `json:"count"`
	Date  string `json:"date"` // YYYY-MM-DD, UTC
}

// Client is a minimal GitHub REST client covering workflow dispatch and
// the counter file.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	owner      string
	repo       string
}

// NewClient creates a Client from config.
func NewClient(cfg config.GitHubConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		owner:      cfg.Owner,
		repo:       cfg.Repo,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("dispatch: marshal body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("dispatch: build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "leadgrab")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("dispatch: request failed: %w", err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("dispatch: decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// DispatchWorkflow fires the scrape workflow with query as its input.
// Fire-and-forget: the API acknowledges the dispatch, completion is never
// reported back.
func (c *Client) DispatchWorkflow(ctx context.Context, workflowFile, query string) error {
	path := fmt.Sprintf("/repos/%s/%s/actions/workflows/%s/dispatches", c.owner, c.repo, workflowFile)
	body := map[string]any{
		"ref":    "main",
		"inputs": map[string]string{"query": query},
	}
	status, err := c.do(ctx, http.MethodPost, path, body, nil)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent {
		return fmt.Errorf("dispatch: workflow dispatch returned HTTP %d", status)
	}
	return nil
}

// InProgressRuns returns how many runs of the workflow are currently
// executing.
func (c *Client) InProgressRuns(ctx context.Context, workflowFile string) (int, error) {
	path := fmt.Sprintf("/repos/%s/%s/actions/workflows/%s/runs?status=in_progress&per_page=1",
		c.owner, c.repo, workflowFile)

	var out struct {
		TotalCount int `json:"total_count"`
	}
	status, err := c.do(ctx, http.MethodGet, path, nil, &out)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, fmt.Errorf("dispatch: list runs returned HTTP %d", status)
	}
	return out.TotalCount, nil
}

// GetCounter reads the counter file. A missing file yields a zero Counter
// and an empty SHA, which PutCounter interprets as "create".
func (c *Client) GetCounter(ctx context.Context, path string) (Counter, string, error) {
	apiPath := fmt.Sprintf("/repos/%s/%s/contents/%s", c.owner, c.repo, path)

	var out struct {
		Content string `json:"content"`
		SHA     string `json:"sha"`
	}
	status, err := c.do(ctx, http.MethodGet, apiPath, nil, &out)
	if err != nil {
		return Counter{}, "", err
	}
	if status == http.StatusNotFound {
		return Counter{}, "", nil
	}
	if status != http.StatusOK {
		return Counter{}, "", fmt.Errorf("dispatch: read counter returned HTTP %d", status)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(out.Content, "\n", ""))
	if err != nil {
		return Counter{}, "", fmt.Errorf("dispatch: decode counter content: %w", err)
	}

	var counter Counter
	if err := json.Unmarshal(raw, &counter); err != nil {
		return Counter{}, "", fmt.Errorf("dispatch: parse counter: %w", err)
	}
	return counter, out.SHA, nil
}

// PutCounter writes the counter file conditionally on sha. An empty sha
// creates the file. A SHA mismatch on the server side returns ErrConflict
// so the caller can re-read and retry.
func (c *Client) PutCounter(ctx context.Context, path string, counter Counter, sha string) error {
	apiPath := fmt.Sprintf("/repos/%s/%s/contents/%s", c.owner, c.repo, path)

	raw, err := json.Marshal(counter)
	if err != nil {
		return fmt.Errorf("dispatch: marshal counter: %w", err)
	}

	body := map[string]any{
		"message": fmt.Sprintf("update run counter: %d on %s", counter.Count, counter.Date),
		"content": base64.StdEncoding.EncodeToString(raw),
	}
	if sha != "" {
		body["sha"] = sha
	}

	status, err := c.do(ctx, http.MethodPut, apiPath, body, nil)
	if err != nil {
		return err
	}
	switch {
	case status == http.StatusOK || status == http.StatusCreated:
		return nil
	case status == http.StatusConflict || status == http.StatusUnprocessableEntity:
		return ErrConflict
	default:
		return fmt.Errorf("dispatch: write counter returned HTTP %d", status)
	}
}
