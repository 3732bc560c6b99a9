// Package datalab implements the recognition.Engine contract against the
// Datalab marker API, the hosted OCR/layout service used for document
// recognition. Jobs are submitted once and then polled by request ID;
// turn-around is measured in tens of seconds.
package datalab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/paperdesk/paperdesk-api/internal/recognition"
)

const (
	submitPath = "/api/v1/marker"

	// statusComplete is the engine status that carries the final markdown.
	statusComplete = "complete"
	statusFailed   = "failed"
)

// markerRequest is the submit payload. The non-optional knobs are fixed to
// the values the application is calibrated for: markdown output, forced
// OCR with line formatting, LLM-assisted accurate mode, pagination on,
// image extraction off.
type markerRequest struct {
	FileURL                string `json:"file_url"`
	OutputFormat           string `json:"output_format"`
	ForceOCR               bool   `json:"force_ocr"`
	FormatLines            bool   `json:"format_lines"`
	UseLLM                 bool   `json:"use_llm"`
	Mode                   string `json:"mode"`
	Paginate               bool   `json:"paginate"`
	DisableImageExtraction bool   `json:"disable_image_extraction"`
	AdditionalConfig       string `json:"additional_config,omitempty"`
	PageRange              string `json:"page_range,omitempty"`
	MaxPages               int    `json:"max_pages,omitempty"`
}

// markerSubmitResponse is the submit reply.
type markerSubmitResponse struct {
	Success   bool   `json:"success"`
	RequestID string `json:"request_id"`
	Error     string `json:"error"`
}

// markerStatusResponse is the poll reply.
type markerStatusResponse struct {
	Success  bool   `json:"success"`
	Status   string `json:"status"`
	Markdown string `json:"markdown"`
	Error    string `json:"error"`
}

// Client talks to the Datalab marker API. It implements recognition.Engine.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client. The timeout bounds each individual HTTP
// request; the per-poll deadline the registry applies on top of it is
// usually shorter.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("datalab base URL cannot be empty")
	}
	if apiKey == "" {
		return nil, errors.New("datalab API key cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("component", "datalab_client"),
	}, nil
}

// Submit starts a marker job for the document at sourceURL.
func (c *Client) Submit(ctx context.Context, sourceURL string, opts *recognition.Options) (string, error) {
	additionalConfig, err := json.Marshal(map[string]bool{
		"drop_repeated_text": true,
		"filter_blank_pages": true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal additional config: %w", err)
	}

	payload := markerRequest{
		FileURL:                sourceURL,
		OutputFormat:           "markdown",
		ForceOCR:               true,
		FormatLines:            true,
		UseLLM:                 true,
		Mode:                   "accurate",
		Paginate:               true,
		DisableImageExtraction: true,
		AdditionalConfig:       string(additionalConfig),
	}

	if opts != nil {
		switch {
		case opts.PageRange != nil:
			// The marker API counts pages from zero.
			payload.PageRange = fmt.Sprintf("%d-%d", opts.PageRange.Start-1, opts.PageRange.End-1)
		case opts.MaxPages > 0:
			payload.MaxPages = opts.MaxPages
		}
	}

	var resp markerSubmitResponse
	if err := c.do(ctx, http.MethodPost, submitPath, payload, &resp); err != nil {
		return "", err
	}

	if !resp.Success || resp.RequestID == "" {
		return "", fmt.Errorf("marker submission rejected: %s", orUnknown(resp.Error))
	}

	c.logger.Debug("marker job submitted", "request_id", resp.RequestID)
	return resp.RequestID, nil
}

// Poll queries the status of a marker job.
func (c *Client) Poll(ctx context.Context, jobID string) (recognition.PollResult, error) {
	var resp markerStatusResponse
	path := fmt.Sprintf("%s/%s", submitPath, jobID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return recognition.PollResult{}, err
	}

	if resp.Status == statusFailed || (resp.Status == statusComplete && !resp.Success) {
		return recognition.PollResult{}, fmt.Errorf("marker job failed: %s", orUnknown(resp.Error))
	}

	if resp.Status == statusComplete && resp.Markdown != "" {
		return recognition.PollResult{
			Ready:    true,
			Status:   resp.Status,
			Markdown: resp.Markdown,
		}, nil
	}

	return recognition.PollResult{
		Ready:  false,
		Status: resp.Status,
	}, nil
}

// do executes one JSON request/response round trip.
func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("marker request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("marker API returned %d: %s", resp.StatusCode, string(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode marker response: %w", err)
	}

	return nil
}

func orUnknown(msg string) string {
	if msg == "" {
		return "unknown error"
	}
	return msg
}
