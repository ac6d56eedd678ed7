package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/lioth/strataforge/internal/config"
)

// Reasoning models leak their scratchpad as <think> blocks, and some
// Chinese models use <思考>. Neither belongs in a dataset row.
var (
	thinkTagPattern    = regexp.MustCompile(`(?is)<think(?:ing)?>.*?</think(?:ing)?>`)
	cjkThinkTagPattern = regexp.MustCompile(`(?is)<思考>.*?</思考>`)
)

// Client performs generation calls against an Ollama-style endpoint.
//
// The client never retries. Each Generate is exactly one HTTP request, and
// every failure comes back as a classified *GenerationError; retry and
// degradation decisions belong to the scheduler, which sees the whole run,
// not to the transport layer.
type Client struct {
	httpClient       *http.Client
	pacer            *callPacer
	logger           *slog.Logger
	baseURL          string
	model            string
	apiKey           string
	callTimeout      time.Duration
	minResponseChars int
}

// NewClient creates a client bound to the configured endpoint
func NewClient(cfg config.EndpointConfig, secrets *config.Secrets, logger *slog.Logger) *Client {
	return &Client{
		httpClient:       &http.Client{},
		pacer:            newCallPacer(cfg.RateLimitPerMinute, cfg.BurstPercent),
		logger:           logger,
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		model:            cfg.Model,
		apiKey:           secrets.APIKey,
		callTimeout:      time.Duration(cfg.TimeoutSeconds) * time.Second,
		minResponseChars: cfg.MinResponseChars,
	}
}

// Model returns the configured model name, for result metadata.
func (c *Client) Model() string {
	return c.model
}

// Generate requests one example for the given prompt and returns the cleaned
// response text. The rate limiter wait happens before the call and honors
// cancellation; the per-call timeout starts after the wait so a long queue
// does not eat into the request budget.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait failed: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	start := time.Now()
	text, err := c.doRequest(callCtx, ctx, GenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", err
	}

	c.logger.Debug("Generation call completed",
		"model", c.model,
		"duration", time.Since(start),
		"response_chars", len(text))
	return text, nil
}

// doRequest issues the HTTP call and classifies every failure. parentCtx is
// consulted to tell run cancellation apart from a per-call timeout.
func (c *Client) doRequest(ctx, parentCtx context.Context, req GenerateRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := c.baseURL + "/api/generate"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if parentCtx.Err() != nil {
			// Run-level cancellation, not a call failure
			return "", fmt.Errorf("generation call aborted: %w", parentCtx.Err())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &GenerationError{
				Kind:    KindTimeout,
				Message: fmt.Sprintf("no response within %s", c.callTimeout),
				Err:     err,
			}
		}
		return "", &GenerationError{
			Kind:    KindFatalClient,
			Message: fmt.Sprintf("request failed: %v", err),
			Err:     err,
		}
	}
	defer func() {
		if err := httpResp.Body.Close(); err != nil {
			c.logger.Warn("Failed to close response body", "error", err)
		}
	}()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		if parentCtx.Err() != nil {
			return "", fmt.Errorf("generation call aborted: %w", parentCtx.Err())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &GenerationError{
				Kind:    KindTimeout,
				Message: fmt.Sprintf("response body not read within %s", c.callTimeout),
				Err:     err,
			}
		}
		return "", &GenerationError{
			Kind:    KindFatalClient,
			Message: fmt.Sprintf("failed to read response: %v", err),
			Err:     err,
		}
	}

	if httpResp.StatusCode != http.StatusOK {
		return "", c.classifyStatus(httpResp.StatusCode, respBody)
	}

	var resp GenerateResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", &GenerationError{
			Kind:    KindInvalidResponse,
			Message: fmt.Sprintf("failed to parse response: %v", err),
			Err:     err,
		}
	}

	text := cleanResponse(resp.Response)
	if len([]rune(text)) < c.minResponseChars {
		return "", &GenerationError{
			Kind:    KindInvalidResponse,
			Message: fmt.Sprintf("response too short after cleanup (%d chars, need %d)", len([]rune(text)), c.minResponseChars),
		}
	}
	return text, nil
}

func (c *Client) classifyStatus(statusCode int, respBody []byte) *GenerationError {
	message := fmt.Sprintf("endpoint returned status %d", statusCode)
	var errResp ErrorResponse
	if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
		message = errResp.Error
	}

	kind := KindFatalClient
	switch {
	case statusCode == http.StatusTooManyRequests:
		kind = KindRateLimited
	case statusCode == http.StatusInternalServerError,
		statusCode == http.StatusBadGateway,
		statusCode == http.StatusServiceUnavailable,
		statusCode == http.StatusGatewayTimeout:
		kind = KindTransientServer
	}

	return &GenerationError{
		Kind:       kind,
		Message:    message,
		StatusCode: statusCode,
	}
}

// cleanResponse strips reasoning scratchpad blocks, double quotes, and
// surrounding whitespace from the raw model output. Models often wrap short
// examples in quotation marks; the dataset wants the bare text. A response
// that is nothing but scratchpad cleans down to empty and fails the length
// check in the caller.
func cleanResponse(raw string) string {
	text := thinkTagPattern.ReplaceAllString(raw, "")
	text = cjkThinkTagPattern.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, `"`, "")
	return strings.TrimSpace(text)
}

// Ping verifies the endpoint is reachable before a run starts, using the
// Ollama tags listing as a health probe.
func (c *Client) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(pingCtx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("endpoint %s is unreachable: %w", c.baseURL, err)
	}
	defer func() {
		if err := httpResp.Body.Close(); err != nil {
			c.logger.Warn("Failed to close response body", "error", err)
		}
	}()
	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("endpoint %s health check returned status %d", c.baseURL, httpResp.StatusCode)
	}
	return nil
}
