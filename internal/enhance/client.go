package enhance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Options configures the HTTP enhancement client.
type Options struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client calls a hosted image-edit model over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	model      string
}

var _ Enhancer = (*Client)(nil)

// NewClient builds a client. Missing options fall back to defaults; the API
// key is validated at call time so the service can boot without one.
func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://api.pixelstage.dev/v1"
	}
	model := opts.Model
	if model == "" {
		model = "image-edit-large"
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 90 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Client{
		httpClient: client,
		baseURL:    base,
		token:      strings.TrimSpace(opts.APIKey),
		model:      model,
	}
}

type editRequest struct {
	Model        string `json:"model"`
	Image        string `json:"image"`
	Preset       string `json:"preset,omitempty"`
	Instructions string `json:"instructions,omitempty"`
	RequestID    string `json:"request_id,omitempty"`
}

type editResponse struct {
	Output struct {
		URL    string `json:"url"`
		Format string `json:"format"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	} `json:"output"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Enhance submits the edit and waits for the result. Provider and transport
// failures both come back as errors with the upstream detail preserved.
func (c *Client) Enhance(ctx context.Context, req Request) (*Result, error) {
	if c.token == "" {
		return nil, errors.New("enhance: API key is missing")
	}
	source := strings.TrimSpace(req.SourceURL)
	if source == "" {
		return nil, errors.New("enhance: source url required")
	}

	body, err := json.Marshal(editRequest{
		Model:        c.model,
		Image:        source,
		Preset:       req.Preset,
		Instructions: req.Instructions,
		RequestID:    req.WorkID,
	})
	if err != nil {
		return nil, fmt.Errorf("enhance: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/edits", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("enhance: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("enhance: call provider: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("enhance: read response: %w", err)
	}

	var decoded editResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("enhance: decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := decoded.Message
		if msg == "" {
			msg = strings.TrimSpace(string(payload))
		}
		return nil, fmt.Errorf("enhance: provider status %d code %q: %s", resp.StatusCode, decoded.Code, msg)
	}
	if decoded.Output.URL == "" {
		return nil, fmt.Errorf("enhance: provider returned no output (code %q: %s)", decoded.Code, decoded.Message)
	}

	return &Result{
		OutputURL: decoded.Output.URL,
		Format:    decoded.Output.Format,
		Width:     decoded.Output.Width,
		Height:    decoded.Output.Height,
	}, nil
}
