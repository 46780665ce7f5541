package platform

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

	"github.com/showrunner-io/showrunner/pkg/config"
	"github.com/showrunner-io/showrunner/pkg/metrics"
)

// HTTPRenderer talks to the video rendering sidecar. Renders are slow
// and synchronous; the client timeout bounds one whole render.
type HTTPRenderer struct {
	baseURL string
	token   string
	hc      *http.Client
}

// NewHTTPRenderer builds a renderer client from configuration.
func NewHTTPRenderer(cfg *config.RendererConfig, token string) (*HTTPRenderer, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, errors.New("renderer base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return &HTTPRenderer{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		token:   token,
		hc:      &http.Client{Timeout: timeout},
	}, nil
}

// Render submits a script and blocks until the sidecar reports the
// rendered video's path.
func (r *HTTPRenderer) Render(ctx context.Context, renderReq RenderRequest) (*RenderResult, error) {
	if strings.TrimSpace(renderReq.Script) == "" {
		return nil, errors.New("render script is empty")
	}

	payload, err := json.Marshal(renderReq)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/render", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.hc.Do(req)
	if err != nil {
		metrics.PlatformCalls.WithLabelValues("renderer", "render", "error").Inc()
		return nil, fmt.Errorf("renderer: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.PlatformCalls.WithLabelValues("renderer", "render", "error").Inc()
		return nil, fmt.Errorf("renderer: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.PlatformCalls.WithLabelValues("renderer", "render", "error").Inc()
		return nil, fmt.Errorf("renderer: status %d: %s", resp.StatusCode, errorSnippet(body))
	}

	var out RenderResult
	if err := json.Unmarshal(body, &out); err != nil {
		metrics.PlatformCalls.WithLabelValues("renderer", "render", "error").Inc()
		return nil, fmt.Errorf("renderer: decoding response: %w", err)
	}
	if out.VideoPath == "" {
		metrics.PlatformCalls.WithLabelValues("renderer", "render", "error").Inc()
		return nil, errors.New("renderer: response missing video path")
	}

	metrics.PlatformCalls.WithLabelValues("renderer", "render", "ok").Inc()
	return &out, nil
}
