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

// HTTPDistributor talks to the video distribution sidecar. One call
// uploads one already-rendered video to one target platform; fan-out
// across platforms is the caller's loop.
type HTTPDistributor struct {
	baseURL   string
	token     string
	platforms []string
	hc        *http.Client
}

// NewHTTPDistributor builds a distributor client from configuration.
func NewHTTPDistributor(cfg *config.DistributorConfig, token string) (*HTTPDistributor, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, errors.New("distributor base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &HTTPDistributor{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		token:     token,
		platforms: append([]string(nil), cfg.Platforms...),
		hc:        &http.Client{Timeout: timeout},
	}, nil
}

// Platforms lists the configured distribution targets.
func (d *HTTPDistributor) Platforms() []string {
	return append([]string(nil), d.platforms...)
}

type distributeRequest struct {
	Platform  string `json:"platform"`
	VideoPath string `json:"video_path"`
	Caption   string `json:"caption,omitempty"`
}

type distributeResponse struct {
	URL string `json:"url"`
	ID  string `json:"id"`
}

// Distribute uploads the video to one platform and returns the
// platform-side URL (or id when the sidecar reports no URL).
func (d *HTTPDistributor) Distribute(ctx context.Context, targetPlatform, videoPath, caption string) (string, error) {
	if targetPlatform == "" {
		return "", errors.New("target platform is required")
	}
	if videoPath == "" {
		return "", errors.New("video path is required")
	}

	payload, err := json.Marshal(distributeRequest{
		Platform:  targetPlatform,
		VideoPath: videoPath,
		Caption:   caption,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/distribute", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.hc.Do(req)
	if err != nil {
		metrics.PlatformCalls.WithLabelValues("distributor", "distribute", "error").Inc()
		return "", fmt.Errorf("distributor %s: %w", targetPlatform, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.PlatformCalls.WithLabelValues("distributor", "distribute", "error").Inc()
		return "", fmt.Errorf("distributor %s: reading response: %w", targetPlatform, err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.PlatformCalls.WithLabelValues("distributor", "distribute", "error").Inc()
		return "", fmt.Errorf("distributor %s: status %d: %s", targetPlatform, resp.StatusCode, errorSnippet(body))
	}

	var out distributeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		metrics.PlatformCalls.WithLabelValues("distributor", "distribute", "error").Inc()
		return "", fmt.Errorf("distributor %s: decoding response: %w", targetPlatform, err)
	}
	if out.URL == "" && out.ID == "" {
		metrics.PlatformCalls.WithLabelValues("distributor", "distribute", "error").Inc()
		return "", fmt.Errorf("distributor %s: response missing url and id", targetPlatform)
	}

	metrics.PlatformCalls.WithLabelValues("distributor", "distribute", "ok").Inc()
	if out.URL != "" {
		return out.URL, nil
	}
	return out.ID, nil
}
