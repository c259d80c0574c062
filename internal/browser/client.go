package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Viewport is the pixel size the page is rendered at.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DefaultViewport matches a common mobile device profile.
var DefaultViewport = Viewport{Width: 390, Height: 844}

// Client renders HTML markup to PNG screenshots via the headless browser
// service's REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// ClientConfig holds configuration for the screenshot client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	Token   string // Optional auth token for the browser service
}

// NewClient creates a new screenshot client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:" + DefaultPort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		token:      cfg.Token,
	}
}

// screenshotRequest is the browser service's screenshot payload.
type screenshotRequest struct {
	HTML     string            `json:"html"`
	Viewport *Viewport         `json:"viewport,omitempty"`
	Options  screenshotOptions `json:"options"`
}

type screenshotOptions struct {
	Type     string `json:"type"`
	FullPage bool   `json:"fullPage"`
}

// Render rasterizes the given HTML markup at the given viewport and returns
// PNG image bytes. A zero viewport falls back to DefaultViewport.
func (c *Client) Render(ctx context.Context, markup string, vp Viewport) ([]byte, error) {
	if vp.Width <= 0 || vp.Height <= 0 {
		vp = DefaultViewport
	}

	payload := screenshotRequest{
		HTML:     markup,
		Viewport: &vp,
		Options:  screenshotOptions{Type: "png", FullPage: true},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal screenshot request: %w", err)
	}

	url := c.baseURL + "/screenshot"
	if c.token != "" {
		url += "?token=" + c.token
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("screenshot request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("screenshot failed with status %d: %s", resp.StatusCode, string(errBody))
	}

	img, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read screenshot: %w", err)
	}
	if len(img) == 0 {
		return nil, fmt.Errorf("screenshot response was empty")
	}

	return img, nil
}

// HealthCheck verifies the browser service is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/json/version", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("browser service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("browser service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
