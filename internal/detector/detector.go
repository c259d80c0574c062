// Package detector talks to the visual block-detection inference service and
// turns raw detections into overlap analysis.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/astrofix/astrofix/internal/geometry"
)

const (
	// DefaultConfidenceThreshold filters out low-confidence detections.
	DefaultConfidenceThreshold = 0.5
	// DefaultIoUThreshold is the minimum intersection-over-union for two
	// blocks to count as overlapping.
	DefaultIoUThreshold = 0.1
	// detectAttempts bounds retries of one detection call on transient
	// network or 5xx failures.
	detectAttempts = 3
)

// Config holds detector client configuration.
type Config struct {
	URL                 string
	ConfidenceThreshold float64
	IoUThreshold        float64
	Timeout             time.Duration
}

// Client sends rendered page images to the inference service and computes
// overlap pairs from the returned detections.
type Client struct {
	baseURL             string
	confidenceThreshold float64
	iouThreshold        float64
	httpClient          *http.Client
}

// NewClient creates a detector client.
func NewClient(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = "http://localhost:8400"
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if cfg.IoUThreshold <= 0 {
		cfg.IoUThreshold = DefaultIoUThreshold
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		baseURL:             cfg.URL,
		confidenceThreshold: cfg.ConfidenceThreshold,
		iouThreshold:        cfg.IoUThreshold,
		httpClient:          &http.Client{Timeout: cfg.Timeout},
	}
}

// IoUThreshold returns the configured overlap threshold.
func (c *Client) IoUThreshold() float64 {
	return c.iouThreshold
}

// inferenceResponse is the inference service's detection payload.
type inferenceResponse struct {
	Objects []struct {
		Score    float64    `json:"score"`
		BBox     [4]float64 `json:"bbox"`
		MaskArea float64    `json:"mask_area"`
	} `json:"objects"`
	ImageSize [2]int `json:"image_size"`
}

// Detect sends a PNG image to the inference service and returns the full
// geometry result: detected blocks plus overlap pairs at the configured IoU
// threshold. Detections below the confidence threshold are discarded before
// overlap computation.
func (c *Client) Detect(ctx context.Context, image []byte) (*geometry.Result, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("empty image")
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "page.png")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("failed to write image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	body := buf.Bytes()
	contentType := writer.FormDataContentType()

	// Transient failures retry; client errors and bad payloads do not.
	var parsed inferenceResponse
	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/detect", bytes.NewReader(body))
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
			}
			req.Header.Set("Content-Type", contentType)

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("inference request failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
				reqErr := fmt.Errorf("inference failed with status %d: %s", resp.StatusCode, string(errBody))
				if resp.StatusCode >= 500 {
					return reqErr
				}
				return retry.Unrecoverable(reqErr)
			}

			if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to decode inference response: %w", err))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(detectAttempts),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}

	result := &geometry.Result{
		ImageWidth:  parsed.ImageSize[0],
		ImageHeight: parsed.ImageSize[1],
	}

	id := 0
	for _, obj := range parsed.Objects {
		if obj.Score < c.confidenceThreshold {
			continue
		}
		result.Objects = append(result.Objects, geometry.Object{
			ID:    id,
			Score: obj.Score,
			Box: geometry.Box{
				X1: obj.BBox[0],
				Y1: obj.BBox[1],
				X2: obj.BBox[2],
				Y2: obj.BBox[3],
			},
			MaskArea: int(obj.MaskArea),
		})
		id++
	}

	result.Overlaps = geometry.FindOverlaps(result.Objects, c.iouThreshold)
	return result, nil
}

// HealthCheck verifies the inference service is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("inference service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
