package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"
)

// ErrUpstreamUnavailable marks the inference service as unreachable.
// Callers recover by falling back to cached or placeholder data; it is
// never a fatal condition for the dashboard.
var ErrUpstreamUnavailable = errors.New("inference service unavailable")

// Prediction is one classification result from the remote CNN service.
type Prediction struct {
	PredictedClass string             `json:"predicted_class"`
	Confidence     float64            `json:"confidence"`
	NDVIMean       float64            `json:"ndvi_mean"`
	Probabilities  []ClassProbability `json:"probabilities"`
	Metadata       ProcessingMetadata `json:"processing_metadata"`
	Filename       string             `json:"filename,omitempty"`
	Error          string             `json:"error,omitempty"`
}

// ClassProbability is one class score of a prediction.
type ClassProbability struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// ProcessingMetadata describes how the upstream processed an image.
type ProcessingMetadata struct {
	FileSizeBytes         int64   `json:"file_size_bytes"`
	ProcessingTimeSeconds float64 `json:"processing_time_seconds"`
	ImageDimensions       string  `json:"image_dimensions"`
	FileType              string  `json:"file_type"`
	ModelVersion          string  `json:"model_version"`
}

// BatchResult is the outcome of a multi-image classification.
type BatchResult struct {
	Results    []Prediction `json:"results"`
	Total      int          `json:"total"`
	Successful int          `json:"successful"`
}

// SystemHealth is the upstream service health report.
type SystemHealth struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	UptimeHuman   string  `json:"uptime_human"`
	ModelVersion  string  `json:"model_version"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskPercent   float64 `json:"disk_percent"`
}

// MonitoredRegion is one satellite-monitored region summary.
type MonitoredRegion struct {
	Name          string   `json:"name"`
	AverageNDVI   *float64 `json:"average_ndvi"`
	AverageNDWI   *float64 `json:"average_ndwi"`
	RiskLevel     string   `json:"risk_level"`
	LastProcessed *string  `json:"last_processed"`
	Latitude      float64  `json:"latitude"`
	Longitude     float64  `json:"longitude"`
}

// AdminUser is one account row from the admin endpoint.
type AdminUser struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	Uploads int    `json:"uploads"`
}

// File names an image payload for batch classification.
type File struct {
	Name string
	Data io.Reader
}

// Client is a typed HTTP client for the remote GSIS inference service.
// Non-2xx responses and transport failures surface as errors; cached
// variants fall back to the last good payload.
type Client struct {
	base   string
	http   *http.Client
	logger *slog.Logger
	cache  Cache
}

// NewClient builds a client for the service at base.
func NewClient(base string, timeout time.Duration, logger *slog.Logger, cache Cache) *Client {
	return &Client{
		base:   base,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
		cache:  cache,
	}
}

// Predict classifies one image.
func (c *Client) Predict(ctx context.Context, filename string, image io.Reader) (*Prediction, error) {
	var out Prediction
	if err := c.postMultipart(ctx, "/predict", "file", []File{{Name: filename, Data: image}}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BatchPredict classifies multiple images in one request.
func (c *Client) BatchPredict(ctx context.Context, files []File) (*BatchResult, error) {
	var out BatchResult
	if err := c.postMultipart(ctx, "/batch-predict", "files", files, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SystemHealth fetches the upstream health report. The stale result is
// true when the upstream was unreachable and the payload came from cache.
func (c *Client) SystemHealth(ctx context.Context) (*SystemHealth, bool, error) {
	var out SystemHealth
	stale, err := c.getJSONCached(ctx, "/system-health", "system-health", &out)
	if err != nil {
		return nil, false, err
	}
	return &out, stale, nil
}

// Stats fetches aggregate platform statistics.
func (c *Client) Stats(ctx context.Context) (map[string]any, bool, error) {
	var out map[string]any
	stale, err := c.getJSONCached(ctx, "/stats", "stats", &out)
	if err != nil {
		return nil, false, err
	}
	return out, stale, nil
}

// Regions fetches the monitored-region summaries.
func (c *Client) Regions(ctx context.Context) ([]MonitoredRegion, bool, error) {
	var out []MonitoredRegion
	stale, err := c.getJSONCached(ctx, "/dashboard/regions", "regions", &out)
	if err != nil {
		return nil, false, err
	}
	return out, stale, nil
}

// AdminUsers fetches the account list. Admin scope is enforced upstream;
// the dashboard's role gate is advisory only.
func (c *Client) AdminUsers(ctx context.Context) ([]AdminUser, error) {
	var out []AdminUser
	if err := c.getJSON(ctx, "/admin/users", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	return c.do(req, out)
}

// getJSONCached fetches path, caching the raw payload on success. When the
// upstream is unreachable it serves the cached payload and reports stale.
func (c *Client) getJSONCached(ctx context.Context, path, cacheKey string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build request: %w", err)
	}

	body, err := c.doRaw(req)
	if err != nil {
		if c.cache != nil && errors.Is(err, ErrUpstreamUnavailable) {
			if cached, ok := c.cache.Get(ctx, cacheKey); ok {
				c.logger.Warn("serving cached inference payload", "path", path, "error", err)
				if uerr := json.Unmarshal(cached, out); uerr == nil {
					return true, nil
				}
			}
		}
		return false, err
	}

	if c.cache != nil {
		c.cache.Set(ctx, cacheKey, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return false, nil
}

func (c *Client) postMultipart(ctx context.Context, path, field string, files []File, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := mw.CreateFormFile(field, f.Name)
		if err != nil {
			return fmt.Errorf("failed to build multipart body: %w", err)
		}
		if _, err := io.Copy(part, f.Data); err != nil {
			return fmt.Errorf("failed to read image %s: %w", f.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, &buf)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	body, err := c.doRaw(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", req.URL.Path, err)
	}
	return nil
}

func (c *Client) doRaw(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUpstreamUnavailable, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: upstream returned %d", ErrUpstreamUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var detail struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(body, &detail) == nil && detail.Detail != "" {
			return nil, fmt.Errorf("inference request failed: %s", detail.Detail)
		}
		return nil, fmt.Errorf("inference request failed with status %d", resp.StatusCode)
	}
	return body, nil
}
