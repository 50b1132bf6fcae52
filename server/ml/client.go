package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/san-kum/fencing-cv/server/analysis"
	"github.com/san-kum/fencing-cv/server/pose"
	"go.uber.org/zap"
)

// Client talks to the pose estimation service. It implements
// analysis.PoseEstimator and is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	config     *ClientConfig
	stop       chan struct{}
	stopOnce   sync.Once
}

type ClientConfig struct {
	Timeout             time.Duration
	MaxRetries          int
	RetryDelay          time.Duration
	HealthCheckInterval time.Duration
	JPEGQuality         int
}

func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Timeout:             30 * time.Second,
		MaxRetries:          3,
		RetryDelay:          1 * time.Second,
		HealthCheckInterval: 30 * time.Second,
		JPEGQuality:         90,
	}
}

type PoseRequest struct {
	ImageData []byte `json:"image_data"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Timestamp int64  `json:"timestamp"`
}

type PoseResponse struct {
	Landmarks      []pose.Landmark `json:"landmarks"`
	ProcessingTime float64         `json:"processing_time"`
	ModelVersion   string          `json:"model_version"`
}

// errPermanent marks responses that retrying cannot fix.
type errPermanent struct {
	err error
}

func (e *errPermanent) Error() string { return e.err.Error() }
func (e *errPermanent) Unwrap() error { return e.err }

func NewClient(baseURL string, config *ClientConfig, logger *zap.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("pose service URL is required")
	}
	if config == nil {
		config = DefaultClientConfig()
	}

	client := &Client{
		baseURL: baseURL,
		logger:  logger,
		config:  config,
		stop:    make(chan struct{}),
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:       10,
				IdleConnTimeout:    30 * time.Second,
				DisableCompression: true,
			},
		},
	}

	if err := client.HealthCheck(context.Background()); err != nil {
		logger.Warn("Pose service not available at startup", zap.Error(err))
	}

	if config.HealthCheckInterval > 0 {
		go client.startHealthChecker()
	}

	return client, nil
}

// EstimatePose sends img to the pose service. A 404 or an empty landmark list
// is reported as analysis.ErrNoPoseDetected.
func (c *Client) EstimatePose(ctx context.Context, img image.Image) ([]pose.Landmark, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.config.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	bounds := img.Bounds()
	request := &PoseRequest{
		ImageData: buf.Bytes(),
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		Timestamp: time.Now().UnixMilli(),
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("Retrying pose estimation request",
				zap.Int("attempt", attempt),
				zap.Error(lastErr))

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
		}

		response, err := c.executePoseRequest(ctx, request)
		if err == nil {
			if len(response.Landmarks) == 0 {
				return nil, analysis.ErrNoPoseDetected
			}
			return response.Landmarks, nil
		}

		var permanent *errPermanent
		if errors.Is(err, analysis.ErrNoPoseDetected) || errors.As(err, &permanent) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("pose estimation failed after %d attempts: %w",
		c.config.MaxRetries+1, lastErr)
}

func (c *Client) executePoseRequest(ctx context.Context, request *PoseRequest) (*PoseResponse, error) {
	requestData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/pose", c.baseURL)
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(requestData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("User-Agent", "fencing-stance-analyzer/1.0")

	response, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusNotFound:
		return nil, analysis.ErrNoPoseDetected
	case response.StatusCode >= 400 && response.StatusCode < 500:
		bodyBytes, _ := io.ReadAll(response.Body)
		return nil, &errPermanent{fmt.Errorf("pose service rejected request (status %d): %s",
			response.StatusCode, string(bodyBytes))}
	case response.StatusCode != http.StatusOK:
		bodyBytes, _ := io.ReadAll(response.Body)
		return nil, fmt.Errorf("pose service error (status %d): %s",
			response.StatusCode, string(bodyBytes))
	}

	var poseResponse PoseResponse
	if err := json.NewDecoder(response.Body).Decode(&poseResponse); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("Pose estimated",
		zap.Int("landmarks", len(poseResponse.Landmarks)),
		zap.Float64("processing_time", poseResponse.ProcessingTime),
		zap.String("model_version", poseResponse.ModelVersion))

	return &poseResponse, nil
}

func (c *Client) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/health", c.baseURL)

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("pose service unhealthy (status %d)", response.StatusCode)
	}

	return nil
}

func (c *Client) startHealthChecker() {
	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if err := c.HealthCheck(context.Background()); err != nil {
				c.logger.Error("Pose service health check failed", zap.Error(err))
			} else {
				c.logger.Debug("Pose service health check passed")
			}
		}
	}
}

func (c *Client) GetModelInfo(ctx context.Context) (map[string]interface{}, error) {
	url := fmt.Sprintf("%s/models/info", c.baseURL)

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create model info request: %w", err)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("failed to get model info: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model info request failed (status %d)", response.StatusCode)
	}

	var modelInfo map[string]interface{}
	if err := json.NewDecoder(response.Body).Decode(&modelInfo); err != nil {
		return nil, fmt.Errorf("failed to decode model info: %w", err)
	}

	return modelInfo, nil
}

// Close stops the background health checker.
func (c *Client) Close() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}
