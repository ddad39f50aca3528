package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ErrProvider wraps every failure talking to the transcription provider:
// transport faults, rejected credentials and malformed responses alike.
var ErrProvider = errors.New("transcription provider error")

const (
	uploadPath     = "/v2/upload"
	transcriptPath = "/v2/transcript"
)

// Client talks to an AssemblyAI compatible transcription API
type Client struct {
	config     Config
	httpClient *http.Client

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	uploadedBytes   uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// Config contains transcription client configuration
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration // 0 disables
}

// JobReference identifies a transcript job owned by the provider
type JobReference struct {
	ID       string `json:"id"`
	AudioURL string `json:"audio_url"`
	Status   string `json:"status"`
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptRequest struct {
	AudioURL string `json:"audio_url"`
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	UploadedBytes   uint64        `json:"uploaded_bytes"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

// NewClient creates a new transcription HTTP client
func NewClient(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	config.Endpoint = strings.TrimRight(config.Endpoint, "/")

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
	}, nil
}

// Upload streams raw audio bytes to the provider and returns the hosted URL
func (c *Client) Upload(ctx context.Context, audio io.Reader) (string, error) {
	counted := &countingReader{r: audio}

	var resp uploadResponse
	if err := c.do(ctx, uploadPath, "application/octet-stream", counted, &resp); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}

	c.mu.Lock()
	c.uploadedBytes += uint64(counted.n)
	c.mu.Unlock()

	if resp.UploadURL == "" {
		return "", fmt.Errorf("%w: upload: response has no upload_url", ErrProvider)
	}
	return resp.UploadURL, nil
}

// CreateTranscript requests a transcript for audioURL and returns the job reference
func (c *Client) CreateTranscript(ctx context.Context, audioURL string) (*JobReference, error) {
	body, err := json.Marshal(transcriptRequest{AudioURL: audioURL})
	if err != nil {
		return nil, fmt.Errorf("failed to encode transcript request: %w", err)
	}

	var job JobReference
	if err := c.do(ctx, transcriptPath, "application/json", bytes.NewReader(body), &job); err != nil {
		return nil, fmt.Errorf("create transcript: %w", err)
	}

	if job.ID == "" {
		return nil, fmt.Errorf("%w: create transcript: response has no id", ErrProvider)
	}
	if job.AudioURL == "" {
		job.AudioURL = audioURL
	}
	return &job, nil
}

// do performs a single POST and decodes the JSON reply into out
func (c *Client) do(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	startTime := time.Now()
	c.incrementTotalRequests()

	err := c.doRequest(ctx, path, contentType, body, out)
	if err != nil {
		c.incrementFailedRequests()
		return err
	}

	c.incrementSuccessRequests()
	c.updateAvgResponseTime(time.Since(startTime))
	return nil
}

func (c *Client) doRequest(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint+path, body)
	if err != nil {
		return fmt.Errorf("%w: failed to create HTTP request: %v", ErrProvider, err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Authorization", c.config.APIKey)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "Audio-Upload-Service/1.0")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: HTTP request failed: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response body: %v", ErrProvider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: HTTP error %d: %s", ErrProvider, resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: failed to parse response JSON: %v", ErrProvider, err)
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		UploadedBytes:   c.uploadedBytes,
		AvgResponseTime: c.avgResponseTime,
	}
}
