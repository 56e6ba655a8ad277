package litellm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Endpoint describes one model endpoint in the proxy's health report.
type Endpoint struct {
	Model   string `json:"model"`
	APIBase string `json:"api_base,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthReport is the proxy's per-endpoint health breakdown. The sage
// models can degrade independently, so the counts matter more than a
// single up/down bit.
type HealthReport struct {
	HealthyEndpoints   []Endpoint `json:"healthy_endpoints"`
	UnhealthyEndpoints []Endpoint `json:"unhealthy_endpoints"`
	HealthyCount       int        `json:"healthy_count"`
	UnhealthyCount     int        `json:"unhealthy_count"`
}

// HealthDetailed fetches the proxy's per-endpoint health report.
func (c *Client) HealthDetailed(ctx context.Context) (*HealthReport, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("health API error %d: %s", resp.StatusCode, string(data))
	}

	var report HealthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode health report: %w", err)
	}
	return &report, nil
}
