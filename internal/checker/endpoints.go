package checker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hazz-dev/shipcheck/internal/config"
)

// maxBodyRead bounds how much of a response body is drained per probe.
const maxBodyRead = 1 << 20

// EndpointResult records one endpoint probe.
type EndpointResult struct {
	Endpoint      string  `json:"endpoint"`
	URL           string  `json:"url"`
	StatusCode    int     `json:"status_code,omitempty"`
	LatencyMs     float64 `json:"latency_ms"`
	Reachable     bool    `json:"reachable"`
	ContentLength int64   `json:"content_length,omitempty"`
	Error         string  `json:"error,omitempty"`
}

type endpointChecker struct {
	api    config.API
	client *http.Client
}

// NewEndpointChecker probes every configured endpoint once with a GET.
func NewEndpointChecker(api config.API) Checker {
	return &endpointChecker{
		api:    api,
		client: &http.Client{Timeout: api.Timeout.Duration},
	}
}

// NewEndpointCheckerWithClient creates an endpoint checker with a custom client (for testing).
func NewEndpointCheckerWithClient(api config.API, client *http.Client) Checker {
	return &endpointChecker{api: api, client: client}
}

func (c *endpointChecker) Name() string { return NameAPIEndpoints }

func (c *endpointChecker) Check(ctx context.Context) CheckResult {
	result, start := begin(NameAPIEndpoints)

	probes := make([]EndpointResult, 0, len(c.api.Endpoints))
	failed := []string{}
	for _, ep := range c.api.Endpoints {
		p := c.probe(ctx, ep)
		if !p.Reachable {
			failed = append(failed, ep)
		}
		probes = append(probes, p)
	}

	result.Details["base_url"] = c.api.BaseURL
	result.Details["timeout_ms"] = c.api.Timeout.Milliseconds()
	result.Details["endpoints"] = probes
	result.Details["failed_endpoints"] = failed
	result.Details["total_endpoints_tested"] = len(probes)
	result.Details["successful_count"] = len(probes) - len(failed)
	result.Details["failed_count"] = len(failed)

	if len(failed) > 0 {
		result.Status = StatusFail
		result.Summary = fmt.Sprintf("%d endpoints failed: %v", len(failed), failed)
	} else {
		result.Status = StatusPass
		result.Summary = fmt.Sprintf("All %d endpoints accessible", len(probes))
	}
	result.Duration = time.Since(start)
	return result
}

func (c *endpointChecker) probe(ctx context.Context, endpoint string) EndpointResult {
	p := EndpointResult{Endpoint: endpoint, URL: joinURL(c.api.BaseURL, endpoint)}

	if c.api.Timeout.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.api.Timeout.Duration)
		defer cancel()
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		p.Error = fmt.Sprintf("creating request: %v", err)
		return p
	}
	for k, v := range c.api.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		p.LatencyMs = millis(time.Since(start))
		p.Error = err.Error()
		return p
	}
	n, _ := io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyRead))
	resp.Body.Close()
	p.LatencyMs = millis(time.Since(start))

	p.StatusCode = resp.StatusCode
	p.ContentLength = n
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		p.Error = fmt.Sprintf("expected 2xx status, got %d", resp.StatusCode)
		return p
	}
	p.Reachable = true
	return p
}

// joinURL appends endpoint to base with exactly one slash between them.
// Absolute endpoint URLs are used as-is.
func joinURL(base, endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if endpoint == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(endpoint, "/")
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
