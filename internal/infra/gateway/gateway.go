package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/vietddude/librarian/internal/maintenance/metrics"
)

// DefaultTimeout bounds a call when none is configured.
const DefaultTimeout = 30 * time.Second

const maxResponseBody = 16 << 20

// Options configures a Gateway.
type Options struct {
	// Name labels metrics and logs, e.g. "requests" or "listings".
	Name      string
	APIKey    string
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 = unlimited
	Client    *http.Client
	Monitor   *Monitor
	UserAgent string
}

// Request describes one call against a selected endpoint.
type Request struct {
	BaseURL  string
	Path     string
	Method   string
	Query    url.Values
	// RawQuery is used verbatim when set, for providers that reject
	// form-style encoding.
	RawQuery string
	Header   http.Header
	Body     any
}

// Response is a fully read 2xx response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(string(e.Body))
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, body)
}

// Gateway performs bounded calls. It never retries; retry is caller policy.
type Gateway struct {
	name      string
	apiKey    string
	timeout   time.Duration
	client    *http.Client
	limiter   *rate.Limiter
	monitor   *Monitor
	userAgent string
}

// New creates a Gateway from opts.
func New(opts Options) *Gateway {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Client == nil {
		opts.Client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if opts.Monitor == nil {
		opts.Monitor = NewMonitor()
	}
	if opts.Name == "" {
		opts.Name = "default"
	}

	g := &Gateway{
		name:      opts.Name,
		apiKey:    opts.APIKey,
		timeout:   opts.Timeout,
		client:    opts.Client,
		monitor:   opts.Monitor,
		userAgent: opts.UserAgent,
	}
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return g
}

// Monitor returns the endpoint monitor fed by this gateway.
func (g *Gateway) Monitor() *Monitor {
	return g.monitor
}

// Timeout returns the per-call timeout.
func (g *Gateway) Timeout() time.Duration {
	return g.timeout
}

// Call sends req under the gateway timeout and returns the 2xx response.
func (g *Gateway) Call(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	httpReq, err := g.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := g.client.Do(httpReq)
	if err != nil {
		g.monitor.RecordFailure(req.BaseURL)
		metrics.GatewayCalls.WithLabelValues(g.name, "error").Inc()
		return nil, fmt.Errorf("%s %s: %w", httpReq.Method, httpReq.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	latency := time.Since(start)
	metrics.GatewayLatency.WithLabelValues(g.name).Observe(latency.Seconds())
	if err != nil {
		g.monitor.RecordFailure(req.BaseURL)
		metrics.GatewayCalls.WithLabelValues(g.name, "error").Inc()
		return nil, fmt.Errorf("read response: %w", err)
	}

	metrics.GatewayCalls.WithLabelValues(g.name, strconv.Itoa(resp.StatusCode)).Inc()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusForbidden:
		g.monitor.RecordThrottle(req.BaseURL, resp.StatusCode, resp.Header.Get("Retry-After"))
	case resp.StatusCode >= 500:
		g.monitor.RecordFailure(req.BaseURL)
	default:
		g.monitor.RecordRequest(req.BaseURL, latency)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: body}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (g *Gateway) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target := strings.TrimRight(req.BaseURL, "/") + req.Path
	switch {
	case req.RawQuery != "":
		target += "?" + req.RawQuery
	case len(req.Query) > 0:
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if g.apiKey != "" {
		httpReq.Header.Set(APIKeyHeader, g.apiKey)
	}
	if g.userAgent != "" {
		httpReq.Header.Set("User-Agent", g.userAgent)
	}
	return httpReq, nil
}
