package gateway

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// APIKeyHeader carries the configured API key on every outgoing request.
const APIKeyHeader = "X-Api-Key"

// Prober checks whether a single candidate endpoint is reachable.
type Prober interface {
	Probe(ctx context.Context, baseURL string) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, baseURL string) error

func (f ProberFunc) Probe(ctx context.Context, baseURL string) error {
	return f(ctx, baseURL)
}

// HTTPProber issues a GET against a status path and accepts any 2xx.
type HTTPProber struct {
	Client *http.Client
	Path   string
	APIKey string
}

// NewHTTPProber creates a prober for the given status path.
func NewHTTPProber(path, apiKey string) *HTTPProber {
	return &HTTPProber{
		Client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		Path:   path,
		APIKey: apiKey,
	}
}

func (p *HTTPProber) Probe(ctx context.Context, baseURL string) error {
	target := strings.TrimRight(baseURL, "/") + p.Path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("create probe request: %w", err)
	}
	if p.APIKey != "" {
		req.Header.Set(APIKeyHeader, p.APIKey)
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", target, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("probe %s: http %d", target, resp.StatusCode)
	}
	return nil
}

// GRPCProber uses the standard gRPC health service. Service is the name passed
// to Check; empty means overall server health.
type GRPCProber struct {
	Service string
}

func (p *GRPCProber) Probe(ctx context.Context, baseURL string) error {
	target, opts := grpcTarget(baseURL)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return fmt.Errorf("grpc client %s: %w", target, err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: p.Service})
	if err != nil {
		return fmt.Errorf("grpc health %s: %w", target, err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("grpc health %s: %s", target, resp.GetStatus())
	}
	return nil
}

// grpcTarget strips the scheme and picks transport credentials from it.
func grpcTarget(baseURL string) (string, []grpc.DialOption) {
	target := strings.TrimRight(baseURL, "/")
	if strings.HasPrefix(target, "https://") || strings.HasSuffix(target, ":443") {
		target = strings.TrimPrefix(target, "https://")
		return target, []grpc.DialOption{
			grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})),
		}
	}
	target = strings.TrimPrefix(target, "http://")
	return target, []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
}
