// Package gateway locates a reachable endpoint among configured candidates and
// performs bounded calls against it.
//
// This package contains:
//   - Selector: ordered or concurrent endpoint probing
//   - CachedSelector: selector wrapped with a TTL endpoint cache
//   - Gateway: per-call timeout, API key, rate limit and typed status errors
//   - Monitor: per-endpoint latency and throttle tracking
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultProbeTimeout bounds a single probe when none is configured.
const DefaultProbeTimeout = 5 * time.Second

// EndpointSelector returns the first reachable base URL among candidates.
type EndpointSelector interface {
	SelectWorking(ctx context.Context, urls []string) (string, bool)
}

// Selector probes candidates with a Prober.
type Selector struct {
	prober       Prober
	probeTimeout time.Duration
	logger       *slog.Logger
}

// NewSelector creates a selector. A non-positive timeout uses DefaultProbeTimeout.
func NewSelector(prober Prober, probeTimeout time.Duration) *Selector {
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	return &Selector{
		prober:       prober,
		probeTimeout: probeTimeout,
		logger:       slog.Default().With("component", "selector"),
	}
}

// SelectWorking probes candidates in order and returns the first reachable one
// with trailing slashes removed. Blank candidates are skipped.
func (s *Selector) SelectWorking(ctx context.Context, urls []string) (string, bool) {
	for _, raw := range urls {
		if ctx.Err() != nil {
			return "", false
		}
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if s.probe(ctx, raw) {
			return normalize(raw), true
		}
	}
	return "", false
}

var errFound = errors.New("endpoint found")

// SelectConcurrent probes all candidates at once. The first success wins and
// cancels the remaining probes, so the result is not necessarily the first
// candidate in order.
func (s *Selector) SelectConcurrent(ctx context.Context, urls []string) (string, bool) {
	g, gctx := errgroup.WithContext(ctx)

	var (
		once   sync.Once
		winner string
	)
	for _, raw := range urls {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		raw := raw
		g.Go(func() error {
			if !s.probe(gctx, raw) {
				return nil
			}
			once.Do(func() { winner = normalize(raw) })
			return errFound
		})
	}

	if err := g.Wait(); errors.Is(err, errFound) {
		return winner, true
	}
	return "", false
}

func (s *Selector) probe(ctx context.Context, raw string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()

	start := time.Now()
	if err := s.prober.Probe(probeCtx, raw); err != nil {
		s.logger.Debug("Endpoint probe failed", "url", raw, "error", err)
		return false
	}
	s.logger.Debug("Endpoint reachable", "url", raw, "latency", time.Since(start))
	return true
}

func normalize(raw string) string {
	return strings.TrimRight(strings.TrimSpace(raw), "/")
}
