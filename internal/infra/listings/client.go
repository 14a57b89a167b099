// Package listings is the TV listings provider client. It caches the country
// list on disk and respects the provider's daily image quota.
package listings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vietddude/librarian/internal/core/config"
	"github.com/vietddude/librarian/internal/infra/gateway"
	"github.com/vietddude/librarian/internal/infra/quota"
	"github.com/vietddude/librarian/internal/maintenance/metrics"
)

const (
	// CountriesFile is the cache file name under the cache directory.
	CountriesFile = "sd-countries.json"

	// DefaultCountriesTTL is how long the cached country list is served.
	DefaultCountriesTTL = 7 * 24 * time.Hour
)

var (
	// ErrDisabled is returned when the integration is turned off.
	ErrDisabled = errors.New("listings integration is disabled")

	// ErrUnavailable is returned when no configured server answers its probe.
	ErrUnavailable = errors.New("no listings server reachable")

	// ErrImageLimitActive is returned without a network call while the daily
	// image quota is exhausted.
	ErrImageLimitActive = errors.New("daily image download limit reached")

	// ErrLockedOut is returned without a network call during a provider lockout.
	ErrLockedOut = errors.New("provider lockout active")
)

// Client is a listings provider client.
type Client struct {
	cfg      config.ListingsConfig
	cacheDir string
	selector gateway.EndpointSelector
	gw       *gateway.Gateway
	state    *quota.State
	now      func() time.Time
	log      *slog.Logger
}

// NewClient creates a client sharing state with every other client of the
// same provider account.
func NewClient(
	cfg config.ListingsConfig,
	cacheDir string,
	selector gateway.EndpointSelector,
	gw *gateway.Gateway,
	state *quota.State,
) *Client {
	if cfg.CountriesTTL <= 0 {
		cfg.CountriesTTL = DefaultCountriesTTL
	}
	return &Client{
		cfg:      cfg,
		cacheDir: cacheDir,
		selector: selector,
		gw:       gw,
		state:    state,
		now:      time.Now,
		log:      slog.Default().With("component", "listings"),
	}
}

// IsImageDailyLimitActive reports the quota flag without touching the network.
func (c *Client) IsImageDailyLimitActive() bool {
	return c.state.IsImageDailyLimitActive()
}

// ImageLimitResetsAt returns when the image limit clears, zero if inactive.
func (c *Client) ImageLimitResetsAt() time.Time {
	return c.state.ImageLimitResetsAt()
}

// CountriesPath returns the country cache file location.
func (c *Client) CountriesPath() string {
	return filepath.Join(c.cacheDir, CountriesFile)
}

// GetAvailableCountries returns the provider's country list. A cached copy
// younger than the TTL is served directly; an older one is used when the
// provider cannot be reached.
func (c *Client) GetAvailableCountries(ctx context.Context) ([]byte, error) {
	path := c.CountriesPath()

	cached, modTime, cacheErr := readCache(path)
	if cacheErr == nil && c.now().Sub(modTime) < c.cfg.CountriesTTL {
		return cached, nil
	}

	body, err := c.get(ctx, "/available/countries")
	if err != nil {
		if cacheErr == nil {
			c.log.Warn("Serving stale country list", "path", path, "error", err)
			return cached, nil
		}
		return nil, err
	}

	if err := writeCache(path, body); err != nil {
		c.log.Warn("Failed to cache country list", "path", path, "error", err)
	}
	return body, nil
}

// FetchImage downloads an image. uri is either absolute or relative to the
// selected server.
func (c *Client) FetchImage(ctx context.Context, uri string) ([]byte, error) {
	if c.state.IsImageDailyLimitActive() {
		return nil, ErrImageLimitActive
	}

	path := uri
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		path = "/image/" + strings.TrimPrefix(uri, "/")
	}
	return c.get(ctx, path)
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	if err := c.checkEnabled(); err != nil {
		return nil, err
	}
	if until := c.state.LockedOutUntil(); !until.IsZero() {
		return nil, fmt.Errorf("%w until %s", ErrLockedOut, until.Format(time.RFC3339))
	}

	req := gateway.Request{Path: path}
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		base, err := c.workingURL(ctx)
		if err != nil {
			return nil, err
		}
		req.BaseURL = base
	}

	resp, err := c.gw.Call(ctx, req)
	if err != nil {
		var se *gateway.StatusError
		if errors.As(err, &se) {
			if pe := c.observe(se.Body); pe != nil {
				return nil, fmt.Errorf("%s: %w", path, pe)
			}
		}
		return nil, err
	}

	// the provider reports some errors as JSON with a 200 status
	if isJSON(resp.Header.Get("Content-Type")) {
		if pe := c.observe(resp.Body); pe != nil {
			return nil, fmt.Errorf("%s: %w", path, pe)
		}
	}
	return resp.Body, nil
}

// observe classifies a provider error body and updates the quota state.
func (c *Client) observe(body []byte) *quota.ProviderError {
	pe := quota.ParseError(body)
	if pe == nil {
		return nil
	}
	cat := c.state.Observe(pe.Code)
	metrics.ProviderErrors.WithLabelValues(cat.String()).Inc()
	if cat.IsQuota() {
		c.log.Warn("Provider quota signal", "code", int(pe.Code), "category", cat.String(), "message", pe.Message)
	} else {
		c.log.Error("Provider error", "code", int(pe.Code), "category", cat.String(), "message", pe.Message)
	}
	return pe
}

// checkEnabled applies to every call, absolute image URIs included.
func (c *Client) checkEnabled() error {
	if !c.cfg.Enabled {
		return ErrDisabled
	}
	if !c.cfg.Reachable() {
		return ErrUnavailable
	}
	return nil
}

func (c *Client) workingURL(ctx context.Context) (string, error) {
	base, ok := c.selector.SelectWorking(ctx, c.cfg.URLs)
	if !ok {
		metrics.EndpointSelections.WithLabelValues("listings", "none").Inc()
		return "", ErrUnavailable
	}
	metrics.EndpointSelections.WithLabelValues("listings", "selected").Inc()
	return base, nil
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/json"
}

func readCache(path string) ([]byte, time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	return data, info.ModTime(), nil
}

func writeCache(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".countries-tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
