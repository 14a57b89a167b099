// Package requests talks to the media-request service through a selected
// endpoint.
package requests

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/vietddude/librarian/internal/core/config"
	"github.com/vietddude/librarian/internal/infra/gateway"
	"github.com/vietddude/librarian/internal/maintenance/metrics"
)

var (
	// ErrDisabled is returned when the integration is turned off.
	ErrDisabled = errors.New("request integration is disabled")

	// ErrUnavailable is returned when no configured server answers its probe.
	ErrUnavailable = errors.New("no request server reachable")

	// ErrInvalidQuery is returned for a blank search query.
	ErrInvalidQuery = errors.New("query is required")
)

const apiPrefix = "/api/v1"

// invalidator is implemented by selectors that cache their choice.
type invalidator interface {
	Invalidate(ctx context.Context, urls []string)
}

// Client is a media-request service client.
type Client struct {
	cfg      config.EndpointConfig
	selector gateway.EndpointSelector
	gw       *gateway.Gateway
	log      *slog.Logger
}

// NewClient creates a client. Calls are only attempted when cfg is enabled.
func NewClient(cfg config.EndpointConfig, selector gateway.EndpointSelector, gw *gateway.Gateway) *Client {
	return &Client{
		cfg:      cfg,
		selector: selector,
		gw:       gw,
		log:      slog.Default().With("component", "requests"),
	}
}

// Enabled reports whether the integration is turned on.
func (c *Client) Enabled() bool {
	return c.cfg.Enabled
}

// Status returns the base URL of the first reachable server.
func (c *Client) Status(ctx context.Context) (string, error) {
	return c.workingURL(ctx)
}

// Search forwards a search and returns the provider JSON unchanged.
func (c *Client) Search(ctx context.Context, query string, page int) (json.RawMessage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrInvalidQuery
	}
	if page < 1 {
		page = 1
	}

	base, err := c.workingURL(ctx)
	if err != nil {
		return nil, err
	}

	// spaces must be %20, the provider rejects '+'
	raw := "query=" + strings.ReplaceAll(url.QueryEscape(query), "+", "%20") + "&page=" + strconv.Itoa(page)
	return c.call(ctx, gateway.Request{
		BaseURL:  base,
		Path:     apiPrefix + "/search",
		RawQuery: raw,
	})
}

// Details returns provider details for a movie or tv id.
func (c *Client) Details(ctx context.Context, mediaType string, mediaID int) (json.RawMessage, error) {
	base, err := c.workingURL(ctx)
	if err != nil {
		return nil, err
	}
	return c.call(ctx, gateway.Request{
		BaseURL: base,
		Path:    fmt.Sprintf("%s/%s/%d", apiPrefix, url.PathEscape(mediaType), mediaID),
	})
}

type submitPayload struct {
	MediaType string `json:"mediaType"`
	MediaID   int    `json:"mediaId"`
	UserID    string `json:"userId"`
}

// Submit files a request on behalf of userID. It is never retried.
func (c *Client) Submit(ctx context.Context, userID, mediaType string, mediaID int) (json.RawMessage, error) {
	base, err := c.workingURL(ctx)
	if err != nil {
		return nil, err
	}
	return c.call(ctx, gateway.Request{
		BaseURL: base,
		Path:    apiPrefix + "/request",
		Method:  http.MethodPost,
		Body: submitPayload{
			MediaType: mediaType,
			MediaID:   mediaID,
			UserID:    userID,
		},
	})
}

func (c *Client) workingURL(ctx context.Context) (string, error) {
	if !c.cfg.Enabled {
		return "", ErrDisabled
	}
	if !c.cfg.Reachable() {
		metrics.EndpointSelections.WithLabelValues("requests", "none").Inc()
		return "", ErrUnavailable
	}

	base, ok := c.selector.SelectWorking(ctx, c.cfg.URLs)
	if !ok {
		metrics.EndpointSelections.WithLabelValues("requests", "none").Inc()
		c.log.Warn("No request server reachable", "candidates", len(c.cfg.URLs))
		return "", ErrUnavailable
	}
	metrics.EndpointSelections.WithLabelValues("requests", "selected").Inc()
	return base, nil
}

func (c *Client) call(ctx context.Context, req gateway.Request) (json.RawMessage, error) {
	resp, err := c.gw.Call(ctx, req)
	if err != nil {
		var se *gateway.StatusError
		if !errors.As(err, &se) {
			// transport failure: the cached endpoint may be gone
			if inv, ok := c.selector.(invalidator); ok {
				inv.Invalidate(ctx, c.cfg.URLs)
			}
		}
		return nil, err
	}
	return json.RawMessage(resp.Body), nil
}
