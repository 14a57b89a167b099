package listings

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/librarian/internal/core/config"
	"github.com/vietddude/librarian/internal/infra/gateway"
	"github.com/vietddude/librarian/internal/infra/quota"
)

type provider struct {
	*httptest.Server
	countryCalls atomic.Int32
	imageCalls   atomic.Int32
	imageBody    string
	imageStatus  int
	imageJSON    bool
	down         atomic.Bool
}

func newProvider(t *testing.T) *provider {
	t.Helper()
	p := &provider{imageStatus: http.StatusOK, imageBody: "JPEGDATA"}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if p.down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})
	mux.HandleFunc("/available/countries", func(w http.ResponseWriter, r *http.Request) {
		p.countryCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"North America":[{"fullName":"Canada","shortName":"CAN"}]}`))
	})
	mux.HandleFunc("/image/", func(w http.ResponseWriter, r *http.Request) {
		p.imageCalls.Add(1)
		switch {
		case p.imageStatus != http.StatusOK:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(p.imageStatus)
		case p.imageJSON:
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
		default:
			w.Header().Set("Content-Type", "image/jpeg")
		}
		_, _ = w.Write([]byte(p.imageBody))
	})
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newClient(t *testing.T, p *provider, clock *fakeClock) (*Client, *quota.State) {
	t.Helper()
	cfg := config.ListingsConfig{
		EndpointConfig: config.EndpointConfig{Enabled: true, URLs: []string{p.URL}},
	}
	state := quota.NewStateWithClock(clock.Now)
	sel := gateway.NewSelector(gateway.NewHTTPProber("/status", ""), time.Second)
	c := NewClient(cfg, t.TempDir(), sel, gateway.New(gateway.Options{Name: "listings", Timeout: time.Second}), state)
	c.now = clock.Now
	return c, state
}

func TestGetAvailableCountries_FileCache(t *testing.T) {
	p := newProvider(t)
	clock := &fakeClock{now: time.Now()}
	c, _ := newClient(t, p, clock)

	body, err := c.GetAvailableCountries(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(body), "Canada")
	assert.FileExists(t, c.CountriesPath())

	_, err = c.GetAvailableCountries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), p.countryCalls.Load(), "fresh cache must be served")

	clock.now = clock.now.Add(8 * 24 * time.Hour)
	_, err = c.GetAvailableCountries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), p.countryCalls.Load(), "expired cache must be refreshed")
}

func TestGetAvailableCountries_StaleFallback(t *testing.T) {
	p := newProvider(t)
	clock := &fakeClock{now: time.Now()}
	c, _ := newClient(t, p, clock)

	require.NoError(t, os.WriteFile(c.CountriesPath(), []byte(`{"cached":true}`), 0o644))
	clock.now = clock.now.Add(30 * 24 * time.Hour)
	p.down.Store(true)

	body, err := c.GetAvailableCountries(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"cached":true}`, string(body))
	assert.Equal(t, int32(0), p.countryCalls.Load())
}

func TestGetAvailableCountries_NoCacheNoServer(t *testing.T) {
	p := newProvider(t)
	p.down.Store(true)
	c, _ := newClient(t, p, &fakeClock{now: time.Now()})

	_, err := c.GetAvailableCountries(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFetchImage_QuotaFlagSetAndHonoured(t *testing.T) {
	p := newProvider(t)
	clock := &fakeClock{now: time.Date(2026, 10, 17, 20, 0, 0, 0, time.UTC)}
	c, state := newClient(t, p, clock)

	img, err := c.FetchImage(context.Background(), "abc.jpg")
	require.NoError(t, err)
	assert.Equal(t, "JPEGDATA", string(img))
	assert.False(t, c.IsImageDailyLimitActive())

	p.imageStatus = http.StatusBadRequest
	p.imageBody = `{"response":"MAX_IMAGE_DOWNLOADS","code":5002,"message":"Maximum image downloads reached."}`

	_, err = c.FetchImage(context.Background(), "abc.jpg")
	var pe *quota.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, quota.CategoryImageQuotaExceeded, pe.Category())
	assert.True(t, c.IsImageDailyLimitActive())
	assert.True(t, state.IsImageDailyLimitActive())
	calls := p.imageCalls.Load()

	// no network call while the flag is set
	_, err = c.FetchImage(context.Background(), "abc.jpg")
	assert.ErrorIs(t, err, ErrImageLimitActive)
	assert.Equal(t, calls, p.imageCalls.Load())

	clock.now = time.Date(2026, 10, 17, 23, 59, 59, 0, time.UTC)
	assert.True(t, c.IsImageDailyLimitActive())

	clock.now = time.Date(2026, 10, 18, 0, 0, 1, 0, time.UTC)
	assert.False(t, c.IsImageDailyLimitActive())
}

func TestFetchImage_ErrorInSuccessfulResponse(t *testing.T) {
	p := newProvider(t)
	c, state := newClient(t, p, &fakeClock{now: time.Now()})

	p.imageJSON = true
	p.imageBody = `{"code":4010,"message":"Temporary lockout"}`

	_, err := c.FetchImage(context.Background(), "x.jpg")
	var pe *quota.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, quota.CategoryLockoutWithCooldown, pe.Category())
	assert.False(t, state.LockedOutUntil().IsZero())

	_, err = c.GetAvailableCountries(context.Background())
	assert.ErrorIs(t, err, ErrLockedOut)
}

func TestDisabled(t *testing.T) {
	c := NewClient(config.ListingsConfig{}, t.TempDir(), nil, gateway.New(gateway.Options{}), quota.NewState())
	_, err := c.GetAvailableCountries(context.Background())
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestFetchImage_AbsoluteURIRespectsConfig(t *testing.T) {
	p := newProvider(t)
	gw := gateway.New(gateway.Options{Name: "listings", Timeout: time.Second})

	disabled := NewClient(config.ListingsConfig{}, t.TempDir(), nil, gw, quota.NewState())
	_, err := disabled.FetchImage(context.Background(), p.URL+"/image/abc.jpg")
	assert.ErrorIs(t, err, ErrDisabled)

	noURLs := NewClient(config.ListingsConfig{
		EndpointConfig: config.EndpointConfig{Enabled: true, URLs: []string{"  "}},
	}, t.TempDir(), nil, gw, quota.NewState())
	_, err = noURLs.FetchImage(context.Background(), p.URL+"/image/abc.jpg")
	assert.ErrorIs(t, err, ErrUnavailable)

	assert.Equal(t, int32(0), p.imageCalls.Load())

	c, _ := newClient(t, p, &fakeClock{now: time.Now()})
	img, err := c.FetchImage(context.Background(), p.URL+"/image/abc.jpg")
	require.NoError(t, err)
	assert.Equal(t, "JPEGDATA", string(img))
	assert.Equal(t, int32(1), p.imageCalls.Load())
}
