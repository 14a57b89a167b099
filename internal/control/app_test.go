package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/librarian/internal/core/config"
	"github.com/vietddude/librarian/internal/core/domain"
	"github.com/vietddude/librarian/internal/core/ledger"
	"github.com/vietddude/librarian/internal/infra/storage/memory"
)

func testConfig(t *testing.T, extra string) *config.AppConfig {
	t.Helper()
	cache := t.TempDir()
	cfg, err := config.Parse([]byte(fmt.Sprintf(`
maintenance:
  cache_path: %s
  run_at: "03:30"
%s`, cache, extra)))
	require.NoError(t, err)
	cfg.Server.Port = 0
	return cfg
}

func get(t *testing.T, h http.Handler, method, path string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestApp_MemoryLifecycle(t *testing.T) {
	cfg := testConfig(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := NewApp(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, app.store)
	assert.Nil(t, app.db)
	assert.Nil(t, app.redisClient)

	require.NoError(t, app.Start(ctx))

	code, body := get(t, app.Handler(), http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])

	code, body = get(t, app.Handler(), http.MethodGet, "/requests/status")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, false, body["connected"])

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, app.Stop(stopCtx))
}

func TestApp_ChapterRunRecordsMissingMedia(t *testing.T) {
	cfg := testConfig(t, "")
	ctx := context.Background()

	app, err := NewApp(ctx, cfg)
	require.NoError(t, err)
	defer app.Stop(ctx)

	missing := domain.Item{
		ID:           "a1",
		Path:         filepath.Join(t.TempDir(), "gone.mkv"),
		MediaType:    domain.MediaTypeVideo,
		DateModified: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, memory.NewItemRepo(app.store).Upsert(ctx, []domain.Item{missing}))

	code, body := get(t, app.Handler(), http.MethodPost, "/maintenance/chapter-images/run")
	require.Equal(t, http.StatusAccepted, code)
	assert.NotEmpty(t, body["runId"])

	require.Eventually(t, func() bool {
		st := app.Chapters().Status()
		return !st.Running && st.Last != nil
	}, 5*time.Second, 10*time.Millisecond)

	last := app.Chapters().Status().Last
	assert.Equal(t, domain.RunStatusCompleted, last.Status)
	assert.Equal(t, 1, last.Failed)

	data, err := os.ReadFile(ledger.PathIn(cfg.Maintenance.CachePath))
	require.NoError(t, err)
	assert.Contains(t, string(data), string(domain.NewFailureKey(missing)))
}

func TestApp_RequestsIntegration(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"version":"1.0"}`))
	}))
	defer upstream.Close()

	cfg := testConfig(t, fmt.Sprintf(`
requests:
  enabled: true
  urls: ["http://127.0.0.1:1", "%s/"]
  probe_timeout: 1s
`, upstream.URL))

	app, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Stop(context.Background())

	code, body := get(t, app.Handler(), http.MethodGet, "/requests/status")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["connected"])
	assert.Equal(t, upstream.URL, body["serverUrl"])
}

func TestApp_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, fmt.Sprintf(`
redis:
  url: redis://%s
`, mr.Addr()))

	app, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Stop(context.Background())
	require.NotNil(t, app.redisClient)

	code, body := get(t, app.Handler(), http.MethodGet, "/health/detailed")
	assert.Equal(t, http.StatusOK, code)
	deps, ok := body["dependencies"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "healthy", deps["redis"])
}

func TestApp_RedisUnavailableFallsBack(t *testing.T) {
	cfg := testConfig(t, `
redis:
  url: redis://127.0.0.1:1
`)
	app, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Stop(context.Background())
	assert.Nil(t, app.redisClient)
}
