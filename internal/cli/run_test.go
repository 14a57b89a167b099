package cli

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/librarian/internal/core/config"
)

func redisConfig(t *testing.T, mr *miniredis.Miniredis) *config.AppConfig {
	t.Helper()
	cfg, err := config.Parse([]byte(fmt.Sprintf(`
maintenance:
  cache_path: %s
redis:
  url: redis://%s
`, t.TempDir(), mr.Addr())))
	require.NoError(t, err)
	return cfg
}

func TestRunChapters_CompletesAndCloses(t *testing.T) {
	mr := miniredis.RunT(t)

	code := runChapters(context.Background(), redisConfig(t, mr))
	assert.Equal(t, 0, code)
	assert.Eventually(t, func() bool { return mr.CurrentConnectionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRunChapters_LockHeldClosesBeforeExit(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set("librarian:lock:maintenance:chapter-images", "other-process"))

	code := runChapters(context.Background(), redisConfig(t, mr))
	assert.Equal(t, 1, code)
	assert.Eventually(t, func() bool { return mr.CurrentConnectionCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	owner, err := mr.Get("librarian:lock:maintenance:chapter-images")
	require.NoError(t, err)
	assert.Equal(t, "other-process", owner)
}
