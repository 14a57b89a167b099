package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTicks_MatchesKnownValues(t *testing.T) {
	assert.Equal(t, ticksAtUnixEpoch, Ticks(time.Unix(0, 0)))

	// 2024-01-01T00:00:00Z
	assert.Equal(t, int64(638396640000000000), Ticks(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	// sub-second precision is kept at 100ns resolution
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, Ticks(base)+1, Ticks(base.Add(150*time.Nanosecond)))
}

func TestNewFailureKey(t *testing.T) {
	mod := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	item := Item{ID: "1", Path: "/media/movies/a.mkv", DateModified: mod}

	assert.Equal(t, FailureKey("/media/movies/a.mkv638396640000000000"), NewFailureKey(item))

	edited := item
	edited.DateModified = mod.Add(time.Second)
	assert.NotEqual(t, NewFailureKey(item), NewFailureKey(edited))
}

func TestFailureKey_EqualIgnoresCase(t *testing.T) {
	a := FailureKey("/Media/A.mkv1")
	b := FailureKey("/media/a.MKV1")
	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Normalized(), b.Normalized())
	assert.False(t, a.Equal("/media/b.mkv1"))
}

func TestRunStatus_Terminal(t *testing.T) {
	assert.False(t, RunStatusRunning.Terminal())
	assert.True(t, RunStatusCompleted.Terminal())
	assert.True(t, RunStatusCancelled.Terminal())
	assert.True(t, RunStatusAborted.Terminal())
}
