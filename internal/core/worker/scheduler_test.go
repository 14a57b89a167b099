package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("02:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 2, Minute: 30}, tod)
	assert.Equal(t, "02:30", tod.String())

	_, err = ParseTimeOfDay("25:00")
	assert.Error(t, err)
}

func TestTimeOfDay_Next(t *testing.T) {
	at := TimeOfDay{Hour: 2}

	before := time.Date(2026, 10, 17, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 10, 17, 2, 0, 0, 0, time.UTC), at.Next(before))

	exact := time.Date(2026, 10, 17, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 10, 18, 2, 0, 0, 0, time.UTC), at.Next(exact))

	after := time.Date(2026, 12, 31, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2027, 1, 1, 2, 0, 0, 0, time.UTC), at.Next(after))
}

func TestScheduler_RunsJobWithMaxRuntime(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ran := make(chan time.Duration, 1)
	s := NewScheduler("test", TimeOfDay{Hour: 2}, time.Hour, func(jobCtx context.Context) error {
		deadline, ok := jobCtx.Deadline()
		assert.True(t, ok)
		ran <- time.Until(deadline)
		cancel()
		return nil
	})

	var (
		waited time.Duration
		calls  int
	)
	s.now = func() time.Time { return time.Date(2026, 10, 17, 1, 0, 0, 0, time.UTC) }
	s.after = func(d time.Duration) <-chan time.Time {
		calls++
		ch := make(chan time.Time, 1)
		if calls == 1 {
			waited = d
			ch <- time.Time{}
		}
		return ch
	}

	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	select {
	case remaining := <-ran:
		assert.Greater(t, remaining, 59*time.Minute)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not triggered")
	}
	<-done
	assert.Equal(t, time.Hour, waited)
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler("test", TimeOfDay{Hour: 2}, 0, func(context.Context) error {
		t.Error("job must not run")
		return nil
	})
	s.after = func(time.Duration) <-chan time.Time { return make(chan time.Time) }

	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
