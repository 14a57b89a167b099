package chapters

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/librarian/internal/core/domain"
	"github.com/vietddude/librarian/internal/maintenance/batch"
)

type fakeExtractor struct {
	calls int
	err   error
	write bool
}

func (f *fakeExtractor) Extract(ctx context.Context, item domain.Item, outputDir string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	if f.write {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(outputDir, "0001.jpg"), []byte("jpg"), 0o644)
	}
	return nil
}

func videoItem(t *testing.T) domain.Item {
	t.Helper()
	path := filepath.Join(t.TempDir(), "movie.mkv")
	require.NoError(t, os.WriteFile(path, []byte("video"), 0o644))
	return domain.Item{ID: "42", Path: path, MediaType: domain.MediaTypeVideo, DateModified: time.Now()}
}

func TestProcess_ExtractsWhenRecovering(t *testing.T) {
	ex := &fakeExtractor{write: true}
	op := NewOperation(ex, t.TempDir())
	item := videoItem(t)

	ok, err := op.Process(context.Background(), item, true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, ex.calls)
	assert.FileExists(t, filepath.Join(op.ImageDir(item), "0001.jpg"))
}

func TestProcess_NoRecoveryOnlyChecksExisting(t *testing.T) {
	ex := &fakeExtractor{write: true}
	op := NewOperation(ex, t.TempDir())
	item := videoItem(t)

	ok, err := op.Process(context.Background(), item, false)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, ex.calls)

	require.NoError(t, os.MkdirAll(op.ImageDir(item), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(op.ImageDir(item), "0001.jpg"), nil, 0o644))

	ok, err = op.Process(context.Background(), item, false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, ex.calls)
}

func TestProcess_MissingFileFailsWithoutInvalidating(t *testing.T) {
	op := NewOperation(&fakeExtractor{}, t.TempDir())
	item := domain.Item{ID: "1", Path: "/does/not/exist.mkv", MediaType: domain.MediaTypeVideo}

	ok, err := op.Process(context.Background(), item, true)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestProcess_PropagatesInvalidation(t *testing.T) {
	op := NewOperation(&fakeExtractor{err: fmt.Errorf("disposed: %w", batch.ErrItemInvalidated)}, t.TempDir())

	_, err := op.Process(context.Background(), videoItem(t), true)
	assert.ErrorIs(t, err, batch.ErrItemInvalidated)
}

func TestProcess_ExtractorErrorIsFailure(t *testing.T) {
	op := NewOperation(&fakeExtractor{err: errors.New("boom")}, t.TempDir())

	ok, err := op.Process(context.Background(), videoItem(t), true)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestProcess_SkipsNonVideo(t *testing.T) {
	ex := &fakeExtractor{}
	op := NewOperation(ex, t.TempDir())

	ok, err := op.Process(context.Background(), domain.Item{ID: "a", MediaType: domain.MediaTypeAudio}, true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, ex.calls)
}

func TestCommandExtractor(t *testing.T) {
	root := t.TempDir()
	item := videoItem(t)
	out := filepath.Join(root, "42")

	ex := NewCommandExtractor("sh", []string{"-c", `test -f "{input}" && touch "{output}/0001.jpg"`}, 5*time.Second)
	require.NoError(t, ex.Extract(context.Background(), item, out))
	assert.FileExists(t, filepath.Join(out, "0001.jpg"))

	// a second pass replaces the directory wholesale
	ex2 := NewCommandExtractor("sh", []string{"-c", `touch "{output}/0002.jpg"`}, 5*time.Second)
	require.NoError(t, ex2.Extract(context.Background(), item, out))
	assert.NoFileExists(t, filepath.Join(out, "0001.jpg"))
	assert.FileExists(t, filepath.Join(out, "0002.jpg"))
}

func TestCommandExtractor_Failures(t *testing.T) {
	root := t.TempDir()
	item := videoItem(t)

	err := NewCommandExtractor("sh", []string{"-c", "exit 3"}, time.Second).
		Extract(context.Background(), item, filepath.Join(root, "a"))
	assert.Error(t, err)

	err = NewCommandExtractor("sh", []string{"-c", "true"}, time.Second).
		Extract(context.Background(), item, filepath.Join(root, "b"))
	assert.ErrorIs(t, err, ErrNoImages)

	err = NewCommandExtractor("sleep", []string{"5"}, 50*time.Millisecond).
		Extract(context.Background(), item, filepath.Join(root, "c"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	entries, _ := os.ReadDir(root)
	assert.Empty(t, entries, "scratch dirs must be cleaned up")
}
