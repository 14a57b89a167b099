// Package chapters refreshes chapter images for video items.
package chapters

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/vietddude/librarian/internal/core/domain"
	"github.com/vietddude/librarian/internal/maintenance/batch"
)

// Task is the name runs, locks and metrics are recorded under.
const Task = "chapter-images"

// Operation is the per-item step of the chapter image task.
type Operation struct {
	extractor  Extractor
	imagesRoot string
	log        *slog.Logger
}

var _ batch.Operation = (*Operation)(nil)

// NewOperation stores images under imagesRoot/<item id>.
func NewOperation(extractor Extractor, imagesRoot string) *Operation {
	return &Operation{
		extractor:  extractor,
		imagesRoot: imagesRoot,
		log:        slog.Default().With("component", "chapters"),
	}
}

// ImageDir returns where images for item live.
func (o *Operation) ImageDir(item domain.Item) string {
	return filepath.Join(o.imagesRoot, item.ID)
}

// Process extracts images when attemptRecovery is set. Otherwise it only
// checks that images from an earlier pass exist.
func (o *Operation) Process(ctx context.Context, item domain.Item, attemptRecovery bool) (bool, error) {
	if item.MediaType != domain.MediaTypeVideo {
		return true, nil
	}

	if _, err := os.Stat(item.Path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			o.log.Warn("Media file missing", "item", item.ID, "path", item.Path)
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", item.Path, err)
	}

	dir := o.ImageDir(item)
	if !attemptRecovery {
		return hasImages(dir), nil
	}

	if err := o.extractor.Extract(ctx, item, dir); err != nil {
		if errors.Is(err, batch.ErrItemInvalidated) {
			return false, err
		}
		return false, fmt.Errorf("extract %s: %w", item.ID, err)
	}

	o.log.Debug("Chapter images refreshed", "item", item.ID, "dir", dir)
	return hasImages(dir), nil
}
