package chapters

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/vietddude/librarian/internal/core/domain"
)

// DefaultExtractTimeout bounds one extraction when none is configured.
const DefaultExtractTimeout = 2 * time.Minute

// ErrNoImages is returned when extraction succeeded but wrote nothing.
var ErrNoImages = errors.New("no chapter images produced")

// Extractor renders chapter images for an item into outputDir.
type Extractor interface {
	Extract(ctx context.Context, item domain.Item, outputDir string) error
}

// CommandExtractor runs an external command. Args may contain {input}, the
// media file, and {output}, a scratch directory that replaces outputDir once
// the command succeeds.
type CommandExtractor struct {
	command string
	args    []string
	timeout time.Duration
}

// NewCommandExtractor creates an extractor. A non-positive timeout uses
// DefaultExtractTimeout.
func NewCommandExtractor(command string, args []string, timeout time.Duration) *CommandExtractor {
	if timeout <= 0 {
		timeout = DefaultExtractTimeout
	}
	return &CommandExtractor{
		command: command,
		args:    args,
		timeout: timeout,
	}
}

func (e *CommandExtractor) Extract(ctx context.Context, item domain.Item, outputDir string) error {
	parent := filepath.Dir(outputDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create images dir: %w", err)
	}

	scratch, err := os.MkdirTemp(parent, ".extract-*")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	args := make([]string, len(e.args))
	for i, arg := range e.args {
		arg = strings.ReplaceAll(arg, "{input}", item.Path)
		args[i] = strings.ReplaceAll(arg, "{output}", scratch)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.command, args...)
	cmd.Dir = scratch
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", e.command, ctxErr)
		}
		return fmt.Errorf("%s failed: %w: %s", e.command, err, strings.TrimSpace(string(output)))
	}

	if !hasImages(scratch) {
		return ErrNoImages
	}

	if err := os.RemoveAll(outputDir); err != nil {
		return fmt.Errorf("clear previous images: %w", err)
	}
	if err := os.Rename(scratch, outputDir); err != nil {
		return fmt.Errorf("publish images: %w", err)
	}
	return nil
}

// hasImages reports whether dir holds at least one regular file.
func hasImages(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			return true
		}
	}
	return false
}
