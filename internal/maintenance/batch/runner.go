// Package batch walks an item set, runs a per-item operation and persists a
// failure ledger so known-bad items are retried cheaply on later runs.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/vietddude/librarian/internal/core/domain"
	"github.com/vietddude/librarian/internal/core/ledger"
	"github.com/vietddude/librarian/internal/maintenance/metrics"
)

var (
	// ErrItemInvalidated signals that the item was disposed while being
	// processed. The run stops immediately.
	ErrItemInvalidated = errors.New("item invalidated")

	// ErrCancelled wraps the context error of a cancelled run.
	ErrCancelled = errors.New("run cancelled")

	// ErrRunInProgress is returned when a run of the same task is active.
	ErrRunInProgress = errors.New("run already in progress")

	// ErrLockLost cancels a run whose lock could no longer be refreshed.
	ErrLockLost = errors.New("run lock lost")

	// ErrServiceStopped is returned for runs requested after Stop.
	ErrServiceStopped = errors.New("service stopped")
)

// State is the lifecycle position of a run.
type State int32

const (
	StateInit State = iota
	StateLoading
	StateIterating
	StateCompleted
	StateCancelled
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateLoading:
		return "loading"
	case StateIterating:
		return "iterating"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// RunStatus maps a terminal state to the persisted status.
func (s State) RunStatus() domain.RunStatus {
	switch s {
	case StateCompleted:
		return domain.RunStatusCompleted
	case StateCancelled:
		return domain.RunStatusCancelled
	case StateAborted:
		return domain.RunStatusAborted
	default:
		return domain.RunStatusRunning
	}
}

// Operation is the per-item side effect. attemptRecovery is false for items
// whose current version already failed once; the operation should then take
// its cheap path. A false result without error records the item as failed.
type Operation interface {
	Process(ctx context.Context, item domain.Item, attemptRecovery bool) (bool, error)
}

// OperationFunc adapts a function to Operation.
type OperationFunc func(ctx context.Context, item domain.Item, attemptRecovery bool) (bool, error)

func (f OperationFunc) Process(ctx context.Context, item domain.Item, attemptRecovery bool) (bool, error) {
	return f(ctx, item, attemptRecovery)
}

// ProgressSink receives progress in [0, 100].
type ProgressSink func(percent float64)

// Result summarizes one run.
type Result struct {
	State        State
	Total        int
	Processed    int
	Failed       int
	Skipped      int
	LedgerErrors int
	LedgerSize   int
	Progress     float64
	Duration     time.Duration
}

// Runner executes one task against its ledger.
type Runner struct {
	task       string
	ledgerPath string
	state      atomic.Int32
	log        *slog.Logger
}

// NewRunner creates a runner whose ledger lives at ledgerPath.
func NewRunner(task, ledgerPath string) *Runner {
	return &Runner{
		task:       task,
		ledgerPath: ledgerPath,
		log:        slog.Default().With("component", "batch", "task", task),
	}
}

// State returns the current lifecycle state.
func (r *Runner) State() State {
	return State(r.state.Load())
}

// LedgerPath returns the ledger file location.
func (r *Runner) LedgerPath() string {
	return r.ledgerPath
}

// Run processes items in order. It returns ErrItemInvalidated when the
// operation reports a disposed item and an ErrCancelled-wrapped error when ctx
// ends; every other per-item error counts as a failure and the run continues.
func (r *Runner) Run(ctx context.Context, items []domain.Item, op Operation, progress ProgressSink) (Result, error) {
	start := time.Now()
	res := Result{Total: len(items)}

	r.setState(StateLoading)
	failures := ledger.Load(r.ledgerPath)
	metrics.LedgerSize.WithLabelValues(r.task).Set(float64(failures.Len()))
	r.log.Info("Ledger loaded", "path", failures.Path(), "known_failures", failures.Len(), "items", len(items))

	finish := func(state State, err error) (Result, error) {
		r.setState(state)
		res.State = state
		res.LedgerSize = failures.Len()
		res.Duration = time.Since(start)
		metrics.RunDuration.WithLabelValues(r.task, state.String()).Observe(res.Duration.Seconds())
		return res, err
	}

	r.setState(StateIterating)
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			r.log.Info("Run cancelled", "processed", res.Processed, "total", res.Total)
			return finish(StateCancelled, fmt.Errorf("%w: %w", ErrCancelled, err))
		}

		key := domain.NewFailureKey(item)
		attemptRecovery := !failures.Contains(key)
		if !attemptRecovery {
			res.Skipped++
			metrics.ItemsSkipped.WithLabelValues(r.task).Inc()
		}

		ok, err := op.Process(ctx, item, attemptRecovery)
		if err != nil {
			if errors.Is(err, ErrItemInvalidated) {
				r.log.Error("Item invalidated, aborting run", "item", item.ID, "path", item.Path, "error", err)
				return finish(StateAborted, err)
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				r.log.Info("Run cancelled during item", "item", item.ID, "processed", res.Processed)
				return finish(StateCancelled, fmt.Errorf("%w: %w", ErrCancelled, ctxErr))
			}
			r.log.Warn("Item processing failed", "item", item.ID, "path", item.Path, "error", err)
			ok = false
		}

		res.Processed++
		metrics.ItemsProcessed.WithLabelValues(r.task).Inc()

		if !ok {
			res.Failed++
			metrics.ItemsFailed.WithLabelValues(r.task).Inc()
			if _, err := failures.Record(key); err != nil {
				res.LedgerErrors++
				metrics.LedgerWriteErrors.WithLabelValues(r.task).Inc()
				r.log.Warn("Failed to persist ledger", "path", failures.Path(), "error", err)
			}
			metrics.LedgerSize.WithLabelValues(r.task).Set(float64(failures.Len()))
		}

		res.Progress = 100 * float64(i+1) / float64(len(items))
		r.report(progress, res.Progress)
	}

	if len(items) == 0 {
		res.Progress = 100
		r.report(progress, res.Progress)
	}

	r.log.Info("Run completed",
		"processed", res.Processed,
		"failed", res.Failed,
		"skipped", res.Skipped,
		"duration", time.Since(start),
	)
	return finish(StateCompleted, nil)
}

func (r *Runner) report(sink ProgressSink, percent float64) {
	metrics.RunProgress.WithLabelValues(r.task).Set(percent)
	if sink != nil {
		sink(percent)
	}
}

func (r *Runner) setState(s State) {
	r.state.Store(int32(s))
}
