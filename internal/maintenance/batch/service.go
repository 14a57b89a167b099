package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/librarian/internal/core/domain"
	"github.com/vietddude/librarian/internal/infra/storage"
)

// DefaultLockTTL is used when ServiceConfig.LockTTL is unset.
const DefaultLockTTL = 2 * time.Minute

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Task       string
	LedgerPath string
	LockTTL    time.Duration
}

// Status is a point-in-time view for health and the HTTP surface.
type Status struct {
	Running  bool        `json:"running"`
	State    string      `json:"state"`
	Progress float64     `json:"progress"`
	Current  *domain.Run `json:"current,omitempty"`
	Last     *domain.Run `json:"last,omitempty"`
}

// Service owns the lifecycle of runs for one task: it pulls items, takes the
// run lock, drives the Runner and records run history.
type Service struct {
	cfg    ServiceConfig
	runner *Runner
	source storage.ItemSource
	runs   storage.RunRepository
	op     Operation
	locker Locker
	log    *slog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	starting bool
	stopped  bool
	current  *domain.Run
	last     *domain.Run
	progress float64
}

// NewService wires a Service. A nil locker falls back to LocalLocker.
func NewService(
	cfg ServiceConfig,
	source storage.ItemSource,
	runs storage.RunRepository,
	op Operation,
	locker Locker,
) *Service {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:     cfg,
		runner:  NewRunner(cfg.Task, cfg.LedgerPath),
		source:  source,
		runs:    runs,
		op:      op,
		locker:  locker,
		log:     slog.Default().With("component", "batch-service", "task", cfg.Task),
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Task returns the task name.
func (s *Service) Task() string {
	return s.cfg.Task
}

// LedgerPath returns the ledger file location.
func (s *Service) LedgerPath() string {
	return s.cfg.LedgerPath
}

// RunNow runs the task synchronously. The run stops when ctx is done or the
// service is stopped.
func (s *Service) RunNow(ctx context.Context) (*domain.Run, error) {
	run, items, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer s.wg.Done()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.baseCtx, cancel)
	defer stop()

	runErr := s.execute(runCtx, run, items)
	return s.snapshotRun(run), runErr
}

// Trigger starts a run in the background and returns its ID. The run outlives
// ctx and stops on Stop.
func (s *Service) Trigger(ctx context.Context) (string, error) {
	run, items, err := s.begin(ctx)
	if err != nil {
		return "", err
	}

	go func() {
		defer s.wg.Done()
		_ = s.execute(s.baseCtx, run, items)
	}()
	return run.ID, nil
}

// Stop cancels active runs, scheduled or triggered, and waits for them to
// record their outcome. Later runs are refused with ErrServiceStopped.
func (s *Service) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

// Status reports the current and last run.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:  s.current != nil,
		State:    s.runner.State().String(),
		Progress: s.progress,
	}
	if s.current != nil {
		cp := *s.current
		st.Current = &cp
	}
	if s.last != nil {
		cp := *s.last
		st.Last = &cp
	}
	return st
}

// History returns recent persisted runs, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]*domain.Run, error) {
	return s.runs.ListRecent(ctx, s.cfg.Task, limit)
}

func (s *Service) lockName() string {
	return "maintenance:" + s.cfg.Task
}

// begin reserves the service, then takes the lock and lists items without
// holding mu. On success the caller owns one wg slot and must call Done.
func (s *Service) begin(ctx context.Context) (*domain.Run, []domain.Item, error) {
	s.mu.Lock()
	switch {
	case s.stopped:
		s.mu.Unlock()
		return nil, nil, ErrServiceStopped
	case s.current != nil || s.starting:
		s.mu.Unlock()
		return nil, nil, ErrRunInProgress
	}
	s.starting = true
	s.wg.Add(1)
	s.mu.Unlock()

	run, items, err := s.prepare(ctx)

	s.mu.Lock()
	s.starting = false
	if err == nil {
		s.current = run
		s.progress = 0
	}
	s.mu.Unlock()

	if err != nil {
		s.wg.Done()
		return nil, nil, err
	}
	return run, items, nil
}

func (s *Service) prepare(ctx context.Context) (*domain.Run, []domain.Item, error) {
	run := &domain.Run{
		ID:        uuid.NewString(),
		Task:      s.cfg.Task,
		Status:    domain.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	ok, err := s.locker.AcquireLock(ctx, s.lockName(), run.ID, s.cfg.LockTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, nil, ErrRunInProgress
	}

	items, err := s.source.ListVideos(ctx)
	if err != nil {
		s.releaseLock(run.ID)
		return nil, nil, fmt.Errorf("list items: %w", err)
	}
	run.Total = len(items)

	if err := s.runs.Create(ctx, run); err != nil {
		s.log.Warn("Failed to record run start", "run", run.ID, "error", err)
	}
	return run, items, nil
}

func (s *Service) execute(ctx context.Context, run *domain.Run, items []domain.Item) error {
	runCtx, cancelRun := context.WithCancelCause(ctx)
	defer cancelRun(nil)

	refreshCtx, stopRefresh := context.WithCancel(runCtx)
	defer stopRefresh()
	go s.keepLock(refreshCtx, run.ID, cancelRun)

	s.log.Info("Run started", "run", run.ID, "items", len(items))

	res, err := s.runner.Run(runCtx, items, s.op, func(p float64) {
		s.mu.Lock()
		s.progress = p
		run.Progress = p
		s.mu.Unlock()
	})
	if cause := context.Cause(runCtx); err != nil && errors.Is(cause, ErrLockLost) {
		err = fmt.Errorf("%w: %w", err, cause)
	}

	finished := time.Now().UTC()

	s.mu.Lock()
	run.Status = res.State.RunStatus()
	run.Processed = res.Processed
	run.Failed = res.Failed
	run.Skipped = res.Skipped
	run.Progress = res.Progress
	run.FinishedAt = &finished
	if err != nil {
		run.Error = err.Error()
	}
	final := *run
	s.last = &final
	s.current = nil
	s.mu.Unlock()

	// ctx may already be cancelled; history must still be written.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if uerr := s.runs.Update(persistCtx, &final); uerr != nil {
		s.log.Warn("Failed to record run outcome", "run", run.ID, "error", uerr)
	}
	s.releaseLock(run.ID)

	s.log.Info("Run finished",
		"run", run.ID,
		"status", final.Status,
		"processed", final.Processed,
		"failed", final.Failed,
		"skipped", final.Skipped,
	)
	return err
}

// keepLock extends the run lock until ctx ends. Losing the lock cancels the
// run so two processes never write the same ledger.
func (s *Service) keepLock(ctx context.Context, owner string, cancelRun context.CancelCauseFunc) {
	ticker := time.NewTicker(s.cfg.LockTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.locker.RefreshLock(ctx, s.lockName(), owner, s.cfg.LockTTL)
			if errors.Is(err, storage.ErrLockNotHeld) {
				s.log.Error("Run lock lost, cancelling run", "run", owner)
				cancelRun(ErrLockLost)
				return
			}
			if err != nil {
				s.log.Warn("Failed to refresh run lock", "error", err)
			}
		}
	}
}

func (s *Service) releaseLock(owner string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.locker.ReleaseLock(ctx, s.lockName(), owner); err != nil {
		s.log.Warn("Failed to release run lock", "error", err)
	}
}

func (s *Service) snapshotRun(run *domain.Run) *domain.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	return &cp
}
