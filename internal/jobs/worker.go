package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const defaultPollInterval = time.Second

var errMissingQueue = errors.New("jobs: queue is required")

// Handler runs one job.
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job Job) error

func (f HandlerFunc) Handle(ctx context.Context, job Job) error {
	return f(ctx, job)
}

// Observer is told about every job that completed successfully.
type Observer interface {
	JobCompleted(job Job)
}

// WorkerConfig describes the dependencies of the worker.
type WorkerConfig struct {
	Queue        *Queue
	Handlers     map[string]Handler
	PollInterval time.Duration
	Observer     Observer
	Logger       *zap.Logger
}

// Worker claims jobs from the queue and dispatches them by task.
type Worker struct {
	queue        *Queue
	handlers     map[string]Handler
	pollInterval time.Duration
	observer     Observer
	logger       *zap.Logger
}

// NewWorker constructs a worker.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Queue == nil {
		return nil, errMissingQueue
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	handlers := make(map[string]Handler, len(cfg.Handlers))
	for task, handler := range cfg.Handlers {
		handlers[task] = handler
	}
	return &Worker{
		queue:        cfg.Queue,
		handlers:     handlers,
		pollInterval: pollInterval,
		observer:     cfg.Observer,
		logger:       logger,
	}, nil
}

// Start polls the queue until the context is cancelled. The returned channel
// is closed once the polling goroutine has stopped.
func (w *Worker) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(w.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for {
					processed, err := w.RunOnce(ctx)
					if err != nil {
						w.logger.Warn("job claim failed", zap.Error(err))
						break
					}
					if !processed || ctx.Err() != nil {
						break
					}
				}
			}
		}
	}()
	return done
}

// Drain processes runnable jobs until none is left and returns how many ran.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		ran, err := w.RunOnce(ctx)
		if err != nil {
			return processed, err
		}
		if !ran {
			return processed, nil
		}
		processed++
	}
}

// RunOnce claims and runs a single job. It reports false when the queue had
// nothing runnable.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.queue.ClaimNext(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	handler, ok := w.handlers[job.Task]
	if !ok {
		w.logger.Warn("no handler registered for task",
			zap.String("task", job.Task),
			zap.String("job_id", job.ID))
		return true, w.queue.Fail(ctx, job, &missingHandlerError{task: job.Task})
	}

	if err := w.run(ctx, handler, *job); err != nil {
		return true, w.queue.Fail(ctx, job, err)
	}
	if err := w.queue.Complete(ctx, job); err != nil {
		return true, err
	}
	if w.observer != nil {
		w.observer.JobCompleted(*job)
	}
	return true, nil
}

func (w *Worker) run(ctx context.Context, handler Handler, job Job) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			w.logger.Error("job handler panic",
				zap.String("job_id", job.ID),
				zap.String("task", job.Task),
				zap.Any("panic", recovered))
			err = &panicError{value: recovered}
		}
	}()
	return handler.Handle(ctx, job)
}

type missingHandlerError struct {
	task string
}

func (e *missingHandlerError) Error() string {
	return "jobs: no handler registered for task " + e.task
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("jobs: handler panic: %v", e.value)
}
