package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/cellar/backend/internal/testutil"
	"go.uber.org/zap"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(step time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(step)
}

func sequentialIDs() func() (string, error) {
	var mu sync.Mutex
	next := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		next++
		return fmt.Sprintf("job-%03d", next), nil
	}
}

func newTestQueue(t *testing.T, clock *testClock, maxAttempts int) *Queue {
	t.Helper()
	db := testutil.OpenDB(t, Models()...)
	queue, err := NewQueue(QueueConfig{
		Database:    db,
		MaxAttempts: maxAttempts,
		RetryDelay:  time.Minute,
		Clock:       clock.Now,
		NewID:       sequentialIDs(),
		Logger:      zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct queue: %v", err)
	}
	return queue
}

func TestEnqueueCoalescesQueuedJobs(t *testing.T) {
	queue := newTestQueue(t, newTestClock(), 3)
	ctx := context.Background()

	created, err := queue.Enqueue(ctx, TaskFlattenVariant, "variant-1")
	if err != nil || !created {
		t.Fatalf("expected first enqueue to create a job, created=%v err=%v", created, err)
	}
	created, err = queue.Enqueue(ctx, TaskFlattenVariant, "variant-1")
	if err != nil || created {
		t.Fatalf("expected duplicate enqueue to coalesce, created=%v err=%v", created, err)
	}
	created, err = queue.Enqueue(ctx, TaskRecomputeRelated, "variant-1")
	if err != nil || !created {
		t.Fatalf("expected a different task to create a job, created=%v err=%v", created, err)
	}

	job, err := queue.ClaimNext(ctx)
	if err != nil || job == nil {
		t.Fatalf("expected a claimed job, job=%v err=%v", job, err)
	}
	if job.Task != TaskFlattenVariant || job.Status != StatusRunning || job.Attempts != 1 {
		t.Fatalf("unexpected claimed job %#v", job)
	}

	created, err = queue.Enqueue(ctx, TaskFlattenVariant, "variant-1")
	if err != nil || !created {
		t.Fatalf("expected enqueue behind a running job to create a job, created=%v err=%v", created, err)
	}
}

func TestEnqueueRejectsInvalidInput(t *testing.T) {
	queue := newTestQueue(t, newTestClock(), 3)
	if _, err := queue.Enqueue(context.Background(), "reindex", "variant-1"); !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("expected ErrUnknownTask, got %v", err)
	}
	if _, err := queue.Enqueue(context.Background(), TaskFlattenVariant, ""); err == nil {
		t.Fatalf("expected error for empty variant id")
	}
}

func TestClaimNextReturnsNilWhenEmpty(t *testing.T) {
	queue := newTestQueue(t, newTestClock(), 3)
	job, err := queue.ClaimNext(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job != nil {
		t.Fatalf("expected no job, got %#v", job)
	}
}

func TestFailRetriesUntilMaxAttempts(t *testing.T) {
	clock := newTestClock()
	queue := newTestQueue(t, clock, 2)
	ctx := context.Background()
	if err := queue.EnqueueFlatten(ctx, "variant-1"); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	job, err := queue.ClaimNext(ctx)
	if err != nil || job == nil {
		t.Fatalf("expected claimed job, job=%v err=%v", job, err)
	}
	if err := queue.Fail(ctx, job, errors.New("store offline")); err != nil {
		t.Fatalf("fail returned error: %v", err)
	}

	stored, err := queue.Find(ctx, job.ID)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if stored.Status != StatusQueued || stored.LastError != "store offline" {
		t.Fatalf("expected requeued job with error, got %#v", stored)
	}

	if next, err := queue.ClaimNext(ctx); err != nil || next != nil {
		t.Fatalf("expected retry to wait for the delay, job=%v err=%v", next, err)
	}

	clock.Advance(time.Minute)
	job, err = queue.ClaimNext(ctx)
	if err != nil || job == nil {
		t.Fatalf("expected retried job, job=%v err=%v", job, err)
	}
	if job.Attempts != 2 {
		t.Fatalf("expected second attempt, got %d", job.Attempts)
	}
	if err := queue.Fail(ctx, job, errors.New("store offline")); err != nil {
		t.Fatalf("fail returned error: %v", err)
	}

	failed, err := queue.List(ctx, StatusFailed)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != job.ID {
		t.Fatalf("expected job to be failed permanently, got %#v", failed)
	}
}

func TestWorkerDrainDispatchesByTask(t *testing.T) {
	queue := newTestQueue(t, newTestClock(), 3)
	ctx := context.Background()

	var handled []string
	worker, err := NewWorker(WorkerConfig{
		Queue: queue,
		Handlers: map[string]Handler{
			TaskFlattenVariant: HandlerFunc(func(_ context.Context, job Job) error {
				handled = append(handled, job.Task+":"+job.VariantID)
				return nil
			}),
			TaskRecomputeRelated: HandlerFunc(func(_ context.Context, job Job) error {
				handled = append(handled, job.Task+":"+job.VariantID)
				return nil
			}),
		},
	})
	if err != nil {
		t.Fatalf("failed to construct worker: %v", err)
	}

	for _, variantID := range []string{"variant-1", "variant-2"} {
		if err := queue.EnqueueFlatten(ctx, variantID); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}
	if err := queue.EnqueueRecompute(ctx, "variant-1"); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	processed, err := worker.Drain(ctx)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if processed != 3 {
		t.Fatalf("expected 3 processed jobs, got %d", processed)
	}
	expected := []string{"flattenVariant:variant-1", "flattenVariant:variant-2", "recomputeRelated:variant-1"}
	if fmt.Sprint(handled) != fmt.Sprint(expected) {
		t.Fatalf("unexpected dispatch order %v", handled)
	}

	done, err := queue.List(ctx, StatusDone)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(done) != 3 {
		t.Fatalf("expected 3 done jobs, got %d", len(done))
	}
}

func TestWorkerRecoversHandlerPanics(t *testing.T) {
	queue := newTestQueue(t, newTestClock(), 1)
	ctx := context.Background()
	worker, err := NewWorker(WorkerConfig{
		Queue: queue,
		Handlers: map[string]Handler{
			TaskFlattenVariant: HandlerFunc(func(context.Context, Job) error {
				panic("boom")
			}),
		},
	})
	if err != nil {
		t.Fatalf("failed to construct worker: %v", err)
	}
	if err := queue.EnqueueFlatten(ctx, "variant-1"); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if err := queue.EnqueueRecompute(ctx, "variant-1"); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if _, err := worker.Drain(ctx); err != nil {
		t.Fatalf("drain failed: %v", err)
	}

	failed, err := queue.List(ctx, StatusFailed)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 2 {
		t.Fatalf("expected the panicking job and the unhandled job to fail, got %#v", failed)
	}
	if failed[0].LastError != "jobs: handler panic: boom" {
		t.Fatalf("unexpected panic error %q", failed[0].LastError)
	}
	if failed[1].LastError != "jobs: no handler registered for task recomputeRelated" {
		t.Fatalf("unexpected missing handler error %q", failed[1].LastError)
	}
}

func TestWorkerStartProcessesUntilCancelled(t *testing.T) {
	queue := newTestQueue(t, newTestClock(), 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handled := make(chan string, 1)
	worker, err := NewWorker(WorkerConfig{
		Queue:        queue,
		PollInterval: 10 * time.Millisecond,
		Handlers: map[string]Handler{
			TaskFlattenVariant: HandlerFunc(func(_ context.Context, job Job) error {
				handled <- job.VariantID
				return nil
			}),
		},
	})
	if err != nil {
		t.Fatalf("failed to construct worker: %v", err)
	}
	if err := queue.EnqueueFlatten(context.Background(), "variant-1"); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	done := worker.Start(ctx)
	select {
	case variantID := <-handled:
		if variantID != "variant-1" {
			t.Fatalf("unexpected variant %s", variantID)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("worker did not process the job")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("worker did not stop after cancellation")
	}
}

type recordingObserver struct {
	completed []Job
}

func (o *recordingObserver) JobCompleted(job Job) {
	o.completed = append(o.completed, job)
}

func TestWorkerNotifiesObserverOfCompletedJobs(t *testing.T) {
	queue := newTestQueue(t, newTestClock(), 1)
	ctx := context.Background()
	observer := &recordingObserver{}
	worker, err := NewWorker(WorkerConfig{
		Queue:    queue,
		Observer: observer,
		Handlers: map[string]Handler{
			TaskFlattenVariant: HandlerFunc(func(context.Context, Job) error { return nil }),
			TaskRecomputeRelated: HandlerFunc(func(context.Context, Job) error {
				return errors.New("store offline")
			}),
		},
	})
	if err != nil {
		t.Fatalf("failed to construct worker: %v", err)
	}
	if err := queue.EnqueueFlatten(ctx, "variant-1"); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if err := queue.EnqueueRecompute(ctx, "variant-2"); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	if _, err := worker.Drain(ctx); err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if len(observer.completed) != 1 {
		t.Fatalf("expected only the successful job to be observed, got %#v", observer.completed)
	}
	completed := observer.completed[0]
	if completed.Task != TaskFlattenVariant || completed.VariantID != "variant-1" || completed.Status != StatusDone {
		t.Fatalf("unexpected observed job %#v", completed)
	}
}
