package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultMaxAttempts = 5
	defaultRetryDelay  = 30 * time.Second
	maxErrorLength     = 2048
)

var (
	// ErrUnknownTask indicates a task name the queue does not accept.
	ErrUnknownTask = errors.New("jobs: unknown task")

	errMissingDatabase = errors.New("jobs: database handle is required")
	errMissingVariant  = errors.New("jobs: variant id is required")
)

// QueueConfig describes the dependencies and retry policy of the queue.
type QueueConfig struct {
	Database    *gorm.DB
	MaxAttempts int
	RetryDelay  time.Duration
	Clock       func() time.Time
	NewID       func() (string, error)
	Logger      *zap.Logger
}

// Queue stores jobs in the jobs table.
type Queue struct {
	db          *gorm.DB
	maxAttempts int
	retryDelay  time.Duration
	clock       func() time.Time
	newID       func() (string, error)
	logger      *zap.Logger
}

// NewQueue constructs a job queue.
func NewQueue(cfg QueueConfig) (*Queue, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	retryDelay := cfg.RetryDelay
	if retryDelay < 0 {
		retryDelay = defaultRetryDelay
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = newUUID
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		db:          cfg.Database,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		clock:       clock,
		newID:       newID,
		logger:      logger,
	}, nil
}

func newUUID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// Enqueue adds a job unless one is already queued for the same task and
// variant. It reports whether a new job was created.
func (q *Queue) Enqueue(ctx context.Context, task, variantID string) (bool, error) {
	if task != TaskFlattenVariant && task != TaskRecomputeRelated {
		return false, fmt.Errorf("%w: %s", ErrUnknownTask, task)
	}
	if variantID == "" {
		return false, errMissingVariant
	}
	id, err := q.newID()
	if err != nil {
		return false, err
	}

	created := false
	err = q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var queued int64
		if err := tx.Model(&Job{}).
			Where("task = ? AND variant_id = ? AND status = ?", task, variantID, StatusQueued).
			Count(&queued).Error; err != nil {
			return err
		}
		if queued > 0 {
			return nil
		}
		now := q.clock().UTC()
		job := Job{
			ID:        id,
			Task:      task,
			VariantID: variantID,
			Status:    StatusQueued,
			RunAfter:  now,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Create(&job).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if created {
		q.logger.Debug("job enqueued",
			zap.String("task", task),
			zap.String("variant_id", variantID))
	}
	return created, nil
}

// EnqueueFlatten schedules a flatten of the variant.
func (q *Queue) EnqueueFlatten(ctx context.Context, variantID string) error {
	_, err := q.Enqueue(ctx, TaskFlattenVariant, variantID)
	return err
}

// EnqueueRecompute schedules a related-set recomputation of the variant.
func (q *Queue) EnqueueRecompute(ctx context.Context, variantID string) error {
	_, err := q.Enqueue(ctx, TaskRecomputeRelated, variantID)
	return err
}

// ClaimNext marks the oldest runnable job as running and returns it, or nil
// when nothing is runnable.
func (q *Queue) ClaimNext(ctx context.Context) (*Job, error) {
	var claimed *Job
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := q.clock().UTC()
		var job Job
		err := tx.Where("status = ? AND run_after <= ?", StatusQueued, now).
			Order("run_after ASC").
			Order("created_at ASC").
			Order("id ASC").
			Take(&job).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		result := tx.Model(&Job{}).
			Where("id = ? AND status = ?", job.ID, StatusQueued).
			Updates(map[string]any{
				"status":     StatusRunning,
				"attempts":   gorm.Expr("attempts + 1"),
				"updated_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		job.Status = StatusRunning
		job.Attempts++
		job.UpdatedAt = now
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Complete marks a job as done.
func (q *Queue) Complete(ctx context.Context, job *Job) error {
	err := q.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", job.ID).
		Updates(map[string]any{
			"status":     StatusDone,
			"last_error": "",
			"updated_at": q.clock().UTC(),
		}).Error
	if err != nil {
		return err
	}
	job.Status = StatusDone
	job.LastError = ""
	return nil
}

// Fail records the error and requeues the job after the retry delay, or marks
// it failed once it has used every attempt.
func (q *Queue) Fail(ctx context.Context, job *Job, cause error) error {
	now := q.clock().UTC()
	message := ""
	if cause != nil {
		message = cause.Error()
		if len(message) > maxErrorLength {
			message = message[:maxErrorLength]
		}
	}
	updates := map[string]any{
		"last_error": message,
		"updated_at": now,
	}
	if job.Attempts >= q.maxAttempts {
		updates["status"] = StatusFailed
		q.logger.Error("job failed permanently",
			zap.String("job_id", job.ID),
			zap.String("task", job.Task),
			zap.String("variant_id", job.VariantID),
			zap.Int("attempts", job.Attempts),
			zap.Error(cause))
	} else {
		updates["status"] = StatusQueued
		updates["run_after"] = now.Add(q.retryDelay)
		q.logger.Warn("job failed, retrying",
			zap.String("job_id", job.ID),
			zap.String("task", job.Task),
			zap.String("variant_id", job.VariantID),
			zap.Int("attempts", job.Attempts),
			zap.Error(cause))
	}
	return q.db.WithContext(ctx).Model(&Job{}).Where("id = ?", job.ID).Updates(updates).Error
}

// Find returns a job by id.
func (q *Queue) Find(ctx context.Context, id string) (Job, error) {
	var job Job
	if err := q.db.WithContext(ctx).Where("id = ?", id).Take(&job).Error; err != nil {
		return Job{}, err
	}
	return job, nil
}

// List returns the jobs in the given status, oldest first.
func (q *Queue) List(ctx context.Context, status string) ([]Job, error) {
	var jobs []Job
	err := q.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Order("id ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}
