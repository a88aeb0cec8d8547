package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kestrelsec/agentgate/internal/config"
)

// Task is a unit of background work submitted by a request handler.
type Task func(ctx context.Context) error

// JobStatus tracks the lifecycle of a submitted job.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Job is the record kept for each submitted task.
type Job struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      JobStatus  `json:"status"`
	SubmittedAt time.Time  `json:"submitted_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

type queuedTask struct {
	jobID string
	task  Task
}

// ErrQueueFull is returned by Submit when the bounded queue cannot accept
// another task.
var ErrQueueFull = errors.New("background task queue is full")

// ErrStopped is returned by Submit once Stop has been called.
var ErrStopped = errors.New("dispatcher is stopped")

// Dispatcher runs background tasks either inline in the caller's goroutine
// or through a bounded worker pool, depending on the queue configuration.
// The mode is fixed at construction and never changes.
type Dispatcher struct {
	cfg    config.QueueConfig
	logger *zap.Logger

	mu      sync.RWMutex
	jobs    map[string]*Job
	stopped bool

	// Pool state, nil/unused in inline mode.
	tasks  chan queuedTask
	group  *errgroup.Group
	cancel context.CancelFunc
}

// NewDispatcher builds a dispatcher. When the queue is enabled it starts the
// worker pool immediately; Stop must be called to drain it.
func NewDispatcher(cfg config.QueueConfig, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		cfg:    cfg,
		logger: logger.Named("dispatcher"),
		jobs:   make(map[string]*Job),
	}

	if cfg.Enabled {
		ctx, cancel := context.WithCancel(context.Background())
		d.cancel = cancel
		d.tasks = make(chan queuedTask, cfg.QueueSize)
		d.group, ctx = errgroup.WithContext(ctx)
		for i := 0; i < cfg.Workers; i++ {
			d.group.Go(func() error {
				d.runWorker(ctx)
				return nil
			})
		}
		d.logger.Info("Background worker pool started",
			zap.Int("workers", cfg.Workers),
			zap.Int("queue_size", cfg.QueueSize))
	} else {
		d.logger.Info("Background queue disabled, tasks will run inline")
	}

	return d
}

// Queued reports whether tasks run through the worker pool.
func (d *Dispatcher) Queued() bool { return d.cfg.Enabled }

// Submit registers a job and either runs it to completion inline or hands it
// to the pool. In inline mode the returned job is already terminal; in queued
// mode it starts out queued and callers poll Lookup for the outcome.
func (d *Dispatcher) Submit(ctx context.Context, name string, task Task) (*Job, error) {
	job := &Job{
		ID:          uuid.NewString(),
		Name:        name,
		Status:      StatusQueued,
		SubmittedAt: time.Now().UTC(),
	}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil, ErrStopped
	}
	d.jobs[job.ID] = job

	if !d.cfg.Enabled {
		d.mu.Unlock()
		d.execute(ctx, job.ID, task)
		return d.Lookup(job.ID), nil
	}

	// The send stays under the lock so Stop cannot close the channel
	// between the stopped check and the enqueue.
	select {
	case d.tasks <- queuedTask{jobID: job.ID, task: task}:
		cp := *job
		d.mu.Unlock()
		return &cp, nil
	default:
		delete(d.jobs, job.ID)
		d.mu.Unlock()
		return nil, ErrQueueFull
	}
}

// Lookup returns a copy of the job record, or nil if the ID is unknown.
func (d *Dispatcher) Lookup(id string) *Job {
	return d.snapshot(id)
}

func (d *Dispatcher) snapshot(id string) *Job {
	d.mu.RLock()
	defer d.mu.RUnlock()
	job, ok := d.jobs[id]
	if !ok {
		return nil
	}
	cp := *job
	return &cp
}

func (d *Dispatcher) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case qt, ok := <-d.tasks:
			if !ok {
				return
			}
			d.execute(ctx, qt.jobID, qt.task)
		}
	}
}

func (d *Dispatcher) execute(ctx context.Context, jobID string, task Task) {
	d.setStatus(jobID, StatusRunning, "")

	err := task(ctx)

	if err != nil {
		d.logger.Error("Background task failed", zap.String("job_id", jobID), zap.Error(err))
		d.setStatus(jobID, StatusFailed, err.Error())
		return
	}
	d.setStatus(jobID, StatusCompleted, "")
}

func (d *Dispatcher) setStatus(jobID string, status JobStatus, errMsg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	job, ok := d.jobs[jobID]
	if !ok {
		return
	}
	job.Status = status
	job.Error = errMsg
	if status == StatusCompleted || status == StatusFailed {
		now := time.Now().UTC()
		job.CompletedAt = &now
	}
}

// Stop shuts down the dispatcher; later Submit calls fail with ErrStopped.
// Queued tasks already in the channel are drained before the workers exit.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	if d.cfg.Enabled {
		close(d.tasks)
	}
	d.mu.Unlock()

	if !d.cfg.Enabled {
		return
	}
	d.group.Wait()
	d.cancel()
	d.logger.Info("Background worker pool stopped")
}
