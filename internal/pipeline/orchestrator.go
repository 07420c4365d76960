package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/docstruct/internal/config"
	"github.com/dgallion1/docstruct/internal/metrics"
)

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("orchestrator stopped")

const cleanupInterval = 5 * time.Minute

// Orchestrator owns the job registry, the bounded queue and the workers
// draining it.
type Orchestrator struct {
	jobs    *JobStore
	queue   chan *Job
	worker  *Worker
	metrics *metrics.Metrics
	log     *slog.Logger
	cfg     config.Config

	mu      sync.RWMutex // guards stopped and sends on queue
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewOrchestrator(cfg config.Config, w *Worker, m *metrics.Metrics, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:    NewJobStore(cfg.JobTTL),
		queue:   make(chan *Job, cfg.MaxQueueSize),
		worker:  w,
		metrics: m,
		log:     log,
		cfg:     cfg,
	}
}

// Start launches WorkerCount workers and the registry cleanup loop.
func (o *Orchestrator) Start(ctx context.Context) {
	ctx, o.cancel = context.WithCancel(ctx)

	for i := range o.cfg.WorkerCount {
		o.wg.Add(1)
		go o.run(ctx, o.log.With("worker", i))
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				before := o.jobs.Len()
				o.jobs.Cleanup()
				if evicted := before - o.jobs.Len(); evicted > 0 {
					o.log.Debug("evicted expired jobs", "count", evicted)
				}
			}
		}
	}()
}

func (o *Orchestrator) run(ctx context.Context, log *slog.Logger) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-o.queue:
			if !ok {
				return
			}
			o.metrics.SetQueueDepth(len(o.queue))
			start := time.Now()
			o.worker.Process(ctx, job)
			log.Debug("job finished", "job_id", job.ID, "status", job.Snapshot().Status,
				"duration_ms", time.Since(start).Milliseconds())
		}
	}
}

// Stop cancels in-flight work, waits for the workers and fails every job
// still waiting in the queue. It is safe to call more than once.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	close(o.queue)
	o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()

	abandoned := 0
	for job := range o.queue {
		job.AddError("service shutting down")
		job.SetStatus(StatusFailed, "shutdown")
		job.releaseFileData()
		abandoned++
	}
	o.metrics.SetQueueDepth(0)
	if abandoned > 0 {
		o.log.Warn("abandoned queued jobs on shutdown", "count", abandoned)
	}
}

// Submit registers job and queues it. It fails fast when the queue is full
// or the orchestrator has stopped; the job is then marked failed.
func (o *Orchestrator) Submit(job *Job) error {
	o.jobs.Put(job)

	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.stopped {
		job.AddError(ErrStopped.Error())
		job.SetStatus(StatusFailed, "shutdown")
		return ErrStopped
	}
	select {
	case o.queue <- job:
		o.metrics.SetQueueDepth(len(o.queue))
		return nil
	default:
		job.AddError("queue full")
		job.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("job queue is full (%d)", o.cfg.MaxQueueSize)
	}
}

// GetJob returns a tracked job, or nil.
func (o *Orchestrator) GetJob(id string) *Job {
	return o.jobs.Get(id)
}

// QueueDepth is the number of jobs waiting for a worker.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}
