package workerpool

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/memento-graph/memento/internal/graphmodel"
	"github.com/memento-graph/memento/internal/logging"
)

// Config configures one Pool, per-type concurrency mirroring
// PipelineConfig.Workers.
type Config struct {
	Concurrency    map[TaskType]int
	DequeueTimeout time.Duration
	MaxBackoff     time.Duration
	DrainGrace     time.Duration
}

// DefaultConfig returns the spec §6 default worker counts.
func DefaultConfig() Config {
	return Config{
		Concurrency: map[TaskType]int{
			TaskParser:       4,
			TaskEntity:       4,
			TaskRelationship: 4,
			TaskEmbedding:    2,
		},
		DequeueTimeout: 5 * time.Second,
		MaxBackoff:     30 * time.Second,
		DrainGrace:     10 * time.Second,
	}
}

// Pool runs a configurable number of workers per TaskType against a shared
// Queue, each dispatching to the Processor registered for its type.
// Grounded on worker/pool.go's Pool/Worker split: one goroutine per worker,
// a shared stop channel, graceful Stop draining via a WaitGroup instead of
// the teacher's bare close(stopChan) with no drain wait.
type Pool struct {
	cfg        Config
	queue      Queue
	processors map[TaskType]Processor
	log        *logrus.Entry

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}

	mu      sync.Mutex
	metrics Metrics
}

// Metrics tracks simple mutex-guarded counters for telemetry to sample.
type Metrics struct {
	Completed int64
	Failed    int64
	Active    int64
}

// New builds a Pool. processors must have an entry for every TaskType with
// nonzero concurrency in cfg.
func New(queue Queue, processors map[TaskType]Processor, cfg Config, log *logrus.Entry) *Pool {
	return &Pool{
		cfg:        cfg,
		queue:      queue,
		processors: processors,
		log:        logging.OrDefault(log, "workerpool"),
		stopCh:     make(chan struct{}),
	}
}

// Start launches cfg.Concurrency[type] goroutines per task type.
func (p *Pool) Start() {
	for taskType, n := range p.cfg.Concurrency {
		proc := p.processors[taskType]
		if proc == nil {
			p.log.WithField("taskType", taskType).Warn("no processor registered, skipping")
			continue
		}
		for i := 0; i < n; i++ {
			p.wg.Add(1)
			go p.runWorker(taskType, i, proc)
		}
	}
}

// Stop signals every worker to drain and blocks up to cfg.DrainGrace for
// them to finish their current task before returning. Workers still running
// after the grace period are abandoned (their tasks remain marked processing
// and are recoverable via Queue.StuckTasks-style reconciliation).
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(p.cfg.DrainGrace):
		p.log.Warn("worker pool drain grace period elapsed, some workers still running")
	}
}

// Metrics returns a snapshot of completed/failed/active task counters.
func (p *Pool) Metrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}

func (p *Pool) runWorker(taskType TaskType, id int, proc Processor) {
	defer p.wg.Done()
	wlog := p.log.WithFields(logrus.Fields{"taskType": taskType, "worker": id})
	wlog.Info("worker started")

	for {
		select {
		case <-p.stopCh:
			wlog.Info("worker stopped")
			return
		default:
		}

		task, err := p.queue.Dequeue(taskType, p.cfg.DequeueTimeout)
		if err != nil {
			wlog.WithError(err).Error("dequeue failed")
			continue
		}
		if task == nil {
			continue // timeout, no task available
		}

		p.process(wlog, proc, task)
	}
}

func (p *Pool) process(wlog *logrus.Entry, proc Processor, task *Task) {
	deadline := time.Now().Add(proc.Timeout(task))
	if err := p.queue.MarkProcessing(task.ID, deadline); err != nil {
		wlog.WithError(err).WithField("task", task.ID).Error("failed to mark task processing, re-enqueuing")
		p.queue.Enqueue(task)
		return
	}

	p.mu.Lock()
	p.metrics.Active++
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), proc.Timeout(task))
	err := proc.Process(ctx, task)
	cancel()

	p.mu.Lock()
	p.metrics.Active--
	p.mu.Unlock()

	if err == nil {
		if cerr := p.queue.CompleteTask(task.ID); cerr != nil {
			wlog.WithError(cerr).Error("failed to mark task complete")
		}
		p.mu.Lock()
		p.metrics.Completed++
		p.mu.Unlock()
		return
	}

	p.handleFailure(wlog, task, err)
}

// handleFailure retries task.RetryCount < task.MaxRetries with exponential
// backoff capped at cfg.MaxBackoff, replacing worker/pool.go's fixed
// time.Sleep(1*time.Second) between failures.
func (p *Pool) handleFailure(wlog *logrus.Entry, task *Task, procErr error) {
	wlog.WithError(procErr).WithField("task", task.ID).Warn("task processing failed")

	if task.RetryCount >= task.MaxRetries {
		workerErr := &graphmodel.WorkerError{TaskID: task.ID, Cause: procErr, Retryable: false}
		wlog.WithError(workerErr).Error("task exhausted retries")
		if err := p.queue.FailTask(task.ID, false, task.Type, task.RetryCount); err != nil {
			wlog.WithError(err).Error("failed to mark task failed")
		}
		p.mu.Lock()
		p.metrics.Failed++
		p.mu.Unlock()
		return
	}

	delay := backoffDelay(task.RetryCount, p.cfg.MaxBackoff)
	wlog.WithField("delay", delay).WithField("task", task.ID).Info("retrying after backoff")
	time.Sleep(delay)

	// Requeue a copy of the task itself so Data, Priority and MaxRetries
	// survive the retry; FailTask only clears the processing entry here.
	if err := p.queue.FailTask(task.ID, false, task.Type, task.RetryCount); err != nil {
		wlog.WithError(err).Error("failed to clear processing entry for retry")
	}
	retry := *task
	retry.RetryCount++
	if err := p.queue.Enqueue(&retry); err != nil {
		wlog.WithError(err).Error("failed to requeue task for retry")
	}
}

// backoffDelay computes the next exponential backoff interval for a given
// retry attempt, capped at max, using cenkalti/backoff/v4's ExponentialBackOff
// rather than hand-rolling 2^n arithmetic.
func backoffDelay(attempt int, max time.Duration) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = max
	b.MaxElapsedTime = 0 // never stop producing intervals

	var d time.Duration
	for i := 0; i <= attempt; i++ {
		d = b.NextBackOff()
	}
	if d > max {
		d = max
	}
	return d
}
