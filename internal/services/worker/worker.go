// Package worker provides a background job processing system using goroutines.
//
// The pool is the usual Go shape:
// 1. A buffered channel acts as the job queue
// 2. N worker goroutines read from the channel
// 3. HTTP handlers send jobs to the channel without blocking
// 4. Workers convert PDFs concurrently and persist the result
//
// Each submitted job also gets a completion channel, so a handler can wait
// a bounded time for the result before answering with 202 Accepted.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Shimizu-Technology/pdf2xml-api/internal/database"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/models"
	"github.com/Shimizu-Technology/pdf2xml-api/internal/services/converter"
)

var (
	// ErrQueueFull is returned by Submit when the queue has no room.
	ErrQueueFull = errors.New("job queue is full; try again later")
	// ErrStopped is returned by Submit once Stop has been called.
	ErrStopped = errors.New("worker pool is stopped")
)

const shutdownMessage = "conversion cancelled: server shutting down"

// Job is one PDF to convert. The file bytes travel with the job; only the
// conversion record lives in the store.
type Job struct {
	ConversionID string
	UserID       string
	Filename     string
	Structure    models.StructureType
	Data         []byte
	CreatedAt    time.Time
}

// Notifier receives conversion lifecycle events.
type Notifier interface {
	NotifyEvent(ctx context.Context, userID, event string, data interface{})
}

// EventData is the webhook payload body for conversion events.
type EventData struct {
	ConversionID string             `json:"conversion_id"`
	Filename     string             `json:"filename"`
	Status       string             `json:"status"`
	PageCount    int                `json:"page_count,omitempty"`
	Statistics   *models.Statistics `json:"statistics,omitempty"`
	Error        string             `json:"error,omitempty"`
}

// Pool manages a pool of worker goroutines.
type Pool struct {
	jobs      chan Job
	workers   int
	store     database.ConversionStore
	converter converter.Converter
	notifier  Notifier
	logger    *logrus.Logger

	mu      sync.Mutex
	stopped bool
	waiters map[string]chan struct{} // closed when the job finishes

	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// NewPool creates a new worker pool.
func NewPool(workers, queueSize int, store database.ConversionStore, conv converter.Converter, logger *logrus.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		jobs:      make(chan Job, queueSize),
		workers:   workers,
		store:     store,
		converter: conv,
		logger:    logger,
		waiters:   make(map[string]chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetNotifier wires the webhook service into the pool.
func (p *Pool) SetNotifier(n Notifier) {
	p.notifier = n
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	p.logger.Infof("🚀 Starting %d background workers", p.workers)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop cancels in-flight conversions, fails jobs still queued, waits for
// the workers to exit and releases anyone still waiting on a job. Submit
// returns ErrStopped afterwards.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.logger.Info("⏹️  Stopping workers...")
		p.cancel()

		p.mu.Lock()
		p.stopped = true
		close(p.jobs)
		p.mu.Unlock()

		p.wg.Wait()
		for job := range p.jobs { // left over when Start was never called
			p.abandon(job)
		}

		p.mu.Lock()
		for id, ch := range p.waiters {
			close(ch)
			delete(p.waiters, id)
		}
		p.mu.Unlock()
		p.logger.Info("✅ All workers stopped")
	})
}

// Submit adds a job to the queue without blocking.
func (p *Pool) Submit(job Job) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrStopped
	}

	select {
	case p.jobs <- job:
		p.waiters[job.ConversionID] = make(chan struct{})
		p.logger.WithField("conversion_id", job.ConversionID).Debug("📥 Job queued")
		return nil
	default:
		return ErrQueueFull
	}
}

// Wait blocks until the job for conversionID finishes or ctx is done.
// It reports whether the job is no longer running. Unknown IDs count as
// finished; callers re-read the record either way.
func (p *Pool) Wait(ctx context.Context, conversionID string) bool {
	p.mu.Lock()
	done, ok := p.waiters[conversionID]
	p.mu.Unlock()
	if !ok {
		return true
	}

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// QueueSize returns the current number of jobs in the queue.
func (p *Pool) QueueSize() int {
	return len(p.jobs)
}

// WorkerCount returns the number of workers.
func (p *Pool) WorkerCount() int {
	return p.workers
}

func (p *Pool) finish(conversionID string) {
	p.mu.Lock()
	if ch, ok := p.waiters[conversionID]; ok {
		close(ch)
		delete(p.waiters, conversionID)
	}
	p.mu.Unlock()
}

// worker is the main loop for each worker goroutine.
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	log := p.logger.WithField("worker", id)
	log.Debug("👷 Worker started")

	for job := range p.jobs {
		if p.ctx.Err() != nil {
			p.abandon(job)
			continue
		}

		jlog := log.WithField("conversion_id", job.ConversionID)
		jlog.Info("👷 Processing conversion")

		if err := p.process(job); err != nil {
			jlog.WithError(err).Error("❌ Conversion failed")
		} else {
			jlog.Info("✅ Conversion completed")
		}
	}

	log.Debug("👷 Worker stopped")
}

// process runs one conversion and records its outcome. Store writes use a
// context that survives pool shutdown so a cancelled job is still marked.
func (p *Pool) process(job Job) (err error) {
	defer p.finish(job.ConversionID)

	dbCtx, cancel := context.WithTimeout(context.WithoutCancel(p.ctx), 30*time.Second)
	defer cancel()

	c, err := p.store.GetConversion(dbCtx, job.ConversionID)
	if err != nil {
		return fmt.Errorf("failed to get conversion: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("converter panicked: %v", r)
			p.fail(dbCtx, c, err)
		}
	}()

	c.Status = models.StatusProcessing
	if err := p.store.UpdateConversion(dbCtx, c); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	result, err := p.converter.Convert(p.ctx, job.Data, job.Structure)
	if err != nil {
		p.fail(dbCtx, c, err)
		return fmt.Errorf("conversion failed: %w", err)
	}

	meta, err := json.Marshal(result.Metadata)
	if err != nil {
		meta = []byte("{}")
	}

	c.Status = models.StatusCompleted
	c.PageCount = result.PageCount
	c.ConvertedXML = result.XML
	c.ApplyStatistics(result.Statistics)
	c.Metadata = meta
	c.ErrorMessage = ""

	if err := p.store.UpdateConversion(dbCtx, c); err != nil {
		return fmt.Errorf("failed to save conversion: %w", err)
	}

	stats := c.Statistics()
	p.notify(dbCtx, c.UserID, models.EventConversionCompleted, EventData{
		ConversionID: c.ID,
		Filename:     c.Filename,
		Status:       string(c.Status),
		PageCount:    c.PageCount,
		Statistics:   &stats,
	})
	return nil
}

// abandon marks a job that never ran as failed.
func (p *Pool) abandon(job Job) {
	defer p.finish(job.ConversionID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := p.store.GetConversion(ctx, job.ConversionID)
	if err != nil {
		p.logger.WithError(err).WithField("conversion_id", job.ConversionID).Warn("⚠️  Failed to load abandoned conversion")
		return
	}
	p.fail(ctx, c, errors.New(shutdownMessage))
}

func (p *Pool) fail(ctx context.Context, c *models.Conversion, cause error) {
	c.Status = models.StatusFailed
	c.ErrorMessage = cause.Error()
	if err := p.store.UpdateConversion(ctx, c); err != nil {
		p.logger.WithError(err).WithField("conversion_id", c.ID).Warn("⚠️  Failed to mark conversion as failed")
	}
	p.notify(ctx, c.UserID, models.EventConversionFailed, EventData{
		ConversionID: c.ID,
		Filename:     c.Filename,
		Status:       string(c.Status),
		Error:        c.ErrorMessage,
	})
}

func (p *Pool) notify(ctx context.Context, userID, event string, data EventData) {
	if p.notifier != nil {
		p.notifier.NotifyEvent(ctx, userID, event, data)
	}
}
