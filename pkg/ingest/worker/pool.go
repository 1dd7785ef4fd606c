// Package worker provides an asynchronous worker pool for running document
// ingestion off the API's HTTP hot path. Submitting a document returns
// immediately; chunking, embedding, and vector writes happen in the
// background.
package worker

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/papercomputeco/recall/pkg/ingest"
	"github.com/papercomputeco/recall/pkg/storage"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Ingestor runs one ingestion. Satisfied by *ingest.Pipeline.
type Ingestor interface {
	Ingest(ctx context.Context, tenant storage.Tenant, req ingest.Request) (ingest.Result, error)
}

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	Tenant  storage.Tenant
	Request ingest.Request
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Ingestor runs the ingestion for each job.
	Ingestor Ingestor

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool processes ingestion jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Ingestor == nil {
		return nil, fmt.Errorf("ingestor is required")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("ingest job queued",
			zap.String("tenant_id", job.Tenant.ID.String()),
			zap.String("title", job.Request.Title),
		)
		return true
	default:
		p.logger.Error("ingest job not queued, queue full, job dropped",
			zap.String("tenant_id", job.Tenant.ID.String()),
			zap.String("title", job.Request.Title),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the API server has stopped.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("ingest worker stopped", zap.Uint("worker_id", id))
}

// processJob runs one ingestion. Failures are logged; there is no caller
// left to return them to.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	result, err := p.config.Ingestor.Ingest(ctx, job.Tenant, job.Request)
	if err != nil {
		p.logger.Error("async ingest failed",
			zap.String("tenant_id", job.Tenant.ID.String()),
			zap.String("title", job.Request.Title),
			zap.Error(err),
		)
		return
	}

	p.logger.Info("async ingest completed",
		zap.String("document_id", result.Document.ID.String()),
		zap.Int("chunks", result.ChunkCount),
	)
}
