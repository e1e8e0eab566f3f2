package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/ops-tracker-api/internal/models"
	"github.com/noah-isme/ops-tracker-api/pkg/jobs"
)

const auditJobType = "audit.record"

// auditRecorder is what the dispatcher hands entries to.
type auditRecorder interface {
	Record(ctx context.Context, entry models.AuditLog)
}

// AuditDispatcherConfig sizes the background pool.
type AuditDispatcherConfig struct {
	Workers      int
	BufferSize   int
	WriteTimeout time.Duration
}

// AuditDispatcher moves audit persistence off the request path. Submit never
// blocks; when the buffer is full the entry is dropped and counted.
type AuditDispatcher struct {
	queue        *jobs.Queue
	recorder     auditRecorder
	metrics      *MetricsService
	logger       *zap.Logger
	writeTimeout time.Duration
}

// NewAuditDispatcher builds the dispatcher and its queue. Call Start before
// submitting.
func NewAuditDispatcher(recorder auditRecorder, metrics *MetricsService, logger *zap.Logger, cfg AuditDispatcherConfig) *AuditDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	d := &AuditDispatcher{recorder: recorder, metrics: metrics, logger: logger, writeTimeout: cfg.WriteTimeout}
	d.queue = jobs.NewQueue("audit", d.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: 0,
		Logger:     logger,
	})
	metrics.TrackAuditQueue(d.queue.Depth)
	return d
}

// Start launches the workers. ctx bounds their lifetime, not any request's.
func (d *AuditDispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Submit schedules entry for persistence.
func (d *AuditDispatcher) Submit(entry models.AuditLog) {
	err := d.queue.TryEnqueue(jobs.Job{ID: uuid.NewString(), Type: auditJobType, Payload: entry})
	if err != nil {
		d.logger.Warn("audit entry dropped", zap.String("action", string(entry.Action)), zap.Error(err))
		d.metrics.RecordAudit(AuditResultDropped)
	}
}

// Depth reports how many entries are waiting.
func (d *AuditDispatcher) Depth() int {
	return d.queue.Depth()
}

// Shutdown stops accepting entries and waits for buffered ones until ctx ends.
func (d *AuditDispatcher) Shutdown(ctx context.Context) {
	d.queue.Shutdown(ctx)
}

func (d *AuditDispatcher) handle(ctx context.Context, job jobs.Job) error {
	entry, ok := job.Payload.(models.AuditLog)
	if !ok {
		return fmt.Errorf("unexpected audit payload %T", job.Payload)
	}
	// The write outlives worker cancellation; only writeTimeout bounds it.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.writeTimeout)
	defer cancel()
	d.recorder.Record(writeCtx, entry)
	return nil
}
