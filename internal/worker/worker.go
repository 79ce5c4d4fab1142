package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lecturely/backend/internal/audit"
	"github.com/lecturely/backend/pkg/queue"
)

// JobSource is the queue the replayer drains.
type JobSource interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// AuditReplayer re-inserts audit entries that were spooled because the direct write failed.
type AuditReplayer struct {
	store   audit.Store
	queue   JobSource
	backoff time.Duration
	logger  *zap.Logger
}

// NewAuditReplayer creates an audit replay worker.
func NewAuditReplayer(store audit.Store, q JobSource, logger *zap.Logger) *AuditReplayer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditReplayer{store: store, queue: q, backoff: queue.RetryBackoff, logger: logger}
}

// Process executes one audit replay job.
func (p *AuditReplayer) Process(ctx context.Context, job *queue.Job) error {
	entry, err := queue.DecodeAudit(job)
	if err != nil {
		return err
	}
	if err := p.store.Insert(ctx, entry); err != nil {
		return err
	}
	p.logger.Info("audit entry replayed",
		zap.String("audit_id", entry.ID.String()),
		zap.String("action", entry.Action),
		zap.Int("attempt", job.Attempt),
	)
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *AuditReplayer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("audit worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(context.WithoutCancel(ctx), job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *AuditReplayer) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
