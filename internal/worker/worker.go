package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/refpoll/backend/internal/models"
	"github.com/refpoll/backend/pkg/queue"
	"github.com/refpoll/backend/pkg/storage"
)

// ResultsSource computes the tally of a poll.
type ResultsSource interface {
	ComputeResults(ctx context.Context, token string) (*models.Results, error)
}

// Uploader stores an export document and returns its URL.
type Uploader interface {
	UploadResults(ctx context.Context, key string, body io.Reader, size int64) (string, error)
}

// JobQueue is the consumer side of the export queue.
type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Export is the document written for a closed poll.
type Export struct {
	PollID     string          `json:"poll_id"`
	ClosedAt   time.Time       `json:"closed_at"`
	ExportedAt time.Time       `json:"exported_at"`
	Results    *models.Results `json:"results"`
}

// ExportProcessor processes results export jobs: compute the tally, upload it to S3.
type ExportProcessor struct {
	results  ResultsSource
	uploader Uploader
	queue    JobQueue
	backoff  time.Duration
	poll     time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewExportProcessor creates a results export processor.
func NewExportProcessor(results ResultsSource, uploader Uploader, q JobQueue, logger *zap.Logger) *ExportProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportProcessor{
		results:  results,
		uploader: uploader,
		queue:    q,
		backoff:  queue.RetryBackoff,
		poll:     5 * time.Second,
		now:      time.Now,
		logger:   logger,
	}
}

// SetBackoff changes the pause after a failed job or dequeue.
func (p *ExportProcessor) SetBackoff(d time.Duration) {
	p.backoff = d
}

// Process executes one export job.
func (p *ExportProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeResultsExport {
		return errors.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ResultsExportPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return errors.Wrap(err, "unmarshal payload")
	}

	res, err := p.results.ComputeResults(ctx, payload.Token)
	if err != nil {
		return errors.Wrap(err, "compute results")
	}

	now := p.now().UTC()
	body, err := json.Marshal(Export{
		PollID:     payload.PollID.String(),
		ClosedAt:   payload.ClosedAt,
		ExportedAt: now,
		Results:    res,
	})
	if err != nil {
		return errors.Wrap(err, "marshal export")
	}

	key := storage.ResultsKey(payload.Token, now)
	url, err := p.uploader.UploadResults(ctx, key, bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return errors.Wrap(err, "s3 upload")
	}

	p.logger.Info("results export completed",
		zap.String("poll_id", payload.PollID.String()),
		zap.Int("ballots", res.BallotCount),
		zap.String("url", url),
	)
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ExportProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("export worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx, p.poll)
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
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *ExportProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
