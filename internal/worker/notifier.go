package worker

import (
	"context"
	"time"

	"github.com/refpoll/backend/internal/models"
	"github.com/refpoll/backend/pkg/queue"
)

// Enqueuer is the producer side of the export queue.
type Enqueuer interface {
	EnqueueResultsExport(ctx context.Context, payload queue.ResultsExportPayload) error
}

// ExportNotifier schedules a results export whenever a poll closes.
type ExportNotifier struct {
	queue Enqueuer
	now   func() time.Time
}

// NewExportNotifier creates an ExportNotifier.
func NewExportNotifier(q Enqueuer) *ExportNotifier {
	return &ExportNotifier{queue: q, now: time.Now}
}

// PollClosed enqueues an export job for p.
func (n *ExportNotifier) PollClosed(ctx context.Context, p models.Poll) error {
	return n.queue.EnqueueResultsExport(ctx, queue.ResultsExportPayload{
		PollID:   p.ID,
		Token:    p.Token,
		ClosedAt: n.now().UTC(),
	})
}
