// Package polls owns poll definitions and their active/closed lifecycle.
package polls

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/refpoll/backend/internal/apperr"
	"github.com/refpoll/backend/internal/models"
	"github.com/refpoll/backend/pkg/metrics"
	"github.com/refpoll/backend/pkg/utils"
)

const (
	// MinOptions is the minimum number of non-empty options of a poll.
	MinOptions = 2
	// MaxTextLength bounds title, organizer name, options and hint (runes).
	MaxTextLength = 255

	maxTokenAttempts = 5
	notifyTimeout    = 5 * time.Second
)

// ErrTokenTaken is returned by Store.CreatePoll when the public token is
// already used by another poll.
var ErrTokenTaken = errors.New("poll token already in use")

// Store persists polls.
//
// CreatePoll must write the poll and all its options in one transaction.
// TransitionState must hold a write lock on the poll row while decide runs
// and persist the state decide returns.
type Store interface {
	CreatePoll(ctx context.Context, p *models.Poll, options []string) (*models.PollWithOptions, error)
	GetByToken(ctx context.Context, token string) (*models.PollWithOptions, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.PollSummary, error)
	TransitionState(ctx context.Context, token string, decide func(p models.Poll) (models.PollState, error)) (*models.Poll, error)
}

// ClosedNotifier is told about every poll that was just closed.
type ClosedNotifier interface {
	PollClosed(ctx context.Context, p models.Poll) error
}

// Config tunes the registry.
type Config struct {
	// StoreTimeout bounds every storage call. Zero means no extra bound.
	StoreTimeout time.Duration
	// TokenBytes is the entropy of public tokens.
	TokenBytes int
}

// CreateInput is what an organizer supplies to create a poll.
type CreateInput struct {
	Title         string
	OrganizerName string
	Options       []string
	SelectionMode models.SelectionMode
	ReferenceHint string
}

// Registry creates, looks up and opens/closes polls.
type Registry struct {
	store    Store
	cfg      Config
	newToken func() (string, error)
	notifier ClosedNotifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewRegistry creates a poll registry.
func NewRegistry(store Store, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{store: store, cfg: cfg, metrics: m, logger: logger}
	r.newToken = func() (string, error) { return utils.NewToken(cfg.TokenBytes) }
	return r
}

// SetClosedNotifier sets the hook run after a poll is closed.
func (r *Registry) SetClosedNotifier(n ClosedNotifier) {
	r.notifier = n
}

// SetTokenSource replaces the public token generator.
func (r *Registry) SetTokenSource(fn func() (string, error)) {
	r.newToken = fn
}

func (r *Registry) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.cfg.StoreTimeout)
}

// CreatePoll validates in and stores a new active poll owned by owner.
func (r *Registry) CreatePoll(ctx context.Context, owner uuid.UUID, in CreateInput) (*models.PollWithOptions, error) {
	p, options, err := normalize(in)
	if err != nil {
		return nil, err
	}
	p.OwnerID = owner
	p.State = models.PollStateActive

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	for attempt := 1; attempt <= maxTokenAttempts; attempt++ {
		token, err := r.newToken()
		if err != nil {
			return nil, errors.Wrap(err, "generate poll token")
		}
		p.Token = token

		created, err := r.store.CreatePoll(ctx, p, options)
		if errors.Is(err, ErrTokenTaken) {
			r.logger.Warn("poll token collision, regenerating", zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, apperr.FromStore("create poll", err)
		}

		r.metrics.ObservePollCreated()
		r.logger.Info("poll created",
			zap.String("poll_id", created.ID.String()),
			zap.String("owner_id", owner.String()),
			zap.Int("options", len(created.Options)),
			zap.String("selection_mode", string(created.SelectionMode)),
		)
		return created, nil
	}
	return nil, errors.Errorf("no unique poll token after %d attempts", maxTokenAttempts)
}

func normalize(in CreateInput) (*models.Poll, []string, error) {
	title := strings.TrimSpace(in.Title)
	organizer := strings.TrimSpace(in.OrganizerName)
	hint := strings.TrimSpace(in.ReferenceHint)
	if title == "" {
		return nil, nil, apperr.Validation("title is required")
	}
	if organizer == "" {
		return nil, nil, apperr.Validation("organizer name is required")
	}
	if tooLong(title) || tooLong(organizer) || tooLong(hint) {
		return nil, nil, apperr.Validation("text fields are limited to 255 characters")
	}

	mode := in.SelectionMode
	if mode == "" {
		mode = models.SelectionMultiple
	}
	if !mode.Valid() {
		return nil, nil, apperr.Validation("selection mode must be single or multiple")
	}

	options := make([]string, 0, len(in.Options))
	for _, o := range in.Options {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if tooLong(o) {
			return nil, nil, apperr.Validation("options are limited to 255 characters")
		}
		options = append(options, o)
	}
	if len(options) < MinOptions {
		return nil, nil, apperr.Validation("at least 2 non-empty options are required")
	}

	return &models.Poll{
		Title:         title,
		OrganizerName: organizer,
		SelectionMode: mode,
		ReferenceHint: hint,
	}, options, nil
}

func tooLong(s string) bool {
	return utf8.RuneCountInString(s) > MaxTextLength
}

// GetPollByToken returns the poll behind a public token with its options.
// The result carries internal identifiers; render it with ToPublic for
// unauthenticated callers.
func (r *Registry) GetPollByToken(ctx context.Context, token string) (*models.PollWithOptions, error) {
	if token == "" {
		return nil, apperr.NotFound("poll not found")
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	p, err := r.store.GetByToken(ctx, token)
	if err != nil {
		return nil, apperr.FromStore("get poll", err)
	}
	return p, nil
}

// ListPollsForOwner returns owner's polls, newest first.
func (r *Registry) ListPollsForOwner(ctx context.Context, owner uuid.UUID) ([]models.PollSummary, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	list, err := r.store.ListByOwner(ctx, owner)
	if err != nil {
		return nil, apperr.FromStore("list polls", err)
	}
	if list == nil {
		list = []models.PollSummary{}
	}
	return list, nil
}

// SetState moves the poll to target on behalf of owner. Redundant
// transitions are rejected with a conflict.
func (r *Registry) SetState(ctx context.Context, token string, owner uuid.UUID, target models.PollState) (models.PollState, error) {
	if !target.Valid() {
		return "", apperr.Validation("state must be active or closed")
	}
	if token == "" {
		return "", apperr.NotFound("poll not found")
	}

	tctx, cancel := r.withTimeout(ctx)
	p, err := r.store.TransitionState(tctx, token, func(current models.Poll) (models.PollState, error) {
		if current.OwnerID != owner {
			return "", apperr.Forbidden("only the poll owner can change its state")
		}
		if current.State == target {
			return "", apperr.Conflict("poll is already " + string(target))
		}
		return target, nil
	})
	cancel()
	if err != nil {
		if k := apperr.KindOf(err); k == apperr.KindForbidden || k == apperr.KindConflict {
			r.logger.Info("poll state change rejected",
				zap.String("caller_id", owner.String()),
				zap.String("target", string(target)),
				zap.String("reason", k.String()),
			)
		}
		return "", apperr.FromStore("set poll state", err)
	}

	r.metrics.ObserveTransition(string(p.State))
	r.logger.Info("poll state changed", zap.String("poll_id", p.ID.String()), zap.String("state", string(p.State)))

	if p.State == models.PollStateClosed && r.notifier != nil {
		// The close is already committed, so this outlives the request.
		nctx, ncancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		err := r.notifier.PollClosed(nctx, *p)
		ncancel()
		if err != nil {
			r.logger.Error("poll closed notification failed", zap.String("poll_id", p.ID.String()), zap.Error(err))
		}
	}
	return p.State, nil
}
