// Package ballots accepts anonymous ballots for active polls and tallies them.
package ballots

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/refpoll/backend/internal/apperr"
	"github.com/refpoll/backend/internal/models"
	"github.com/refpoll/backend/pkg/metrics"
)

var (
	// ErrDuplicateReference is returned by Store.InsertBallot when the poll
	// already holds a ballot under the same voter reference.
	ErrDuplicateReference = errors.New("voter reference already used")
	// ErrPollInactive is returned by Store.InsertBallot when the poll was
	// closed before the ballot could be written.
	ErrPollInactive = errors.New("poll is not active")
)

// Outcome labels recorded for submissions.
const (
	OutcomeAccepted   = "accepted"
	OutcomeValidation = "validation"
	OutcomeDuplicate  = "duplicate"
	OutcomeInactive   = "inactive"
	OutcomeNotFound   = "not_found"
	OutcomeTransient  = "transient"
	OutcomeError      = "error"
)

// PollSource resolves polls by public token.
type PollSource interface {
	GetPollByToken(ctx context.Context, token string) (*models.PollWithOptions, error)
}

// Counts is one consistent snapshot of a poll's tally.
type Counts struct {
	Ballots   int
	PerOption map[uuid.UUID]int
}

// Store persists ballots.
//
// InsertBallot must write the ballot and its selections atomically, fail
// with ErrDuplicateReference when (poll, reference) is taken even under
// concurrent inserts, and fail with ErrPollInactive when the poll is not
// active at write time.
type Store interface {
	InsertBallot(ctx context.Context, b *models.Ballot) error
	CountVotes(ctx context.Context, pollID uuid.UUID) (Counts, error)
}

// ResultsCache stores computed results. Generation changes whenever a
// ballot is accepted so stale entries are never served.
type ResultsCache interface {
	Generation(ctx context.Context, token string) (int64, error)
	Get(ctx context.Context, token string, gen int64) (*models.Results, bool, error)
	Put(ctx context.Context, token string, gen int64, res *models.Results) error
	Bump(ctx context.Context, token string) error
}

// Config tunes the engine.
type Config struct {
	// StoreTimeout bounds every storage call. Zero means no extra bound.
	StoreTimeout time.Duration
}

// SubmitInput is one voter's submission.
type SubmitInput struct {
	VoterName      string
	VoterReference string
	OptionIDs      []string
}

// Engine validates and records ballots and computes results.
type Engine struct {
	polls   PollSource
	store   Store
	cache   ResultsCache
	cfg     Config
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewEngine creates a ballot engine.
func NewEngine(polls PollSource, store Store, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{polls: polls, store: store, cfg: cfg, now: time.Now, metrics: m, logger: logger}
}

// SetCache enables results caching.
func (e *Engine) SetCache(c ResultsCache) {
	e.cache = c
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.StoreTimeout)
}

// SubmitBallot validates in against the poll behind token and records it.
// Checks run in a fixed order and the first failure is returned.
func (e *Engine) SubmitBallot(ctx context.Context, token string, in SubmitInput) error {
	err := e.submit(ctx, token, in)
	e.metrics.ObserveBallot(outcome(err))
	return err
}

func (e *Engine) submit(ctx context.Context, token string, in SubmitInput) error {
	p, err := e.polls.GetPollByToken(ctx, token)
	if err != nil {
		return err
	}

	if p.State != models.PollStateActive {
		return &apperr.Error{Kind: apperr.KindConflict, Message: "poll is not accepting submissions", Err: ErrPollInactive}
	}

	if strings.TrimSpace(in.VoterName) == "" {
		return apperr.Validation("voter name is required")
	}
	if in.VoterReference == "" {
		return apperr.Validation("voter reference is required")
	}
	if len(in.OptionIDs) == 0 {
		return apperr.Validation("select at least one option")
	}

	if p.SelectionMode == models.SelectionSingle && len(in.OptionIDs) > 1 {
		return apperr.Validation("this poll accepts a single option")
	}

	selected, err := resolveOptions(p, in.OptionIDs)
	if err != nil {
		return err
	}

	b := &models.Ballot{
		PollID:         p.ID,
		VoterName:      strings.TrimSpace(in.VoterName),
		VoterReference: in.VoterReference,
		OptionIDs:      selected,
	}

	sctx, cancel := e.withTimeout(ctx)
	err = e.store.InsertBallot(sctx, b)
	cancel()
	switch {
	case errors.Is(err, ErrDuplicateReference):
		return &apperr.Error{Kind: apperr.KindConflict, Message: "already voted", Err: ErrDuplicateReference}
	case errors.Is(err, ErrPollInactive):
		return &apperr.Error{Kind: apperr.KindConflict, Message: "poll is not accepting submissions", Err: ErrPollInactive}
	case err != nil:
		err = apperr.FromStore("insert ballot", err)
		if apperr.Is(err, apperr.KindTransient) {
			e.logger.Warn("ballot submission outcome unknown", zap.String("poll_id", p.ID.String()), zap.Error(err))
			return apperr.Transient("submission outcome unknown, verify before retrying", err)
		}
		return err
	}

	if e.cache != nil {
		if err := e.cache.Bump(ctx, token); err != nil {
			e.logger.Warn("results cache invalidation failed", zap.String("poll_id", p.ID.String()), zap.Error(err))
		}
	}
	e.logger.Info("ballot accepted",
		zap.String("poll_id", p.ID.String()),
		zap.String("ballot_id", b.ID.String()),
		zap.Int("selections", len(b.OptionIDs)),
	)
	return nil
}

// resolveOptions maps raw ids onto the poll's options. Unknown, malformed
// and repeated ids are all rejected.
func resolveOptions(p *models.PollWithOptions, raw []string) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]struct{}, len(raw))
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(strings.TrimSpace(s))
		if err != nil || !p.HasOption(id) {
			return nil, apperr.Validation("selected option does not belong to this poll")
		}
		if _, dup := seen[id]; dup {
			return nil, apperr.Validation("an option was selected more than once")
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func outcome(err error) string {
	if err == nil {
		return OutcomeAccepted
	}
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return OutcomeValidation
	case apperr.KindNotFound:
		return OutcomeNotFound
	case apperr.KindTransient:
		return OutcomeTransient
	case apperr.KindConflict:
		if errors.Is(err, ErrDuplicateReference) {
			return OutcomeDuplicate
		}
		return OutcomeInactive
	}
	return OutcomeError
}

// ComputeResults tallies the poll behind token. Every option is listed,
// most votes first, ties in option order.
func (e *Engine) ComputeResults(ctx context.Context, token string) (*models.Results, error) {
	p, err := e.polls.GetPollByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	var gen int64
	cached := false
	if e.cache != nil {
		gen, err = e.cache.Generation(ctx, token)
		if err == nil {
			res, hit, gerr := e.cache.Get(ctx, token, gen)
			if gerr != nil {
				e.logger.Warn("results cache read failed", zap.String("poll_id", p.ID.String()), zap.Error(gerr))
			}
			e.metrics.ObserveCache(hit)
			if hit {
				res.State = p.State
				return res, nil
			}
			cached = gerr == nil
		} else {
			e.logger.Warn("results cache generation failed", zap.String("poll_id", p.ID.String()), zap.Error(err))
		}
	}

	sctx, cancel := e.withTimeout(ctx)
	counts, err := e.store.CountVotes(sctx, p.ID)
	cancel()
	if err != nil {
		return nil, apperr.FromStore("count votes", err)
	}

	res := Tally(p, counts, e.now().UTC())
	if cached {
		if err := e.cache.Put(ctx, token, gen, res); err != nil {
			e.logger.Warn("results cache write failed", zap.String("poll_id", p.ID.String()), zap.Error(err))
		}
	}
	return res, nil
}

// Tally builds results from a count snapshot. p.Options must be in
// position order.
func Tally(p *models.PollWithOptions, counts Counts, at time.Time) *models.Results {
	options := make([]models.OptionTally, len(p.Options))
	for i, o := range p.Options {
		options[i] = models.OptionTally{OptionID: o.ID, Text: o.Text, Votes: counts.PerOption[o.ID]}
	}
	sort.SliceStable(options, func(i, j int) bool {
		return options[i].Votes > options[j].Votes
	})
	return &models.Results{
		Token:         p.Token,
		Title:         p.Title,
		OrganizerName: p.OrganizerName,
		State:         p.State,
		BallotCount:   counts.Ballots,
		Options:       options,
		ComputedAt:    at,
	}
}
