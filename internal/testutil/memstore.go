// Package testutil provides in-memory stores and database helpers for tests.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/refpoll/backend/internal/apperr"
	"github.com/refpoll/backend/internal/ballots"
	"github.com/refpoll/backend/internal/models"
	"github.com/refpoll/backend/internal/polls"
)

// Store operation names accepted by MemStore.FailNext.
const (
	OpCreatePoll      = "CreatePoll"
	OpGetByToken      = "GetByToken"
	OpListByOwner     = "ListByOwner"
	OpTransitionState = "TransitionState"
	OpInsertBallot    = "InsertBallot"
	OpCountVotes      = "CountVotes"
)

// MemStore is a mutex-guarded implementation of polls.Store and
// ballots.Store with the same uniqueness and locking guarantees as the
// PostgreSQL repositories.
type MemStore struct {
	mu       sync.Mutex
	polls    map[uuid.UUID]*models.PollWithOptions
	byToken  map[string]uuid.UUID
	ballots  map[uuid.UUID][]models.Ballot
	refs     map[uuid.UUID]map[string]struct{}
	failures map[string][]error
	clock    time.Time
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		polls:    make(map[uuid.UUID]*models.PollWithOptions),
		byToken:  make(map[string]uuid.UUID),
		ballots:  make(map[uuid.UUID][]models.Ballot),
		refs:     make(map[uuid.UUID]map[string]struct{}),
		failures: make(map[string][]error),
		clock:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// FailNext makes the next call of op return err. Calls queue up.
func (s *MemStore) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], err)
}

// injected pops a queued failure for op. Caller holds mu.
func (s *MemStore) injected(op string) error {
	q := s.failures[op]
	if len(q) == 0 {
		return nil
	}
	s.failures[op] = q[1:]
	return q[0]
}

// tick returns a strictly increasing timestamp. Caller holds mu.
func (s *MemStore) tick() time.Time {
	s.clock = s.clock.Add(time.Millisecond)
	return s.clock
}

// CreatePoll implements polls.Store.
func (s *MemStore) CreatePoll(_ context.Context, p *models.Poll, options []string) (*models.PollWithOptions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpCreatePoll); err != nil {
		return nil, err
	}
	if _, taken := s.byToken[p.Token]; taken {
		return nil, polls.ErrTokenTaken
	}

	p.ID = uuid.New()
	p.CreatedAt = s.tick()
	stored := &models.PollWithOptions{Poll: *p}
	for i, text := range options {
		stored.Options = append(stored.Options, models.Option{ID: uuid.New(), PollID: p.ID, Text: text, Position: i})
	}
	s.polls[p.ID] = stored
	s.byToken[p.Token] = p.ID
	s.refs[p.ID] = make(map[string]struct{})
	return clonePoll(stored), nil
}

// GetByToken implements polls.Store.
func (s *MemStore) GetByToken(_ context.Context, token string) (*models.PollWithOptions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpGetByToken); err != nil {
		return nil, err
	}
	id, ok := s.byToken[token]
	if !ok {
		return nil, apperr.NotFound("poll not found")
	}
	return clonePoll(s.polls[id]), nil
}

// ListByOwner implements polls.Store.
func (s *MemStore) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]models.PollSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpListByOwner); err != nil {
		return nil, err
	}
	var list []models.PollSummary
	for _, p := range s.polls {
		if p.OwnerID != ownerID {
			continue
		}
		list = append(list, models.PollSummary{
			ID:            p.ID,
			Token:         p.Token,
			Title:         p.Title,
			OrganizerName: p.OrganizerName,
			SelectionMode: p.SelectionMode,
			State:         p.State,
			BallotCount:   len(s.ballots[p.ID]),
			CreatedAt:     p.CreatedAt,
		})
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID.String() > list[j].ID.String()
	})
	return list, nil
}

// TransitionState implements polls.Store.
func (s *MemStore) TransitionState(_ context.Context, token string, decide func(p models.Poll) (models.PollState, error)) (*models.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpTransitionState); err != nil {
		return nil, err
	}
	id, ok := s.byToken[token]
	if !ok {
		return nil, apperr.NotFound("poll not found")
	}
	p := s.polls[id]
	next, err := decide(p.Poll)
	if err != nil {
		return nil, err
	}
	p.State = next
	out := p.Poll
	return &out, nil
}

// InsertBallot implements ballots.Store.
func (s *MemStore) InsertBallot(_ context.Context, b *models.Ballot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpInsertBallot); err != nil {
		return err
	}
	p, ok := s.polls[b.PollID]
	if !ok {
		return apperr.NotFound("poll not found")
	}
	if p.State != models.PollStateActive {
		return ballots.ErrPollInactive
	}
	if _, dup := s.refs[b.PollID][b.VoterReference]; dup {
		return ballots.ErrDuplicateReference
	}
	for _, id := range b.OptionIDs {
		if !p.HasOption(id) {
			return errors.Errorf("option %s does not belong to poll %s", id, b.PollID)
		}
	}

	b.ID = uuid.New()
	b.SubmittedAt = s.tick()
	stored := *b
	stored.OptionIDs = append([]uuid.UUID(nil), b.OptionIDs...)
	s.ballots[b.PollID] = append(s.ballots[b.PollID], stored)
	s.refs[b.PollID][b.VoterReference] = struct{}{}
	return nil
}

// CountVotes implements ballots.Store.
func (s *MemStore) CountVotes(_ context.Context, pollID uuid.UUID) (ballots.Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(OpCountVotes); err != nil {
		return ballots.Counts{}, err
	}
	counts := ballots.Counts{PerOption: make(map[uuid.UUID]int)}
	if p, ok := s.polls[pollID]; ok {
		for _, o := range p.Options {
			counts.PerOption[o.ID] = 0
		}
	}
	for _, b := range s.ballots[pollID] {
		counts.Ballots++
		for _, id := range b.OptionIDs {
			counts.PerOption[id]++
		}
	}
	return counts, nil
}

// Ballots returns a copy of the ballots stored for pollID.
func (s *MemStore) Ballots(pollID uuid.UUID) []models.Ballot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Ballot(nil), s.ballots[pollID]...)
}

func clonePoll(p *models.PollWithOptions) *models.PollWithOptions {
	out := *p
	out.Options = append([]models.Option(nil), p.Options...)
	return &out
}
