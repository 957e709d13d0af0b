package polls_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refpoll/backend/internal/apperr"
	"github.com/refpoll/backend/internal/models"
	"github.com/refpoll/backend/internal/polls"
	"github.com/refpoll/backend/internal/testutil"
)

type closedRecorder struct {
	mu     sync.Mutex
	closed []models.Poll
	err    error
}

func (r *closedRecorder) PollClosed(_ context.Context, p models.Poll) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, p)
	return r.err
}

func newRegistry() (*polls.Registry, *testutil.MemStore) {
	store := testutil.NewMemStore()
	return polls.NewRegistry(store, polls.Config{TokenBytes: 24}, nil, nil), store
}

func validInput() polls.CreateInput {
	return polls.CreateInput{
		Title:         "Lunch",
		OrganizerName: "Dana",
		Options:       []string{"Pizza", "Sushi"},
		SelectionMode: models.SelectionSingle,
	}
}

func TestCreatePoll(t *testing.T) {
	t.Run("all fine", func(t *testing.T) {
		assert := assert.New(t)
		reg, _ := newRegistry()
		owner := uuid.New()

		in := validInput()
		in.Title = "  Lunch  "
		in.Options = []string{" Pizza ", "", "Sushi", "   "}
		in.ReferenceHint = "employee id"
		p, err := reg.CreatePoll(context.Background(), owner, in)

		require.NoError(t, err)
		assert.Equal("Lunch", p.Title)
		assert.Equal("Dana", p.OrganizerName)
		assert.Equal(owner, p.OwnerID)
		assert.Equal(models.PollStateActive, p.State)
		assert.Equal(models.SelectionSingle, p.SelectionMode)
		assert.Equal("employee id", p.ReferenceHint)
		assert.Len(p.Token, 32)
		require.Len(t, p.Options, 2)
		assert.Equal("Pizza", p.Options[0].Text)
		assert.Equal(0, p.Options[0].Position)
		assert.Equal("Sushi", p.Options[1].Text)
		assert.Equal(1, p.Options[1].Position)
	})
	t.Run("fine, selection mode defaults to multiple", func(t *testing.T) {
		reg, _ := newRegistry()
		in := validInput()
		in.SelectionMode = ""
		p, err := reg.CreatePoll(context.Background(), uuid.New(), in)
		require.NoError(t, err)
		assert.Equal(t, models.SelectionMultiple, p.SelectionMode)
	})

	for name, mutate := range map[string]func(*polls.CreateInput){
		"missing title":          func(in *polls.CreateInput) { in.Title = " " },
		"missing organizer":      func(in *polls.CreateInput) { in.OrganizerName = "" },
		"one option":             func(in *polls.CreateInput) { in.Options = []string{"Pizza"} },
		"blank options":          func(in *polls.CreateInput) { in.Options = []string{"Pizza", " ", ""} },
		"no options":             func(in *polls.CreateInput) { in.Options = nil },
		"unknown selection mode": func(in *polls.CreateInput) { in.SelectionMode = "ranked" },
		"title too long":         func(in *polls.CreateInput) { in.Title = strings.Repeat("a", polls.MaxTextLength+1) },
		"option too long":        func(in *polls.CreateInput) { in.Options = []string{"a", strings.Repeat("b", polls.MaxTextLength+1)} },
	} {
		t.Run("error, "+name, func(t *testing.T) {
			reg, _ := newRegistry()
			in := validInput()
			mutate(&in)
			p, err := reg.CreatePoll(context.Background(), uuid.New(), in)
			assert.Nil(t, p)
			assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
		})
	}

	t.Run("fine, token collision is retried", func(t *testing.T) {
		assert := assert.New(t)
		reg, _ := newRegistry()
		tokens := []string{"same", "same", "other"}
		reg.SetTokenSource(func() (string, error) {
			tok := tokens[0]
			tokens = tokens[1:]
			return tok, nil
		})

		first, err := reg.CreatePoll(context.Background(), uuid.New(), validInput())
		require.NoError(t, err)
		second, err := reg.CreatePoll(context.Background(), uuid.New(), validInput())
		require.NoError(t, err)

		assert.Equal("same", first.Token)
		assert.Equal("other", second.Token)
		assert.Empty(tokens)
	})
	t.Run("error, token space exhausted", func(t *testing.T) {
		reg, _ := newRegistry()
		reg.SetTokenSource(func() (string, error) { return "fixed", nil })
		_, err := reg.CreatePoll(context.Background(), uuid.New(), validInput())
		require.NoError(t, err)

		_, err = reg.CreatePoll(context.Background(), uuid.New(), validInput())
		require.Error(t, err)
		assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	})
	t.Run("error, store unavailable", func(t *testing.T) {
		reg, store := newRegistry()
		store.FailNext(testutil.OpCreatePoll, &pgconn.PgError{Code: "08006"})
		_, err := reg.CreatePoll(context.Background(), uuid.New(), validInput())
		assert.True(t, apperr.Is(err, apperr.KindTransient))
	})
}

func TestGetPollByToken(t *testing.T) {
	reg, store := newRegistry()
	created, err := reg.CreatePoll(context.Background(), uuid.New(), validInput())
	require.NoError(t, err)

	t.Run("all fine", func(t *testing.T) {
		p, err := reg.GetPollByToken(context.Background(), created.Token)
		require.NoError(t, err)
		assert.Equal(t, created.ID, p.ID)
		assert.Equal(t, created.Options, p.Options)
	})
	t.Run("error, unknown token", func(t *testing.T) {
		_, err := reg.GetPollByToken(context.Background(), "nope")
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})
	t.Run("error, empty token", func(t *testing.T) {
		_, err := reg.GetPollByToken(context.Background(), "")
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})
	t.Run("error, timeout is transient", func(t *testing.T) {
		store.FailNext(testutil.OpGetByToken, errors.Wrap(context.DeadlineExceeded, "query"))
		_, err := reg.GetPollByToken(context.Background(), created.Token)
		assert.True(t, apperr.Is(err, apperr.KindTransient))
	})
}

func TestListPollsForOwner(t *testing.T) {
	assert := assert.New(t)
	reg, _ := newRegistry()
	owner := uuid.New()

	empty, err := reg.ListPollsForOwner(context.Background(), owner)
	require.NoError(t, err)
	assert.NotNil(empty)
	assert.Empty(empty)

	var tokens []string
	for i := 0; i < 3; i++ {
		in := validInput()
		in.Title = fmt.Sprintf("poll %d", i)
		p, err := reg.CreatePoll(context.Background(), owner, in)
		require.NoError(t, err)
		tokens = append(tokens, p.Token)
	}
	_, err = reg.CreatePoll(context.Background(), uuid.New(), validInput())
	require.NoError(t, err)

	list, err := reg.ListPollsForOwner(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(tokens[2], list[0].Token)
	assert.Equal(tokens[1], list[1].Token)
	assert.Equal(tokens[0], list[2].Token)
	assert.Equal(0, list[0].BallotCount)
}

func TestSetState(t *testing.T) {
	t.Run("owner closes, stranger forbidden, repeat conflicts", func(t *testing.T) {
		assert := assert.New(t)
		reg, _ := newRegistry()
		rec := &closedRecorder{}
		reg.SetClosedNotifier(rec)
		owner := uuid.New()
		p, err := reg.CreatePoll(context.Background(), owner, validInput())
		require.NoError(t, err)

		state, err := reg.SetState(context.Background(), p.Token, owner, models.PollStateClosed)
		require.NoError(t, err)
		assert.Equal(models.PollStateClosed, state)

		_, err = reg.SetState(context.Background(), p.Token, uuid.New(), models.PollStateClosed)
		assert.True(apperr.Is(err, apperr.KindForbidden))

		_, err = reg.SetState(context.Background(), p.Token, owner, models.PollStateClosed)
		assert.True(apperr.Is(err, apperr.KindConflict))

		require.Len(t, rec.closed, 1)
		assert.Equal(p.ID, rec.closed[0].ID)
	})
	t.Run("forbidden is checked before conflict", func(t *testing.T) {
		reg, _ := newRegistry()
		p, err := reg.CreatePoll(context.Background(), uuid.New(), validInput())
		require.NoError(t, err)
		_, err = reg.SetState(context.Background(), p.Token, uuid.New(), models.PollStateActive)
		assert.True(t, apperr.Is(err, apperr.KindForbidden))
	})
	t.Run("alternating close and reopen succeeds", func(t *testing.T) {
		reg, _ := newRegistry()
		owner := uuid.New()
		p, err := reg.CreatePoll(context.Background(), owner, validInput())
		require.NoError(t, err)

		_, err = reg.SetState(context.Background(), p.Token, owner, models.PollStateActive)
		assert.True(t, apperr.Is(err, apperr.KindConflict))
		for i := 0; i < 4; i++ {
			target := models.PollStateClosed
			if i%2 == 1 {
				target = models.PollStateActive
			}
			state, err := reg.SetState(context.Background(), p.Token, owner, target)
			require.NoError(t, err)
			assert.Equal(t, target, state)
		}
	})
	t.Run("error, unknown poll", func(t *testing.T) {
		reg, _ := newRegistry()
		_, err := reg.SetState(context.Background(), "missing", uuid.New(), models.PollStateClosed)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})
	t.Run("error, invalid target", func(t *testing.T) {
		reg, _ := newRegistry()
		_, err := reg.SetState(context.Background(), "missing", uuid.New(), "archived")
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	})
	t.Run("fine, notifier failure does not fail the close", func(t *testing.T) {
		reg, _ := newRegistry()
		reg.SetClosedNotifier(&closedRecorder{err: errors.New("queue down")})
		owner := uuid.New()
		p, err := reg.CreatePoll(context.Background(), owner, validInput())
		require.NoError(t, err)

		state, err := reg.SetState(context.Background(), p.Token, owner, models.PollStateClosed)
		require.NoError(t, err)
		assert.Equal(t, models.PollStateClosed, state)
	})
}

func TestOptionsAreFixedAfterCreation(t *testing.T) {
	reg, _ := newRegistry()
	owner := uuid.New()
	in := validInput()
	in.Options = []string{"A", "B", "C"}
	p, err := reg.CreatePoll(context.Background(), owner, in)
	require.NoError(t, err)

	_, err = reg.SetState(context.Background(), p.Token, owner, models.PollStateClosed)
	require.NoError(t, err)
	_, err = reg.SetState(context.Background(), p.Token, owner, models.PollStateActive)
	require.NoError(t, err)

	got, err := reg.GetPollByToken(context.Background(), p.Token)
	require.NoError(t, err)
	assert.Equal(t, p.Options, got.Options)
	assert.GreaterOrEqual(t, len(got.Options), polls.MinOptions)
}

type cancellingNotifier struct {
	cancel   context.CancelFunc
	err      error
	deadline bool
}

func (n *cancellingNotifier) PollClosed(ctx context.Context, _ models.Poll) error {
	n.cancel()
	n.err = ctx.Err()
	_, n.deadline = ctx.Deadline()
	return nil
}

func TestCloseNotifiesAfterCallerLeaves(t *testing.T) {
	reg, _ := newRegistry()
	owner := uuid.New()
	p, err := reg.CreatePoll(context.Background(), owner, validInput())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n := &cancellingNotifier{cancel: cancel}
	reg.SetClosedNotifier(n)

	state, err := reg.SetState(ctx, p.Token, owner, models.PollStateClosed)
	require.NoError(t, err)
	assert.Equal(t, models.PollStateClosed, state)
	assert.NoError(t, n.err)
	assert.True(t, n.deadline)
}
