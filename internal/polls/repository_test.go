package polls_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refpoll/backend/internal/apperr"
	"github.com/refpoll/backend/internal/models"
	"github.com/refpoll/backend/internal/polls"
	"github.com/refpoll/backend/internal/testutil"
)

func TestRepository(t *testing.T) {
	pool := testutil.Postgres(t)
	repo := polls.NewRepository(pool)
	ctx := context.Background()
	owner := testutil.CreateUser(t, pool)

	p := &models.Poll{
		OwnerID:       owner,
		Token:         "tok-" + uuid.NewString(),
		Title:         "Lunch",
		OrganizerName: "Dana",
		SelectionMode: models.SelectionMultiple,
		State:         models.PollStateActive,
	}
	created, err := repo.CreatePoll(ctx, p, []string{"A", "B", "C"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	require.Len(t, created.Options, 3)

	t.Run("duplicate token", func(t *testing.T) {
		dup := *p
		_, err := repo.CreatePoll(ctx, &dup, []string{"A", "B"})
		assert.ErrorIs(t, err, polls.ErrTokenTaken)
	})
	t.Run("get by token keeps option order", func(t *testing.T) {
		got, err := repo.GetByToken(ctx, p.Token)
		require.NoError(t, err)
		require.Len(t, got.Options, 3)
		for i, o := range got.Options {
			assert.Equal(t, created.Options[i].ID, o.ID)
			assert.Equal(t, i, o.Position)
		}
		_, err = repo.GetByToken(ctx, "missing")
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})
	t.Run("list by owner", func(t *testing.T) {
		list, err := repo.ListByOwner(ctx, owner)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, p.Token, list[0].Token)
		assert.Equal(t, 0, list[0].BallotCount)
	})
	t.Run("transition", func(t *testing.T) {
		out, err := repo.TransitionState(ctx, p.Token, func(cur models.Poll) (models.PollState, error) {
			assert.Equal(t, models.PollStateActive, cur.State)
			return models.PollStateClosed, nil
		})
		require.NoError(t, err)
		assert.Equal(t, models.PollStateClosed, out.State)

		_, err = repo.TransitionState(ctx, p.Token, func(models.Poll) (models.PollState, error) {
			return "", apperr.Conflict("poll is already closed")
		})
		assert.True(t, apperr.Is(err, apperr.KindConflict))

		got, err := repo.GetByToken(ctx, p.Token)
		require.NoError(t, err)
		assert.Equal(t, models.PollStateClosed, got.State)
	})
}
