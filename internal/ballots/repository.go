package ballots

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/refpoll/backend/internal/apperr"
	"github.com/refpoll/backend/internal/models"
	"github.com/refpoll/backend/pkg/database"
)

const referenceConstraint = "ballots_poll_reference_key"

// Repository is the PostgreSQL Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a ballots repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertBallot writes the ballot and its selections in one transaction.
// The poll row is share-locked so a concurrent close either waits for the
// ballot or is seen by it. Duplicate references are caught by the
// (poll_id, voter_reference) constraint.
func (r *Repository) InsertBallot(ctx context.Context, b *models.Ballot) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var state models.PollState
	err = tx.QueryRow(ctx, `SELECT state FROM polls WHERE id = $1 FOR SHARE`, b.PollID).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("poll not found")
	}
	if err != nil {
		return err
	}
	if state != models.PollStateActive {
		return ErrPollInactive
	}

	const insertBallot = `INSERT INTO ballots (poll_id, voter_name, voter_reference)
		VALUES ($1, $2, $3)
		ON CONFLICT ON CONSTRAINT ` + referenceConstraint + ` DO NOTHING
		RETURNING id, submitted_at`
	err = tx.QueryRow(ctx, insertBallot, b.PollID, b.VoterName, b.VoterReference).Scan(&b.ID, &b.SubmittedAt)
	if errors.Is(err, pgx.ErrNoRows) || database.IsUniqueViolation(err, referenceConstraint) {
		return ErrDuplicateReference
	}
	if err != nil {
		return err
	}

	const insertSelection = `INSERT INTO ballot_selections (ballot_id, poll_id, option_id) VALUES ($1, $2, $3)`
	for _, optionID := range b.OptionIDs {
		if _, err := tx.Exec(ctx, insertSelection, b.ID, b.PollID, optionID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// CountVotes returns per-option selection counts and the ballot count from
// a single statement, so both come from the same snapshot.
func (r *Repository) CountVotes(ctx context.Context, pollID uuid.UUID) (Counts, error) {
	const q = `SELECT o.id, COUNT(s.ballot_id),
			(SELECT COUNT(*) FROM ballots b WHERE b.poll_id = $1)
		FROM poll_options o
		LEFT JOIN ballot_selections s ON s.poll_id = o.poll_id AND s.option_id = o.id
		WHERE o.poll_id = $1
		GROUP BY o.id`
	rows, err := r.pool.Query(ctx, q, pollID)
	if err != nil {
		return Counts{}, err
	}
	defer rows.Close()

	counts := Counts{PerOption: make(map[uuid.UUID]int)}
	for rows.Next() {
		var (
			id      uuid.UUID
			votes   int
			ballots int
		)
		if err := rows.Scan(&id, &votes, &ballots); err != nil {
			return Counts{}, err
		}
		counts.PerOption[id] = votes
		counts.Ballots = ballots
	}
	return counts, rows.Err()
}
