package polls

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

const tokenConstraint = "polls_token_key"

// Repository is the PostgreSQL Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a polls repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreatePoll inserts the poll and its options in one transaction.
func (r *Repository) CreatePoll(ctx context.Context, p *models.Poll, options []string) (*models.PollWithOptions, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const insertPoll = `INSERT INTO polls (owner_id, token, title, organizer_name, selection_mode, reference_hint, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`
	err = tx.QueryRow(ctx, insertPoll, p.OwnerID, p.Token, p.Title, p.OrganizerName,
		string(p.SelectionMode), p.ReferenceHint, string(p.State)).Scan(&p.ID, &p.CreatedAt)
	if database.IsUniqueViolation(err, tokenConstraint) {
		return nil, ErrTokenTaken
	}
	if err != nil {
		return nil, err
	}

	const insertOption = `INSERT INTO poll_options (poll_id, option_text, position) VALUES ($1, $2, $3) RETURNING id`
	created := &models.PollWithOptions{Poll: *p, Options: make([]models.Option, 0, len(options))}
	for i, text := range options {
		o := models.Option{PollID: p.ID, Text: text, Position: i}
		if err := tx.QueryRow(ctx, insertOption, p.ID, text, i).Scan(&o.ID); err != nil {
			return nil, err
		}
		created.Options = append(created.Options, o)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

// GetByToken returns a poll and its options in creation order.
func (r *Repository) GetByToken(ctx context.Context, token string) (*models.PollWithOptions, error) {
	const q = `SELECT id, owner_id, token, title, organizer_name, selection_mode, reference_hint, state, created_at
		FROM polls WHERE token = $1`
	var p models.PollWithOptions
	err := r.pool.QueryRow(ctx, q, token).Scan(&p.ID, &p.OwnerID, &p.Token, &p.Title, &p.OrganizerName,
		&p.SelectionMode, &p.ReferenceHint, &p.State, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("poll not found")
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, poll_id, option_text, position
		FROM poll_options WHERE poll_id = $1 ORDER BY position`, p.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var o models.Option
		if err := rows.Scan(&o.ID, &o.PollID, &o.Text, &o.Position); err != nil {
			return nil, err
		}
		p.Options = append(p.Options, o)
	}
	return &p, rows.Err()
}

// ListByOwner returns an owner's polls newest first with their ballot counts.
func (r *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.PollSummary, error) {
	const q = `SELECT p.id, p.token, p.title, p.organizer_name, p.selection_mode, p.state, p.created_at,
		(SELECT COUNT(*) FROM ballots b WHERE b.poll_id = p.id)
		FROM polls p WHERE p.owner_id = $1
		ORDER BY p.created_at DESC, p.id DESC`
	rows, err := r.pool.Query(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.PollSummary
	for rows.Next() {
		var s models.PollSummary
		if err := rows.Scan(&s.ID, &s.Token, &s.Title, &s.OrganizerName, &s.SelectionMode,
			&s.State, &s.CreatedAt, &s.BallotCount); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// TransitionState locks the poll row, lets decide pick the next state and
// writes it before releasing the lock.
func (r *Repository) TransitionState(ctx context.Context, token string, decide func(p models.Poll) (models.PollState, error)) (*models.Poll, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const q = `SELECT id, owner_id, token, title, organizer_name, selection_mode, reference_hint, state, created_at
		FROM polls WHERE token = $1 FOR UPDATE`
	var p models.Poll
	err = tx.QueryRow(ctx, q, token).Scan(&p.ID, &p.OwnerID, &p.Token, &p.Title, &p.OrganizerName,
		&p.SelectionMode, &p.ReferenceHint, &p.State, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("poll not found")
	}
	if err != nil {
		return nil, err
	}

	next, err := decide(p)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `UPDATE polls SET state = $1 WHERE id = $2`, string(next), p.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	p.State = next
	return &p, nil
}
