package models

import (
	"time"

	"github.com/google/uuid"
)

// PollState is the lifecycle state of a poll.
type PollState string

const (
	PollStateActive PollState = "active"
	PollStateClosed PollState = "closed"
)

// Valid reports whether s is a known state.
func (s PollState) Valid() bool {
	return s == PollStateActive || s == PollStateClosed
}

// SelectionMode controls how many options a ballot may select.
type SelectionMode string

const (
	SelectionSingle   SelectionMode = "single"
	SelectionMultiple SelectionMode = "multiple"
)

// Valid reports whether m is a known mode.
func (m SelectionMode) Valid() bool {
	return m == SelectionSingle || m == SelectionMultiple
}

// Poll is the stored poll definition. ID and OwnerID never leave the
// server on unauthenticated routes; see PublicPoll.
type Poll struct {
	ID            uuid.UUID     `json:"id"`
	OwnerID       uuid.UUID     `json:"-"`
	Token         string        `json:"token"`
	Title         string        `json:"title"`
	OrganizerName string        `json:"organizer_name"`
	SelectionMode SelectionMode `json:"selection_mode"`
	ReferenceHint string        `json:"reference_hint"`
	State         PollState     `json:"state"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Option is one answer of a poll. Position is the creation order.
type Option struct {
	ID       uuid.UUID `json:"id"`
	PollID   uuid.UUID `json:"-"`
	Text     string    `json:"text"`
	Position int       `json:"position"`
}

// PollWithOptions is a poll together with its options in creation order.
type PollWithOptions struct {
	Poll
	Options []Option `json:"options"`
}

// HasOption reports whether id belongs to the poll.
func (p *PollWithOptions) HasOption(id uuid.UUID) bool {
	for _, o := range p.Options {
		if o.ID == id {
			return true
		}
	}
	return false
}

// PollSummary is a row of an owner's dashboard.
type PollSummary struct {
	ID            uuid.UUID     `json:"id"`
	Token         string        `json:"token"`
	Title         string        `json:"title"`
	OrganizerName string        `json:"organizer_name"`
	SelectionMode SelectionMode `json:"selection_mode"`
	State         PollState     `json:"state"`
	BallotCount   int           `json:"ballot_count"`
	CreatedAt     time.Time     `json:"created_at"`
}

// PublicOption is an option as shown to voters.
type PublicOption struct {
	ID   uuid.UUID `json:"id"`
	Text string    `json:"text"`
}

// PublicPoll is what an unauthenticated caller sees for a token.
type PublicPoll struct {
	Token         string         `json:"token"`
	Title         string         `json:"title"`
	OrganizerName string         `json:"organizer_name"`
	SelectionMode SelectionMode  `json:"selection_mode"`
	ReferenceHint string         `json:"reference_hint"`
	State         PollState      `json:"state"`
	CreatedAt     time.Time      `json:"created_at"`
	Options       []PublicOption `json:"options"`
}

// ToPublic strips internal identifiers.
func (p *PollWithOptions) ToPublic() PublicPoll {
	opts := make([]PublicOption, 0, len(p.Options))
	for _, o := range p.Options {
		opts = append(opts, PublicOption{ID: o.ID, Text: o.Text})
	}
	return PublicPoll{
		Token:         p.Token,
		Title:         p.Title,
		OrganizerName: p.OrganizerName,
		SelectionMode: p.SelectionMode,
		ReferenceHint: p.ReferenceHint,
		State:         p.State,
		CreatedAt:     p.CreatedAt,
		Options:       opts,
	}
}
