package models

import (
	"time"

	"github.com/google/uuid"
)

// Ballot is one accepted submission. VoterReference is the dedup key and
// is never serialized.
type Ballot struct {
	ID             uuid.UUID   `json:"id"`
	PollID         uuid.UUID   `json:"poll_id"`
	VoterName      string      `json:"voter_name"`
	VoterReference string      `json:"-"`
	OptionIDs      []uuid.UUID `json:"option_ids"`
	SubmittedAt    time.Time   `json:"submitted_at"`
}

// OptionTally is the vote count of one option.
type OptionTally struct {
	OptionID uuid.UUID `json:"option_id"`
	Text     string    `json:"text"`
	Votes    int       `json:"votes"`
}

// Results is the tally of a poll, ordered by votes desc then option position.
type Results struct {
	Token         string        `json:"token"`
	Title         string        `json:"title"`
	OrganizerName string        `json:"organizer_name"`
	State         PollState     `json:"state"`
	BallotCount   int           `json:"ballot_count"`
	Options       []OptionTally `json:"options"`
	ComputedAt    time.Time     `json:"computed_at"`
}
