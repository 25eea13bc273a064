package models

import (
	"time"

	"github.com/google/uuid"
)

// Vote records which choice a user picked in a poll. The composite primary
// key (PollID, UserID) guarantees at most one vote per user per poll.
type Vote struct {
	PollID    uuid.UUID `gorm:"type:char(36);primaryKey;autoIncrement:false"`
	UserID    uuid.UUID `gorm:"type:char(36);primaryKey;autoIncrement:false;index"`
	Position  int       `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// VotedPoll is a poll summary together with the caller's chosen position.
type VotedPoll struct {
	Poll
	Choice  int       `json:"choice"`
	VotedAt time.Time `json:"voted_at"`
}

// ChoiceResult is the tally for one choice.
type ChoiceResult struct {
	Position int    `json:"choice_id"`
	Label    string `json:"text"`
	Votes    int64  `json:"votes"`
}

// PollResults is the full tally of a poll.
type PollResults struct {
	PollID     uuid.UUID      `json:"theme_id"`
	TotalVotes int64          `json:"total_votes"`
	Choices    []ChoiceResult `json:"choices"`
}

// PollDetail is a poll with its choices and their current counts.
type PollDetail struct {
	Poll
	Choices []ChoiceResult `json:"choices"`
}
