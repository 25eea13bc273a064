package models

import (
	"time"

	"github.com/google/uuid"
)

// Category classifies a poll. CategoryAll is only meaningful as a search
// filter and can't be assigned to a poll.
type Category int

const (
	CategoryAll           Category = iota + 1 // 1
	CategoryGeneral                           // 2
	CategoryFood                              // 3
	CategoryLifestyle                         // 4
	CategoryTechnology                        // 5
	CategoryEntertainment                     // 6
	CategorySports                            // 7
	CategoryPolitics                          // 8
)

// Assignable reports whether c can be stored on a poll.
func (c Category) Assignable() bool {
	return c >= CategoryGeneral && c <= CategoryPolitics
}

// Poll is a titled question owned by one user. Polls are immutable once
// created.
type Poll struct {
	ID          uuid.UUID `gorm:"type:char(36);primaryKey" json:"theme_id"`
	Title       string    `gorm:"size:128;not null;index" json:"theme_name"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	Category    Category  `gorm:"not null;index" json:"category"`
	AuthorID    uuid.UUID `gorm:"type:char(36);not null;index" json:"author"`
	CreatedAt   time.Time `gorm:"not null;index" json:"create_at"`
}

// Choice is one answer of a poll. (PollID, Position) is the key; positions
// are 1-based and dense in submission order.
type Choice struct {
	PollID   uuid.UUID `gorm:"type:char(36);primaryKey;autoIncrement:false" json:"-"`
	Position int       `gorm:"primaryKey;autoIncrement:false" json:"choice_id"`
	Label    string    `gorm:"size:64;not null" json:"text"`
}
