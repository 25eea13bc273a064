package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the single principal type. PasswordHash holds an encoded argon2id
// hash and is never serialized.
type User struct {
	ID           uuid.UUID `gorm:"type:char(36);primaryKey" json:"user_id"`
	Username     string    `gorm:"size:32;not null;uniqueIndex" json:"username"`
	DisplayName  string    `gorm:"column:displayname;size:64;not null" json:"displayname"`
	PasswordHash string    `gorm:"size:128;not null" json:"-"`
	CreatedAt    time.Time `json:"-"`
	UpdatedAt    time.Time `json:"-"`
}
