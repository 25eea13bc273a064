// Package testutil holds helpers shared by package tests: a migrated sqlite
// database per test and fixture builders.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"polling-backend/auth"
	"polling-backend/database"
	"polling-backend/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// FastArgon2 keeps hashing cheap in tests.
var FastArgon2 = auth.Argon2Params{Memory: 64, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

// SetupTestDB opens a fresh sqlite database in a temp directory and migrates
// the schema. It is closed automatically when the test ends.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=5000&_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(context.Background(), db, nil))

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

// CreateUser inserts a user with a throwaway password hash.
func CreateUser(t *testing.T, db *gorm.DB, username string) models.User {
	t.Helper()

	user := models.User{
		ID:           uuid.Must(uuid.NewV7()),
		Username:     username,
		DisplayName:  username,
		PasswordHash: "$argon2id$v=19$m=64,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5aw",
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

// CreatePoll inserts a poll authored by author with the given choice labels
// at positions 1..n.
func CreatePoll(t *testing.T, db *gorm.DB, author uuid.UUID, title string, labels ...string) models.Poll {
	t.Helper()

	poll := models.Poll{
		ID:       uuid.Must(uuid.NewV7()),
		Title:    title,
		Category: models.CategoryGeneral,
		AuthorID: author,
	}
	require.NoError(t, db.Create(&poll).Error)

	for i, label := range labels {
		choice := models.Choice{PollID: poll.ID, Position: i + 1, Label: label}
		require.NoError(t, db.Create(&choice).Error)
	}
	return poll
}

// CountVotes returns the number of vote rows for (pollID, userID).
func CountVotes(t *testing.T, db *gorm.DB, pollID, userID uuid.UUID) int64 {
	t.Helper()

	var n int64
	require.NoError(t, db.Model(&models.Vote{}).Where("poll_id = ? AND user_id = ?", pollID, userID).Count(&n).Error)
	return n
}
