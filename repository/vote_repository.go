package repository

import (
	"context"

	"polling-backend/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VoteRepository stores votes keyed by (poll_id, user_id).
type VoteRepository struct {
	db *gorm.DB
}

func NewVoteRepository(db *gorm.DB) *VoteRepository {
	return &VoteRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *VoteRepository) WithTx(tx *gorm.DB) *VoteRepository {
	return &VoteRepository{db: tx}
}

// Upsert stores the vote, relying on the (poll_id, user_id) primary key for
// serialization. The insert is attempted with ON CONFLICT DO NOTHING; if it
// affected no row the existing vote is overwritten. created reports which
// path was taken.
func (r *VoteRepository) Upsert(ctx context.Context, vote *models.Vote) (created bool, err error) {
	db := r.db.WithContext(ctx)
	now := db.NowFunc()
	vote.CreatedAt = now
	vote.UpdatedAt = now

	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "poll_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(vote)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "insert vote")
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	res = db.Model(&models.Vote{}).
		Where("poll_id = ? AND user_id = ?", vote.PollID, vote.UserID).
		Updates(map[string]interface{}{
			"position":   vote.Position,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "update vote")
	}
	return false, nil
}

// Find returns the vote of userID in pollID or ErrNotFound.
func (r *VoteRepository) Find(ctx context.Context, pollID, userID uuid.UUID) (*models.Vote, error) {
	var vote models.Vote
	err := r.db.WithContext(ctx).Where("poll_id = ? AND user_id = ?", pollID, userID).First(&vote).Error
	if err != nil {
		return nil, notFound(err, "find vote")
	}
	return &vote, nil
}

// ListByUser joins the user's votes with their polls, most recent vote first.
func (r *VoteRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.VotedPoll, error) {
	voted := []models.VotedPoll{}
	err := r.db.WithContext(ctx).
		Table("votes").
		Select("polls.*, votes.position AS choice, votes.updated_at AS voted_at").
		Joins("JOIN polls ON polls.id = votes.poll_id").
		Where("votes.user_id = ?", userID).
		Order("votes.updated_at DESC").
		Limit(MaxSearchResults).
		Scan(&voted).Error
	return voted, errors.Wrap(err, "list votes by user")
}
