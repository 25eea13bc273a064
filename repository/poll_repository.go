package repository

import (
	"context"
	"strings"

	"polling-backend/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// MaxSearchResults caps search and listing queries.
const MaxSearchResults = 100

// PollRepository is the poll catalog: polls, their choices, and vote tallies.
type PollRepository struct {
	db *gorm.DB
}

func NewPollRepository(db *gorm.DB) *PollRepository {
	return &PollRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *PollRepository) WithTx(tx *gorm.DB) *PollRepository {
	return &PollRepository{db: tx}
}

// Create inserts poll and its choices in one transaction.
func (r *PollRepository) Create(ctx context.Context, poll *models.Poll, choices []models.Choice) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(poll).Error; err != nil {
			return err
		}
		for i := range choices {
			choices[i].PollID = poll.ID
		}
		return tx.Create(&choices).Error
	})
	return errors.Wrap(err, "create poll")
}

// FindPoll returns the poll with id or ErrNotFound.
func (r *PollRepository) FindPoll(ctx context.Context, id uuid.UUID) (*models.Poll, error) {
	var poll models.Poll
	if err := r.db.WithContext(ctx).First(&poll, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "find poll")
	}
	return &poll, nil
}

// FindChoice returns the choice at position within poll or ErrNotFound.
func (r *PollRepository) FindChoice(ctx context.Context, pollID uuid.UUID, position int) (*models.Choice, error) {
	var choice models.Choice
	err := r.db.WithContext(ctx).
		Where("poll_id = ? AND position = ?", pollID, position).
		First(&choice).Error
	if err != nil {
		return nil, notFound(err, "find choice")
	}
	return &choice, nil
}

// ListChoices returns the choices of a poll ordered by position.
func (r *PollRepository) ListChoices(ctx context.Context, pollID uuid.UUID) ([]models.Choice, error) {
	var choices []models.Choice
	err := r.db.WithContext(ctx).Where("poll_id = ?", pollID).Order("position").Find(&choices).Error
	return choices, errors.Wrap(err, "list choices")
}

// Search matches query against poll titles, newest first. A category of
// CategoryAll (or zero) doesn't filter.
func (r *PollRepository) Search(ctx context.Context, query string, category models.Category) ([]models.Poll, error) {
	q := r.db.WithContext(ctx).Model(&models.Poll{})
	if query != "" {
		q = q.Where("title LIKE ? ESCAPE '!'", "%"+escapeLike(query)+"%")
	}
	if category.Assignable() {
		q = q.Where("category = ?", category)
	}

	polls := []models.Poll{}
	err := q.Order("created_at DESC").Limit(MaxSearchResults).Find(&polls).Error
	return polls, errors.Wrap(err, "search polls")
}

// ListByAuthor returns the polls created by author, newest first.
func (r *PollRepository) ListByAuthor(ctx context.Context, author uuid.UUID) ([]models.Poll, error) {
	polls := []models.Poll{}
	err := r.db.WithContext(ctx).
		Where("author_id = ?", author).
		Order("created_at DESC").
		Limit(MaxSearchResults).
		Find(&polls).Error
	return polls, errors.Wrap(err, "list polls by author")
}

// Tally counts votes per position for a poll.
func (r *PollRepository) Tally(ctx context.Context, pollID uuid.UUID) (map[int]int64, error) {
	var rows []struct {
		Position int
		Votes    int64
	}
	err := r.db.WithContext(ctx).Model(&models.Vote{}).
		Select("position, COUNT(*) AS votes").
		Where("poll_id = ?", pollID).
		Group("position").
		Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "tally votes")
	}

	counts := make(map[int]int64, len(rows))
	for _, row := range rows {
		counts[row.Position] = row.Votes
	}
	return counts, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}
