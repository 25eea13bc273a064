package service

import (
	"context"
	"errors"
	"strings"

	"polling-backend/cache"
	"polling-backend/models"
	"polling-backend/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const maxChoices = 20

// PollInput describes a poll to create. Choices are labels in display order.
type PollInput struct {
	Title       string
	Description string
	Category    models.Category
	Choices     []string
}

// PollService creates, finds, and tallies polls.
type PollService struct {
	polls *repository.PollRepository
	cache cache.ResultsCache
	log   *logrus.Logger
}

func NewPollService(polls *repository.PollRepository, resultsCache cache.ResultsCache, log *logrus.Logger) *PollService {
	return &PollService{polls: polls, cache: resultsCache, log: log}
}

// CreatePoll stores the poll with its choices at positions 1..n.
func (s *PollService) CreatePoll(ctx context.Context, author uuid.UUID, in PollInput) (*models.PollDetail, error) {
	title, err := checkLength("title", in.Title, 1, 128)
	if err != nil {
		return nil, err
	}
	description, err := checkLength("description", in.Description, 0, 1000)
	if err != nil {
		return nil, err
	}
	if !in.Category.Assignable() {
		return nil, invalid("category must be between %d and %d", models.CategoryGeneral, models.CategoryPolitics)
	}
	if len(in.Choices) < 1 || len(in.Choices) > maxChoices {
		return nil, invalid("a poll needs 1-%d choices", maxChoices)
	}

	choices := make([]models.Choice, len(in.Choices))
	for i, label := range in.Choices {
		label, err := checkLength("choice", label, 1, 64)
		if err != nil {
			return nil, err
		}
		choices[i] = models.Choice{Position: i + 1, Label: label}
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	poll := &models.Poll{
		ID:          id,
		Title:       title,
		Description: description,
		Category:    in.Category,
		AuthorID:    author,
	}
	if err := s.polls.Create(ctx, poll, choices); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"poll_id": poll.ID, "author": author, "choices": len(choices)}).Info("poll created")

	detail := &models.PollDetail{Poll: *poll, Choices: make([]models.ChoiceResult, len(choices))}
	for i, c := range choices {
		detail.Choices[i] = models.ChoiceResult{Position: c.Position, Label: c.Label}
	}
	return detail, nil
}

// GetPoll returns the poll with its choices and current counts.
func (s *PollService) GetPoll(ctx context.Context, id uuid.UUID) (*models.PollDetail, error) {
	poll, err := s.findPoll(ctx, id)
	if err != nil {
		return nil, err
	}
	results, err := s.results(ctx, poll)
	if err != nil {
		return nil, err
	}
	return &models.PollDetail{Poll: *poll, Choices: results.Choices}, nil
}

// Results returns per-choice counts, served from the cache when possible.
func (s *PollService) Results(ctx context.Context, id uuid.UUID) (*models.PollResults, error) {
	cached, err := s.cache.Get(ctx, id)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.log.WithError(err).WithField("poll_id", id).Warn("reading cached results")
	}

	poll, err := s.findPoll(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.results(ctx, poll)
}

// Search finds polls whose title contains query. CategoryAll or zero
// matches every category.
func (s *PollService) Search(ctx context.Context, query string, category models.Category) ([]models.Poll, error) {
	if category != 0 && category != models.CategoryAll && !category.Assignable() {
		return nil, invalid("unknown category %d", category)
	}
	return s.polls.Search(ctx, strings.TrimSpace(query), category)
}

func (s *PollService) ListByAuthor(ctx context.Context, author uuid.UUID) ([]models.Poll, error) {
	return s.polls.ListByAuthor(ctx, author)
}

func (s *PollService) findPoll(ctx context.Context, id uuid.UUID) (*models.Poll, error) {
	poll, err := s.polls.FindPoll(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPollNotFound
	}
	return poll, err
}

// results tallies poll from storage and refreshes the cache. The cache
// version is read before tallying so a vote committed meanwhile wins.
func (s *PollService) results(ctx context.Context, poll *models.Poll) (*models.PollResults, error) {
	version, verr := s.cache.Version(ctx, poll.ID)
	if verr != nil {
		s.log.WithError(verr).WithField("poll_id", poll.ID).Warn("reading results version")
	}

	choices, err := s.polls.ListChoices(ctx, poll.ID)
	if err != nil {
		return nil, err
	}
	counts, err := s.polls.Tally(ctx, poll.ID)
	if err != nil {
		return nil, err
	}

	results := &models.PollResults{PollID: poll.ID, Choices: make([]models.ChoiceResult, len(choices))}
	for i, c := range choices {
		n := counts[c.Position]
		results.Choices[i] = models.ChoiceResult{Position: c.Position, Label: c.Label, Votes: n}
		results.TotalVotes += n
	}

	if verr == nil {
		if err := s.cache.Set(ctx, results, version); err != nil {
			s.log.WithError(err).WithField("poll_id", poll.ID).Warn("caching results")
		}
	}
	return results, nil
}
