package service

import (
	"context"
	"errors"

	"polling-backend/cache"
	"polling-backend/models"
	"polling-backend/mq"
	"polling-backend/repository"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CastResult tells a first vote apart from a changed one.
type CastResult int

const (
	CastCreated CastResult = iota + 1
	CastUpdated
)

func (r CastResult) String() string {
	switch r {
	case CastCreated:
		return "created"
	case CastUpdated:
		return "updated"
	default:
		return "unknown"
	}
}

// VoteLedger records at most one vote per user per poll.
type VoteLedger struct {
	db     *gorm.DB
	polls  *repository.PollRepository
	votes  *repository.VoteRepository
	cache  cache.ResultsCache
	broker mq.Broker
	clock  clockwork.Clock
	log    *logrus.Logger
}

func NewVoteLedger(db *gorm.DB, resultsCache cache.ResultsCache, broker mq.Broker, clock clockwork.Clock, log *logrus.Logger) *VoteLedger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &VoteLedger{
		db:     db,
		polls:  repository.NewPollRepository(db),
		votes:  repository.NewVoteRepository(db),
		cache:  resultsCache,
		broker: broker,
		clock:  clock,
		log:    log,
	}
}

// Cast stores userID's choice of position in pollID, replacing any earlier
// choice. The poll and choice checks and the write share one transaction;
// the (poll_id, user_id) key makes concurrent casts for the same pair safe.
func (l *VoteLedger) Cast(ctx context.Context, pollID, userID uuid.UUID, position int) (CastResult, error) {
	var result CastResult
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		polls := l.polls.WithTx(tx)
		if _, err := polls.FindPoll(ctx, pollID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrPollNotFound
			}
			return err
		}
		if _, err := polls.FindChoice(ctx, pollID, position); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrInvalidChoice
			}
			return err
		}

		created, err := l.votes.WithTx(tx).Upsert(ctx, &models.Vote{PollID: pollID, UserID: userID, Position: position})
		if err != nil {
			return err
		}
		result = CastUpdated
		if created {
			result = CastCreated
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	fields := logrus.Fields{"poll_id": pollID, "user_id": userID, "choice": position, "result": result.String()}
	l.log.WithFields(fields).Info("vote cast")

	// Cache and event failures never undo a committed vote.
	if err := l.cache.Invalidate(ctx, pollID); err != nil {
		l.log.WithError(err).WithFields(fields).Warn("invalidating cached results")
	}
	event := mq.VoteEvent{
		PollID:   pollID,
		UserID:   userID,
		Position: position,
		Created:  result == CastCreated,
		At:       l.clock.Now().UTC(),
	}
	if err := l.broker.Publish(ctx, event); err != nil {
		l.log.WithError(err).WithFields(fields).Warn("publishing vote event")
	}
	return result, nil
}

// VotesFor lists the polls userID has voted in, most recent vote first.
func (l *VoteLedger) VotesFor(ctx context.Context, userID uuid.UUID) ([]models.VotedPoll, error) {
	return l.votes.ListByUser(ctx, userID)
}
