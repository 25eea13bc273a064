package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"polling-backend/auth"
	"polling-backend/models"
	"polling-backend/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 128
)

// Session is a freshly issued bearer token and the user it names.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
}

type SignupInput struct {
	Username    string
	DisplayName string
	Password    string
}

// ProfileUpdate changes the caller's own account. Nil fields are left as
// they are. Setting NewPassword requires CurrentPassword.
type ProfileUpdate struct {
	Username        *string
	DisplayName     *string
	NewPassword     string
	CurrentPassword string
}

// AccountService handles signup, login, and session authentication.
type AccountService struct {
	users     *repository.UserRepository
	hasher    *auth.PasswordHasher
	tokens    *auth.TokenIssuer
	ttl       time.Duration
	dummyHash string
	log       *logrus.Logger
}

func NewAccountService(users *repository.UserRepository, hasher *auth.PasswordHasher, tokens *auth.TokenIssuer, ttl time.Duration, log *logrus.Logger) (*AccountService, error) {
	// Verified against on unknown usernames so both login paths cost the same.
	dummy, err := hasher.Hash("not-a-real-password")
	if err != nil {
		return nil, err
	}
	return &AccountService{
		users:     users,
		hasher:    hasher,
		tokens:    tokens,
		ttl:       ttl,
		dummyHash: dummy,
		log:       log,
	}, nil
}

// TTL is the lifetime of issued sessions.
func (s *AccountService) TTL() time.Duration {
	return s.ttl
}

func (s *AccountService) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	username, err := checkLength("username", in.Username, 1, 32)
	if err != nil {
		return nil, err
	}
	displayName, err := checkLength("displayname", in.DisplayName, 1, 64)
	if err != nil {
		return nil, err
	}
	if err := checkPassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	user := &models.User{
		ID:           id,
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"user_id": user.ID, "username": user.Username}).Info("user signed up")
	return user, nil
}

func (s *AccountService) Login(ctx context.Context, username, password string) (*Session, error) {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, repository.ErrNotFound) {
		s.hasher.Verify(password, s.dummyHash)
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrBadCredentials
	}

	if s.hasher.NeedsRehash(user.PasswordHash) {
		s.rehash(ctx, user, password)
	}
	return s.issue(user)
}

// Authenticate resolves a session token to its user. The token must still
// name the account it was issued for: after a rename the old username either
// resolves to nobody or to a different account, and both are invalid.
func (s *AccountService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.tokens.VerifyClaims(token)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByUsername(ctx, claims.Subject)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, auth.ErrTokenInvalid
	}
	if err != nil {
		return nil, err
	}
	if claims.UserID != user.ID.String() {
		return nil, auth.ErrTokenInvalid
	}
	return user, nil
}

// UpdateProfile applies upd to user. When the username changes the old
// token stops resolving, so a new session is returned; otherwise the
// returned session is nil.
func (s *AccountService) UpdateProfile(ctx context.Context, user *models.User, upd ProfileUpdate) (*models.User, *Session, error) {
	updated := *user

	if upd.Username != nil {
		username, err := checkLength("username", *upd.Username, 1, 32)
		if err != nil {
			return nil, nil, err
		}
		updated.Username = username
	}
	if upd.DisplayName != nil {
		displayName, err := checkLength("displayname", *upd.DisplayName, 1, 64)
		if err != nil {
			return nil, nil, err
		}
		updated.DisplayName = displayName
	}
	if upd.NewPassword != "" {
		if err := checkPassword(upd.NewPassword); err != nil {
			return nil, nil, err
		}
		if !s.hasher.Verify(upd.CurrentPassword, user.PasswordHash) {
			return nil, nil, ErrBadCredentials
		}
		hash, err := s.hasher.Hash(upd.NewPassword)
		if err != nil {
			return nil, nil, err
		}
		updated.PasswordHash = hash
	}

	if err := s.users.Update(ctx, &updated); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, nil, ErrUsernameTaken
		}
		return nil, nil, err
	}

	if updated.Username == user.Username {
		return &updated, nil, nil
	}
	s.log.WithFields(logrus.Fields{"user_id": user.ID, "username": updated.Username}).Info("user renamed")
	session, err := s.issue(&updated)
	if err != nil {
		return nil, nil, err
	}
	return &updated, session, nil
}

func (s *AccountService) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

func (s *AccountService) issue(user *models.User) (*Session, error) {
	token, expiresAt, err := s.tokens.IssueFor(user.Username, user.ID.String(), s.ttl)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// rehash upgrades a hash created with older parameters. Failure only costs
// another rehash attempt on the next login.
func (s *AccountService) rehash(ctx context.Context, user *models.User, password string) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.log.WithError(err).Warn("rehashing password")
		return
	}
	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		s.log.WithError(err).WithField("user_id", user.ID).Warn("storing rehashed password")
	}
}

func checkPassword(password string) error {
	if n := utf8.RuneCountInString(password); n < minPasswordLength || n > maxPasswordLength {
		return invalid("password must be %d-%d characters", minPasswordLength, maxPasswordLength)
	}
	return nil
}
