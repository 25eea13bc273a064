// Package handlers exposes the polling service over HTTP with gin.
package handlers

import (
	"errors"
	"net/http"

	"polling-backend/auth"
	"polling-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Handler holds the services the HTTP endpoints delegate to.
type Handler struct {
	accounts *service.AccountService
	polls    *service.PollService
	ledger   *service.VoteLedger
	hub      *Hub
	db       *gorm.DB
	cookie   auth.CookieConfig
	log      *logrus.Logger
}

type Deps struct {
	Accounts *service.AccountService
	Polls    *service.PollService
	Ledger   *service.VoteLedger
	Hub      *Hub
	DB       *gorm.DB
	Cookie   auth.CookieConfig
	Log      *logrus.Logger
}

func New(d Deps) *Handler {
	return &Handler{
		accounts: d.Accounts,
		polls:    d.Polls,
		ledger:   d.Ledger,
		hub:      d.Hub,
		db:       d.DB,
		cookie:   d.Cookie,
		log:      d.Log,
	}
}

// Error kinds returned in the "error" field.
const (
	KindUsernameTaken  = "username_taken"
	KindBadCredentials = "bad_credentials"
	KindTokenMissing   = "token_missing"
	KindTokenInvalid   = "token_invalid"
	KindPollNotFound   = "poll_not_found"
	KindInvalidChoice  = "invalid_choice"
	KindInvalidRequest = "invalid_request"
	KindInvalidID      = "invalid_id"
	KindUserNotFound   = "user_not_found"
	KindRateLimited    = "rate_limited"
	KindInternal       = "internal_error"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(c *gin.Context, status int, kind, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: kind, Message: message})
}

// writeServiceError maps a service or auth error onto its HTTP response.
func (h *Handler) writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUsernameTaken):
		writeError(c, http.StatusConflict, KindUsernameTaken, err.Error())
	case errors.Is(err, service.ErrBadCredentials):
		writeError(c, http.StatusUnauthorized, KindBadCredentials, err.Error())
	case errors.Is(err, auth.ErrTokenMissing):
		writeError(c, http.StatusUnauthorized, KindTokenMissing, "authentication required")
	case errors.Is(err, auth.ErrTokenInvalid):
		writeError(c, http.StatusUnauthorized, KindTokenInvalid, "session is invalid or expired")
	case errors.Is(err, service.ErrPollNotFound):
		writeError(c, http.StatusNotFound, KindPollNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidChoice):
		writeError(c, http.StatusBadRequest, KindInvalidChoice, err.Error())
	case errors.Is(err, service.ErrUserNotFound):
		writeError(c, http.StatusNotFound, KindUserNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		writeError(c, http.StatusBadRequest, KindInvalidRequest, err.Error())
	default:
		h.log.WithError(err).WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("request failed")
		writeError(c, http.StatusInternalServerError, KindInternal, "internal server error")
	}
}

func bindError(c *gin.Context, err error) {
	writeError(c, http.StatusBadRequest, KindInvalidRequest, err.Error())
}

// paramID parses the :id path parameter, writing a 400 when it is malformed.
func paramID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, KindInvalidID, "malformed id")
		return uuid.Nil, false
	}
	return id, true
}
