package handlers

import (
	"net/http"

	"polling-backend/auth"
	"polling-backend/service"

	"github.com/gin-gonic/gin"
)

// UpdateProfileInput changes the caller's account. Omitted fields are kept.
type UpdateProfileInput struct {
	Username        *string `json:"username"`
	DisplayName     *string `json:"displayname"`
	Password        string  `json:"password"`
	CurrentPassword string  `json:"current_password"`
}

func (h *Handler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}

// UpdateMe applies a profile change. A rename replaces the session cookie,
// since tokens name the user by username.
func (h *Handler) UpdateMe(c *gin.Context) {
	var input UpdateProfileInput
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}

	user, session, err := h.accounts.UpdateProfile(c.Request.Context(), currentUser(c), service.ProfileUpdate{
		Username:        input.Username,
		DisplayName:     input.DisplayName,
		NewPassword:     input.Password,
		CurrentPassword: input.CurrentPassword,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if session != nil {
		auth.SetSessionCookie(c, h.cookie, session.Token, h.accounts.TTL())
	}
	c.JSON(http.StatusOK, user)
}

// MyPolls lists the polls the caller created.
func (h *Handler) MyPolls(c *gin.Context) {
	polls, err := h.polls.ListByAuthor(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"themes": polls})
}

// MyVotes lists the polls the caller voted in with the chosen position.
func (h *Handler) MyVotes(c *gin.Context) {
	votes, err := h.ledger.VotesFor(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"votes": votes})
}

func (h *Handler) GetUser(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	user, err := h.accounts.GetUser(c.Request.Context(), id)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
