package handlers

import (
	"net/http"

	"polling-backend/auth"
	"polling-backend/service"

	"github.com/gin-gonic/gin"
)

// SignupInput accepts JSON or form-encoded bodies.
type SignupInput struct {
	Username    string `json:"username" form:"username" binding:"required"`
	DisplayName string `json:"displayname" form:"displayname" binding:"required"`
	Password    string `json:"password" form:"password" binding:"required"`
}

type LoginInput struct {
	Username string `json:"username" form:"username" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

// Signup creates an account. It does not log the user in.
func (h *Handler) Signup(c *gin.Context) {
	var input SignupInput
	if err := c.ShouldBind(&input); err != nil {
		bindError(c, err)
		return
	}

	user, err := h.accounts.Signup(c.Request.Context(), service.SignupInput{
		Username:    input.Username,
		DisplayName: input.DisplayName,
		Password:    input.Password,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// Login checks credentials and sets the session cookie.
func (h *Handler) Login(c *gin.Context) {
	var input LoginInput
	if err := c.ShouldBind(&input); err != nil {
		bindError(c, err)
		return
	}

	session, err := h.accounts.Login(c.Request.Context(), input.Username, input.Password)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	auth.SetSessionCookie(c, h.cookie, session.Token, h.accounts.TTL())
	c.JSON(http.StatusOK, gin.H{
		"user":       session.User,
		"expires_at": session.ExpiresAt,
	})
}

// Logout clears the session cookie. Tokens are stateless, so a copied
// token stays valid until it expires.
func (h *Handler) Logout(c *gin.Context) {
	auth.ClearSessionCookie(c, h.cookie)
	c.Status(http.StatusNoContent)
}
