package handlers

import (
	"net/http"

	"polling-backend/service"

	"github.com/gin-gonic/gin"
)

// VoteInput names the chosen position.
type VoteInput struct {
	Choice *int `json:"choice" binding:"required"`
}

// Vote records or replaces the caller's vote: 201 for a first vote, 200
// when an earlier vote was overwritten.
func (h *Handler) Vote(c *gin.Context) {
	pollID, ok := paramID(c)
	if !ok {
		return
	}
	var input VoteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.ledger.Cast(c.Request.Context(), pollID, currentUser(c).ID, *input.Choice)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	status := http.StatusOK
	if result == service.CastCreated {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"result": result.String(), "choice": *input.Choice})
}
