package handlers

import (
	"net/http"

	"polling-backend/models"
	"polling-backend/service"

	"github.com/gin-gonic/gin"
)

// CreatePollInput defines the expected body for creating a poll.
type CreatePollInput struct {
	Title       string          `json:"title" binding:"required"`
	Description string          `json:"description"`
	Category    models.Category `json:"category" binding:"required"`
	Options     []string        `json:"options" binding:"required,min=1"`
}

type SearchQuery struct {
	Query    string          `form:"query"`
	Category models.Category `form:"category"`
}

// CreatePoll stores a poll authored by the caller.
func (h *Handler) CreatePoll(c *gin.Context) {
	var input CreatePollInput
	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}

	detail, err := h.polls.CreatePoll(c.Request.Context(), currentUser(c).ID, service.PollInput{
		Title:       input.Title,
		Description: input.Description,
		Category:    input.Category,
		Choices:     input.Options,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, detail)
}

// SearchPolls matches titles against ?query= and filters by ?category=.
func (h *Handler) SearchPolls(c *gin.Context) {
	var q SearchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}

	polls, err := h.polls.Search(c.Request.Context(), q.Query, q.Category)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"themes": polls})
}

// GetPoll returns a poll with its choices and counts.
func (h *Handler) GetPoll(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	detail, err := h.polls.GetPoll(c.Request.Context(), id)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) GetResults(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	results, err := h.polls.Results(c.Request.Context(), id)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}
