package whitelist

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/betguard/betguard/internal/idgen"
	"github.com/betguard/betguard/internal/validation"
)

// Handler provides HTTP endpoints for whitelist management
type Handler struct {
	store Store
}

// NewHandler creates a new whitelist handler
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up whitelist routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/whitelist", h.CreateEntry)
	r.GET("/whitelist", h.ListEntries)
	r.DELETE("/whitelist/:id", h.DeleteEntry)
}

// CreateEntryRequest for adding a whitelist entry
type CreateEntryRequest struct {
	UserID    string `json:"userId"`
	Pattern   string `json:"pattern" binding:"required"`
	CreatedBy string `json:"createdBy"`
}

// CreateEntry handles POST /whitelist
func (h *Handler) CreateEntry(c *gin.Context) {
	var req CreateEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("pattern", req.Pattern),
		validation.ValidUserID("userId", req.UserID),
		validation.MaxLength("pattern", req.Pattern, 256),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": errs.Error(),
		})
		return
	}

	entry := &Entry{
		ID:        idgen.WithPrefix("wl_"),
		UserID:    req.UserID,
		Pattern:   validation.SanitizeString(req.Pattern, 256),
		CreatedBy: validation.SanitizeString(req.CreatedBy, 64),
		CreatedAt: time.Now().UTC(),
	}

	if err := h.store.Create(c.Request.Context(), entry); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "create_failed",
			"message": "Failed to create whitelist entry",
		})
		return
	}

	c.JSON(http.StatusCreated, entry)
}

// ListEntries handles GET /whitelist?userId=...
func (h *Handler) ListEntries(c *gin.Context) {
	userID := c.Query("userId")
	if userID != "" && !validation.IsValidUserID(userID) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_user_id",
			"message": "userId must be 1-64 alphanumeric, dash, or underscore characters",
		})
		return
	}

	entries, err := h.store.List(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "list_failed",
			"message": "Failed to list whitelist entries",
		})
		return
	}
	if entries == nil {
		entries = []*Entry{}
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// DeleteEntry handles DELETE /whitelist/:id
func (h *Handler) DeleteEntry(c *gin.Context) {
	id := c.Param("id")

	err := h.store.Delete(c.Request.Context(), id)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Whitelist entry not found",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "delete_failed",
			"message": "Failed to delete whitelist entry",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": id})
}
