package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/wonny/snowbot/internal/api/response"
	"github.com/wonny/snowbot/internal/domain/trading"
)

// TokenAdmin exposes token state per profile
type TokenAdmin interface {
	Status(ctx context.Context, profile trading.Profile) (*trading.TokenStatus, error)
	Invalidate(ctx context.Context, profile trading.Profile) error
}

// TokenHandler serves token status
type TokenHandler struct {
	tokens TokenAdmin
}

// NewTokenHandler creates a new TokenHandler
func NewTokenHandler(tokens TokenAdmin) *TokenHandler {
	return &TokenHandler{tokens: tokens}
}

// Status returns the token state of a profile
// GET /api/tokens/:profile
func (h *TokenHandler) Status(c *gin.Context) {
	profile, err := trading.ParseProfile(c.Param("profile"))
	if err != nil {
		response.BadRequest(c, "profile must be paper or live")
		return
	}

	status, err := h.tokens.Status(c.Request.Context(), profile)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, status)
}

// Invalidate discards the cached token of a profile.
// The daily issuance count is kept.
// DELETE /api/tokens/:profile
func (h *TokenHandler) Invalidate(c *gin.Context) {
	profile, err := trading.ParseProfile(c.Param("profile"))
	if err != nil {
		response.BadRequest(c, "profile must be paper or live")
		return
	}

	if err := h.tokens.Invalidate(c.Request.Context(), profile); err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, gin.H{"profile": profile}, "token invalidated")
}
