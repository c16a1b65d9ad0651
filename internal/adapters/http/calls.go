package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/duocall/duocall/internal/domain"
)

type CreateCallResponse struct {
	CallID string `json:"callId"`
}

// handleCreateCall mints a call id for an authenticated creator. The id
// is the only thing the server hands out; whoever holds it can join.
func handleCreateCall(limiter *CreateCallLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetString("client_token")
		if !limiter.Allow(token) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many calls"})
			return
		}
		id := domain.NewCallID()
		log.Info().Str("module", "adapters.http").Str("sid", token).Str("call", string(id)).Msg("call created")
		c.JSON(http.StatusOK, CreateCallResponse{CallID: string(id)})
	}
}
