package ratelimit

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/ZanzyTHEbar/posture-peek/internal/errors"
)

// StatusResponse is the body of GET /api/ratelimit
type StatusResponse struct {
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	Period    string `json:"period"`
	ResetAt   string `json:"reset_at"`
}

// HandleRateLimitStatus returns the caller's analyze quota without consuming it
//
// @Summary      Analyze quota
// @Description  Remaining analyze requests for the calling client in the current window
// @Tags         ratelimit
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /api/ratelimit [get]
func (rl *RateLimiter) HandleRateLimitStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := rl.Status(c.Request.Context(), clientKey(c))
		if err != nil {
			apperrors.Abort(c, err)
			return
		}

		setHeaders(c, result)
		c.JSON(http.StatusOK, StatusResponse{
			Limit:     result.Limit,
			Remaining: result.Remaining,
			Period:    "1m",
			ResetAt:   result.ResetAt.UTC().Format(time.RFC3339),
		})
	}
}
