package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	chatdomain "github.com/vylinhq/vylin/internal/chat/domain"
	obscontext "github.com/vylinhq/vylin/internal/observability/context"
)

func (s *Server) handleChat(c *gin.Context) {
	var req chatdomain.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	c.Set("chat_mode", req.Mode)

	id := s.resolver.Resolve(c.Request.Context(), c.GetHeader("Authorization"), c.ClientIP())
	ctx := obscontext.WithIdentity(c.Request.Context(), id.Subject)

	resp, err := s.chatSvc.Ask(ctx, id.Subject, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if resp.Denied() {
		c.JSON(http.StatusTooManyRequests, deniedPayload{
			Error:     "quota exceeded",
			Reason:    string(resp.Quota.Reason),
			Remaining: resp.Quota.Remaining,
			Limit:     resp.Quota.Limit,
		})
		return
	}
	c.JSON(http.StatusOK, resp)
}

type deniedPayload struct {
	Error     string `json:"error"`
	Reason    string `json:"reason"`
	Remaining int    `json:"remaining"`
	Limit     int    `json:"limit"`
}
