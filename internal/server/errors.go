package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	chatdomain "github.com/vylinhq/vylin/internal/chat/domain"
	"github.com/vylinhq/vylin/internal/config"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrInternal       = errors.New("internal_error")
)

// ErrorHandlingMiddleware renders the last handler error as a JSON payload
// when no body was written yet.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, chatdomain.ErrEmptyQuestion),
		errors.Is(err, chatdomain.ErrQuestionTooLong),
		errors.Is(err, chatdomain.ErrUnknownMode),
		errors.Is(err, chatdomain.ErrInvalidTxHash),
		errors.Is(err, config.ErrUnknownCategory),
		errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	default:
		return http.StatusBadGateway, errorPayload{
			Type:    "upstream_error",
			Message: "upstream provider failed",
		}
	}
}

// classifyErrorForLog labels handler errors for the request log.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status == http.StatusBadRequest:
		return "validation", payload.Type
	case status >= http.StatusInternalServerError, status == http.StatusBadGateway:
		return "upstream", payload.Type
	default:
		return "handler", payload.Type
	}
}
