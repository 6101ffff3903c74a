package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/guttosm/stockpulse/internal/domain/dto"
)

// ErrorHandler renders errors attached with c.Error() when the handler did not write a response.
//
// A dto.ErrorResponse attached as the last error keeps its message; anything
// else becomes a generic 500.
func ErrorHandler(c *gin.Context) {
	c.Next()

	if len(c.Errors) == 0 || c.Writer.Written() {
		return
	}

	last := c.Errors.Last().Err
	status := c.Writer.Status()
	if status < http.StatusBadRequest {
		status = http.StatusInternalServerError
	}

	var resp dto.ErrorResponse
	if errors.As(last, &resp) {
		c.JSON(status, resp)
		return
	}
	c.JSON(status, dto.NewErrorResponse("Internal server error", last))
}

// AbortWithError sets status, attaches a dto.ErrorResponse built from message
// and err, and aborts the chain. ErrorHandler renders the body.
func AbortWithError(c *gin.Context, status int, message string, err error) {
	c.Status(status)
	_ = c.Error(dto.NewErrorResponse(message, err))
	c.Abort()
}
