package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
)

// Error represents an error the server can respond with, carrying the
// HTTP status the handler should use.
type Error struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

var (
	ErrNotFound            = New("message not found", http.StatusNotFound)
	ErrBadRequest          = New("bad request", http.StatusBadRequest)
	ErrInternalServerError = New("internal server error", http.StatusInternalServerError)
	ErrStoreUnavailable    = New("message store unavailable", http.StatusBadGateway)
	// ErrDuplicateMessage is returned when the unique (channel, provider_message_id)
	// constraint rejects a webhook replay. Callers treat it as already-processed.
	ErrDuplicateMessage = stderrors.New("duplicate provider message")
)

func New(message string, status int) *Error {
	return &Error{
		Message: message,
		Status:  status,
	}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

// ErrorHandler is plugged into the rate limiter middleware.
func ErrorHandler(c *gin.Context, info ratelimit.Info) {
	c.JSON(http.StatusTooManyRequests, gin.H{
		"errors": "too many requests, try again later",
		"status": http.StatusText(http.StatusTooManyRequests),
	})
	c.Abort()
}
