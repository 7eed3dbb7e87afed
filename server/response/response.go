package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// JSON writes the standard response envelope.
func JSON(c *gin.Context, message string, status int, data interface{}, err error) {
	responseData := gin.H{
		"message":   message,
		"data":      data,
		"status":    http.StatusText(status),
		"timestamp": time.Now().Format("2006-01-02 15:04:05"),
	}
	if err != nil {
		responseData["errors"] = err.Error()
	}
	c.JSON(status, responseData)
}
