package server

import (
	"fmt"
	"os"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func (s *Server) setupRouter() *gin.Engine {
	ginMode := os.Getenv("GIN_MODE")
	if ginMode == "test" {
		r := gin.New()
		s.defineRoutes(r)
		return r
	}

	r := gin.New()

	// LoggerWithFormatter middleware will write the logs to gin.DefaultWriter
	// By default gin.DefaultWriter = os.Stdout
	r.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	r.Use(gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	s.defineRoutes(r)

	return r
}

func (s *Server) defineRoutes(router *gin.Engine) {
	store := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  time.Minute,
		Limit: 10,
	})
	limitBulkDelete := limitRateForBulkDelete(store)

	apirouter := router.Group("/api/v1")
	apirouter.POST("/webhooks/sms", s.handleSMSWebhook())
	apirouter.POST("/webhooks/email", s.handleEmailWebhook())
	apirouter.GET("/ws", s.handleWS())

	authorized := apirouter.Group("/")
	authorized.Use(s.Authorize())
	authorized.GET("/messages", s.handleListMessages())
	authorized.GET("/messages/unread/count", s.handleGetUnreadCount())
	authorized.PUT("/messages/read", s.handleMarkManyRead())
	authorized.PUT("/messages/:ref/read", s.handleMarkMessageRead())
	authorized.POST("/messages/delete", limitBulkDelete, s.handleBulkDeleteMessages())
	authorized.POST("/leads", s.handleCreateLead())
	authorized.GET("/leads", s.handleGetAllLeads())
	authorized.GET("/leads/:id", s.handleGetLead())
}
