package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	errs "github.com/tmx156/Crm-sub003/errors"
	"github.com/tmx156/Crm-sub003/models"
	"github.com/tmx156/Crm-sub003/server/response"
)

// visibilityFromContext builds the predicate the engine filters leads
// with: admins see everything, agents only the leads assigned to them.
func visibilityFromContext(c *gin.Context) func(models.Lead) bool {
	if c.GetBool("isAdmin") {
		return func(models.Lead) bool { return true }
	}
	userID := c.GetUint("userID")
	return func(lead models.Lead) bool {
		return lead.AssignedTo == userID
	}
}

func (s *Server) handleListMessages() gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := s.MessageService.BuildMergedView(visibilityFromContext(c))
		if err != nil {
			respondWithServiceError(c, "could not load messages", err)
			return
		}
		response.JSON(c, "Messages retrieved successfully", http.StatusOK, view, nil)
	}
}

func (s *Server) handleGetUnreadCount() gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := s.MessageService.UnreadCount(visibilityFromContext(c))
		if err != nil {
			respondWithServiceError(c, "could not load messages", err)
			return
		}
		response.JSON(c, "Unread count retrieved successfully", http.StatusOK, gin.H{"unread": count}, nil)
	}
}

func (s *Server) handleMarkMessageRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		ref := c.Param("ref")
		if err := s.MessageService.MarkRead(ref); err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				// Stale client state, not a fault; the client should
				// simply refresh its view.
				response.JSON(c, "message not found, possibly stale client state", http.StatusNotFound, nil, err)
				return
			}
			respondWithServiceError(c, "could not mark message read", err)
			return
		}
		response.JSON(c, "Message marked as read", http.StatusOK, gin.H{"ref": ref}, nil)
	}
}

func (s *Server) handleMarkManyRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.MarkManyReadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, errs.ErrBadRequest)
			return
		}
		results := s.MessageService.MarkManyRead(req.Refs)
		response.JSON(c, "Messages processed", http.StatusOK, results, nil)
	}
}

func (s *Server) handleBulkDeleteMessages() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BulkDeleteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, errs.ErrBadRequest)
			return
		}
		deleted, err := s.MessageService.BulkDelete(req.Refs)
		if err != nil {
			respondWithServiceError(c, "could not delete messages", err)
			return
		}
		response.JSON(c, "Messages deleted", http.StatusOK, gin.H{"deleted_count": deleted}, nil)
	}
}

func (s *Server) handleSMSWebhook() gin.HandlerFunc {
	return s.handleInboundWebhook(models.ChannelSMS)
}

func (s *Server) handleEmailWebhook() gin.HandlerFunc {
	return s.handleInboundWebhook(models.ChannelEmail)
}

// handleInboundWebhook records a provider-delivered message. A replayed
// webhook hits the unique provider-message index and is acknowledged as
// already processed so the provider stops retrying.
func (s *Server) handleInboundWebhook(channel string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.InboundMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, errs.ErrBadRequest)
			return
		}
		msg, err := s.MessageService.RecordInbound(channel, req)
		if err != nil {
			if errors.Is(err, errs.ErrDuplicateMessage) {
				response.JSON(c, "Message already processed", http.StatusOK, nil, nil)
				return
			}
			respondWithServiceError(c, "could not record message", err)
			return
		}
		response.JSON(c, "Message recorded", http.StatusCreated, msg, nil)
	}
}

// respondWithServiceError maps engine errors onto HTTP statuses.
func respondWithServiceError(c *gin.Context, message string, err error) {
	var e *errs.Error
	if errors.As(err, &e) {
		response.JSON(c, message, e.Status, nil, e)
		return
	}
	response.JSON(c, message, http.StatusInternalServerError, nil, errs.ErrInternalServerError)
}
