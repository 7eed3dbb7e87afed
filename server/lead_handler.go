package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	errs "github.com/tmx156/Crm-sub003/errors"
	"github.com/tmx156/Crm-sub003/models"
	"github.com/tmx156/Crm-sub003/server/response"
	"gorm.io/gorm"
)

func (s *Server) handleCreateLead() gin.HandlerFunc {
	return func(c *gin.Context) {
		var lead models.Lead
		if err := c.ShouldBindJSON(&lead); err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, err)
			return
		}
		if err := s.LeadRepository.CreateLead(&lead); err != nil {
			response.JSON(c, "Failed to create lead", http.StatusInternalServerError, nil, errs.ErrInternalServerError)
			return
		}
		response.JSON(c, "Lead created successfully", http.StatusCreated, lead, nil)
	}
}

func (s *Server) handleGetLead() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, errs.ErrBadRequest)
			return
		}
		lead, err := s.LeadRepository.GetLead(id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				response.JSON(c, "Lead not found", http.StatusNotFound, nil, errs.New("lead not found", http.StatusNotFound))
				return
			}
			response.JSON(c, "Failed to retrieve lead", http.StatusInternalServerError, nil, errs.ErrInternalServerError)
			return
		}
		response.JSON(c, "Lead retrieved successfully", http.StatusOK, lead, nil)
	}
}

func (s *Server) handleGetAllLeads() gin.HandlerFunc {
	return func(c *gin.Context) {
		leads, err := s.LeadRepository.ListLeads()
		if err != nil {
			response.JSON(c, "Failed to retrieve leads", http.StatusInternalServerError, nil, errs.ErrInternalServerError)
			return
		}
		response.JSON(c, "Leads retrieved successfully", http.StatusOK, leads, nil)
	}
}
