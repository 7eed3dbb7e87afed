package db

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/tmx156/Crm-sub003/models"
	"gorm.io/gorm"
)

// LeadRepository interface
type LeadRepository interface {
	CreateLead(lead *models.Lead) error
	GetLead(id uuid.UUID) (*models.Lead, error)
	ListLeads() ([]models.Lead, error)
	GetLeadHistory(id uuid.UUID) ([]models.HistoryEntry, error)
	PutLeadHistory(id uuid.UUID, entries []models.HistoryEntry) error
}

// leadRepo struct
type leadRepo struct {
	DB *gorm.DB
}

// NewLeadRepo creates a new instance of LeadRepository
func NewLeadRepo(db *GormDB) LeadRepository {
	return &leadRepo{db.DB}
}

func (r *leadRepo) CreateLead(lead *models.Lead) error {
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	if err := r.DB.Create(lead).Error; err != nil {
		return errors.Wrap(err, "failed to create lead")
	}
	return nil
}

func (r *leadRepo) GetLead(id uuid.UUID) (*models.Lead, error) {
	var lead models.Lead
	if err := r.DB.Where("id = ?", id).First(&lead).Error; err != nil {
		return nil, err
	}
	return &lead, nil
}

func (r *leadRepo) ListLeads() ([]models.Lead, error) {
	var leads []models.Lead
	if err := r.DB.Find(&leads).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list leads")
	}
	return leads, nil
}

// GetLeadHistory unmarshals the embedded history log.
func (r *leadRepo) GetLeadHistory(id uuid.UUID) ([]models.HistoryEntry, error) {
	lead, err := r.GetLead(id)
	if err != nil {
		return nil, err
	}
	return lead.HistoryEntries(), nil
}

// PutLeadHistory persists the whole list back, keeping only the most
// recent MaxHistoryEntries so merge cost stays bounded.
func (r *leadRepo) PutLeadHistory(id uuid.UUID, entries []models.HistoryEntry) error {
	if len(entries) > models.MaxHistoryEntries {
		entries = entries[len(entries)-models.MaxHistoryEntries:]
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return errors.Wrap(err, "failed to encode history")
	}
	return r.DB.Model(&models.Lead{}).Where("id = ?", id).Update("history", raw).Error
}
