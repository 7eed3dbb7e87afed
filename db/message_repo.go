package db

import (
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	errs "github.com/tmx156/Crm-sub003/errors"
	"github.com/tmx156/Crm-sub003/models"
	"gorm.io/gorm"
)

// MessageRepository interface
type MessageRepository interface {
	SaveMessage(msg *models.Message) error
	GetMessage(id uuid.UUID) (*models.Message, error)
	ListMessages() ([]models.Message, error)
	MarkMessageRead(id uuid.UUID) error
	DeleteMessage(id uuid.UUID) (int64, error)
	DeleteMessages(leadID uuid.UUID, channel, content string) (int64, error)
}

// messageRepo struct
type messageRepo struct {
	DB *gorm.DB
}

// NewMessageRepo creates a new instance of MessageRepository
func NewMessageRepo(db *GormDB) MessageRepository {
	return &messageRepo{db.DB}
}

func (r *messageRepo) SaveMessage(msg *models.Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if err := r.DB.Create(msg).Error; err != nil {
		// The unique index on (channel, provider_message_id) rejects
		// webhook replays; surface those as a distinct condition.
		if strings.Contains(err.Error(), "duplicate key") {
			return errs.ErrDuplicateMessage
		}
		return errors.Wrap(err, "failed to save message")
	}
	return nil
}

func (r *messageRepo) GetMessage(id uuid.UUID) (*models.Message, error) {
	var msg models.Message
	if err := r.DB.Where("id = ?", id).First(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepo) ListMessages() ([]models.Message, error) {
	var messages []models.Message
	if err := r.DB.Find(&messages).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list messages")
	}
	return messages, nil
}

// MarkMessageRead flips the read flag and stamps the read time. Calling
// it on an already-read message is a no-op success.
func (r *messageRepo) MarkMessageRead(id uuid.UUID) error {
	now := time.Now().UTC()
	result := r.DB.Model(&models.Message{}).Where("id = ?", id).
		Updates(map[string]interface{}{"is_read": true, "read_at": now})
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to mark message read")
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteMessage removes a single row by primary key. Zero rows deleted
// is not an error.
func (r *messageRepo) DeleteMessage(id uuid.UUID) (int64, error) {
	result := r.DB.Where("id = ?", id).Delete(&models.Message{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to delete message")
	}
	return result.RowsAffected, nil
}

// DeleteMessages removes the message rows matching a lead, channel and
// content. Content may live in either body or subject depending on the
// write path, so both columns are checked. Zero rows deleted is not an
// error; bulk delete is idempotent.
func (r *messageRepo) DeleteMessages(leadID uuid.UUID, channel, content string) (int64, error) {
	result := r.DB.Where("lead_id = ? AND channel = ? AND (body = ? OR subject = ?)",
		leadID, channel, content, content).Delete(&models.Message{})
	if result.Error != nil {
		log.Printf("failed to delete messages for lead %s: %v", leadID, result.Error)
		return 0, errors.Wrap(result.Error, "failed to delete messages")
	}
	return result.RowsAffected, nil
}
