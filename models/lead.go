package models

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
)

// MaxHistoryEntries caps the embedded log at write time so a merge over
// a busy lead stays bounded.
const MaxHistoryEntries = 100

// Lead is the business entity messages are about.
type Lead struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name  string    `json:"name" binding:"required,min=2"`
	Phone string    `json:"phone"`
	Email string    `json:"email"`
	// AssignedTo is the user id of the agent working this lead; it drives
	// the non-admin visibility filter on the message view.
	AssignedTo uint `json:"assigned_to"`
	// History is the legacy embedded event log, serialized as a JSON array
	// of HistoryEntry. New code never dual-writes to it; it survives as a
	// deprecated read path until the backfill retires it.
	History   []byte    `gorm:"type:jsonb" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HistoryEntries decodes the embedded log. A corrupt blob is logged and
// treated as empty; one bad historical record must not block the view.
func (l *Lead) HistoryEntries() []HistoryEntry {
	if len(l.History) == 0 {
		return nil
	}
	var entries []HistoryEntry
	if err := json.Unmarshal(l.History, &entries); err != nil {
		log.Printf("corrupt history blob on lead %s: %v", l.ID, err)
		return nil
	}
	return entries
}
