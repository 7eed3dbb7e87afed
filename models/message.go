package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"

	DirectionSent     = "sent"
	DirectionReceived = "received"

	// ContentPlaceholder is substituted when a record carries no body or
	// subject, so sorting and dedup keys never see an empty string.
	ContentPlaceholder = "(no content)"
)

// Message is the canonical flat-table representation of a communication
// event. LeadID may be uuid.Nil when the provider gave us nothing to match
// a lead on; such rows are orphaned and kept for audit only.
type Message struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	LeadID  uuid.UUID `gorm:"type:uuid;index" json:"lead_id"`
	Channel string    `gorm:"not null;uniqueIndex:idx_channel_provider_msg" json:"channel"`
	// SentBy holds the operator who sent the message. Empty means the
	// message came in from the counterparty.
	SentBy  string `json:"sent_by"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	// ProviderMessageID is the upstream provider's id for the event. The
	// unique index on (channel, provider_message_id) is what makes webhook
	// replays a no-op instead of a duplicate row.
	ProviderMessageID string     `gorm:"uniqueIndex:idx_channel_provider_msg" json:"provider_message_id"`
	SentAt            *time.Time `json:"sent_at"`
	CreatedAt         time.Time  `json:"created_at"`
	IsRead            bool       `gorm:"default:false" json:"is_read"`
	ReadAt            *time.Time `json:"read_at"`
}

// Direction derives sent/received from the presence of the sending actor.
func (m *Message) Direction() string {
	if m.SentBy != "" {
		return DirectionSent
	}
	return DirectionReceived
}

// Content picks the human-readable body for the channel, falling through
// the alternate fields the two write paths have historically used.
func (m *Message) Content() string {
	if m.Channel == ChannelEmail {
		if s := strings.TrimSpace(m.Subject); s != "" {
			return s
		}
	}
	if b := strings.TrimSpace(m.Body); b != "" {
		return b
	}
	if s := strings.TrimSpace(m.Subject); s != "" {
		return s
	}
	return ContentPlaceholder
}

// EffectiveTime prefers the provider's sent-at time over row creation
// time; the latter reflects processing delay, not the event.
func (m *Message) EffectiveTime() time.Time {
	if m.SentAt != nil && !m.SentAt.IsZero() {
		return *m.SentAt
	}
	return m.CreatedAt
}

// DisplayMessage is one row of the merged, deduplicated view. Ref is the
// native message id when the winning record has one, else a composite
// leadID_timestamp reference into the lead's history log.
type DisplayMessage struct {
	Ref       string    `json:"ref"`
	LeadID    uuid.UUID `json:"lead_id"`
	LeadName  string    `json:"lead_name"`
	LeadPhone string    `json:"lead_phone"`
	LeadEmail string    `json:"lead_email"`
	Channel   string    `json:"channel"`
	Direction string    `json:"direction"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

// MarkReadResult reports the outcome for a single reference in a batch.
type MarkReadResult struct {
	Ref     string `json:"ref"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type MarkManyReadRequest struct {
	Refs []string `json:"refs" binding:"required"`
}

type BulkDeleteRequest struct {
	Refs []string `json:"refs" binding:"required"`
}

// InboundMessageRequest is the payload both webhook endpoints bind.
type InboundMessageRequest struct {
	ProviderMessageID string `json:"provider_message_id" binding:"required"`
	From              string `json:"from"`
	LeadID            string `json:"lead_id"`
	Subject           string `json:"subject"`
	Body              string `json:"body"`
	SentAt            string `json:"sent_at"`
}
