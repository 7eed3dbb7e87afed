package models

import (
	"log"
	"time"

	"github.com/google/uuid"
)

// History action tags as written by the legacy per-lead log.
const (
	ActionSMSReceived   = "SMS_RECEIVED"
	ActionSMSSent       = "SMS_SENT"
	ActionEmailReceived = "EMAIL_RECEIVED"
	ActionEmailSent     = "EMAIL_SENT"
)

// HistoryDetails is the free-form bag the legacy log keeps per entry. The
// body has been stored under three different keys over time, hence the
// fallback chain in content().
type HistoryDetails struct {
	Body    string `json:"body,omitempty"`
	Message string `json:"message,omitempty"`
	Subject string `json:"subject,omitempty"`
	Read    bool   `json:"read"`
	ReadAt  string `json:"read_at,omitempty"`
}

// HistoryEntry is one record of the legacy embedded history log kept on
// the lead row. Timestamps are strings because old writers serialized
// them in whatever format the client sent.
type HistoryEntry struct {
	Action    string         `json:"action"`
	Timestamp string         `json:"timestamp"`
	Details   HistoryDetails `json:"details"`
}

// actionChannels maps a history action tag to its channel and direction.
var actionChannels = map[string][2]string{
	ActionSMSReceived:   {ChannelSMS, DirectionReceived},
	ActionSMSSent:       {ChannelSMS, DirectionSent},
	ActionEmailReceived: {ChannelEmail, DirectionReceived},
	ActionEmailSent:     {ChannelEmail, DirectionSent},
}

// IsMessageAction reports whether the tag is one of the four SMS/email
// actions; the legacy log also holds notes, status changes etc. that the
// message view ignores.
func IsMessageAction(action string) bool {
	_, ok := actionChannels[action]
	return ok
}

// Content falls through the alternate body fields in the order the
// legacy writers used them.
func (h *HistoryEntry) Content() string {
	switch {
	case h.Details.Body != "":
		return h.Details.Body
	case h.Details.Message != "":
		return h.Details.Message
	case h.Details.Subject != "":
		return h.Details.Subject
	}
	return ContentPlaceholder
}

// ParseHistoryTime accepts the timestamp formats the legacy log is known
// to contain.
func ParseHistoryTime(s string) (time.Time, bool) {
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ToMessageView translates a legacy entry into the common Message shape
// so the reconciliation pass can treat both representations uniformly.
// Entries with an unrecognised action or an unparseable timestamp are
// skipped with a warning; one corrupt historical record must never block
// the rest of the view.
func (h *HistoryEntry) ToMessageView(leadID uuid.UUID) (*Message, bool) {
	cd, ok := actionChannels[h.Action]
	if !ok {
		return nil, false
	}
	ts, ok := ParseHistoryTime(h.Timestamp)
	if !ok {
		log.Printf("skipping corrupt history entry on lead %s: action=%q timestamp=%q", leadID, h.Action, h.Timestamp)
		return nil, false
	}

	read := h.Details.Read
	if cd[1] == DirectionSent {
		// An outbound message is trivially read by its sender.
		read = true
	}

	return &Message{
		LeadID:    leadID,
		Channel:   cd[0],
		SentBy:    sentByForDirection(cd[1]),
		Body:      h.Content(),
		SentAt:    &ts,
		CreatedAt: ts,
		IsRead:    read,
	}, true
}

func sentByForDirection(direction string) string {
	if direction == DirectionSent {
		return "system"
	}
	return ""
}
