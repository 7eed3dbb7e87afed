package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryEntry_ToMessageView(t *testing.T) {
	leadID := uuid.New()

	tests := []struct {
		name          string
		entry         HistoryEntry
		wantOK        bool
		wantChannel   string
		wantDirection string
		wantContent   string
		wantRead      bool
	}{
		{
			name: "sms received",
			entry: HistoryEntry{
				Action:    ActionSMSReceived,
				Timestamp: "2024-01-01T10:00:00Z",
				Details:   HistoryDetails{Body: "Hello", Read: false},
			},
			wantOK:        true,
			wantChannel:   ChannelSMS,
			wantDirection: DirectionReceived,
			wantContent:   "Hello",
			wantRead:      false,
		},
		{
			name: "email sent is born read",
			entry: HistoryEntry{
				Action:    ActionEmailSent,
				Timestamp: "2024-01-01T10:00:00Z",
				Details:   HistoryDetails{Subject: "Your booking", Read: false},
			},
			wantOK:        true,
			wantChannel:   ChannelEmail,
			wantDirection: DirectionSent,
			wantContent:   "Your booking",
			wantRead:      true,
		},
		{
			name: "content falls back through message field",
			entry: HistoryEntry{
				Action:    ActionSMSReceived,
				Timestamp: "2024-01-01T10:00:00Z",
				Details:   HistoryDetails{Message: "legacy field"},
			},
			wantOK:        true,
			wantChannel:   ChannelSMS,
			wantDirection: DirectionReceived,
			wantContent:   "legacy field",
		},
		{
			name: "empty content gets placeholder",
			entry: HistoryEntry{
				Action:    ActionEmailReceived,
				Timestamp: "2024-01-01T10:00:00Z",
			},
			wantOK:        true,
			wantChannel:   ChannelEmail,
			wantDirection: DirectionReceived,
			wantContent:   ContentPlaceholder,
		},
		{
			name: "unrecognised action is dropped",
			entry: HistoryEntry{
				Action:    "STATUS_CHANGED",
				Timestamp: "2024-01-01T10:00:00Z",
			},
			wantOK: false,
		},
		{
			name: "corrupt timestamp is dropped",
			entry: HistoryEntry{
				Action:    ActionSMSReceived,
				Timestamp: "yesterday-ish",
				Details:   HistoryDetails{Body: "Hello"},
			},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view, ok := tt.entry.ToMessageView(leadID)
			if !tt.wantOK {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, leadID, view.LeadID)
			assert.Equal(t, tt.wantChannel, view.Channel)
			assert.Equal(t, tt.wantDirection, view.Direction())
			assert.Equal(t, tt.wantContent, view.Content())
			assert.Equal(t, tt.wantRead, view.IsRead)
		})
	}
}

func TestParseHistoryTime_AcceptsLegacyLayouts(t *testing.T) {
	for _, s := range []string{
		"2024-01-01T10:00:00Z",
		"2024-01-01T10:00:00.123Z",
		"2024-01-01T10:00:00+01:00",
		"2024-01-01T10:00:00",
		"2024-01-01 10:00:00",
	} {
		_, ok := ParseHistoryTime(s)
		assert.True(t, ok, "expected %q to parse", s)
	}

	_, ok := ParseHistoryTime("01/01/2024")
	assert.False(t, ok)
}

func TestMessage_ContentAndEffectiveTime(t *testing.T) {
	sentAt := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	created := sentAt.Add(45 * time.Second)

	email := Message{Channel: ChannelEmail, Subject: "Quote", Body: "long html body", SentAt: &sentAt, CreatedAt: created}
	assert.Equal(t, "Quote", email.Content())
	assert.Equal(t, sentAt, email.EffectiveTime())

	sms := Message{Channel: ChannelSMS, Body: "text", CreatedAt: created}
	assert.Equal(t, "text", sms.Content())
	assert.Equal(t, created, sms.EffectiveTime())

	empty := Message{Channel: ChannelSMS, CreatedAt: created}
	assert.Equal(t, ContentPlaceholder, empty.Content())
}

func TestLead_HistoryEntriesToleratesCorruptBlob(t *testing.T) {
	lead := Lead{ID: uuid.New(), History: []byte("{not json")}
	assert.Nil(t, lead.HistoryEntries())

	entries := []HistoryEntry{{Action: ActionSMSSent, Timestamp: "2024-01-01T10:00:00Z"}}
	raw, err := json.Marshal(entries)
	require.NoError(t, err)
	lead.History = raw
	assert.Len(t, lead.HistoryEntries(), 1)
}
