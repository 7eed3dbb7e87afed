package services

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tmx156/Crm-sub003/config"
	"github.com/tmx156/Crm-sub003/db"
	errs "github.com/tmx156/Crm-sub003/errors"
	"github.com/tmx156/Crm-sub003/models"
	"gorm.io/gorm"
)

const (
	// dedupWindow is the reconciliation window: two records for the same
	// lead, channel and direction whose timestamps land in the same
	// 2-minute bucket and whose normalized content matches describe the
	// same real-world event.
	dedupWindow = 2 * time.Minute
	// dedupPrefixLen bounds how much content feeds the bucket key, so
	// minor formatting skew between the two stores still collapses.
	dedupPrefixLen = 160
	// timestampSlackMS absorbs timezone-suffix differences when matching
	// a composite reference back into the history log.
	timestampSlackMS = 10000

	snippetLen = 80
)

// Notifier is the broadcast channel connected dashboards listen on.
// Publishing is fire and forget; the engine carries no retry obligation.
type Notifier interface {
	Publish(event string, payload interface{})
}

// MessageService reconciles the two storage representations of a
// communication event (the flat messages table and the legacy per-lead
// history log) into one deduplicated, read-state-consistent view.
type MessageService interface {
	BuildMergedView(visible func(models.Lead) bool) ([]models.DisplayMessage, error)
	MarkRead(ref string) error
	MarkManyRead(refs []string) []models.MarkReadResult
	BulkDelete(refs []string) (int, error)
	UnreadCount(visible func(models.Lead) bool) (int, error)
	RecordInbound(channel string, req models.InboundMessageRequest) (*models.Message, error)
}

// messageService struct
type messageService struct {
	Config      *config.Config
	messageRepo db.MessageRepository
	leadRepo    db.LeadRepository
	notifier    Notifier
}

// NewMessageService creates a new instance of MessageService
func NewMessageService(messageRepo db.MessageRepository, leadRepo db.LeadRepository, notifier Notifier, conf *config.Config) MessageService {
	return &messageService{
		Config:      conf,
		messageRepo: messageRepo,
		leadRepo:    leadRepo,
		notifier:    notifier,
	}
}

// mergedRecord is the common shape both representations are translated
// into before deduplication.
type mergedRecord struct {
	nativeID  uuid.UUID // uuid.Nil for history-derived records
	leadID    uuid.UUID
	channel   string
	direction string
	content   string
	ts        time.Time
	rawTS     string // original history timestamp string, for composite refs
	read      bool
}

func (rec *mergedRecord) ref() string {
	if rec.nativeID != uuid.Nil {
		return rec.nativeID.String()
	}
	return fmt.Sprintf("%s_%s", rec.leadID, rec.rawTS)
}

type bucketKey struct {
	leadID    uuid.UUID
	channel   string
	direction string
	window    int64
	prefix    string
}

// BuildMergedView merges the history log and the messages table for all
// leads passing the visibility predicate, collapses duplicates and
// returns the result sorted newest first. A store failure fails the
// whole view; partial results are never returned.
func (s *messageService) BuildMergedView(visible func(models.Lead) bool) ([]models.DisplayMessage, error) {
	leads, err := s.leadRepo.ListLeads()
	if err != nil {
		log.Printf("failed to load leads for merged view: %v", err)
		return nil, errs.ErrStoreUnavailable
	}
	messages, err := s.messageRepo.ListMessages()
	if err != nil {
		log.Printf("failed to load messages for merged view: %v", err)
		return nil, errs.ErrStoreUnavailable
	}

	leadByID := make(map[uuid.UUID]models.Lead, len(leads))
	for _, lead := range leads {
		leadByID[lead.ID] = lead
	}

	var records []mergedRecord

	// Translate the legacy history log into the common shape.
	for _, lead := range leads {
		if visible != nil && !visible(lead) {
			continue
		}
		for _, entry := range lead.HistoryEntries() {
			view, ok := entry.ToMessageView(lead.ID)
			if !ok {
				continue
			}
			records = append(records, mergedRecord{
				leadID:    lead.ID,
				channel:   view.Channel,
				direction: view.Direction(),
				content:   view.Content(),
				ts:        view.EffectiveTime(),
				rawTS:     entry.Timestamp,
				read:      view.IsRead,
			})
		}
	}

	// Native message rows. Rows whose lead cannot be resolved are
	// orphaned: excluded from the view but kept in storage for audit.
	for i := range messages {
		msg := &messages[i]
		lead, ok := leadByID[msg.LeadID]
		if !ok {
			continue
		}
		if visible != nil && !visible(lead) {
			continue
		}
		records = append(records, mergedRecord{
			nativeID:  msg.ID,
			leadID:    msg.LeadID,
			channel:   msg.Channel,
			direction: msg.Direction(),
			content:   msg.Content(),
			ts:        msg.EffectiveTime(),
			read:      msg.IsRead,
		})
	}

	merged := dedupe(records)

	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].ts.Equal(merged[j].ts) {
			return merged[i].ts.After(merged[j].ts)
		}
		return merged[i].ref() < merged[j].ref()
	})

	out := make([]models.DisplayMessage, 0, len(merged))
	for _, rec := range merged {
		lead := leadByID[rec.leadID]
		out = append(out, models.DisplayMessage{
			Ref:       rec.ref(),
			LeadID:    rec.leadID,
			LeadName:  lead.Name,
			LeadPhone: lead.Phone,
			LeadEmail: lead.Email,
			Channel:   rec.channel,
			Direction: rec.direction,
			Content:   rec.content,
			Timestamp: rec.ts,
			Read:      rec.read,
		})
	}
	return out, nil
}

// dedupe partitions records into buckets and keeps one winner per
// bucket: the latest timestamp, ties broken in favour of the native row
// since it carries a stable id for later read-state updates. The read
// flag is OR-ed across the bucket so a message acknowledged in either
// representation is never re-surfaced as unread.
func dedupe(records []mergedRecord) []mergedRecord {
	type bucket struct {
		winner mergedRecord
		read   bool
	}
	buckets := make(map[bucketKey]*bucket)
	var order []bucketKey

	for _, rec := range records {
		key := bucketKey{
			leadID:    rec.leadID,
			channel:   rec.channel,
			direction: rec.direction,
			window:    rec.ts.Unix() / int64(dedupWindow/time.Second),
			prefix:    normalizeContent(rec.content),
		}
		b, ok := buckets[key]
		if !ok {
			buckets[key] = &bucket{winner: rec, read: rec.read}
			order = append(order, key)
			continue
		}
		b.read = b.read || rec.read
		if rec.ts.After(b.winner.ts) {
			b.winner = rec
		} else if rec.ts.Equal(b.winner.ts) && b.winner.nativeID == uuid.Nil && rec.nativeID != uuid.Nil {
			b.winner = rec
		}
	}

	out := make([]mergedRecord, 0, len(buckets))
	for _, key := range order {
		b := buckets[key]
		b.winner.read = b.read
		out = append(out, b.winner)
	}
	return out
}

// normalizeContent lowercases, collapses whitespace and truncates to a
// fixed prefix. Lossy equality on purpose: clocks and serialization
// differ slightly between the two representations of the same event.
func normalizeContent(content string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(content), " "))
	runes := []rune(normalized)
	if len(runes) > dedupPrefixLen {
		return string(runes[:dedupPrefixLen])
	}
	return normalized
}

// readEvent is the payload broadcast after a successful read-state
// update so connected views can refresh without re-fetching.
type readEvent struct {
	Ref     string    `json:"ref"`
	LeadID  uuid.UUID `json:"lead_id"`
	Snippet string    `json:"snippet"`
}

// MarkRead resolves a reference against either representation and flips
// its read flag. A second call on the same reference is a no-op success.
// An unresolvable reference returns ErrNotFound: the client most likely
// holds stale state, not a fatal condition.
func (s *messageService) MarkRead(ref string) error {
	event, err := s.markRead(ref)
	if err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.Publish("message:read", event)
	}
	return nil
}

func (s *messageService) markRead(ref string) (*readEvent, error) {
	// Native message id first.
	if id, err := uuid.Parse(ref); err == nil {
		return s.markNativeRead(id, ref)
	}

	// Composite leadID_timestamp reference into the history log.
	leadID, target, ok := splitCompositeRef(ref)
	if !ok {
		return nil, errs.ErrNotFound
	}
	entries, err := s.leadRepo.GetLeadHistory(leadID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.ErrNotFound
		}
		return nil, errs.ErrStoreUnavailable
	}

	for i := range entries {
		entry := &entries[i]
		if entry.Action != models.ActionSMSReceived && entry.Action != models.ActionEmailReceived {
			continue
		}
		if !timestampMatches(entry.Timestamp, target) {
			continue
		}
		event := &readEvent{Ref: ref, LeadID: leadID, Snippet: snippet(entry.Content())}
		if entry.Details.Read {
			return event, nil
		}
		entry.Details.Read = true
		entry.Details.ReadAt = time.Now().UTC().Format(time.RFC3339)
		if err := s.leadRepo.PutLeadHistory(leadID, entries); err != nil {
			return nil, errs.ErrStoreUnavailable
		}
		return event, nil
	}
	return nil, errs.ErrNotFound
}

func (s *messageService) markNativeRead(id uuid.UUID, ref string) (*readEvent, error) {
	msg, err := s.messageRepo.GetMessage(id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.ErrNotFound
		}
		return nil, errs.ErrStoreUnavailable
	}
	event := &readEvent{Ref: ref, LeadID: msg.LeadID, Snippet: snippet(msg.Content())}
	if msg.IsRead {
		return event, nil
	}
	if err := s.messageRepo.MarkMessageRead(id); err != nil {
		if err == gorm.ErrRecordNotFound {
			// Deleted between the read and the update; deletion wins.
			return nil, errs.ErrNotFound
		}
		return nil, errs.ErrStoreUnavailable
	}
	return event, nil
}

// MarkManyRead applies MarkRead per reference; one failing reference
// never aborts its siblings. A single batched notification goes out at
// the end instead of one per item.
func (s *messageService) MarkManyRead(refs []string) []models.MarkReadResult {
	results := make([]models.MarkReadResult, 0, len(refs))
	var events []readEvent
	for _, ref := range refs {
		event, err := s.markRead(ref)
		if err != nil {
			results = append(results, models.MarkReadResult{Ref: ref, Success: false, Error: err.Error()})
			continue
		}
		results = append(results, models.MarkReadResult{Ref: ref, Success: true})
		events = append(events, *event)
	}
	if s.notifier != nil && len(events) > 0 {
		s.notifier.Publish("messages:read", events)
	}
	return results
}

// BulkDelete removes each referenced event from both representations.
// The two stores share no transaction: each side is best-effort and a
// half-applied delete is tolerated, to be re-derived by the next merged
// view from whichever store still has the record. Already-gone records
// are not errors.
func (s *messageService) BulkDelete(refs []string) (int, error) {
	deleted := 0
	var removed []string
	for _, ref := range refs {
		ok, err := s.deleteOne(ref)
		if err != nil {
			log.Printf("bulk delete: ref %q failed: %v", ref, err)
			continue
		}
		if ok {
			deleted++
			removed = append(removed, ref)
		}
	}
	if s.notifier != nil && len(removed) > 0 {
		s.notifier.Publish("messages:deleted", removed)
	}
	return deleted, nil
}

func (s *messageService) deleteOne(ref string) (bool, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return s.deleteNative(id)
	}

	leadID, target, ok := splitCompositeRef(ref)
	if !ok {
		return false, nil
	}
	entries, err := s.leadRepo.GetLeadHistory(leadID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, nil
		}
		return false, err
	}

	for i := range entries {
		entry := entries[i]
		if !models.IsMessageAction(entry.Action) || !timestampMatches(entry.Timestamp, target) {
			continue
		}
		remaining := append(entries[:i:i], entries[i+1:]...)
		if err := s.leadRepo.PutLeadHistory(leadID, remaining); err != nil {
			return false, err
		}
		// Best-effort removal of the twin row in the messages table; a
		// failure here leaves a known inconsistency window. Skipped for
		// entries with no real content, since the placeholder would never
		// match the stored columns.
		if view, ok := entry.ToMessageView(leadID); ok {
			if content := view.Content(); content != models.ContentPlaceholder {
				if _, err := s.messageRepo.DeleteMessages(leadID, view.Channel, content); err != nil {
					log.Printf("bulk delete: message rows for lead %s not removed: %v", leadID, err)
				}
			}
		}
		return true, nil
	}
	return false, nil
}

func (s *messageService) deleteNative(id uuid.UUID) (bool, error) {
	msg, err := s.messageRepo.GetMessage(id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return false, nil
		}
		return false, err
	}

	// Drop the twin history entry first, matched by the same timestamp
	// ladder used for read-state updates.
	if msg.LeadID != uuid.Nil {
		if err := s.removeHistoryTwin(msg); err != nil {
			log.Printf("bulk delete: history twin for message %s not removed: %v", id, err)
		}
	}

	// The referenced row goes by primary key; content matching cannot be
	// trusted here since an empty body and subject would render as the
	// display placeholder and never match the stored columns.
	count, err := s.messageRepo.DeleteMessage(id)
	if err != nil {
		return false, err
	}

	// Best-effort sweep of duplicate rows carrying the same content.
	if content := msg.Content(); content != models.ContentPlaceholder {
		if _, err := s.messageRepo.DeleteMessages(msg.LeadID, msg.Channel, content); err != nil {
			log.Printf("bulk delete: duplicate rows for message %s not swept: %v", id, err)
		}
	}
	return count > 0, nil
}

func (s *messageService) removeHistoryTwin(msg *models.Message) error {
	entries, err := s.leadRepo.GetLeadHistory(msg.LeadID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return err
	}
	target := msg.EffectiveTime().UTC().Format(time.RFC3339)
	for i := range entries {
		if !models.IsMessageAction(entries[i].Action) || !timestampMatches(entries[i].Timestamp, target) {
			continue
		}
		remaining := append(entries[:i:i], entries[i+1:]...)
		return s.leadRepo.PutLeadHistory(msg.LeadID, remaining)
	}
	return nil
}

// UnreadCount reports how many received messages in the caller's merged
// view are still unread; the dashboard badge polls this.
func (s *messageService) UnreadCount(visible func(models.Lead) bool) (int, error) {
	view, err := s.BuildMergedView(visible)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, m := range view {
		if m.Direction == models.DirectionReceived && !m.Read {
			count++
		}
	}
	return count, nil
}

// RecordInbound stores a message delivered by a provider webhook. The
// unique (channel, provider_message_id) index makes replayed webhooks
// collapse to the original row even across process restarts.
func (s *messageService) RecordInbound(channel string, req models.InboundMessageRequest) (*models.Message, error) {
	msg := &models.Message{
		ID:                uuid.New(),
		Channel:           channel,
		Subject:           req.Subject,
		Body:              req.Body,
		ProviderMessageID: req.ProviderMessageID,
	}
	if req.LeadID != "" {
		if leadID, err := uuid.Parse(req.LeadID); err == nil {
			msg.LeadID = leadID
		}
	}
	if req.SentAt != "" {
		if ts, ok := models.ParseHistoryTime(req.SentAt); ok {
			msg.SentAt = &ts
		}
	}

	if err := s.messageRepo.SaveMessage(msg); err != nil {
		return nil, err
	}
	if s.notifier != nil {
		s.notifier.Publish("message:new", readEvent{Ref: msg.ID.String(), LeadID: msg.LeadID, Snippet: snippet(msg.Content())})
	}
	return msg, nil
}

// splitCompositeRef parses a leadID_timestamp reference.
func splitCompositeRef(ref string) (uuid.UUID, string, bool) {
	parts := strings.SplitN(ref, "_", 2)
	if len(parts) != 2 || parts[1] == "" {
		return uuid.Nil, "", false
	}
	leadID, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, "", false
	}
	return leadID, parts[1], true
}

// timestampMatches compares a stored history timestamp against a target
// through two fallbacks: exact string, then millisecond distance within
// slack. The second rung also absorbs timezone-suffix differences, since
// parsing normalizes both sides to an instant before comparing. The
// ladder exists because the two representations share no stable foreign
// key.
func timestampMatches(stored, target string) bool {
	if stored == target {
		return true
	}
	st, okS := models.ParseHistoryTime(stored)
	tt, okT := models.ParseHistoryTime(target)
	if !okS || !okT {
		return false
	}
	diff := st.Sub(tt)
	if diff < 0 {
		diff = -diff
	}
	return diff <= timestampSlackMS*time.Millisecond
}

func snippet(content string) string {
	runes := []rune(content)
	if len(runes) > snippetLen {
		return string(runes[:snippetLen])
	}
	return content
}
