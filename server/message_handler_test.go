package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmx156/Crm-sub003/config"
	errs "github.com/tmx156/Crm-sub003/errors"
	"github.com/tmx156/Crm-sub003/models"
	"github.com/tmx156/Crm-sub003/services/jwt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubMessageService struct {
	view        []models.DisplayMessage
	viewErr     error
	markReadErr error
	results     []models.MarkReadResult
	deleted     int
	inbound     *models.Message
	inboundErr  error
	lastVisible func(models.Lead) bool
}

func (s *stubMessageService) BuildMergedView(visible func(models.Lead) bool) ([]models.DisplayMessage, error) {
	s.lastVisible = visible
	return s.view, s.viewErr
}

func (s *stubMessageService) MarkRead(ref string) error { return s.markReadErr }

func (s *stubMessageService) MarkManyRead(refs []string) []models.MarkReadResult {
	return s.results
}

func (s *stubMessageService) BulkDelete(refs []string) (int, error) { return s.deleted, nil }

func (s *stubMessageService) UnreadCount(visible func(models.Lead) bool) (int, error) {
	s.lastVisible = visible
	return len(s.view), nil
}

func (s *stubMessageService) RecordInbound(channel string, req models.InboundMessageRequest) (*models.Message, error) {
	return s.inbound, s.inboundErr
}

func newTestServer(stub *stubMessageService) (*Server, *gin.Engine) {
	s := &Server{
		Config:         &config.Config{JWTSecret: "testsecret"},
		MessageService: stub,
		Hub:            NewHub(),
	}
	r := gin.New()
	s.defineRoutes(r)
	return s, r
}

func authHeader(t *testing.T, userID uint, isAdmin bool) string {
	t.Helper()
	token, err := jwt.GenerateToken(userID, isAdmin, "testsecret")
	require.NoError(t, err)
	return "Bearer " + token
}

func TestHandleListMessages_RequiresAuth(t *testing.T) {
	_, r := newTestServer(&stubMessageService{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleListMessages_ReturnsView(t *testing.T) {
	stub := &stubMessageService{
		view: []models.DisplayMessage{
			{Ref: uuid.NewString(), Channel: models.ChannelSMS, Content: "Hello", Timestamp: time.Now()},
		},
	}
	_, r := newTestServer(stub)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages", nil)
	req.Header.Set("Authorization", authHeader(t, 1, true))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []models.DisplayMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "Hello", body.Data[0].Content)
}

func TestHandleListMessages_VisibilityFollowsClaims(t *testing.T) {
	stub := &stubMessageService{}
	_, r := newTestServer(stub)

	// Agent 7 sees only leads assigned to them.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages", nil)
	req.Header.Set("Authorization", authHeader(t, 7, false))
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, stub.lastVisible)
	assert.True(t, stub.lastVisible(models.Lead{AssignedTo: 7}))
	assert.False(t, stub.lastVisible(models.Lead{AssignedTo: 8}))

	// Admins see everything.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/messages", nil)
	req.Header.Set("Authorization", authHeader(t, 1, true))
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, stub.lastVisible(models.Lead{AssignedTo: 8}))
}

func TestHandleListMessages_StoreUnavailable(t *testing.T) {
	stub := &stubMessageService{viewErr: errs.ErrStoreUnavailable}
	_, r := newTestServer(stub)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages", nil)
	req.Header.Set("Authorization", authHeader(t, 1, true))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestHandleMarkMessageRead_StaleRef(t *testing.T) {
	stub := &stubMessageService{markReadErr: errs.ErrNotFound}
	_, r := newTestServer(stub)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/messages/"+uuid.NewString()+"/read", nil)
	req.Header.Set("Authorization", authHeader(t, 1, true))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "stale client state")
}

func TestHandleMarkManyRead_ReturnsPerRefResults(t *testing.T) {
	stub := &stubMessageService{
		results: []models.MarkReadResult{
			{Ref: "a", Success: true},
			{Ref: "b", Success: false, Error: "404: message not found"},
		},
	}
	_, r := newTestServer(stub)

	payload, _ := json.Marshal(models.MarkManyReadRequest{Refs: []string{"a", "b"}})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/messages/read", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", authHeader(t, 1, true))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []models.MarkReadResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.True(t, body.Data[0].Success)
	assert.False(t, body.Data[1].Success)
}

func TestHandleBulkDeleteMessages(t *testing.T) {
	stub := &stubMessageService{deleted: 2}
	_, r := newTestServer(stub)

	payload, _ := json.Marshal(models.BulkDeleteRequest{Refs: []string{"a", "b"}})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/delete", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", authHeader(t, 1, true))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"deleted_count":2`)
}

func TestHandleInboundWebhook(t *testing.T) {
	msg := &models.Message{ID: uuid.New(), Channel: models.ChannelSMS, Body: "Hi"}
	stub := &stubMessageService{inbound: msg}
	_, r := newTestServer(stub)

	payload, _ := json.Marshal(models.InboundMessageRequest{ProviderMessageID: "SM1", Body: "Hi"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/sms", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestHandleInboundWebhook_Replay(t *testing.T) {
	stub := &stubMessageService{inboundErr: errs.ErrDuplicateMessage}
	_, r := newTestServer(stub)

	payload, _ := json.Marshal(models.InboundMessageRequest{ProviderMessageID: "SM1", Body: "Hi"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/sms", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "already processed")
}

func TestHandleInboundWebhook_MissingProviderID(t *testing.T) {
	_, r := newTestServer(&stubMessageService{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/sms", bytes.NewReader([]byte(`{"body":"Hi"}`)))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
