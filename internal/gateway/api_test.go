// ABOUTME: Handler tests for the chat-support API using a mock triage scheduler
// ABOUTME: Covers conversation CRUD, message posting, automation toggling, and error envelopes

package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskhand/deskhand/internal/store"
)

type mockScheduler struct {
	mu  sync.Mutex
	ids []string
}

func (m *mockScheduler) Schedule(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, conversationID)
}

func (m *mockScheduler) scheduled() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ids...)
}

func newTestGateway(t *testing.T) (*Gateway, *mockScheduler) {
	t.Helper()
	sched := &mockScheduler{}
	g := &Gateway{
		store:  store.NewMemoryStore(),
		triage: sched,
		logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
	}
	return g, sched
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func createChat(t *testing.T, handler http.Handler, name string) conversationResponse {
	t.Helper()
	body := ""
	if name != "" {
		body = fmt.Sprintf(`{"name":%q}`, name)
	}
	rec := doJSON(t, handler, http.MethodPost, "/chats", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var conv conversationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	return conv
}

func TestCreateChatDefaults(t *testing.T) {
	g, _ := newTestGateway(t)
	handler := g.routes()

	conv := createChat(t, handler, "")

	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, conv.ID, conv.Name, "name should default to the id")
	assert.True(t, conv.BotAllowed, "new conversations start with automation enabled")
	assert.NotNil(t, conv.Messages)
	assert.Empty(t, conv.Messages)
	assert.NotEmpty(t, conv.CreatedAt)
}

func TestCreateChatWithName(t *testing.T) {
	g, _ := newTestGateway(t)
	handler := g.routes()

	conv := createChat(t, handler, "billing question")
	assert.Equal(t, "billing question", conv.Name)
}

func TestCreateChatEmptyMessagesMarshalAsArray(t *testing.T) {
	g, _ := newTestGateway(t)
	handler := g.routes()

	rec := doJSON(t, handler, http.MethodPost, "/chats", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"messages":[]`, "empty transcript must be an array, not null")
}

func TestListChatsCreationOrder(t *testing.T) {
	g, _ := newTestGateway(t)
	handler := g.routes()

	first := createChat(t, handler, "first")
	second := createChat(t, handler, "second")

	rec := doJSON(t, handler, http.MethodGet, "/chats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var convs []conversationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &convs))
	require.Len(t, convs, 2)
	assert.Equal(t, first.ID, convs[0].ID)
	assert.Equal(t, second.ID, convs[1].ID)
}

func TestListMessagesUnknownChat(t *testing.T) {
	g, _ := newTestGateway(t)
	handler := g.routes()

	rec := doJSON(t, handler, http.MethodGet, "/chats/no-such-id/messages", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Chat not found"}`, rec.Body.String())
}

func TestPostMessageUnknownChat(t *testing.T) {
	g, sched := newTestGateway(t)
	handler := g.routes()

	rec := doJSON(t, handler, http.MethodPost, "/chats/no-such-id/messages",
		`{"text":"hello","source":"customer","from":"Ada"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Chat not found"}`, rec.Body.String())
	assert.Empty(t, sched.scheduled(), "failed append must not schedule triage")
}

func TestPostMessageUnknownChatInvalidBody(t *testing.T) {
	g, sched := newTestGateway(t)
	handler := g.routes()

	// Unknown conversation wins over body validation.
	rec := doJSON(t, handler, http.MethodPost, "/chats/no-such-id/messages", `{not json`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Chat not found"}`, rec.Body.String())
	assert.Empty(t, sched.scheduled())
}

func TestPostMessageInvalidBody(t *testing.T) {
	g, sched := newTestGateway(t)
	handler := g.routes()
	conv := createChat(t, handler, "")

	rec := doJSON(t, handler, http.MethodPost, "/chats/"+conv.ID+"/messages", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, sched.scheduled())
}

func TestPostCustomerMessageSchedulesTriage(t *testing.T) {
	g, sched := newTestGateway(t)
	handler := g.routes()
	conv := createChat(t, handler, "")

	rec := doJSON(t, handler, http.MethodPost, "/chats/"+conv.ID+"/messages",
		`{"text":"where is my order?","source":"customer","from":"Ada"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var msg messageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, "where is my order?", msg.Text)
	assert.Equal(t, store.SourceCustomer, msg.Source)
	assert.Equal(t, "Ada", msg.From)
	assert.NotEmpty(t, msg.Time, "receipt time is stamped by the server")

	assert.Equal(t, []string{conv.ID}, sched.scheduled())
}

func TestPostMessageDefaultsFrom(t *testing.T) {
	g, _ := newTestGateway(t)
	handler := g.routes()
	conv := createChat(t, handler, "")

	rec := doJSON(t, handler, http.MethodPost, "/chats/"+conv.ID+"/messages",
		`{"text":"hi","source":"customer"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var msg messageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, "Unknown", msg.From)
}

func TestPostAgentMessageDoesNotScheduleTriage(t *testing.T) {
	g, sched := newTestGateway(t)
	handler := g.routes()
	conv := createChat(t, handler, "")

	for _, source := range []string{store.SourceAgent, store.SourceBot, store.SourceMeta} {
		rec := doJSON(t, handler, http.MethodPost, "/chats/"+conv.ID+"/messages",
			fmt.Sprintf(`{"text":"hi","source":%q,"from":"x"}`, source))
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	assert.Empty(t, sched.scheduled(), "only customer messages trigger triage")
}

func TestPostCustomerMessageAutomationDisabled(t *testing.T) {
	g, sched := newTestGateway(t)
	handler := g.routes()
	conv := createChat(t, handler, "")

	rec := doJSON(t, handler, http.MethodPost, "/chats/"+conv.ID+"/ai", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, "/chats/"+conv.ID+"/messages",
		`{"text":"anyone there?","source":"customer","from":"Ada"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Empty(t, sched.scheduled(), "disabled automation must suppress triage")
}

func TestGetAutomation(t *testing.T) {
	g, _ := newTestGateway(t)
	handler := g.routes()
	conv := createChat(t, handler, "")

	rec := doJSON(t, handler, http.MethodGet, "/chats/"+conv.ID+"/ai", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"bot_allowed":true}`, rec.Body.String())
}

func TestGetAutomationUnknownChat(t *testing.T) {
	g, _ := newTestGateway(t)
	handler := g.routes()

	rec := doJSON(t, handler, http.MethodGet, "/chats/no-such-id/ai", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Chat not found"}`, rec.Body.String())
}

func TestSetAutomationRoundTrip(t *testing.T) {
	g, _ := newTestGateway(t)
	handler := g.routes()
	conv := createChat(t, handler, "")

	rec := doJSON(t, handler, http.MethodPost, "/chats/"+conv.ID+"/ai", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"bot_allowed":false}`, rec.Body.String())

	rec = doJSON(t, handler, http.MethodPost, "/chats/"+conv.ID+"/ai", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"bot_allowed":true}`, rec.Body.String())
}

func TestSetAutomationMissingEnabled(t *testing.T) {
	g, _ := newTestGateway(t)
	handler := g.routes()
	conv := createChat(t, handler, "")

	for _, body := range []string{`{}`, ``, `{"enabled":null}`, `not json`} {
		rec := doJSON(t, handler, http.MethodPost, "/chats/"+conv.ID+"/ai", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
		assert.JSONEq(t, `{"error":"Missing enabled parameter"}`, rec.Body.String())
	}
}

func TestSetAutomationUnknownChat(t *testing.T) {
	g, _ := newTestGateway(t)
	handler := g.routes()

	// With or without a usable body, an unknown conversation is a 404.
	for _, body := range []string{`{"enabled":true}`, `{}`, `not json`} {
		rec := doJSON(t, handler, http.MethodPost, "/chats/no-such-id/ai", body)
		assert.Equal(t, http.StatusNotFound, rec.Code, "body %q", body)
		assert.JSONEq(t, `{"error":"Chat not found"}`, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	g, _ := newTestGateway(t)
	handler := g.routes()

	rec := doJSON(t, handler, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	g, _ := newTestGateway(t)
	handler := g.routes()

	req := httptest.NewRequest(http.MethodOptions, "/chats", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
