// ABOUTME: HTTP handlers for the chat-support API: conversations, messages, automation toggle
// ABOUTME: JSON request/response types and the error envelope live here

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/deskhand/deskhand/internal/store"
)

// conversationResponse is the wire shape of a conversation.
type conversationResponse struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	CreatedAt  string            `json:"created_at"`
	Messages   []messageResponse `json:"messages"`
	BotAllowed bool              `json:"bot_allowed"`
}

// messageResponse is the wire shape of a single message.
type messageResponse struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	From   string `json:"from"`
	Time   string `json:"time"`
}

type createChatRequest struct {
	Name string `json:"name"`
}

type postMessageRequest struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	From   string `json:"from"`
}

type setAutomationRequest struct {
	// Pointer so an absent field is distinguishable from false.
	Enabled *bool `json:"enabled"`
}

type automationResponse struct {
	BotAllowed bool `json:"bot_allowed"`
}

func toMessageResponses(msgs []store.Message) []messageResponse {
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageResponse{
			Text:   m.Text,
			Source: m.Source,
			From:   m.From,
			Time:   m.Time,
		})
	}
	return out
}

func toConversationResponse(conv *store.Conversation) conversationResponse {
	return conversationResponse{
		ID:         conv.ID,
		Name:       conv.Name,
		CreatedAt:  conv.CreatedAt.Format(time.RFC3339),
		Messages:   toMessageResponses(conv.Messages),
		BotAllowed: conv.AutomationEnabled,
	}
}

// handleListChats returns every conversation in creation order.
func (g *Gateway) handleListChats(w http.ResponseWriter, r *http.Request) {
	convs, err := g.store.ListConversations(r.Context())
	if err != nil {
		g.logger.Error("listing conversations", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	out := make([]conversationResponse, 0, len(convs))
	for _, conv := range convs {
		out = append(out, toConversationResponse(conv))
	}
	g.sendJSON(w, http.StatusOK, out)
}

// handleCreateChat creates a conversation. The body is optional; an empty
// name defaults to the generated conversation id.
func (g *Gateway) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req createChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		g.sendJSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	conv, err := g.store.CreateConversation(r.Context(), req.Name)
	if err != nil {
		g.logger.Error("creating conversation", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	g.logger.Info("conversation created", "conversation_id", conv.ID, "name", conv.Name)
	g.sendJSON(w, http.StatusCreated, toConversationResponse(conv))
}

// handleListMessages returns the transcript of one conversation.
func (g *Gateway) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	msgs, err := g.store.Transcript(r.Context(), id)
	if err != nil {
		g.storeError(w, err, "reading transcript", id)
		return
	}
	g.sendJSON(w, http.StatusOK, toMessageResponses(msgs))
}

// handlePostMessage appends a message and, when the sender is a customer
// and automation is enabled, schedules a background triage run. The
// response never waits on triage.
func (g *Gateway) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Resolve the conversation before reading the body so an unknown id
	// is a 404 no matter what the caller sent.
	if _, err := g.store.AutomationEnabled(r.Context(), id); err != nil {
		g.storeError(w, err, "resolving conversation", id)
		return
	}

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.From == "" {
		req.From = "Unknown"
	}

	msg, err := g.store.AppendMessage(r.Context(), id, store.Message{
		Text:   req.Text,
		Source: req.Source,
		From:   req.From,
	})
	if err != nil {
		g.storeError(w, err, "appending message", id)
		return
	}

	if req.Source == store.SourceCustomer {
		enabled, err := g.store.AutomationEnabled(r.Context(), id)
		if err != nil {
			g.logger.Error("checking automation flag", "conversation_id", id, "error", err)
		} else if enabled {
			g.triage.Schedule(id)
		}
	}

	g.sendJSON(w, http.StatusCreated, messageResponse{
		Text:   msg.Text,
		Source: msg.Source,
		From:   msg.From,
		Time:   msg.Time,
	})
}

// handleGetAutomation reports whether automated replies are enabled.
func (g *Gateway) handleGetAutomation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	enabled, err := g.store.AutomationEnabled(r.Context(), id)
	if err != nil {
		g.storeError(w, err, "reading automation flag", id)
		return
	}
	g.sendJSON(w, http.StatusOK, automationResponse{BotAllowed: enabled})
}

// handleSetAutomation sets the automation flag. The enabled field is
// required; a body without it is a 400.
func (g *Gateway) handleSetAutomation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := g.store.AutomationEnabled(r.Context(), id); err != nil {
		g.storeError(w, err, "resolving conversation", id)
		return
	}

	var req setAutomationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		g.sendJSONError(w, http.StatusBadRequest, "Missing enabled parameter")
		return
	}

	enabled, err := g.store.SetAutomation(r.Context(), id, *req.Enabled)
	if err != nil {
		g.storeError(w, err, "setting automation flag", id)
		return
	}

	g.logger.Info("automation flag set", "conversation_id", id, "enabled", enabled)
	g.sendJSON(w, http.StatusOK, automationResponse{BotAllowed: enabled})
}

// storeError maps store failures onto the API error envelope.
func (g *Gateway) storeError(w http.ResponseWriter, err error, action, id string) {
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "Chat not found")
		return
	}
	g.logger.Error(action, "conversation_id", id, "error", err)
	g.sendJSONError(w, http.StatusInternalServerError, "Internal server error")
}

func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("encoding response", "error", err)
	}
}

func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
