// ABOUTME: Wire types and labels for the classification and drafting services
// ABOUTME: Shared between the HTTP client and the fake-crew test service

package crew

import (
	"fmt"
	"strings"

	"github.com/deskhand/deskhand/internal/store"
)

// Label is the classification verdict for a conversation transcript.
type Label string

const (
	// LabelAutomatable means the bot may draft and send a reply.
	LabelAutomatable Label = "AUTOMATABLE"
	// LabelNeedsHuman means the conversation must be escalated.
	LabelNeedsHuman Label = "NEEDS_HUMAN"
)

// TranscriptMessage is one transcript entry on the wire.
type TranscriptMessage struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	From   string `json:"from,omitempty"`
}

// ClassifyRequest is the JSON request body for POST /classify.
type ClassifyRequest struct {
	ConversationID string              `json:"conversation_id"`
	Transcript     []TranscriptMessage `json:"transcript"`
}

// ClassifyResponse is the JSON response body for POST /classify.
type ClassifyResponse struct {
	Label string `json:"label"`
}

// DraftRequest is the JSON request body for POST /draft.
type DraftRequest struct {
	ConversationID string              `json:"conversation_id"`
	Transcript     []TranscriptMessage `json:"transcript"`
}

// DraftResponse is the JSON response body for POST /draft.
type DraftResponse struct {
	Reply string `json:"reply"`
}

// ParseLabel normalizes a raw label from the service. Model-backed services
// can pad or lowercase their single-word answer, so parsing is tolerant of
// case and surrounding whitespace but rejects anything else.
func ParseLabel(raw string) (Label, error) {
	switch Label(strings.ToUpper(strings.TrimSpace(raw))) {
	case LabelAutomatable:
		return LabelAutomatable, nil
	case LabelNeedsHuman:
		return LabelNeedsHuman, nil
	default:
		return "", fmt.Errorf("unknown classification label %q", raw)
	}
}

// ToTranscript converts store messages into wire transcript entries.
func ToTranscript(msgs []store.Message) []TranscriptMessage {
	out := make([]TranscriptMessage, len(msgs))
	for i, msg := range msgs {
		out[i] = TranscriptMessage{
			Text:   msg.Text,
			Source: msg.Source,
			From:   msg.From,
		}
	}
	return out
}
