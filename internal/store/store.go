// ABOUTME: Store interface and data types for deskhand conversation state
// ABOUTME: Defines Conversation, Message structs and the Store interface shared by gateway and triage

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested conversation does not exist
var ErrNotFound = errors.New("not found")

// TimeFormat is the wire format for message receipt timestamps.
const TimeFormat = "15:04:05"

// Message source tags. Only customer-originated messages are eligible
// to trigger triage.
const (
	SourceCustomer = "customer" // inbound from the customer
	SourceAgent    = "agent"    // a human support agent
	SourceBot      = "bot"      // automated reply appended by triage
	SourceMeta     = "meta"     // system notice (e.g. escalation)
)

// BotDisplayName is the "from" value on automated replies.
const BotDisplayName = "Our Support Bot (AI)"

// Conversation is a chat thread between a customer and support.
// Messages are append-only and owned exclusively by the conversation.
type Conversation struct {
	ID                string
	Name              string
	CreatedAt         time.Time
	AutomationEnabled bool
	Messages          []Message
}

// Message is a single entry in a conversation transcript. Time is the
// server-assigned receipt timestamp, formatted with TimeFormat; callers
// never supply it.
type Message struct {
	Text   string
	Source string
	From   string
	Time   string
}

// Store defines the interface for conversation state. All mutations to a
// single conversation are serialized by the implementation; reads return
// snapshots, never live references.
type Store interface {
	// CreateConversation allocates a new conversation with automation
	// enabled and an empty transcript. Name defaults to the new id.
	CreateConversation(ctx context.Context, name string) (*Conversation, error)

	// GetConversation returns a snapshot copy of the conversation.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// ListConversations returns snapshot copies of all conversations in
	// creation order.
	ListConversations(ctx context.Context) ([]*Conversation, error)

	// AppendMessage stamps the message with the receipt time and appends
	// it. Returns the stored message.
	AppendMessage(ctx context.Context, id string, msg Message) (*Message, error)

	// Transcript returns a consistent snapshot of the message sequence.
	Transcript(ctx context.Context, id string) ([]Message, error)

	// AutomationEnabled reports whether automated triage is currently
	// permitted for the conversation.
	AutomationEnabled(ctx context.Context, id string) (bool, error)

	// SetAutomation sets the automation flag and returns the new state.
	// This is the only way to re-enable automation once disabled.
	SetAutomation(ctx context.Context, id string, enabled bool) (bool, error)

	// DisableAutomation turns automation off, never on. Returns true if
	// the flag was flipped by this call, false if it was already off.
	DisableAutomation(ctx context.Context, id string) (bool, error)
}
