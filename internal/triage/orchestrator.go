// ABOUTME: Triage orchestrator - background classify-then-reply pipeline for inbound customer messages
// ABOUTME: Each run classifies the live transcript, then drafts a bot reply or escalates to a human

package triage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deskhand/deskhand/internal/crew"
	"github.com/deskhand/deskhand/internal/store"
)

// EscalationNotice is the meta message appended when a conversation is
// handed off to a human agent.
const EscalationNotice = "Requesting a human support agent for you."

// ConversationStore defines what the orchestrator needs from storage.
// Transcripts are always re-read from the store at the moment of each
// collaborator call; a run never caches state across its blocking points.
type ConversationStore interface {
	Transcript(ctx context.Context, id string) ([]store.Message, error)
	AppendMessage(ctx context.Context, id string, msg store.Message) (*store.Message, error)
	DisableAutomation(ctx context.Context, id string) (bool, error)
}

// Classifier decides whether a transcript can be handled automatically.
type Classifier interface {
	Classify(ctx context.Context, conversationID string, transcript []store.Message) (crew.Label, error)
}

// Drafter proposes a reply for a transcript.
type Drafter interface {
	Draft(ctx context.Context, conversationID string, transcript []store.Message) (string, error)
}

// Options configures orchestrator limits.
type Options struct {
	// MaxConcurrent caps triage runs in flight across all conversations.
	MaxConcurrent int
	// CallTimeout bounds each collaborator call.
	CallTimeout time.Duration
}

// Orchestrator runs the two-stage triage workflow in the background.
// Schedule never blocks the caller; runs for the same conversation are
// not mutually exclusive, and their result messages may append in any
// relative order.
type Orchestrator struct {
	store      ConversationStore
	classifier Classifier
	drafter    Drafter
	logger     *slog.Logger

	callTimeout time.Duration
	slots       chan struct{}
	wg          sync.WaitGroup
}

// New creates an orchestrator.
func New(s ConversationStore, classifier Classifier, drafter Drafter, logger *slog.Logger, opts Options) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 16
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 2 * time.Minute
	}
	return &Orchestrator{
		store:       s,
		classifier:  classifier,
		drafter:     drafter,
		logger:      logger.With("component", "triage"),
		callTimeout: opts.CallTimeout,
		slots:       make(chan struct{}, opts.MaxConcurrent),
	}
}

// Schedule launches one triage run for the conversation and returns
// immediately. The caller gets no handle on the run; completion is only
// observable through the conversation state.
func (o *Orchestrator) Schedule(conversationID string) {
	o.wg.Add(1)
	go o.run(conversationID)
}

// Wait blocks until all scheduled runs have finished. Used by shutdown
// and by tests; normal request handling never calls it.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// run executes one triage invocation. Collaborator failures leave the
// conversation untouched; the next customer message reschedules triage.
func (o *Orchestrator) run(conversationID string) {
	defer o.wg.Done()

	// Concurrency cap is acquired here, not in Schedule, so the caller
	// never blocks even when the pool is saturated.
	o.slots <- struct{}{}
	defer func() { <-o.slots }()

	logger := o.logger.With(
		"conversation_id", conversationID,
		"run_id", uuid.New().String(),
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("triage run panicked", "panic", r)
		}
	}()

	label, err := o.classify(conversationID)
	if err != nil {
		logger.Error("classification failed", "error", err)
		return
	}
	logger.Info("transcript classified", "label", label)

	switch label {
	case crew.LabelNeedsHuman:
		o.escalate(conversationID, logger)
	case crew.LabelAutomatable:
		o.reply(conversationID, logger)
	}
}

// classify reads a fresh transcript and asks the classification service.
func (o *Orchestrator) classify(conversationID string) (crew.Label, error) {
	ctx, cancel := context.WithTimeout(context.Background(), o.callTimeout)
	defer cancel()

	transcript, err := o.store.Transcript(ctx, conversationID)
	if err != nil {
		return "", err
	}
	return o.classifier.Classify(ctx, conversationID, transcript)
}

// escalate disables automation and appends the handoff notice. The order
// matters: the flag drops first so a racing customer message cannot
// schedule another run after the notice is visible.
func (o *Orchestrator) escalate(conversationID string, logger *slog.Logger) {
	ctx := context.Background()

	flipped, err := o.store.DisableAutomation(ctx, conversationID)
	if err != nil {
		logger.Error("failed to disable automation", "error", err)
		return
	}
	if !flipped {
		logger.Debug("automation was already disabled")
	}

	_, err = o.store.AppendMessage(ctx, conversationID, store.Message{
		Text:   EscalationNotice,
		Source: store.SourceMeta,
		From:   "",
	})
	if err != nil {
		logger.Error("failed to append escalation notice", "error", err)
		return
	}
	logger.Info("conversation escalated to a human agent")
}

// reply drafts and appends a bot message. The transcript is re-read so
// the draft sees any messages appended while classification ran.
func (o *Orchestrator) reply(conversationID string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), o.callTimeout)
	defer cancel()

	transcript, err := o.store.Transcript(ctx, conversationID)
	if err != nil {
		logger.Error("failed to read transcript for drafting", "error", err)
		return
	}

	draft, err := o.drafter.Draft(ctx, conversationID, transcript)
	if err != nil {
		logger.Error("drafting failed", "error", err)
		return
	}

	_, err = o.store.AppendMessage(context.Background(), conversationID, store.Message{
		Text:   draft,
		Source: store.SourceBot,
		From:   store.BotDisplayName,
	})
	if err != nil {
		logger.Error("failed to append bot reply", "error", err)
		return
	}
	logger.Info("bot reply appended", "reply_length", len(draft))
}
