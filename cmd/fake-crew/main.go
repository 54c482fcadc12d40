// ABOUTME: Fake crew service for local development and end-to-end testing
// ABOUTME: Serves canned classification and draft replies over the crew HTTP protocol

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-chi/chi/v5"

	"github.com/deskhand/deskhand/internal/crew"
	"github.com/deskhand/deskhand/internal/store"
)

// fixtures drives the fake's behavior. A TOML file can override the
// defaults so test scenarios do not require recompiling.
type fixtures struct {
	// EscalationKeywords force a NEEDS_HUMAN verdict when any appears in
	// the latest customer message.
	EscalationKeywords []string `toml:"escalation_keywords"`

	// ResetAccounts are email addresses with a known account for the
	// password-reset flow.
	ResetAccounts []string `toml:"reset_accounts"`

	Orders []order `toml:"orders"`
}

type order struct {
	ID      string `toml:"id"`
	Email   string `toml:"email"`
	Details string `toml:"details"`
}

func defaultFixtures() fixtures {
	return fixtures{
		EscalationKeywords: []string{"human", "agent", "angry", "complaint", "refund", "lawyer"},
		ResetAccounts:      []string{"test@example.com"},
		Orders: []order{
			{ID: "1", Email: "test@example.com", Details: "Order 1: Item A, Quantity: 2, Status: Shipped"},
			{ID: "2", Email: "test2@example.com", Details: "Order 2: Item B, Quantity: 1, Status: Lost"},
		},
	}
}

func main() {
	addr := flag.String("addr", "localhost:9090", "listen address")
	fixturesPath := flag.String("fixtures", "", "optional TOML fixtures file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	fx := defaultFixtures()
	if *fixturesPath != "" {
		if _, err := toml.DecodeFile(*fixturesPath, &fx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: loading fixtures: %v\n", err)
			os.Exit(1)
		}
		logger.Info("fixtures loaded", "path", *fixturesPath,
			"orders", len(fx.Orders), "keywords", len(fx.EscalationKeywords))
	}

	s := &server{fixtures: fx, logger: logger}

	r := chi.NewRouter()
	r.Post("/classify", s.handleClassify)
	r.Post("/draft", s.handleDraft)

	logger.Info("fake crew listening", "addr", *addr)
	if err := http.ListenAndServe(*addr, r); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type server struct {
	fixtures fixtures
	logger   *slog.Logger
}

func (s *server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req crew.ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	label := crew.LabelAutomatable
	if s.wantsHuman(lastCustomerText(req.Transcript)) {
		label = crew.LabelNeedsHuman
	}

	s.logger.Info("classified", "conversation_id", req.ConversationID, "label", label)
	writeJSON(w, crew.ClassifyResponse{Label: string(label)})
}

func (s *server) handleDraft(w http.ResponseWriter, r *http.Request) {
	var req crew.DraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	reply := s.draftReply(req.Transcript)
	s.logger.Info("drafted", "conversation_id", req.ConversationID)
	writeJSON(w, crew.DraftResponse{Reply: reply})
}

func (s *server) wantsHuman(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range s.fixtures.EscalationKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

var orderIDPattern = regexp.MustCompile(`order\s*#?\s*(\d+)`)
var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// draftReply answers the latest customer message from the canned fixtures.
// Order lookups need both an order number and an email somewhere in the
// transcript, matching how the real crew verifies identity before answering.
func (s *server) draftReply(transcript []crew.TranscriptMessage) string {
	text := lastCustomerText(transcript)
	lower := strings.ToLower(text)
	email := findEmail(transcript)

	if m := orderIDPattern.FindStringSubmatch(lower); m != nil {
		if email == "" {
			return "Happy to check on that order. Could you share the email address on the account?"
		}
		for _, o := range s.fixtures.Orders {
			if o.ID == m[1] && strings.EqualFold(o.Email, email) {
				return fmt.Sprintf("I looked that up for you. %s. Is there anything else I can help with?", o.Details)
			}
		}
		return "I could not find an order matching that number and email address. Could you double-check the details?"
	}

	if strings.Contains(lower, "password") || strings.Contains(lower, "reset") {
		if email == "" {
			return "I can help with that. What email address is the account registered under?"
		}
		for _, account := range s.fixtures.ResetAccounts {
			if strings.EqualFold(account, email) {
				return fmt.Sprintf("A password reset link is on its way to %s. It expires in one hour.", email)
			}
		}
		return fmt.Sprintf("I could not find an account for %s. Could you check the address and try again?", email)
	}

	return "Thanks for getting in touch. Could you tell me a bit more about what you need help with?"
}

// lastCustomerText returns the text of the most recent customer message.
func lastCustomerText(transcript []crew.TranscriptMessage) string {
	for i := len(transcript) - 1; i >= 0; i-- {
		if transcript[i].Source == store.SourceCustomer {
			return transcript[i].Text
		}
	}
	return ""
}

// findEmail scans customer messages newest-first for an email address.
func findEmail(transcript []crew.TranscriptMessage) string {
	for i := len(transcript) - 1; i >= 0; i-- {
		if transcript[i].Source != store.SourceCustomer {
			continue
		}
		if m := emailPattern.FindString(transcript[i].Text); m != "" {
			return m
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
