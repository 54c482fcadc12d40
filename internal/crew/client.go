// ABOUTME: HTTP client for the classification and drafting collaborator services
// ABOUTME: JSON request/response over POST {base}/classify and POST {base}/draft

package crew

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/deskhand/deskhand/internal/store"
)

// Client invokes the crew service over HTTP. Calls are expected to be slow
// (model-backed) and can fail; callers own timeout policy via the context.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *slog.Logger
}

// NewClient creates a crew client for the given base URL.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// No client-level timeout: the per-call context carries the
		// deadline so tests and callers control it in one place.
		httpc:  &http.Client{},
		logger: logger.With("component", "crew-client"),
	}
}

// Classify submits the transcript and returns the service's verdict.
func (c *Client) Classify(ctx context.Context, conversationID string, transcript []store.Message) (Label, error) {
	req := ClassifyRequest{
		ConversationID: conversationID,
		Transcript:     ToTranscript(transcript),
	}

	var resp ClassifyResponse
	if err := c.post(ctx, "/classify", req, &resp); err != nil {
		return "", fmt.Errorf("classify: %w", err)
	}

	label, err := ParseLabel(resp.Label)
	if err != nil {
		return "", fmt.Errorf("classify: %w", err)
	}
	return label, nil
}

// Draft submits the transcript and returns the proposed reply text.
func (c *Client) Draft(ctx context.Context, conversationID string, transcript []store.Message) (string, error) {
	req := DraftRequest{
		ConversationID: conversationID,
		Transcript:     ToTranscript(transcript),
	}

	var resp DraftResponse
	if err := c.post(ctx, "/draft", req, &resp); err != nil {
		return "", fmt.Errorf("draft: %w", err)
	}
	if resp.Reply == "" {
		return "", fmt.Errorf("draft: service returned an empty reply")
	}
	return resp.Reply, nil
}

// post sends a JSON request and decodes a JSON response into out.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("crew call completed",
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		// Read a short error snippet for the log; the body shape is not
		// guaranteed on failure.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}
