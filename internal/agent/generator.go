package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/KafClaw/XmtpClaw/internal/bus"
)

// HTTPGenerator asks an external agent endpoint for replies. The
// endpoint receives the formatted envelope and routing metadata and
// answers with plain text or a {"reply": ...} JSON object.
type HTTPGenerator struct {
	endpoint  string
	authToken string
	client    *http.Client
}

// NewHTTPGenerator creates a generator for the given endpoint. Timeout
// bounds the full request.
func NewHTTPGenerator(endpoint, authToken string, timeout time.Duration) *HTTPGenerator {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPGenerator{
		endpoint:  endpoint,
		authToken: authToken,
		client:    &http.Client{Timeout: timeout},
	}
}

type replyRequest struct {
	AgentID    string `json:"agent_id"`
	SessionKey string `json:"session_key"`
	Message    string `json:"message"`
	ChatType   string `json:"chat_type"`
	TraceID    string `json:"trace_id"`
}

type replyResponse struct {
	Reply string `json:"reply"`
}

// Reply implements ReplyGenerator.
func (g *HTTPGenerator) Reply(ctx context.Context, ic *bus.InboundContext) (string, error) {
	payload, err := json.Marshal(replyRequest{
		AgentID:    ic.AgentID,
		SessionKey: ic.SessionKey,
		Message:    ic.Body,
		ChatType:   ic.ChatType,
		TraceID:    ic.TraceID,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+g.authToken)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("agent request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read agent response: %w", err)
	}

	if resp.StatusCode == http.StatusServiceUnavailable {
		return "", ErrAgentUnavailable
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("agent returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if strings.HasPrefix(strings.TrimSpace(resp.Header.Get("Content-Type")), "application/json") {
		var rr replyResponse
		if err := json.Unmarshal(body, &rr); err != nil {
			return "", fmt.Errorf("decode agent response: %w", err)
		}
		return rr.Reply, nil
	}
	return string(body), nil
}
