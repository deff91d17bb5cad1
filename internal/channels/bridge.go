package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// BridgeClient is a ProtocolClient backed by an external XMTP node
// binding. The binding POSTs inbound events to the gateway's bridge
// endpoint, which injects them here; outbound sends are POSTed back to
// the binding's send endpoint.
type BridgeClient struct {
	sendURL string
	token   string
	client  *http.Client

	mu     sync.Mutex
	events chan InboundEvent
	closed bool
}

// NewBridgeClient creates a bridge client. sendURL may be empty when the
// deployment is inbound-only; SendText then fails with a clear error.
func NewBridgeClient(sendURL, token string) *BridgeClient {
	return &BridgeClient{
		sendURL: strings.TrimRight(sendURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
		events:  make(chan InboundEvent, 64),
	}
}

// Events implements ProtocolClient.
func (b *BridgeClient) Events(ctx context.Context) (<-chan InboundEvent, error) {
	return b.events, nil
}

// Inject feeds one inbound event into the stream. Called by the gateway
// bridge endpoint. Returns false once the client is closed.
func (b *BridgeClient) Inject(evt InboundEvent) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	if evt.ReceivedAt.IsZero() {
		evt.ReceivedAt = time.Now()
	}
	select {
	case b.events <- evt:
		return true
	default:
		return false
	}
}

type bridgeSendRequest struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

// SendText implements ProtocolClient.
func (b *BridgeClient) SendText(ctx context.Context, conversationID, text string) error {
	if b.sendURL == "" {
		return fmt.Errorf("bridge send url not configured")
	}
	payload, err := json.Marshal(bridgeSendRequest{ConversationID: conversationID, Text: text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.sendURL+"/send", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("bridge send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("bridge send returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type bridgeHealthRequest struct {
	Env     string `json:"env"`
	Address string `json:"address"`
}

// Ping asks the node binding to confirm it can serve the given identity
// on the given environment. Used by the setup probe to verify the
// identity is live on the network before anything is committed.
func (b *BridgeClient) Ping(ctx context.Context, env, address string) error {
	if b.sendURL == "" {
		return fmt.Errorf("bridge url not configured")
	}
	payload, err := json.Marshal(bridgeHealthRequest{Env: env, Address: address})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.sendURL+"/health", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("bridge health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("bridge health returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// BridgeDialer opens short-lived bridge connections so the setup probe
// can verify the node binding is reachable for an identity. The caller
// closes the returned connection once the check is done.
type BridgeDialer struct {
	URL   string
	Token string
}

// Dial connects to the node binding and confirms it serves the address
// on env.
func (d BridgeDialer) Dial(ctx context.Context, env, address string) (io.Closer, error) {
	client := NewBridgeClient(d.URL, d.Token)
	if err := client.Ping(ctx, env, address); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// Close implements ProtocolClient.
func (b *BridgeClient) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.events)
	}
	return nil
}
