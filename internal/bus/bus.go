// Package bus provides the async message bus between the XMTP channel and
// the reply pipeline.
package bus

import (
	"context"
	"sync"
	"time"
)

// Chat type tags on the canonical inbound context.
const (
	ChatTypeDirect = "direct"
	ChatTypeGroup  = "group"
)

// Outbound message kinds, used to isolate delivery failures per kind.
const (
	OutboundKindReply   = "reply"
	OutboundKindPairing = "pairing"
)

// InboundContext is the canonical record for one admitted inbound event.
// It is built exactly once, by the envelope formatter, and passed unchanged
// through the rest of the pipeline.
type InboundContext struct {
	Channel        string    `json:"channel"`
	AccountID      string    `json:"account_id"`
	AgentID        string    `json:"agent_id"`
	SessionKey     string    `json:"session_key"`
	Body           string    `json:"body"`     // formatted envelope shown to the agent
	RawBody        string    `json:"raw_body"` // original message text
	From           string    `json:"from"`     // channel-qualified sender
	To             string    `json:"to"`       // channel-qualified account
	ChatType       string    `json:"chat_type"`
	SenderID       string    `json:"sender_id"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id,omitempty"`
	Provider       string    `json:"provider"`
	Surface        string    `json:"surface"`
	TraceID        string    `json:"trace_id"`
	ReceivedAt     time.Time `json:"received_at"`
	PrevActivity   time.Time `json:"prev_activity,omitempty"`
	HasPrev        bool      `json:"has_prev"`
}

// OutboundMessage represents a message from the pipeline to the transport.
type OutboundMessage struct {
	Channel        string `json:"channel"`
	AccountID      string `json:"account_id"`
	ConversationID string `json:"conversation_id"`
	Kind           string `json:"kind"`
	Content        string `json:"content"`
	TraceID        string `json:"trace_id"`
}

// MessageBus decouples the channel from the reply pipeline.
type MessageBus struct {
	inbound  chan *InboundContext
	outbound chan *OutboundMessage
	subs     map[string][]func(*OutboundMessage)
	mu       sync.RWMutex
}

// NewMessageBus creates a new message bus.
func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:  make(chan *InboundContext, 100),
		outbound: make(chan *OutboundMessage, 100),
		subs:     make(map[string][]func(*OutboundMessage)),
	}
}

// PublishInbound hands an admitted inbound context to the pipeline.
func (b *MessageBus) PublishInbound(ic *InboundContext) {
	if ic.ReceivedAt.IsZero() {
		ic.ReceivedAt = time.Now()
	}
	b.inbound <- ic
}

// ConsumeInbound blocks until a context is available or ctx is cancelled.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (*InboundContext, error) {
	select {
	case ic := <-b.inbound:
		return ic, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PublishOutbound sends a message toward the transport subscribers.
func (b *MessageBus) PublishOutbound(msg *OutboundMessage) {
	b.outbound <- msg
}

// Subscribe registers a callback for outbound messages to a channel.
func (b *MessageBus) Subscribe(channel string, callback func(*OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[channel] = append(b.subs[channel], callback)
}

// DispatchOutbound runs the outbound dispatcher until ctx is cancelled.
// This should be run as a goroutine.
func (b *MessageBus) DispatchOutbound(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-b.outbound:
			b.mu.RLock()
			callbacks := b.subs[msg.Channel]
			b.mu.RUnlock()
			for _, cb := range callbacks {
				cb(msg)
			}
		}
	}
}

// InboundSize returns the number of pending inbound contexts.
func (b *MessageBus) InboundSize() int { return len(b.inbound) }

// OutboundSize returns the number of pending outbound messages.
func (b *MessageBus) OutboundSize() int { return len(b.outbound) }
