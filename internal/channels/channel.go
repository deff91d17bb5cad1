// Package channels implements the XMTP channel adapter: access control,
// session routing, envelope formatting, and transport glue.
package channels

import (
	"context"
	"time"

	"github.com/KafClaw/XmtpClaw/internal/bus"
)

// ChannelName is the fixed channel identifier for this adapter.
const ChannelName = "xmtp"

// InboundEvent is a raw message event as surfaced by the protocol client.
// The json tags are the wire format of the gateway's inbound bridge
// endpoint.
type InboundEvent struct {
	AccountID      string    `json:"account_id"`
	Sender         string    `json:"sender"` // sender wallet address
	ConversationID string    `json:"conversation_id"`
	Content        string    `json:"content"`
	MessageID      string    `json:"message_id,omitempty"`
	IsDirect       bool      `json:"is_direct"`
	ReceivedAt     time.Time `json:"received_at,omitempty"`
}

// ProtocolClient is the narrow surface this adapter needs from the XMTP
// SDK binding. The wire client itself (connection, encryption,
// conversation storage) is an external collaborator.
type ProtocolClient interface {
	// Events streams decrypted inbound message events until ctx ends.
	Events(ctx context.Context) (<-chan InboundEvent, error)
	// SendText delivers one text message into a conversation.
	SendText(ctx context.Context, conversationID, text string) error
	Close() error
}

// Channel defines the interface for chat transports.
type Channel interface {
	// Name returns the channel name (e.g. "xmtp").
	Name() string
	// Start starts the channel listener.
	Start(ctx context.Context) error
	// Stop stops the channel listener.
	Stop() error
	// Send sends a message to a specific conversation.
	Send(ctx context.Context, msg *bus.OutboundMessage) error
}

// BaseChannel provides common functionality for channels.
type BaseChannel struct {
	Bus *bus.MessageBus
}
