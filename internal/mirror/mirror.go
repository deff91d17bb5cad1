// Package mirror publishes adapter events to a Kafka topic for external
// observers. Publishing is best-effort: a broker outage never slows or
// fails the message pipeline.
package mirror

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/KafClaw/XmtpClaw/internal/bus"
	"github.com/KafClaw/XmtpClaw/internal/config"
)

// Event types mirrored to the topic.
const (
	EventInbound  = "inbound"
	EventOutbound = "outbound"
)

// Event is the wire shape of one mirrored record. Message bodies are
// not mirrored; only routing metadata leaves the host.
type Event struct {
	Type           string    `json:"type"`
	Channel        string    `json:"channel"`
	AccountID      string    `json:"account_id"`
	SessionKey     string    `json:"session_key,omitempty"`
	ConversationID string    `json:"conversation_id"`
	ChatType       string    `json:"chat_type,omitempty"`
	Kind           string    `json:"kind,omitempty"`
	TraceID        string    `json:"trace_id,omitempty"`
	At             time.Time `json:"at"`
}

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Mirror publishes events to one Kafka topic.
type Mirror struct {
	writer writer
	topic  string
}

// New creates a mirror from config. Returns nil when the mirror is
// disabled or has no brokers; a nil Mirror is safe to use.
func New(cfg config.MirrorConfig) *Mirror {
	if !cfg.Enabled || strings.TrimSpace(cfg.Brokers) == "" {
		return nil
	}
	topic := cfg.Topic
	if topic == "" {
		topic = "xmtpclaw.events"
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(cfg.Brokers, ",")...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
	}
	return &Mirror{writer: w, topic: topic}
}

// Inbound mirrors an admitted inbound context.
func (m *Mirror) Inbound(ic *bus.InboundContext) {
	if m == nil {
		return
	}
	m.publish(Event{
		Type:           EventInbound,
		Channel:        ic.Channel,
		AccountID:      ic.AccountID,
		SessionKey:     ic.SessionKey,
		ConversationID: ic.ConversationID,
		ChatType:       ic.ChatType,
		TraceID:        ic.TraceID,
		At:             ic.ReceivedAt,
	})
}

// Outbound mirrors a delivered outbound message.
func (m *Mirror) Outbound(msg *bus.OutboundMessage) {
	if m == nil {
		return
	}
	m.publish(Event{
		Type:           EventOutbound,
		Channel:        msg.Channel,
		AccountID:      msg.AccountID,
		ConversationID: msg.ConversationID,
		Kind:           msg.Kind,
		TraceID:        msg.TraceID,
		At:             time.Now(),
	})
}

func (m *Mirror) publish(evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		slog.Warn("Mirror event marshal failed", "type", evt.Type, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.AccountID),
		Value: payload,
		Time:  evt.At,
	}); err != nil {
		slog.Warn("Mirror publish failed", "type", evt.Type, "topic", m.topic, "error", err)
	}
}

// Close flushes and closes the underlying writer.
func (m *Mirror) Close() error {
	if m == nil {
		return nil
	}
	return m.writer.Close()
}
