// Package agent runs the reply pipeline: it consumes admitted inbound
// contexts, asks the reply generator for a response, and publishes the
// chunked reply back toward the channel.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/KafClaw/XmtpClaw/internal/bus"
)

// ErrAgentUnavailable marks a routed agent that currently cannot take
// work. It is an expected condition, not a failure.
var ErrAgentUnavailable = errors.New("agent not available")

// ReplyGenerator produces the agent's reply for one inbound context.
type ReplyGenerator interface {
	Reply(ctx context.Context, ic *bus.InboundContext) (string, error)
}

// SessionRecorder records session activity for admitted events.
type SessionRecorder interface {
	TouchSession(sessionKey, accountID string, receivedAt time.Time) error
}

// ChunkSizer returns the outbound chunk size for an account.
type ChunkSizer func(accountID string) int

const defaultChunkSize = 1800

// Dispatcher consumes inbound contexts from the bus and publishes
// replies. Every failure is contained: a broken generator, recorder or
// chunk never surfaces an error to the event source.
type Dispatcher struct {
	bus       *bus.MessageBus
	generator ReplyGenerator
	recorder  SessionRecorder
	chunkSize ChunkSizer
	observer  func(*bus.InboundContext)
}

// NewDispatcher creates a dispatcher over the given collaborators. The
// recorder and chunk sizer may be nil.
func NewDispatcher(b *bus.MessageBus, gen ReplyGenerator, rec SessionRecorder, sizer ChunkSizer) *Dispatcher {
	return &Dispatcher{bus: b, generator: gen, recorder: rec, chunkSize: sizer}
}

// Run consumes inbound contexts until ctx is cancelled. Blocks.
func (d *Dispatcher) Run(ctx context.Context) error {
	slog.Info("Reply dispatcher started")
	for {
		ic, err := d.bus.ConsumeInbound(ctx)
		if err != nil {
			slog.Info("Reply dispatcher stopped")
			return err
		}
		d.Handle(ctx, ic)
	}
}

// SetInboundObserver registers a callback invoked for every consumed
// inbound context, before reply generation. Used for event mirroring.
func (d *Dispatcher) SetInboundObserver(fn func(*bus.InboundContext)) {
	d.observer = fn
}

// Handle processes one inbound context end to end.
func (d *Dispatcher) Handle(ctx context.Context, ic *bus.InboundContext) {
	if d.observer != nil {
		d.observer(ic)
	}
	d.recordActivity(ic)

	reply, err := d.generator.Reply(ctx, ic)
	if err != nil {
		if isAgentUnavailable(err) {
			// Expected when the routed agent has no capacity; the
			// message is dropped without alarming anyone.
			slog.Info("Agent not available, dropping message", "agent", ic.AgentID, "session_key", ic.SessionKey, "trace_id", ic.TraceID)
		} else {
			slog.Error("Reply generation failed", "agent", ic.AgentID, "session_key", ic.SessionKey, "trace_id", ic.TraceID, "error", err)
		}
		return
	}
	if strings.TrimSpace(reply) == "" {
		slog.Debug("Empty reply, nothing to deliver", "trace_id", ic.TraceID)
		return
	}

	size := defaultChunkSize
	if d.chunkSize != nil {
		if s := d.chunkSize(ic.AccountID); s > 0 {
			size = s
		}
	}
	for i, chunk := range SplitChunks(reply, size) {
		d.bus.PublishOutbound(&bus.OutboundMessage{
			Channel:        ic.Channel,
			AccountID:      ic.AccountID,
			ConversationID: ic.ConversationID,
			Kind:           bus.OutboundKindReply,
			Content:        chunk,
			TraceID:        ic.TraceID,
		})
		slog.Debug("Reply chunk queued", "trace_id", ic.TraceID, "chunk", i)
	}
}

// recordActivity is best-effort: a recorder failure is logged and the
// message still reaches the agent.
func (d *Dispatcher) recordActivity(ic *bus.InboundContext) {
	if d.recorder == nil {
		return
	}
	if err := d.recorder.TouchSession(ic.SessionKey, ic.AccountID, ic.ReceivedAt); err != nil {
		slog.Warn("Failed to record session activity", "session_key", ic.SessionKey, "error", err)
	}
}

func isAgentUnavailable(err error) bool {
	if errors.Is(err, ErrAgentUnavailable) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "agent not available")
}

// SplitChunks splits a reply into delivery-sized pieces, preferring to
// break on a newline and falling back to a space before a hard cut.
func SplitChunks(s string, size int) []string {
	if size <= 0 || len(s) <= size {
		return []string{s}
	}
	var chunks []string
	for len(s) > size {
		cut := size
		if idx := strings.LastIndexByte(s[:size], '\n'); idx > size/2 {
			cut = idx
		} else if idx := strings.LastIndexByte(s[:size], ' '); idx > size/2 {
			cut = idx
		}
		chunks = append(chunks, strings.TrimRight(s[:cut], " \n"))
		s = strings.TrimLeft(s[cut:], " \n")
	}
	if s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}
