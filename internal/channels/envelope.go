package channels

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KafClaw/XmtpClaw/internal/bus"
)

// displayIDLen is the truncation width for identifiers in the
// human-facing envelope header. Machine fields always carry the full id.
const displayIDLen = 12

// FormatEnvelope builds the canonical inbound context for an admitted
// event. The result is built exactly once per event; downstream stages
// treat it as immutable.
func FormatEnvelope(evt InboundEvent, route SessionRoute, prev time.Time, hasPrev bool, now time.Time) *bus.InboundContext {
	chatType := bus.ChatTypeGroup
	if evt.IsDirect {
		chatType = bus.ChatTypeDirect
	}

	received := evt.ReceivedAt
	if received.IsZero() {
		received = now
	}

	header := fmt.Sprintf("[%s %s] %s in %s at %s",
		ChannelName,
		chatType,
		shortID(evt.Sender),
		shortID(evt.ConversationID),
		now.Format("2006-01-02 15:04:05"),
	)
	if hasPrev {
		header += fmt.Sprintf(" (last activity %s ago)", elapsed(now.Sub(prev)))
	}

	return &bus.InboundContext{
		Channel:        ChannelName,
		AccountID:      route.AccountID,
		AgentID:        route.AgentID,
		SessionKey:     route.SessionKey,
		Body:           header + "\n" + evt.Content,
		RawBody:        evt.Content,
		From:           ChannelName + ":" + evt.Sender,
		To:             ChannelName + ":" + route.AccountID,
		ChatType:       chatType,
		SenderID:       evt.Sender,
		ConversationID: evt.ConversationID,
		MessageID:      evt.MessageID,
		Provider:       ChannelName,
		Surface:        ChannelName,
		TraceID:        traceIDFromEvent(evt.MessageID),
		ReceivedAt:     received,
		PrevActivity:   prev,
		HasPrev:        hasPrev,
	}
}

func traceIDFromEvent(messageID string) string {
	if messageID != "" {
		return ChannelName + "-" + messageID
	}
	return ChannelName + "-" + uuid.NewString()
}

// shortID truncates an identifier to its display form.
func shortID(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > displayIDLen {
		return s[:displayIDLen] + "…"
	}
	return s
}

// elapsed renders a duration for the envelope header, coarsening to the
// largest useful unit.
func elapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
