package channels

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/KafClaw/XmtpClaw/internal/bus"
	"github.com/KafClaw/XmtpClaw/internal/config"
)

// AccountResolver returns a fresh account snapshot for every resolution.
type AccountResolver func(accountID string) (config.AccountConfig, bool)

// XMTPChannel bridges the protocol client to the reply pipeline.
type XMTPChannel struct {
	BaseChannel
	client   ProtocolClient
	resolve  AccountResolver
	pairing  *PairingService
	activity ActivityReader
	agentID  string
}

// NewXMTPChannel creates the channel. The protocol client, pairing store
// and activity reader are injected; the channel holds no module-level
// state, so multiple accounts and deterministic tests stay possible.
func NewXMTPChannel(client ProtocolClient, resolve AccountResolver, pairing *PairingService, activity ActivityReader, messageBus *bus.MessageBus, agentID string) *XMTPChannel {
	return &XMTPChannel{
		BaseChannel: BaseChannel{Bus: messageBus},
		client:      client,
		resolve:     resolve,
		pairing:     pairing,
		activity:    activity,
		agentID:     agentID,
	}
}

func (c *XMTPChannel) Name() string { return ChannelName }

// Start consumes the protocol event stream and subscribes for outbound
// delivery. Each inbound event is handled on its own goroutine; nothing
// serializes unrelated conversations.
func (c *XMTPChannel) Start(ctx context.Context) error {
	events, err := c.client.Events(ctx)
	if err != nil {
		return fmt.Errorf("open event stream: %w", err)
	}

	c.Bus.Subscribe(c.Name(), func(msg *bus.OutboundMessage) {
		go c.handleOutbound(msg)
	})

	go func() {
		for evt := range events {
			evt := evt
			go c.HandleInbound(evt)
		}
	}()
	return nil
}

func (c *XMTPChannel) Stop() error {
	return c.client.Close()
}

// Send delivers one outbound message through the protocol client.
func (c *XMTPChannel) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	return c.client.SendText(ctx, msg.ConversationID, msg.Content)
}

// HandleInbound runs one event through gate, router and formatter, and
// hands the canonical context to the pipeline. Rejections are silent
// drops, never errors surfaced to the sender.
func (c *XMTPChannel) HandleInbound(evt InboundEvent) {
	acct, ok := c.resolve(evt.AccountID)
	if !ok || !acct.Enabled || !acct.Configured() {
		slog.Debug("Dropping event for unknown or disabled account", "account", evt.AccountID)
		return
	}

	decision := EvaluateAccess(AccessContext{
		Sender:         evt.Sender,
		ConversationID: evt.ConversationID,
		IsDirect:       evt.IsDirect,
	}, AccessConfigFromAccount(acct))

	allowed := decision.Allowed
	if decision.RequiresPairing {
		paired, err := c.pairing.IsPaired(acct.ID, evt.Sender)
		if err != nil {
			// Fail closed: an unreachable pairing store admits nobody.
			slog.Warn("Pairing lookup failed, rejecting sender", "sender", shortID(evt.Sender), "error", err)
			return
		}
		if paired {
			allowed = true
		} else {
			c.replyWithPairingCode(acct.ID, evt)
			return
		}
	}
	if !allowed {
		slog.Debug("Access denied", "sender", shortID(evt.Sender), "reason", decision.Reason, "chat", evt.ConversationID)
		return
	}

	route := ResolveRoute(acct.ID, c.agentID, PeerFromEvent(evt))
	prev, hasPrev := PreviousActivity(c.activity, route.SessionKey)
	ic := FormatEnvelope(evt, route, prev, hasPrev, time.Now())
	c.Bus.PublishInbound(ic)
}

func (c *XMTPChannel) replyWithPairingCode(accountID string, evt InboundEvent) {
	pending, err := c.pairing.CreateOrGetPending(accountID, evt.Sender)
	if err != nil {
		slog.Warn("Failed to create pending pairing", "sender", shortID(evt.Sender), "error", err)
		return
	}
	c.Bus.PublishOutbound(&bus.OutboundMessage{
		Channel:        c.Name(),
		AccountID:      accountID,
		ConversationID: evt.ConversationID,
		Kind:           bus.OutboundKindPairing,
		Content:        BuildPairingReply(evt.Sender, pending.Code),
	})
}

func (c *XMTPChannel) handleOutbound(msg *bus.OutboundMessage) {
	sendCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.Send(sendCtx, msg); err != nil {
		reason, class := classifyDeliveryError(err)
		if class == deliveryTransient {
			slog.Warn("Outbound delivery failed (transient)", "conversation", shortID(msg.ConversationID), "kind", msg.Kind, "reason", reason, "error", err)
		} else {
			slog.Error("Outbound delivery failed", "conversation", shortID(msg.ConversationID), "kind", msg.Kind, "reason", reason, "error", err)
		}
		return
	}
	slog.Debug("Outbound delivered", "conversation", shortID(msg.ConversationID), "kind", msg.Kind)
}
