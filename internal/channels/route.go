package channels

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// PeerKind distinguishes the two conversation shapes the protocol exposes.
type PeerKind string

const (
	PeerDM    PeerKind = "dm"
	PeerGroup PeerKind = "group"
)

// Peer identifies the remote side of a conversation.
type Peer struct {
	Kind PeerKind
	ID   string // wallet address for DMs, conversation id for groups
}

// PeerFromEvent derives the routing peer from an inbound event.
func PeerFromEvent(evt InboundEvent) Peer {
	if evt.IsDirect {
		return Peer{Kind: PeerDM, ID: evt.Sender}
	}
	return Peer{Kind: PeerGroup, ID: evt.ConversationID}
}

// SessionRoute is the stable routing target for a conversation.
type SessionRoute struct {
	AgentID    string
	SessionKey string
	AccountID  string
}

// ResolveRoute maps (account, peer) to its routing target. The mapping is
// a pure function of its inputs: identical (accountID, peer kind, peer id)
// always yields the identical (agentID, sessionKey) pair, with no routing
// table consulted.
func ResolveRoute(accountID, agentID string, peer Peer) SessionRoute {
	return SessionRoute{
		AgentID:    agentID,
		AccountID:  accountID,
		SessionKey: fmt.Sprintf("%s:%s:%s:%s", ChannelName, accountID, peer.Kind, strings.ToLower(strings.TrimSpace(peer.ID))),
	}
}

// ActivityReader reads a session's last-activity timestamp.
type ActivityReader interface {
	LastActivity(sessionKey string) (time.Time, bool, error)
}

// PreviousActivity reads the session's last-activity timestamp for display.
// A store failure degrades to "absent" rather than failing the pipeline;
// the value is never used for access decisions.
func PreviousActivity(r ActivityReader, sessionKey string) (time.Time, bool) {
	if r == nil {
		return time.Time{}, false
	}
	ts, ok, err := r.LastActivity(sessionKey)
	if err != nil {
		slog.Warn("Session activity read failed, continuing without it", "session_key", sessionKey, "error", err)
		return time.Time{}, false
	}
	return ts, ok
}
