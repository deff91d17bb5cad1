package channels

import (
	"fmt"

	"github.com/KafClaw/XmtpClaw/internal/store"
)

// PairingStore is the injected capability behind the pairing dm policy.
type PairingStore interface {
	IsPaired(channel, accountID, sender string) (bool, error)
	CreateOrGetPending(channel, accountID, sender string) (store.Pairing, error)
}

// PairingService wraps the pairing store for one channel.
type PairingService struct {
	store PairingStore
}

// NewPairingService creates a pairing service over the given store.
func NewPairingService(s PairingStore) *PairingService {
	return &PairingService{store: s}
}

// IsPaired reports whether the sender has an approved pairing record.
// Store failures fail closed.
func (s *PairingService) IsPaired(accountID, sender string) (bool, error) {
	return s.store.IsPaired(ChannelName, accountID, sender)
}

// CreateOrGetPending returns the sender's pending pairing, creating one on
// first contact.
func (s *PairingService) CreateOrGetPending(accountID, sender string) (store.Pairing, error) {
	return s.store.CreateOrGetPending(ChannelName, accountID, sender)
}

// BuildPairingReply renders the message sent back to an unpaired sender.
// The operator approves the code out-of-band via `xmtpclaw pairing`.
func BuildPairingReply(senderLabel, code string) string {
	return fmt.Sprintf(
		"This agent only talks to paired contacts.\nSender: %s\nPairing code: %s\nAsk the operator to run: xmtpclaw pairing --approve %s",
		senderLabel, code, senderLabel,
	)
}
