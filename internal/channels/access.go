package channels

import (
	"strings"

	"github.com/KafClaw/XmtpClaw/internal/config"
)

// AccessContext describes one inbound event for policy evaluation.
type AccessContext struct {
	Sender         string
	ConversationID string
	IsDirect       bool
}

// AccessConfig is the policy fragment of an account snapshot.
type AccessConfig struct {
	DmPolicy            config.DmPolicy
	AllowFrom           []string
	GroupPolicy         config.GroupPolicy
	Groups              []string
	OwnerAddress        string
	OwnerConversationID string
}

// AccessConfigFromAccount extracts the policy fragment from an account.
func AccessConfigFromAccount(acct config.AccountConfig) AccessConfig {
	return AccessConfig{
		DmPolicy:            acct.DmPolicy,
		AllowFrom:           acct.AllowFrom,
		GroupPolicy:         acct.GroupPolicy,
		Groups:              acct.Groups,
		OwnerAddress:        acct.OwnerAddress,
		OwnerConversationID: acct.OwnerConvoID,
	}
}

// AccessDecision is the gate's verdict for one event.
type AccessDecision struct {
	Allowed bool
	// RequiresPairing marks a direct message under the pairing policy
	// whose sender is not implicitly trusted; the caller consults the
	// pairing store to settle admission.
	RequiresPairing bool
	Reason          string
}

// EvaluateAccess decides whether an inbound event may reach the agent. It
// is a pure predicate over the event and the account snapshot; the gate
// fails closed on missing or unknown policy values and an explicit reject
// always wins over any implicit admit.
func EvaluateAccess(ctx AccessContext, cfg AccessConfig) AccessDecision {
	if !ctx.IsDirect {
		return evaluateGroup(ctx, cfg)
	}
	return evaluateDirect(ctx, cfg)
}

func evaluateDirect(ctx AccessContext, cfg AccessConfig) AccessDecision {
	switch cfg.DmPolicy {
	case config.DmPolicyDisabled:
		return AccessDecision{Reason: "dm policy disabled"}
	case config.DmPolicyOpen:
		return AccessDecision{Allowed: true, Reason: "dm policy open"}
	case config.DmPolicyAllowlist:
		if containsFold(cfg.AllowFrom, ctx.Sender) {
			return AccessDecision{Allowed: true, Reason: "sender allowlisted"}
		}
		return AccessDecision{Reason: "sender not in allowlist"}
	case config.DmPolicyPairing:
		if isOwner(ctx, cfg) {
			// The operator channel is implicitly always paired.
			return AccessDecision{Allowed: true, Reason: "owner sender"}
		}
		return AccessDecision{RequiresPairing: true, Reason: "pairing required"}
	default:
		// Unknown policy value: fail closed.
		return AccessDecision{Reason: "unknown dm policy"}
	}
}

func evaluateGroup(ctx AccessContext, cfg AccessConfig) AccessDecision {
	switch cfg.GroupPolicy {
	case config.GroupPolicyDisabled:
		return AccessDecision{Reason: "group policy disabled"}
	case config.GroupPolicyOpen:
		return AccessDecision{Allowed: true, Reason: "group policy open"}
	case config.GroupPolicyAllowlist:
		for _, g := range cfg.Groups {
			g = strings.TrimSpace(g)
			if g == config.GroupWildcard || strings.EqualFold(g, ctx.ConversationID) {
				return AccessDecision{Allowed: true, Reason: "group allowlisted"}
			}
		}
		return AccessDecision{Reason: "group not in allowlist"}
	default:
		return AccessDecision{Reason: "unknown group policy"}
	}
}

func isOwner(ctx AccessContext, cfg AccessConfig) bool {
	if cfg.OwnerAddress != "" && strings.EqualFold(strings.TrimSpace(cfg.OwnerAddress), strings.TrimSpace(ctx.Sender)) {
		return true
	}
	if cfg.OwnerConversationID != "" && strings.EqualFold(strings.TrimSpace(cfg.OwnerConversationID), strings.TrimSpace(ctx.ConversationID)) {
		return true
	}
	return false
}

func containsFold(list []string, v string) bool {
	v = strings.TrimSpace(v)
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), v) {
			return true
		}
	}
	return false
}
