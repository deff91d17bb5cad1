// Package config provides configuration types and loading for xmtpclaw.
package config

import (
	"strings"
	"time"
)

// DmPolicy controls who may open a direct conversation with an account.
type DmPolicy string

// GroupPolicy controls which group conversations an account participates in.
type GroupPolicy string

const (
	DmPolicyPairing   DmPolicy = "pairing"
	DmPolicyAllowlist DmPolicy = "allowlist"
	DmPolicyOpen      DmPolicy = "open"
	DmPolicyDisabled  DmPolicy = "disabled"

	GroupPolicyOpen      GroupPolicy = "open"
	GroupPolicyAllowlist GroupPolicy = "allowlist"
	GroupPolicyDisabled  GroupPolicy = "disabled"
)

// GroupWildcard in an account's Groups list admits every group conversation
// under the allowlist group policy.
const GroupWildcard = "*"

// Environments the XMTP network can be addressed on.
const (
	EnvProduction = "production"
	EnvDev        = "dev"
)

// Config is the root configuration struct.
type Config struct {
	Paths    PathsConfig     `json:"paths"`
	Accounts []AccountConfig `json:"accounts"`
	Agent    AgentConfig     `json:"agent"`
	Gateway  GatewayConfig   `json:"gateway"`
	Bridge   BridgeConfig    `json:"bridge"`
	Mirror   MirrorConfig    `json:"mirror"`
}

// PathsConfig groups filesystem path settings.
type PathsConfig struct {
	// StateRoot holds per-account protocol state (encrypted local stores,
	// the sqlite state db). Defaults to ~/.xmtpclaw/state.
	StateRoot string `json:"stateRoot" envconfig:"STATE_ROOT"`
	// SecretsDir holds per-account secrets env files. Defaults to
	// ~/.xmtpclaw/secrets.
	SecretsDir string `json:"secretsDir" envconfig:"SECRETS_DIR"`
}

// AccountConfig configures one XMTP account the adapter serves.
type AccountConfig struct {
	ID              string      `json:"id"`
	Name            string      `json:"name,omitempty"`
	Enabled         bool        `json:"enabled"`
	WalletKey       string      `json:"walletKey,omitempty" envconfig:"XMTP_WALLET_KEY"`
	DBEncryptionKey string      `json:"dbEncryptionKey,omitempty" envconfig:"XMTP_DB_ENCRYPTION_KEY"`
	Env             string      `json:"env,omitempty" envconfig:"XMTP_ENV"`
	Debug           bool        `json:"debug,omitempty"`
	DmPolicy        DmPolicy    `json:"dmPolicy,omitempty"`
	AllowFrom       []string    `json:"allowFrom,omitempty"`
	GroupPolicy     GroupPolicy `json:"groupPolicy,omitempty"`
	Groups          []string    `json:"groups,omitempty"`
	OwnerAddress    string      `json:"ownerAddress,omitempty"`
	OwnerConvoID    string      `json:"ownerConversationId,omitempty"`
	PublicAddress   string      `json:"publicAddress,omitempty"`
	ChunkSize       int         `json:"chunkSize,omitempty"`
}

// Configured reports whether the account has committed wallet key material.
func (a AccountConfig) Configured() bool {
	return strings.TrimSpace(a.WalletKey) != ""
}

// AgentConfig groups reply-generation settings.
type AgentConfig struct {
	DefaultAgentID string        `json:"defaultAgentId" envconfig:"AGENT_ID"`
	Endpoint       string        `json:"endpoint,omitempty" envconfig:"AGENT_ENDPOINT"`
	AuthToken      string        `json:"authToken,omitempty" envconfig:"AGENT_TOKEN"`
	ReplyTimeout   time.Duration `json:"replyTimeout" envconfig:"REPLY_TIMEOUT"`
}

// GatewayConfig contains gateway server settings.
type GatewayConfig struct {
	Host      string `json:"host" envconfig:"HOST"`
	Port      int    `json:"port" envconfig:"PORT"`
	AuthToken string `json:"authToken,omitempty" envconfig:"AUTH_TOKEN"`
}

// BridgeConfig points at the external XMTP node binding that performs the
// actual wire protocol work. Inbound events arrive over the gateway's
// bridge endpoint; outbound sends are POSTed to the bridge URL.
type BridgeConfig struct {
	URL   string `json:"url,omitempty" envconfig:"BRIDGE_URL"`
	Token string `json:"token,omitempty" envconfig:"BRIDGE_TOKEN"`
}

// MirrorConfig configures the optional Kafka event mirror.
type MirrorConfig struct {
	Enabled bool   `json:"enabled" envconfig:"MIRROR_ENABLED"`
	Brokers string `json:"brokers" envconfig:"KAFKA_BROKERS"`
	Topic   string `json:"topic" envconfig:"MIRROR_TOPIC"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			DefaultAgentID: "main",
			ReplyTimeout:   120 * time.Second,
		},
		Gateway: GatewayConfig{
			Host: "127.0.0.1", // Secure default
			Port: 18890,
		},
		Mirror: MirrorConfig{
			Topic: "xmtpclaw.events",
		},
	}
}

// ResolveAccount returns a fresh snapshot of the account with defaults
// applied. Accounts are value snapshots rebuilt from persisted config on
// every resolution; callers never hold a long-lived mutable account.
func (c *Config) ResolveAccount(accountID string) (AccountConfig, bool) {
	id := AccountIDOrDefault(accountID)
	for _, acct := range c.Accounts {
		if strings.EqualFold(strings.TrimSpace(acct.ID), id) {
			return applyAccountDefaults(acct), true
		}
	}
	if id == "default" && len(c.Accounts) == 1 {
		return applyAccountDefaults(c.Accounts[0]), true
	}
	return AccountConfig{}, false
}

// UpsertAccount commits an account snapshot back into the config, replacing
// an existing entry with the same ID or appending a new one.
func (c *Config) UpsertAccount(acct AccountConfig) {
	for i := range c.Accounts {
		if strings.EqualFold(strings.TrimSpace(c.Accounts[i].ID), strings.TrimSpace(acct.ID)) {
			c.Accounts[i] = acct
			return
		}
	}
	c.Accounts = append(c.Accounts, acct)
}

// AccountIDOrDefault normalizes an account id, falling back to "default".
func AccountIDOrDefault(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return "default"
	}
	return strings.ToLower(id)
}

func applyAccountDefaults(acct AccountConfig) AccountConfig {
	if strings.TrimSpace(acct.ID) == "" {
		acct.ID = "default"
	}
	if strings.TrimSpace(acct.Env) == "" {
		acct.Env = EnvProduction
	}
	// Absent policies fail closed to the documented defaults, never to
	// unconditional admission.
	if strings.TrimSpace(string(acct.DmPolicy)) == "" {
		acct.DmPolicy = DmPolicyPairing
	}
	if strings.TrimSpace(string(acct.GroupPolicy)) == "" {
		acct.GroupPolicy = GroupPolicyOpen
	}
	if acct.ChunkSize <= 0 {
		acct.ChunkSize = 1800
	}
	return acct
}
