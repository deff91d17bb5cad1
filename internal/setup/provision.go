package setup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/KafClaw/XmtpClaw/internal/config"
	"github.com/KafClaw/XmtpClaw/internal/identity"
)

// defaultProbeTimeout bounds the liveness dial during the probing state.
const defaultProbeTimeout = 15 * time.Second

// Dialer opens a temporary protocol connection for a public address on
// an environment. The probe closes the connection right after the check.
type Dialer interface {
	Dial(ctx context.Context, env, address string) (io.Closer, error)
}

// LivenessProber resolves the per-account datastore path (which verifies
// the directory is writable), then briefly dials the network with the
// resolved identity to confirm it is live and reachable, tearing the
// connection down again.
type LivenessProber struct {
	Dialer  Dialer
	Timeout time.Duration
}

func (p LivenessProber) Probe(stateRoot, env, accountID, walletKey string) (string, error) {
	path, err := identity.DatabasePath(stateRoot, env, accountID, walletKey)
	if err != nil {
		return "", err
	}
	if p.Dialer == nil {
		return "", errors.New("no protocol dialer configured")
	}
	address, err := identity.DeriveAddress(walletKey)
	if err != nil {
		return "", err
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conn, err := p.Dialer.Dial(ctx, env, address)
	if err != nil {
		return "", fmt.Errorf("dial %s network: %w", env, err)
	}
	conn.Close()
	return path, nil
}

// ConfigCommitter persists a confirmed identity: secrets go to the
// account's secrets env file first, then the account entry is committed
// to the config file. Secrets are written before config so a crash
// between the two never loses key material.
type ConfigCommitter struct {
	Cfg *config.Config
	Env string
}

func (c *ConfigCommitter) Commit(accountID string, m identity.Material) error {
	accountID = config.AccountIDOrDefault(accountID)

	acct, ok := c.Cfg.ResolveAccount(accountID)
	if !ok {
		acct = config.AccountConfig{ID: accountID}
	}
	env := acct.Env
	if env == "" {
		env = c.Env
	}
	if env == "" {
		env = config.EnvProduction
	}

	secretsPath := config.SecretsFilePath(c.Cfg.Paths.SecretsDir, accountID)
	if err := config.UpdateSecretsFile(secretsPath, map[string]string{
		config.SecretKeyWallet:       m.WalletKey,
		config.SecretKeyDBEncryption: m.DBEncryptionKey,
		config.SecretKeyEnv:          env,
	}); err != nil {
		return fmt.Errorf("write secrets file: %w", err)
	}

	acct.ID = accountID
	acct.Enabled = true
	acct.WalletKey = m.WalletKey
	acct.DBEncryptionKey = m.DBEncryptionKey
	acct.Env = env
	acct.PublicAddress = m.PublicAddress
	c.Cfg.UpsertAccount(acct)

	if err := config.Save(c.Cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}
