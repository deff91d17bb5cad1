// Package identity manages wallet and database-encryption key lifecycle
// for XMTP accounts: reuse-or-generate resolution, address derivation, key
// fingerprinting, and the namespaced local datastore path.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/KafClaw/XmtpClaw/internal/config"
)

// ErrInvalidWalletKey reports wallet key material that cannot be parsed as
// a secp256k1 private key.
var ErrInvalidWalletKey = errors.New("invalid wallet key")

// Material is the effective key material for an account.
type Material struct {
	WalletKey       string
	DBEncryptionKey string
	PublicAddress   string
	// GeneratedWallet is true when the wallet key was freshly generated
	// rather than reused from configuration.
	GeneratedWallet bool
	// GeneratedDBKey is true when the encryption key was freshly generated.
	GeneratedDBKey bool
}

// Resolve produces effective key material from a persisted configuration
// fragment without ever discarding already-committed secrets:
//
//   - both keys present: reuse both
//   - wallet key present, db key absent: reuse wallet, generate db key
//   - wallet key absent: generate a full fresh identity; a lone db key
//     cannot resume a prior session and is discarded
//
// The public address is always derived from the effective wallet key.
func Resolve(walletKey, dbEncryptionKey string) (Material, error) {
	walletKey = strings.TrimSpace(walletKey)
	dbEncryptionKey = strings.TrimSpace(dbEncryptionKey)

	m := Material{WalletKey: walletKey, DBEncryptionKey: dbEncryptionKey}

	if walletKey == "" {
		if dbEncryptionKey != "" {
			// An encryption key without its wallet key cannot unlock
			// anything useful; the replacement identity gets a fresh one.
			slog.Warn("Discarding orphaned db encryption key; wallet key is missing and a full fresh identity will be generated")
		}
		priv, err := crypto.GenerateKey()
		if err != nil {
			return Material{}, fmt.Errorf("generate wallet key: %w", err)
		}
		m.WalletKey = "0x" + hex.EncodeToString(crypto.FromECDSA(priv))
		m.GeneratedWallet = true
		m.DBEncryptionKey = ""
	}

	if m.DBEncryptionKey == "" {
		key, err := randomHex(32)
		if err != nil {
			return Material{}, fmt.Errorf("generate db encryption key: %w", err)
		}
		m.DBEncryptionKey = key
		m.GeneratedDBKey = true
	}

	addr, err := DeriveAddress(m.WalletKey)
	if err != nil {
		return Material{}, err
	}
	m.PublicAddress = addr
	return m, nil
}

// DeriveAddress computes the Ethereum-style public address for a hex
// encoded secp256k1 wallet key (optional 0x prefix).
func DeriveAddress(walletKey string) (string, error) {
	priv, err := crypto.HexToECDSA(stripHexPrefix(walletKey))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidWalletKey, err)
	}
	return crypto.PubkeyToAddress(priv.PublicKey).Hex(), nil
}

// Fingerprint derives the short digest used to namespace on-disk state:
// the first 8 characters of the lower-cased key hex after stripping an
// optional 0x prefix. Equal keys always map to equal fingerprints, so a
// rotated key can never land in a stale encrypted store directory. It is
// a storage namespace, never a security credential.
func Fingerprint(walletKey string) string {
	normalized := strings.ToLower(stripHexPrefix(strings.TrimSpace(walletKey)))
	if len(normalized) <= 8 {
		return normalized
	}
	return normalized[:8]
}

func stripHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:]
	}
	return s
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Provisioner resolves key material and persists it to the restricted
// per-account secrets file.
type Provisioner struct {
	SecretsDir string
}

// Provision resolves effective key material for the account and writes it
// to the secrets file. The returned material is what the caller commits
// into configuration; the write happens first so a crash between the two
// never loses generated secrets.
func (p *Provisioner) Provision(accountID, env, walletKey, dbEncryptionKey string) (Material, error) {
	m, err := Resolve(walletKey, dbEncryptionKey)
	if err != nil {
		return Material{}, err
	}
	path := config.SecretsFilePath(p.SecretsDir, accountID)
	err = config.UpdateSecretsFile(path, map[string]string{
		config.SecretKeyWallet:       m.WalletKey,
		config.SecretKeyDBEncryption: m.DBEncryptionKey,
		config.SecretKeyEnv:          env,
	})
	if err != nil {
		return Material{}, fmt.Errorf("persist key material: %w", err)
	}
	return m, nil
}
