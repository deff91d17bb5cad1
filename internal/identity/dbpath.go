package identity

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/KafClaw/XmtpClaw/internal/config"
)

// ErrNotWritable reports a datastore directory that failed the write probe.
var ErrNotWritable = errors.New("datastore directory not writable")

const (
	protocolDirName = "xmtp"
	storeFileName   = "store.db3"
)

// DatabasePath resolves the encrypted local datastore location for an
// account: <state-root>/xmtp/<env>/<accountId>/<fingerprint>/store.db3.
// The fingerprint segment guarantees a rotated wallet key gets a fresh
// directory instead of corrupting an existing encrypted store with
// mismatched key material.
//
// The directory is created and probed for writability with a
// write-and-delete of a scratch file; the probe fails fast here rather
// than at first store write deep inside the protocol client.
func DatabasePath(stateRoot, env, accountID, walletKey string) (string, error) {
	fp := Fingerprint(walletKey)
	if fp == "" {
		return "", ErrInvalidWalletKey
	}
	dir := filepath.Join(stateRoot, protocolDirName, normalizeEnv(env), config.AccountIDOrDefault(accountID), fp)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotWritable, err)
	}
	if err := probeWritable(dir); err != nil {
		return "", err
	}
	return filepath.Join(dir, storeFileName), nil
}

func probeWritable(dir string) error {
	var suffix [4]byte
	_, _ = rand.Read(suffix[:])
	probe := filepath.Join(dir, ".write-probe-"+hex.EncodeToString(suffix[:]))
	if err := os.WriteFile(probe, []byte("probe"), 0o600); err != nil {
		return fmt.Errorf("%w: %v", ErrNotWritable, err)
	}
	if err := os.Remove(probe); err != nil {
		return fmt.Errorf("%w: cleanup failed: %v", ErrNotWritable, err)
	}
	return nil
}

func normalizeEnv(env string) string {
	env = strings.ToLower(strings.TrimSpace(env))
	if env != config.EnvDev {
		return config.EnvProduction
	}
	return env
}
