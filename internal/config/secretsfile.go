package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Secrets file keys written by identity provisioning.
const (
	SecretKeyWallet       = "WALLET_KEY"
	SecretKeyDBEncryption = "DB_ENCRYPTION_KEY"
	SecretKeyEnv          = "ENV"
)

// SecretsFilePath returns the per-account secrets env file location.
func SecretsFilePath(secretsDir, accountID string) string {
	return filepath.Join(secretsDir, AccountIDOrDefault(accountID)+".env")
}

// UpdateSecretsFile rewrites a line-oriented KEY=value secrets file in
// place. The scan is linear: the first structural match for a known key
// (with optional `export` prefix) is replaced, later duplicates and unknown
// lines are preserved verbatim, and keys without a match are appended once
// at end of file. File permissions are owner read/write only; the
// containing directory is owner access only.
func UpdateSecretsFile(path string, values map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create secrets dir: %w", err)
	}

	var lines []string
	if data, err := os.ReadFile(path); err == nil {
		lines = strings.Split(strings.TrimRight(string(data), "\n"), "\n")
		if len(lines) == 1 && lines[0] == "" {
			lines = nil
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	replaced := map[string]bool{}
	for i, line := range lines {
		key, _, ok := parseEnvLine(line)
		if !ok || replaced[key] {
			continue
		}
		val, known := values[key]
		if !known {
			continue
		}
		prefix := ""
		if strings.HasPrefix(strings.TrimSpace(line), "export ") {
			prefix = "export "
		}
		lines[i] = prefix + key + "=" + val
		replaced[key] = true
	}

	// Append missing keys in a stable order so repeated setup runs do not
	// accumulate duplicates or reorder the file.
	for _, key := range []string{SecretKeyWallet, SecretKeyDBEncryption, SecretKeyEnv} {
		val, ok := values[key]
		if !ok || replaced[key] {
			continue
		}
		lines = append(lines, key+"="+val)
		replaced[key] = true
	}
	for key, val := range values {
		if replaced[key] {
			continue
		}
		lines = append(lines, key+"="+val)
	}

	out := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(out), 0o600); err != nil {
		return fmt.Errorf("write secrets file: %w", err)
	}
	// Tighten permissions on a pre-existing file too.
	return os.Chmod(path, 0o600)
}

// ReadSecretsFile parses a secrets env file into a key/value map. A missing
// file yields an empty map.
func ReadSecretsFile(path string) (map[string]string, error) {
	out := map[string]string{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, err
	}
	for _, line := range strings.Split(string(data), "\n") {
		key, val, ok := parseEnvLine(line)
		if !ok {
			continue
		}
		if _, dup := out[key]; dup {
			continue // first structural match wins
		}
		out[key] = val
	}
	return out, nil
}
