package identity

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KafClaw/XmtpClaw/internal/config"
)

// A fixed secp256k1 key for deterministic address checks.
const (
	testWalletKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testAddress   = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
)

func TestResolveReusesBothKeys(t *testing.T) {
	m, err := Resolve(testWalletKey, "aabbccdd")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if m.WalletKey != testWalletKey {
		t.Fatalf("wallet key must be reused verbatim, got %q", m.WalletKey)
	}
	if m.DBEncryptionKey != "aabbccdd" {
		t.Fatalf("db key must be reused verbatim, got %q", m.DBEncryptionKey)
	}
	if m.GeneratedWallet || m.GeneratedDBKey {
		t.Fatalf("nothing should be generated when both keys are present")
	}
	if m.PublicAddress != testAddress {
		t.Fatalf("expected address %s, got %s", testAddress, m.PublicAddress)
	}
}

func TestResolveIsIdempotentWithBothKeysPresent(t *testing.T) {
	first, err := Resolve(testWalletKey, "aabbccdd")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := Resolve(testWalletKey, "aabbccdd")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if first != second {
		t.Fatalf("expected byte-identical output, got %+v vs %+v", first, second)
	}
}

func TestResolveGeneratesDBKeyWhenAbsent(t *testing.T) {
	m, err := Resolve(testWalletKey, "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if m.GeneratedWallet {
		t.Fatalf("wallet key must be reused")
	}
	if !m.GeneratedDBKey {
		t.Fatalf("db key must be generated")
	}
	if len(m.DBEncryptionKey) != 64 {
		t.Fatalf("expected 32-byte hex db key, got %d chars", len(m.DBEncryptionKey))
	}
	// Address must come from the existing wallet key, not a fresh one.
	if m.PublicAddress != testAddress {
		t.Fatalf("expected address %s, got %s", testAddress, m.PublicAddress)
	}
}

func TestResolveGeneratesFreshIdentityWithoutWalletKey(t *testing.T) {
	m, err := Resolve("", "deadbeef")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !m.GeneratedWallet || !m.GeneratedDBKey {
		t.Fatalf("expected full fresh identity, got %+v", m)
	}
	if m.DBEncryptionKey == "deadbeef" {
		t.Fatalf("orphaned db key must be discarded")
	}
	derived, err := DeriveAddress(m.WalletKey)
	if err != nil {
		t.Fatalf("derive address: %v", err)
	}
	if m.PublicAddress != derived {
		t.Fatalf("address must match the generated wallet key")
	}
}

func TestResolveRejectsGarbageWalletKey(t *testing.T) {
	if _, err := Resolve("not-hex", ""); err == nil {
		t.Fatalf("expected error for invalid wallet key")
	}
}

func TestFingerprintDeterministicAndPrefixInsensitive(t *testing.T) {
	cases := []struct {
		key  string
		want string
	}{
		{"0xABCDEF0123456789", "abcdef01"},
		{"abcdef0123456789", "abcdef01"},
		{"0Xabc", "abc"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Fingerprint(tc.key); got != tc.want {
			t.Fatalf("Fingerprint(%q) = %q, want %q", tc.key, got, tc.want)
		}
	}
	if Fingerprint(testWalletKey) != Fingerprint(testWalletKey) {
		t.Fatalf("fingerprint must be deterministic")
	}
}

func TestFingerprintDistinguishesKeys(t *testing.T) {
	a := Fingerprint("0x11112222aaaa")
	b := Fingerprint("0x33334444bbbb")
	if a == b {
		t.Fatalf("distinct keys produced the same fingerprint %q", a)
	}
}

func TestDatabasePathNamespacedByFingerprint(t *testing.T) {
	root := t.TempDir()

	p1, err := DatabasePath(root, "dev", "main", testWalletKey)
	if err != nil {
		t.Fatalf("database path: %v", err)
	}
	want := filepath.Join(root, "xmtp", "dev", "main", Fingerprint(testWalletKey), "store.db3")
	if p1 != want {
		t.Fatalf("expected %s, got %s", want, p1)
	}

	// Rotating the key must yield a different directory, never a reuse.
	p2, err := DatabasePath(root, "dev", "main", "0xffff0000ffff0000ffff0000ffff0000ffff0000ffff0000ffff0000ffff0000")
	if err != nil {
		t.Fatalf("database path: %v", err)
	}
	if filepath.Dir(p1) == filepath.Dir(p2) {
		t.Fatalf("rotated key reused the store directory %s", filepath.Dir(p1))
	}
}

func TestDatabasePathProbesWritability(t *testing.T) {
	root := t.TempDir()
	blocked := filepath.Join(root, "blocked")
	if err := os.MkdirAll(blocked, 0o500); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(blocked, 0o700) })

	_, err := DatabasePath(blocked, "dev", "main", testWalletKey)
	if err == nil {
		t.Skip("running as root; permission probe cannot fail")
	}
	if !strings.Contains(err.Error(), "not writable") {
		t.Fatalf("expected writability error, got %v", err)
	}
}

func TestProvisionWritesSecretsFile(t *testing.T) {
	dir := t.TempDir()
	p := &Provisioner{SecretsDir: dir}

	m, err := p.Provision("main", "dev", testWalletKey, "")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}

	vals, err := config.ReadSecretsFile(config.SecretsFilePath(dir, "main"))
	if err != nil {
		t.Fatalf("read secrets: %v", err)
	}
	if vals[config.SecretKeyWallet] != testWalletKey {
		t.Fatalf("wallet key not persisted: %v", vals)
	}
	if vals[config.SecretKeyDBEncryption] != m.DBEncryptionKey {
		t.Fatalf("db key not persisted: %v", vals)
	}
	if vals[config.SecretKeyEnv] != "dev" {
		t.Fatalf("env not persisted: %v", vals)
	}
}
