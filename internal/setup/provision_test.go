package setup

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KafClaw/XmtpClaw/internal/config"
	"github.com/KafClaw/XmtpClaw/internal/identity"
)

type stubConn struct{ closed bool }

func (c *stubConn) Close() error {
	c.closed = true
	return nil
}

type stubDialer struct {
	env     string
	address string
	err     error
	conn    stubConn
}

func (d *stubDialer) Dial(ctx context.Context, env, address string) (io.Closer, error) {
	d.env = env
	d.address = address
	if d.err != nil {
		return nil, d.err
	}
	return &d.conn, nil
}

func TestConfigCommitterPersistsSecretsAndConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XMTPCLAW_HOME", home)
	t.Setenv("XMTPCLAW_CONFIG", filepath.Join(home, "config.json"))

	cfg := config.DefaultConfig()
	cfg.Paths.SecretsDir = filepath.Join(home, "secrets")
	c := &ConfigCommitter{Cfg: cfg, Env: config.EnvDev}

	material, err := identity.Resolve(testWalletKey, "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := c.Commit("default", material); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	secrets, err := config.ReadSecretsFile(config.SecretsFilePath(cfg.Paths.SecretsDir, "default"))
	if err != nil {
		t.Fatalf("ReadSecretsFile: %v", err)
	}
	if secrets[config.SecretKeyWallet] != testWalletKey {
		t.Errorf("wallet key = %q", secrets[config.SecretKeyWallet])
	}
	if secrets[config.SecretKeyDBEncryption] == "" {
		t.Error("db encryption key missing from secrets file")
	}
	if secrets[config.SecretKeyEnv] != config.EnvDev {
		t.Errorf("env = %q", secrets[config.SecretKeyEnv])
	}

	acct, ok := cfg.ResolveAccount("default")
	if !ok {
		t.Fatal("account not committed to config")
	}
	if !acct.Enabled || acct.PublicAddress != testAddress {
		t.Errorf("account = %+v", acct)
	}

	data, err := os.ReadFile(filepath.Join(home, "config.json"))
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if !strings.Contains(string(data), testAddress) {
		t.Error("saved config missing public address")
	}
}

func TestLivenessProberDialsNetwork(t *testing.T) {
	root := t.TempDir()
	dialer := &stubDialer{}
	path, err := LivenessProber{Dialer: dialer}.Probe(root, "dev", "default", testWalletKey)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !strings.HasPrefix(path, root) {
		t.Errorf("path = %q not under %q", path, root)
	}
	if !strings.Contains(path, "dev") {
		t.Errorf("path %q missing env segment", path)
	}
	if !strings.Contains(path, identity.Fingerprint(testWalletKey)) {
		t.Errorf("path %q missing key fingerprint", path)
	}
	if dialer.env != "dev" {
		t.Errorf("dialed env = %q", dialer.env)
	}
	if dialer.address != testAddress {
		t.Errorf("dialed address = %q", dialer.address)
	}
	if !dialer.conn.closed {
		t.Error("probe connection must be torn down after the check")
	}
}

func TestLivenessProberRequiresDialer(t *testing.T) {
	if _, err := (LivenessProber{}).Probe(t.TempDir(), "dev", "default", testWalletKey); err == nil {
		t.Fatal("expected error without a dialer")
	}
}

func TestUnreachableNetworkFailsSetup(t *testing.T) {
	dialer := &stubDialer{err: errors.New("node binding unreachable")}
	c := NewController(LivenessProber{Dialer: dialer}, &stubCommitter{})

	_, err := c.Begin(context.Background(), Request{
		AccountID: "default",
		WalletKey: testWalletKey,
		Env:       "dev",
		StateRoot: t.TempDir(),
	})
	if err == nil {
		t.Fatal("expected Begin to fail when the network dial fails")
	}
	if !strings.Contains(err.Error(), "node binding unreachable") {
		t.Errorf("error = %v", err)
	}
	st := c.Status()
	if st.State != StateFailed {
		t.Errorf("State = %q, want %q", st.State, StateFailed)
	}
	if dialer.address != testAddress {
		t.Errorf("dialed address = %q", dialer.address)
	}
}
