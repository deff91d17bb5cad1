package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/KafClaw/XmtpClaw/internal/channels"
	"github.com/KafClaw/XmtpClaw/internal/config"
	"github.com/KafClaw/XmtpClaw/internal/setup"
)

var (
	setupAccount   string
	setupWalletKey string
	setupEnv       string
	setupYes       bool
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Provision an XMTP account identity",
	Run:   runSetup,
}

func init() {
	setupCmd.Flags().StringVar(&setupAccount, "account", "default", "Account id to provision")
	setupCmd.Flags().StringVar(&setupWalletKey, "wallet-key", "", "Existing wallet private key (hex); generates a fresh one when empty")
	setupCmd.Flags().StringVar(&setupEnv, "env", "", "XMTP environment (production or dev)")
	setupCmd.Flags().BoolVar(&setupYes, "yes", false, "Commit without interactive confirmation")
}

func runSetup(cmd *cobra.Command, args []string) {
	printHeader("🔐 XMTP Setup")

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}

	accountID := config.AccountIDOrDefault(setupAccount)
	walletKey := setupWalletKey
	dbKey := ""
	env := setupEnv
	if acct, ok := cfg.ResolveAccount(accountID); ok {
		// Existing key material is reused, never silently replaced.
		if walletKey == "" {
			walletKey = acct.WalletKey
		}
		if walletKey == acct.WalletKey {
			dbKey = acct.DBEncryptionKey
		}
		if env == "" {
			env = acct.Env
		}
	}
	if env == "" {
		env = config.EnvProduction
	}

	prober := setup.LivenessProber{Dialer: channels.BridgeDialer{URL: cfg.Bridge.URL, Token: cfg.Bridge.Token}}
	ctrl := setup.NewController(prober, &setup.ConfigCommitter{Cfg: cfg, Env: env})
	st, err := ctrl.Begin(cmd.Context(), setup.Request{
		AccountID:       accountID,
		WalletKey:       walletKey,
		DBEncryptionKey: dbKey,
		Env:             env,
		StateRoot:       cfg.Paths.StateRoot,
	})
	if err != nil {
		fmt.Printf("Setup failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Account:     %s (%s)\n", accountID, env)
	fmt.Printf("Address:     %s\n", st.PublicAddress)
	fmt.Printf("Fingerprint: %s\n", st.Fingerprint)
	fmt.Printf("Datastore:   %s\n", st.DatabasePath)
	if st.GeneratedKey {
		fmt.Println("Wallet key:  freshly generated")
	} else {
		fmt.Println("Wallet key:  reused")
	}

	qrPath := filepath.Join(filepath.Dir(cfg.Paths.StateRoot), "xmtp-address-qr.png")
	if err := qrcode.WriteFile(st.PublicAddress, qrcode.Medium, 512, qrPath); err != nil {
		fmt.Printf("QR write warning: %v\n", err)
	} else {
		fmt.Printf("Address QR:  %s\n", qrPath)
	}

	if !setupYes {
		fmt.Print("\nCommit this identity? [y/N]: ")
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y") {
			ctrl.Cancel()
			fmt.Println("Setup cancelled. Nothing was written.")
			return
		}
	}

	if _, err := ctrl.Complete(); err != nil {
		fmt.Printf("Commit failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("\n✓ Identity committed. Start the adapter with 'xmtpclaw gateway'.")
}
