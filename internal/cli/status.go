package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/KafClaw/XmtpClaw/internal/config"
	"github.com/KafClaw/XmtpClaw/internal/identity"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ XmtpClaw Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show adapter status",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("📊 XmtpClaw Status")
		fmt.Printf("Version: %s\n", version)

		configPath, err := config.ConfigPath()
		if err == nil {
			if _, statErr := os.Stat(configPath); statErr == nil {
				fmt.Println("Config:  ✓ Found (" + configPath + ")")
			} else {
				fmt.Println("Config:  ✗ Not found (run 'xmtpclaw setup' first)")
			}
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("Config load error: %v\n", err)
			return
		}

		if len(cfg.Accounts) == 0 {
			fmt.Println("Accounts: none configured")
		}
		for _, acct := range cfg.Accounts {
			state := "✗ Disabled"
			if acct.Enabled {
				state = "✓ Enabled"
			}
			fmt.Printf("Account %s: %s\n", acct.ID, state)
			if acct.Configured() {
				fmt.Printf("  Address:     %s\n", acct.PublicAddress)
				fmt.Printf("  Fingerprint: %s\n", identity.Fingerprint(acct.WalletKey))
				fmt.Printf("  Env:         %s\n", acct.Env)
				fmt.Printf("  DM policy:   %s / group policy: %s\n", acct.DmPolicy, acct.GroupPolicy)
			} else {
				fmt.Println("  Identity:    ✗ Not provisioned (run 'xmtpclaw setup')")
			}
		}

		if cfg.Agent.Endpoint != "" {
			fmt.Println("Agent:   ✓ Endpoint configured")
		} else {
			fmt.Println("Agent:   ✗ No endpoint (replies unavailable)")
		}
		fmt.Printf("Gateway: http://%s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)
	},
}
