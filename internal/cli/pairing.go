package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/KafClaw/XmtpClaw/internal/channels"
	"github.com/KafClaw/XmtpClaw/internal/config"
	"github.com/KafClaw/XmtpClaw/internal/store"
)

var (
	pairingAccount string
	pairingApprove string
	pairingDeny    string
	pairingList    bool
)

var pairingCmd = &cobra.Command{
	Use:   "pairing",
	Short: "Approve or deny sender pairing requests",
	Run:   runPairing,
}

func init() {
	pairingCmd.Flags().StringVar(&pairingAccount, "account", "default", "Account id")
	pairingCmd.Flags().StringVar(&pairingApprove, "approve", "", "Approve a pending sender address")
	pairingCmd.Flags().StringVar(&pairingDeny, "deny", "", "Deny (remove) a sender address")
	pairingCmd.Flags().BoolVar(&pairingList, "list", false, "List pairing records")
}

func statePath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.StateRoot, "xmtpclaw.db")
}

func runPairing(cmd *cobra.Command, args []string) {
	printHeader("🔗 XMTP Pairing")

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}
	svc, err := store.New(statePath(cfg))
	if err != nil {
		fmt.Printf("State store error: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	accountID := config.AccountIDOrDefault(pairingAccount)

	if pairingList || (pairingApprove == "" && pairingDeny == "") {
		pairings, err := svc.ListPairings(channels.ChannelName, accountID)
		if err != nil {
			fmt.Printf("List error: %v\n", err)
			return
		}
		if len(pairings) == 0 {
			fmt.Println("No pairing records.")
		}
		for _, p := range pairings {
			state := "pending"
			if p.Approved {
				state = "approved"
			}
			fmt.Printf("%-10s %s  code=%s\n", state, p.Sender, p.Code)
		}
		if pairingApprove == "" && pairingDeny == "" && !pairingList {
			fmt.Println("\nProvide --approve <address> or --deny <address> to change a record.")
		}
		return
	}

	if pairingApprove != "" {
		if err := svc.Approve(channels.ChannelName, accountID, pairingApprove); err != nil {
			fmt.Printf("Approve error: %v\n", err)
			return
		}
		fmt.Printf("Approved: %s\n", pairingApprove)
	}
	if pairingDeny != "" {
		if err := svc.Deny(channels.ChannelName, accountID, pairingDeny); err != nil {
			fmt.Printf("Deny error: %v\n", err)
			return
		}
		fmt.Printf("Denied: %s\n", pairingDeny)
	}
}
