// Package cli contains the xmtpclaw command tree.
package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/KafClaw/XmtpClaw/internal/cli.version=1.2.3"
	version = "0.4.1"
	logo    = "\n" +
		" __  __           _          ____ _\n" +
		" \\ \\/ /_ __ ___  | |_ _ __  / ___| | __ ___      __\n" +
		"  \\  /| '_ ` _ \\ | __| '_ \\| |   | |/ _` \\ \\ /\\ / /\n" +
		"  /  \\| | | | | || |_| |_) | |___| | (_| |\\ V  V /\n" +
		" /_/\\_\\_| |_| |_| \\__| .__/ \\____|_|\\__,_| \\_/\\_/\n" +
		"                     |_|\n"
)

var rootCmd = &cobra.Command{
	Use:   "xmtpclaw",
	Short: "XmtpClaw - XMTP channel adapter for agent replies",
	Long:  color.CyanString(logo) + "\nBridges XMTP conversations to an agent reply pipeline.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func printHeader(title string) {
	fmt.Println(color.CyanString(logo))
	if title != "" {
		fmt.Println(title)
		fmt.Println("─────────────────────")
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(pairingCmd)
	rootCmd.AddCommand(gatewayCmd)
}
