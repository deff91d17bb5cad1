// Package main is the entry point for the xmtpclaw CLI.
package main

import (
	"os"

	"github.com/KafClaw/XmtpClaw/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
