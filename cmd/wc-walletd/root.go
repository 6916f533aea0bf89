package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var version = "0.1.0"

// Global flags.
var (
	configPath string
	verbose    bool
	noColor    bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "wc-walletd",
		Short: "Wallet-side daemon for bridge-relayed dApp sessions",
		Long: `wc-walletd holds the wallet side of dApp sessions relayed through a
pub/sub bridge. Paste a dApp's wc: connection URI and the daemon runs
the handshake, asks for approval, and answers the dApp's requests.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			color.NoColor = color.NoColor || noColor
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to TOML config file")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("wc-walletd %s\n", version)
		},
	}
}
