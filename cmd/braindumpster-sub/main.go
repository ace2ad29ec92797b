// Copyright (c) 2025, the Braindumpster contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/furkancekic/braindumpster-ios-sub000/internal/buildinfo"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "braindumpster-sub",
		Short: "Braindumpster subscription entitlement sidecar",
		Long: `braindumpster-sub keeps the app's premium entitlement state in sync with
the platform store and, best-effort, with the Braindumpster backend. It
exposes a small local HTTP API for the UI shell to observe and drive
purchases.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(runVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("braindumpster-sub %s\n", buildinfo.String())
			if buildinfo.Date != "" {
				cmd.Printf("built %s\n", buildinfo.Date)
			}
		},
	}
}
