// Package main provides the entry point for the commander CLI.
//
// commander keeps named shell sessions alive and lets you drive them with
// line-oriented requests (open, run, send, list, close, ...) on stdin, from a
// script file, or as JSON lines.
package main

import (
	"errors"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// Version information set at build time via ldflags.
var (
	version = "dev"
	commit  = "none"
)

// errReported marks failures that were already shown to the user.
var errReported = errors.New("request failed")

var rootCmd = &cobra.Command{
	Use:   "commander",
	Short: "Manage named long-lived shell sessions",
	Long: `commander keeps named shell sessions alive and drives them with
line-oriented requests. Type 'help' at the prompt for the request grammar.

Examples:
  commander                                  interactive console
  commander --script requests.txt            run a request script
  commander --json < requests.jsonl          JSON lines in and out
  commander run --name py --command "echo hi"`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runConsole,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Config file (.toml, .yaml or .yml), default $CLI_COMMANDER_CONFIG")
	pf.Bool("debug", false, "Enable debug logging")
	pf.Bool("json", false, "Read and write JSON lines instead of text")
	pf.Duration("grace", 0, "How long a close waits before killing the shell")
	pf.Duration("wait", 0, "How long run waits for output when no wait is given")
	pf.String("shell", "", "Shell executable (default bash, then sh)")
	pf.Bool("follow", false, "Print every output line as it arrives")

	rootCmd.Flags().String("script", "", "Read requests from a file instead of stdin")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(demoCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			log.Error(err)
		}
		os.Exit(1)
	}
}
