package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"cli-commander/internal/console"
	"cli-commander/internal/protocol"
)

// runConsole serves requests from stdin or a script until end of input, quit,
// or a signal. Every session is closed on the way out.
func runConsole(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var in io.Reader = os.Stdin
	var opts []console.Option

	script, _ := cmd.Flags().GetString("script")
	if script != "" {
		f, err := os.Open(script)
		if err != nil {
			return fmt.Errorf("open script: %w", err)
		}
		defer f.Close()
		in = f
	} else if !a.renderer.JSON() && term.IsTerminal(int(os.Stdin.Fd())) {
		opts = append(opts, console.WithPrompt(os.Stdout, "commander> "))
		a.renderer.Print(console.DefaultSource, console.TagInfo, "Type 'help' for commands, 'quit' to exit.")
	}

	err = a.console(opts...).Serve(ctx, in)
	if errors.Is(err, context.Canceled) {
		a.logger.Debug("interrupted, closing sessions")
		return nil
	}
	return err
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one command in a fresh session, print the response and exit",
	Long: `Run opens a session, sends one command, prints whatever the shell
answers within the wait, and closes the session again.

Example:
  commander run --name demo --command "echo Hello! CLI Commander" --wait 1s`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		command, _ := cmd.Flags().GetString("command")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		req := &protocol.Request{Op: protocol.OpRun, Name: name, Command: command}
		if !a.console().Execute(ctx, req) {
			return errReported
		}
		return nil
	},
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Open a test session, run two echo commands, list and close everything",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		const name = "test_process"
		steps := []*protocol.Request{
			{Op: protocol.OpOpen, Name: name},
			{Op: protocol.OpRun, Name: name, Command: "echo 'Hello CLI Commander'", Wait: time.Second},
			{Op: protocol.OpRun, Name: name, Command: "echo Hello! CLI Commander", Wait: time.Second},
			{Op: protocol.OpList},
			{Op: protocol.OpCloseAll},
		}

		a.renderer.Print(console.DefaultSource, console.TagInfo, "Starting CLI Commander demo...")
		con := a.console()
		ok := true
		for _, req := range steps {
			if ctx.Err() != nil {
				return nil
			}
			ok = con.Execute(ctx, req) && ok
		}
		if !ok {
			a.renderer.Print(console.DefaultSource, console.TagError, "Demo finished with errors.")
			return errReported
		}
		a.renderer.Print(console.DefaultSource, console.TagSuccess, "Demo completed!")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "commander %s (commit %s)\n", version, commit)
	},
}

func init() {
	runCmd.Flags().String("name", "", "Session name (required)")
	runCmd.Flags().String("command", "", "Command to send (required)")
	runCmd.MarkFlagRequired("name")
	runCmd.MarkFlagRequired("command")
}
