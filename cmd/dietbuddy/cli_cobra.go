package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func executeCLI() error {
	root := buildRootCommand(true)
	if err := root.Execute(); err != nil {
		return err
	}
	return nil
}

func buildRootCommand(includeDocsCommand bool) *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:   "dietbuddy",
		Short: "WhatsApp diet coach with an LLM brain and SQLite memory",
		Long: strings.TrimSpace(`dietbuddy is a stateless diet coach served over WhatsApp.

Use CLI commands to onboard, chat with the coach locally, run the webhook
server with its channels and daily check-ins, and inspect runtime readiness.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion()
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")

	root.AddCommand(newOnboardCommand())
	root.AddCommand(newChatCommand())
	root.AddCommand(newServeCommand())
	root.AddCommand(newStatusCommand())
	root.AddCommand(newVersionCommand())

	if includeDocsCommand {
		docsCmd := newDocsCommand(func() *cobra.Command { return buildRootCommand(false) })
		root.AddCommand(docsCmd)
	}

	return root
}

func runLegacyWithArgs(args []string, fn func()) error {
	original := os.Args
	os.Args = append([]string{original[0]}, args...)
	defer func() {
		os.Args = original
	}()
	fn()
	return nil
}

func newOnboardCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "onboard",
		Short:   "Initialize ~/.dietbuddy configuration",
		Long:    "Create the default configuration file for a new dietbuddy installation.",
		Example: "  dietbuddy onboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLegacyWithArgs([]string{"onboard"}, onboard)
		},
	}
}

func newChatCommand() *cobra.Command {
	var (
		message string
		name    string
		debug   bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the coach locally (CLI mode)",
		Long:  "Run an interactive coaching session or send one-shot messages without WhatsApp.",
		Example: strings.Join([]string{
			"  dietbuddy chat",
			"  dietbuddy chat --name priya",
			"  dietbuddy chat --message \"kya khau aaj?\"",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			legacyArgs := []string{"chat"}
			if debug {
				legacyArgs = append(legacyArgs, "--debug")
			}
			if strings.TrimSpace(message) != "" {
				legacyArgs = append(legacyArgs, "--message", message)
			}
			if strings.TrimSpace(name) != "" {
				legacyArgs = append(legacyArgs, "--name", name)
			}
			return runLegacyWithArgs(legacyArgs, chatCmd)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "One-shot message to send to the coach")
	cmd.Flags().StringVarP(&name, "name", "n", "local", "Local identity for conversation continuity")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

func newServeCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the webhook server, channels, and check-in scheduler",
		Long:    "Start the WhatsApp webhook endpoint, optional Discord channel, and the daily check-in service.",
		Example: "  dietbuddy serve --debug",
		RunE: func(cmd *cobra.Command, args []string) error {
			legacyArgs := []string{"serve"}
			if debug {
				legacyArgs = append(legacyArgs, "--debug")
			}
			return runLegacyWithArgs(legacyArgs, serveCmd)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show configuration, provider, and runtime readiness",
		Example: "  dietbuddy status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLegacyWithArgs([]string{"status"}, statusCmd)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show build/version metadata",
		Example: "  dietbuddy version",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion()
			return nil
		},
	}
}
