package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/m4xw311/acpbridge/agent/terminal"
	"github.com/m4xw311/acpbridge/errors"
	"github.com/m4xw311/acpbridge/upstream"
	"github.com/spf13/cobra"
)

func newChatCmd(flags *globalFlags) *cobra.Command {
	var toolVerbosity string

	cmd := &cobra.Command{
		Use:   "chat [prompt...]",
		Short: "Chat with the backend in the terminal",
		Long: `Start an interactive session in the current directory. Any arguments
are sent as the first prompt. Type /quit or /exit to leave.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			verbosity, err := terminal.ParseVerbosity(toolVerbosity)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(*flags)
			if err != nil {
				return err
			}
			log, closer, err := newLogger(cfg, *flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closer.Close()

			cwd, err := os.Getwd()
			if err != nil {
				return errors.Wrapf(err, "could not get working directory")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			up, err := upstream.New(ctx, cfg, log)
			if err != nil {
				return errors.Wrapf(err, "could not initialize %s backend", cfg.Backend)
			}
			term := terminal.New(cfg, up, cmd.InOrStdin(), cmd.OutOrStdout(), verbosity, log)
			return term.Run(ctx, cwd, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVar(&toolVerbosity, "tool-verbosity", string(terminal.VerbosityInfo), "Tool verbosity level: 'none', 'info', or 'all'")
	return cmd
}
