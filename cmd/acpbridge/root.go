package main

import (
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/m4xw311/acpbridge/agent/acp"
	"github.com/m4xw311/acpbridge/config"
	"github.com/m4xw311/acpbridge/errors"
	"github.com/m4xw311/acpbridge/logging"
	"github.com/m4xw311/acpbridge/upstream"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

// traceFile receives debug logs when --trace is given.
const traceFile = "acp.trace"

type globalFlags struct {
	backend  string
	model    string
	logLevel string
	logDir   string
	trace    bool
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	cmd := &cobra.Command{
		Use:   "acpbridge",
		Short: "Agent Client Protocol bridge for Claude Code",
		Long: `acpbridge speaks the Agent Client Protocol on stdin/stdout and runs each
prompt through Claude Code (or one of the API backends), streaming the
assistant's text, thinking, tool calls and plans back to the client.

Stdout carries JSON-RPC only; logs go to stderr, or to acp.trace with --trace.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			log, closer, err := newLogger(cfg, flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			up, err := upstream.New(ctx, cfg, log)
			if err != nil {
				return errors.Wrapf(err, "could not initialize %s backend", cfg.Backend)
			}
			return acp.Run(ctx, cfg, up, cmd.InOrStdin(), cmd.OutOrStdout(), log)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.backend, "backend", "", "Upstream backend (claude-code|anthropic|bedrock|openai|gemini|mock)")
	pf.StringVar(&flags.model, "model", "", "Model passed to the backend")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR)")
	pf.StringVar(&flags.logDir, "log-dir", "", "Directory for per-session audit logs")
	pf.BoolVar(&flags.trace, "trace", false, "Write debug logs to "+traceFile)

	cmd.AddCommand(newChatCmd(&flags))
	return cmd
}

// loadConfig merges the config files and applies flag overrides.
func loadConfig(flags globalFlags) (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, errors.Wrapf(err, "error loading configuration")
	}
	if flags.backend != "" {
		cfg.Backend = flags.backend
	}
	if flags.model != "" {
		cfg.Model = flags.model
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if flags.logDir != "" {
		cfg.LogDir = flags.logDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, flags globalFlags, stderr io.Writer) (zerolog.Logger, io.Closer, error) {
	if flags.trace {
		log, f, err := logging.OpenTrace(traceFile)
		if err != nil {
			return zerolog.Nop(), nil, errors.Wrapf(err, "could not open %s", traceFile)
		}
		return log, f, nil
	}
	log := logging.New(logging.Config{Level: logging.ParseLevel(cfg.LogLevel), Output: stderr})
	return log, io.NopCloser(nil), nil
}
