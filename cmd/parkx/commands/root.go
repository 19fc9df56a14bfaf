package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/llxisdsh/parkx/internal/log"
)

var ErrLogHandlerFailed = errors.New("log handler failed")

type rootArgs struct {
	logLevel  string
	logFormat string
}

// NewRootCmd returns the root command with every subcommand attached.
func NewRootCmd(name, shortDesc, longDesc string) *cobra.Command {
	args := &rootArgs{}

	cmd := &cobra.Command{
		Use:           name,
		Short:         shortDesc,
		Long:          longDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&args.logLevel, "log_level", "info", "Set the log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&args.logFormat, "log_format", "text", "Set the log format (text, logfmt, json)")

	cmd.PersistentPreRunE = func(cc *cobra.Command, _ []string) error {
		logger, err := log.New(cc.ErrOrStderr(), args.logLevel, args.logFormat)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrLogHandlerFailed, err)
		}
		slog.SetDefault(logger)
		return nil
	}

	cmd.AddCommand(NewDemoCmd())
	cmd.AddCommand(NewStressCmd())

	return cmd
}
