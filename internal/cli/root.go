package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/pnftm/internal/config"
)

// DefaultDatabase is used when neither --db nor the config names one.
const DefaultDatabase = "pnftm.db"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Config   string // optional config file
	Database string // overrides the config's db

	cfg *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the pnftm CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "pnftm",
		Short: "pnftm - private-price NFT marketplace",
		Long: `A marketplace for unique tokens whose asking prices stay encrypted.

Sellers list with a sealed price; a purchase escrows the payment and asks
the comparison oracle whether it satisfies the price. The oracle's answer
either completes the sale or refunds the buyer.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if opts.Config != "" {
				cfg, err := config.Load(opts.Config)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to load config", err)
				}
				opts.cfg = cfg
			}
			slog.SetDefault(opts.logger(cmd))
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "config file (.yaml, .cue or .json)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config, else "+DefaultDatabase+")")

	// Add subcommands
	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewInvokeCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewEncryptCommand(opts))
	cmd.AddCommand(NewOracleCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// DatabasePath resolves the database: --db, then the config, then the
// default.
func (o *RootOptions) DatabasePath() string {
	if o.Database != "" {
		return o.Database
	}
	if o.cfg != nil && o.cfg.DB != "" {
		return o.cfg.DB
	}
	return DefaultDatabase
}

// logger writes diagnostics to stderr so stdout stays parseable. Without
// a config only warnings are shown.
func (o *RootOptions) logger(cmd *cobra.Command) *slog.Logger {
	if o.cfg != nil {
		return o.cfg.NewLogger(cmd.ErrOrStderr(), o.Verbose)
	}
	return config.NewLogger(cmd.ErrOrStderr(), "warn", "text", o.Verbose)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
