package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/pnftm/internal/config"
	"github.com/roach88/pnftm/internal/confidential"
	"github.com/roach88/pnftm/internal/market"
	"github.com/roach88/pnftm/internal/store"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Owner     string
	Collector string
	Oracle    string
	FeeBps    uint64
	Policy    string
	Window    int64
}

// InitResult describes a newly created marketplace.
type InitResult struct {
	Database     string `json:"database"`
	Owner        string `json:"owner"`
	FeeCollector string `json:"fee_collector"`
	Oracle       string `json:"oracle,omitempty"`
	FeeBps       uint64 `json:"fee_bps"`
	Policy       string `json:"policy"`
	Window       int64  `json:"settlement_window_blocks"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a marketplace database",
		Long: `Create a marketplace in a new database.

Administrative addresses and tunables come from --config, overridden by
flags. A sealing key for the local comparison oracle is generated and
stored alongside the marketplace.

Examples:
  pnftm init --owner 0x...01 --collector 0x...02 --oracle 0x...03
  pnftm init --config market.yaml
  pnftm init --config market.yaml --fee-bps 100 --policy exact`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Owner, "owner", "", "marketplace owner address")
	cmd.Flags().StringVar(&opts.Collector, "collector", "", "fee collector address")
	cmd.Flags().StringVar(&opts.Oracle, "oracle", "", "comparison oracle address")
	cmd.Flags().Uint64Var(&opts.FeeBps, "fee-bps", 250, "marketplace fee in basis points")
	cmd.Flags().StringVar(&opts.Policy, "policy", "threshold", "comparison policy (threshold|exact)")
	cmd.Flags().Int64Var(&opts.Window, "window", 100, "settlement window in blocks")

	return cmd
}

func runInit(opts *InitOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	cfg, err := opts.initConfig(cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	admin, err := cfg.Admin()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	path := opts.DatabasePath()
	st, err := store.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	done, err := st.Initialized(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read database", err)
	}
	if done {
		return NewExitError(ExitCommandError, fmt.Sprintf("marketplace already initialized in %s", path))
	}

	m, err := market.New(admin, cfg.Options(), nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if err := st.Init(ctx, m.Snapshot()); err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize database", err)
	}
	key, err := confidential.GenerateKey()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to generate oracle key", err)
	}
	if err := st.PutOracleKey(ctx, key); err != nil {
		return WrapExitError(ExitCommandError, "failed to store oracle key", err)
	}

	result := InitResult{
		Database:     path,
		Owner:        string(admin.Owner),
		FeeCollector: string(admin.FeeCollector),
		FeeBps:       cfg.FeeBps,
		Policy:       cfg.Policy,
		Window:       cfg.SettlementWindow,
	}
	if !admin.Oracle.IsZero() {
		result.Oracle = string(admin.Oracle)
	}

	f := opts.formatter(cmd)
	if opts.Format == "json" {
		return f.Success(result)
	}
	return f.Success(fmt.Sprintf("initialized marketplace in %s (owner %s, fee %d bps, %s policy)",
		path, result.Owner, result.FeeBps, result.Policy))
}

// initConfig layers changed flags over the loaded config, or over the
// schema defaults when no config was given.
func (o *InitOptions) initConfig(cmd *cobra.Command) (*config.Config, error) {
	m := map[string]any{}
	if o.cfg != nil {
		m = configMap(o.cfg)
	}
	flags := cmd.Flags()
	set := func(flag, key string, v any) {
		if flags.Changed(flag) {
			m[key] = v
		}
	}
	set("owner", "owner", o.Owner)
	set("collector", "fee_collector", o.Collector)
	set("oracle", "oracle", o.Oracle)
	set("fee-bps", "fee_bps", o.FeeBps)
	set("policy", "policy", o.Policy)
	set("window", "settlement_window_blocks", o.Window)
	return config.FromMap(m)
}

func configMap(c *config.Config) map[string]any {
	return map[string]any{
		"owner":                    c.Owner,
		"fee_collector":            c.FeeCollector,
		"oracle":                   c.Oracle,
		"fee_bps":                  c.FeeBps,
		"policy":                   c.Policy,
		"settlement_window_blocks": c.SettlementWindow,
		"db":                       c.DB,
		"log": map[string]any{
			"level":  c.Log.Level,
			"format": c.Log.Format,
		},
	}
}
