package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/pnftm/internal/engine"
)

// ReplayResult holds the replay outcome.
type ReplayResult struct {
	Transactions  int             `json:"transactions"`
	Rejected      int             `json:"rejected"`
	LastSeq       int64           `json:"last_seq"`
	StateHash     string          `json:"state_hash,omitempty"`
	Deterministic bool            `json:"deterministic"`
	Mismatch      *ReplayMismatch `json:"mismatch,omitempty"`
}

// ReplayMismatch locates the first divergence.
type ReplayMismatch struct {
	Seq     int64             `json:"seq"`
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the log and verify determinism",
		Long: `Re-execute the transaction log from the genesis configuration and
verify that every receipt and the final state hash match what was stored.

Replay never writes to the database.

Exit codes:
  0 - Replay matched the log
  1 - Replay diverged (receipt or state mismatch)
  2 - Command error (database not found, not initialized, etc.)

Examples:
  pnftm replay
  pnftm replay --db ./market.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(rootOpts, cmd)
		},
	}

	return cmd
}

func runReplay(opts *RootOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := openStore(ctx, opts)
	if err != nil {
		return err
	}
	defer st.Close()

	report, err := engine.Replay(ctx, st)
	if err != nil && !engine.IsReplayMismatch(err) {
		return WrapExitError(ExitCommandError, "replay failed", err)
	}

	result := ReplayResult{
		Transactions:  report.Txs,
		Rejected:      report.Rejected,
		LastSeq:       report.LastSeq,
		StateHash:     report.StateHash,
		Deterministic: err == nil,
	}
	var re *engine.RuntimeError
	if errors.As(err, &re) {
		result.Mismatch = &ReplayMismatch{
			Seq:     re.Seq,
			Kind:    string(re.Code),
			Message: re.Message,
			Details: re.Details,
		}
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.Deterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    CodeReplayMismatch,
			Message: "replay diverged from the log",
			Details: result.Mismatch,
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !result.Deterministic {
		return NewExitError(ExitFailure, "replay diverged from the log")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replayed %d transaction(s), %d rejected\n", result.Transactions, result.Rejected)

	if result.Deterministic {
		if verbose {
			fmt.Fprintf(w, "  Last block: %d\n", result.LastSeq)
			fmt.Fprintf(w, "  State hash: %s\n", result.StateHash)
		}
		fmt.Fprintln(w, "✓ Log verified deterministic")
		return nil
	}

	mm := result.Mismatch
	fmt.Fprintf(w, "✗ %s at seq %d: %s\n", mm.Kind, mm.Seq, mm.Message)
	if mm.Details != nil {
		fmt.Fprintf(w, "  expected: %s\n", mm.Details["expected"])
		fmt.Fprintf(w, "  actual:   %s\n", mm.Details["actual"])
	}
	return NewExitError(ExitFailure, "replay diverged from the log")
}
