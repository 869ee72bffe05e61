package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pnftm/internal/ir"
	"github.com/roach88/pnftm/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	FromSeq int64
	ToSeq   int64
	Method  string // optional - filter to one method
	Limit   int
}

// TraceEntry is one logged transaction in the timeline.
type TraceEntry struct {
	From  string         `json:"from"`
	Args  map[string]any `json:"args"`
	Value uint64         `json:"value,omitempty"`
	ReceiptView
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Timeline []TraceEntry `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Transactions int            `json:"transactions"`
	Applied      int            `json:"applied"`
	Rejected     int            `json:"rejected"`
	Events       int            `json:"events"`
	ByStatus     map[string]int `json:"by_status"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the transaction log",
		Long: `Show logged transactions with their receipts in block order.

Every executed transaction is logged, including rejected ones, whose
receipt status is the error code. The output includes:
- Timeline: each transaction with its status and emitted events
- Stats: counts of applied and rejected transactions

Examples:
  pnftm trace
  pnftm trace --method buy --format json
  pnftm trace --from-seq 10 --to-seq 20 -v`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.FromSeq, "from-seq", 0, "first block to include")
	cmd.Flags().Int64Var(&opts.ToSeq, "to-seq", 0, "last block to include (0 for no limit)")
	cmd.Flags().StringVar(&opts.Method, "method", "", "filter to one method")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of transactions (0 for no limit)")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := openStore(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.ReadLog(ctx, store.LogFilter{
		FromSeq: opts.FromSeq,
		ToSeq:   opts.ToSeq,
		Method:  opts.Method,
		Limit:   opts.Limit,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read log", err)
	}

	result := buildTrace(entries)

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	return outputTraceText(cmd.OutOrStdout(), result, opts.Verbose)
}

// buildTrace converts log entries to a timeline with stats.
func buildTrace(entries []store.Entry) TraceResult {
	result := TraceResult{
		Timeline: make([]TraceEntry, 0, len(entries)),
		Stats:    TraceStats{ByStatus: map[string]int{}},
	}
	for _, e := range entries {
		te := TraceEntry{
			From:        string(e.Tx.From),
			Args:        objectMap(e.Tx.Args),
			Value:       uint64(e.Tx.Value),
			ReceiptView: newReceiptView(e.Tx.Method, e.Receipt),
		}
		result.Timeline = append(result.Timeline, te)

		result.Stats.Transactions++
		result.Stats.ByStatus[te.Status]++
		result.Stats.Events += len(te.Events)
		if te.Status == ir.StatusOK {
			result.Stats.Applied++
		} else {
			result.Stats.Rejected++
		}
	}
	return result
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) error {
	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no transactions)")
	}
	for _, e := range result.Timeline {
		fmt.Fprintf(w, "  [%d] %s from %s", e.Seq, e.Method, truncateID(e.From))
		if e.Value > 0 {
			fmt.Fprintf(w, " value=%d", e.Value)
		}
		fmt.Fprintf(w, " -> %s\n", e.Status)
		if verbose {
			fmt.Fprintf(w, "       Args: %s\n", formatArgs(e.Args))
			if len(e.Result) > 0 {
				fmt.Fprintf(w, "       Result: %s\n", formatArgs(e.Result))
			}
			if e.Error != "" {
				fmt.Fprintf(w, "       Error: %s\n", e.Error)
			}
			fmt.Fprintf(w, "       Tx: %s\n", truncateID(e.TxID))
		}
		for _, ev := range e.Events {
			fmt.Fprintf(w, "       %s %s\n", ev.Name, formatArgs(ev.Args))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Transactions: %d\n", result.Stats.Transactions)
	fmt.Fprintf(w, "  Applied:      %d\n", result.Stats.Applied)
	fmt.Fprintf(w, "  Rejected:     %d\n", result.Stats.Rejected)
	fmt.Fprintf(w, "  Events:       %d\n", result.Stats.Events)
	return nil
}

// writeReceipt prints one receipt the way trace prints a timeline entry.
func writeReceipt(w io.Writer, r ReceiptView, verbose bool) {
	fmt.Fprintf(w, "[%d] %s -> %s\n", r.Seq, r.Method, r.Status)
	if r.Error != "" {
		fmt.Fprintf(w, "  Error: %s\n", r.Error)
	}
	if len(r.Result) > 0 {
		fmt.Fprintf(w, "  Result: %s\n", formatArgs(r.Result))
	}
	for _, ev := range r.Events {
		fmt.Fprintf(w, "  %s %s\n", ev.Name, formatArgs(ev.Args))
	}
	if verbose {
		fmt.Fprintf(w, "  Tx: %s\n", r.TxID)
		fmt.Fprintf(w, "  Receipt: %s\n", r.ReceiptID)
	}
}

// formatArgs formats a map of args for display.
// Uses sorted keys to ensure deterministic output.
func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, formatValue(args[k])))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// formatValue formats a single value for display, handling nested structures deterministically.
func formatValue(v any) string {
	switch val := v.(type) {
	case map[string]any:
		return formatArgs(val)
	case []any:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = formatValue(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case string:
		return val
	default:
		return fmt.Sprintf("%v", v)
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
