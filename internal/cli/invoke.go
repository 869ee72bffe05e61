package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pnftm/internal/confidential"
	"github.com/roach88/pnftm/internal/engine"
	"github.com/roach88/pnftm/internal/ir"
	"github.com/roach88/pnftm/internal/market"
)

// CallOptions holds the flags shared by invoke and query.
type CallOptions struct {
	*RootOptions
	From    string
	Args    string   // JSON object
	ArgList []string // key=value pairs layered over Args
}

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	CallOptions
	Value   uint64
	Price   uint64
	Resolve bool
}

// ReceiptView is a receipt as printed by the CLI.
type ReceiptView struct {
	Seq       int64          `json:"seq"`
	Method    string         `json:"method"`
	TxID      string         `json:"tx_id"`
	ReceiptID string         `json:"receipt_id"`
	Status    string         `json:"status"`
	Error     string         `json:"error,omitempty"`
	Result    map[string]any `json:"result"`
	Events    []EventView    `json:"events"`
}

// EventView is an emitted event as printed by the CLI.
type EventView struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{CallOptions: CallOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "invoke <method>",
		Short: "Execute a marketplace transaction",
		Long: `Execute a state-changing marketplace method and print its receipt.

Arguments come from --args (a JSON object) and repeated --arg key=value
pairs. Values are parsed as JSON when they can be, otherwise taken as
strings. --price seals a plaintext price through the local oracle and
passes the handle as the "price" argument.

A rejected transaction is still logged; its receipt carries the error
code as status and the command exits 1.

Examples:
  pnftm invoke mint --from 0x...01 --arg to=0x...04 --arg name=Sunrise
  pnftm invoke list --from 0x...04 --arg token_id=1 --price 100
  pnftm invoke buy --from 0x...05 --arg token_id=1 --value 120 --resolve
  pnftm invoke withdraw --from 0x...04`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvoke(opts, args[0], cmd)
		},
	}

	opts.CallOptions.addFlags(cmd)
	cmd.Flags().Uint64Var(&opts.Value, "value", 0, "payment attached to the call (buy only)")
	cmd.Flags().Uint64Var(&opts.Price, "price", 0, "plaintext price to seal as the price argument")
	cmd.Flags().BoolVar(&opts.Resolve, "resolve", false, "after a successful buy, have the local oracle answer the request")
	_ = cmd.MarkFlagRequired("from")

	return cmd
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CallOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <view>",
		Short: "Call a read-only marketplace view",
		Long: `Call a read-only marketplace view at the current state.

Views: ` + strings.Join(market.Methods(market.KindView), ", ") + `

Examples:
  pnftm query getListing --arg token_id=1
  pnftm query getMarketplaceStats --format json
  pnftm query authorizeDecrypt --from 0x...04 --arg token_id=1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	opts.addFlags(cmd)

	return cmd
}

func (o *CallOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.From, "from", "", "caller address")
	cmd.Flags().StringVar(&o.Args, "args", "{}", "method arguments as a JSON object")
	cmd.Flags().StringArrayVar(&o.ArgList, "arg", nil, "method argument as key=value (repeatable)")
}

// callArgs merges --args and --arg into one argument object.
func (o *CallOptions) callArgs() (ir.IRObject, error) {
	var args ir.IRObject
	if err := json.Unmarshal([]byte(o.Args), &args); err != nil {
		return nil, fmt.Errorf("invalid --args JSON: %w", err)
	}
	if args == nil {
		args = ir.IRObject{}
	}
	for _, kv := range o.ArgList {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --arg %q: want key=value", kv)
		}
		args[k] = parseArgValue(v)
	}
	return args, nil
}

// parseArgValue reads v as JSON, falling back to a plain string for
// addresses, names and integers too large for JSON numbers.
func parseArgValue(v string) ir.IRValue {
	if json.Valid([]byte(v)) {
		if val, err := ir.UnmarshalIRValue([]byte(v)); err == nil {
			return val
		}
	}
	return ir.IRString(v)
}

// caller parses --from. Views accept an empty caller.
func (o *CallOptions) caller(required bool) (ir.Address, error) {
	if o.From == "" && !required {
		return "", nil
	}
	return ir.ParseAddress(o.From)
}

func runInvoke(opts *InvokeOptions, method string, cmd *cobra.Command) error {
	ctx := context.Background()

	if kind, ok := market.MethodKind(method); ok && kind != market.KindWrite {
		return NewExitError(ExitCommandError, fmt.Sprintf("%s is a view; use pnftm query", method))
	}
	from, err := opts.caller(true)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --from", err)
	}
	args, err := opts.callArgs()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid arguments", err)
	}

	s, err := openSession(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.close()

	if cmd.Flags().Changed("price") {
		oracle, err := s.requireOracle()
		if err != nil {
			return err
		}
		h, err := oracle.Encrypt(ctx, ir.Amount(opts.Price))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to seal price", err)
		}
		args["price"] = ir.IRString(h.String())
		opts.formatter(cmd).VerboseLog("sealed price as %s", h)
	}

	rec, err := s.engine.Execute(ctx, engine.Call{
		From:   from,
		Method: method,
		Args:   args,
		Value:  ir.Amount(opts.Value),
	})
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("%s failed", method), err)
	}
	receipts := []ReceiptView{newReceiptView(method, rec)}

	if opts.Resolve && method == "buy" && rec.OK() {
		oracle, err := s.requireOracle()
		if err != nil {
			return err
		}
		reqID, err := rec.Result.GetString("request_id")
		if err != nil {
			return WrapExitError(ExitCommandError, "buy receipt has no request id", err)
		}
		opts.formatter(cmd).VerboseLog("resolving request %s", reqID)
		cb, err := oracle.Resolve(ctx, ir.RequestID(reqID), s.engine)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to resolve request", err)
		}
		receipts = append(receipts, newReceiptView(confidential.MethodCallback, cb))
	}

	return printReceipts(opts.RootOptions, cmd, receipts)
}

func runQuery(opts *CallOptions, view string, cmd *cobra.Command) error {
	ctx := context.Background()

	from, err := opts.caller(false)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --from", err)
	}
	args, err := opts.callArgs()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid arguments", err)
	}

	s, err := openSession(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.close()

	result, err := s.engine.Query(ctx, engine.Call{From: from, Method: view, Args: args})
	if err != nil {
		return viewError(opts.RootOptions, cmd, err)
	}

	f := opts.formatter(cmd)
	if opts.Format == "json" {
		return f.Success(ir.ToGo(result))
	}
	return f.Success(render(result))
}

// viewError reports a failed view. Marketplace rejections exit 1, other
// failures exit 2.
func viewError(opts *RootOptions, cmd *cobra.Command, err error) error {
	if opts.Format == "json" && ir.IsMarketError(err) {
		if ferr := opts.formatter(cmd).Error(err); ferr != nil {
			return ferr
		}
	}
	return rejectedError("query failed", err)
}

// printReceipts prints the receipts and fails when the first one was
// rejected. A rejected oracle callback is reported but is not the
// caller's failure.
func printReceipts(opts *RootOptions, cmd *cobra.Command, receipts []ReceiptView) error {
	first := receipts[0]
	w := cmd.OutOrStdout()

	if opts.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: receipts, TraceID: first.TxID}
		if first.Status != ir.StatusOK {
			resp.Status = "error"
			resp.Error = receiptError(first)
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			return err
		}
	} else {
		for _, r := range receipts {
			writeReceipt(w, r, opts.Verbose)
		}
	}

	if first.Status != ir.StatusOK {
		return NewExitError(ExitFailure, fmt.Sprintf("%s rejected: %s", first.Method, first.Status))
	}
	return nil
}

func newReceiptView(method string, rec ir.Receipt) ReceiptView {
	v := ReceiptView{
		Seq:       rec.Seq,
		Method:    method,
		TxID:      rec.TxID,
		ReceiptID: rec.ID,
		Status:    rec.Status,
		Error:     rec.Error,
		Result:    objectMap(rec.Result),
		Events:    make([]EventView, len(rec.Events)),
	}
	for i, ev := range rec.Events {
		v.Events[i] = EventView{Name: ev.Name, Args: objectMap(ev.Args)}
	}
	return v
}

func objectMap(obj ir.IRObject) map[string]any {
	if obj == nil {
		return map[string]any{}
	}
	return ir.ToGo(obj).(map[string]any)
}

// render prints an object as canonical JSON, falling back to Go syntax.
func render(obj ir.IRObject) string {
	b, err := ir.MarshalCanonical(obj)
	if err != nil {
		return fmt.Sprintf("%v", obj)
	}
	return string(b)
}
