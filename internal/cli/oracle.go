package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/pnftm/internal/confidential"
	"github.com/roach88/pnftm/internal/engine"
	"github.com/roach88/pnftm/internal/ir"
)

// RequestView is an oracle request as printed by the CLI, with the
// settlement waiting on it when there is one.
type RequestView struct {
	ID        string `json:"id"`
	Payment   uint64 `json:"payment"`
	Policy    string `json:"policy"`
	Status    string `json:"status"`
	TokenID   uint64 `json:"token_id,omitempty"`
	Buyer     string `json:"buyer,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}

// NewEncryptCommand creates the encrypt command.
func NewEncryptCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt <amount>",
		Short: "Seal a price and print its handle",
		Long: `Seal a plaintext price with the local oracle's key and print the
ciphertext handle, for use as the price argument of list.

Example:
  pnftm invoke list --from 0x...04 --arg token_id=1 --arg price=$(pnftm encrypt 100)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEncrypt(rootOpts, args[0], cmd)
		},
	}
}

func runEncrypt(opts *RootOptions, raw string, cmd *cobra.Command) error {
	ctx := context.Background()

	amount, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid amount", err)
	}

	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.close()

	oracle, err := s.requireOracle()
	if err != nil {
		return err
	}
	h, err := oracle.Encrypt(ctx, ir.Amount(amount))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to seal price", err)
	}

	f := opts.formatter(cmd)
	if opts.Format == "json" {
		return f.Success(map[string]string{"handle": h.String()})
	}
	return f.Success(h.String())
}

// NewOracleCommand creates the oracle command group.
func NewOracleCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oracle",
		Short: "Operate the local comparison oracle",
		Long: `Operate the local comparison oracle.

A buy leaves a comparison request open until the oracle answers it. The
oracle decrypts the listed price, applies the marketplace's policy to the
escrowed payment and calls onComparisonResult as the oracle address.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newOracleRequestsCommand(rootOpts))
	cmd.AddCommand(newOracleResolveCommand(rootOpts))
	cmd.AddCommand(newOracleDecryptCommand(rootOpts))

	return cmd
}

func newOracleRequestsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "requests",
		Short:         "List open comparison requests",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			s, err := openSession(ctx, opts)
			if err != nil {
				return err
			}
			defer s.close()

			open, err := s.store.OracleBook().OpenRequests(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list requests", err)
			}
			views := make([]RequestView, len(open))
			for i, r := range open {
				if views[i], err = newRequestView(ctx, s.engine, r); err != nil {
					return WrapExitError(ExitCommandError, "failed to look up settlement", err)
				}
			}

			if opts.Format == "json" {
				return opts.formatter(cmd).Success(views)
			}
			w := cmd.OutOrStdout()
			if len(views) == 0 {
				fmt.Fprintln(w, "No open requests.")
				return nil
			}
			for _, v := range views {
				fmt.Fprintf(w, "%s  payment=%d policy=%s", v.ID, v.Payment, v.Policy)
				if v.TokenID == 0 {
					fmt.Fprintln(w, "  (no pending settlement)")
					continue
				}
				fmt.Fprintf(w, "  token=%d buyer=%s expires=%d\n", v.TokenID, truncateID(v.Buyer), v.ExpiresAt)
			}
			return nil
		},
	}
}

// newRequestView joins r with the settlement that waits on it. A request
// without one is still listed; resolving it is rejected as UnknownRequest.
func newRequestView(ctx context.Context, q viewQuerier, r confidential.Request) (RequestView, error) {
	v := RequestView{
		ID:      string(r.ID),
		Payment: uint64(r.Payment),
		Policy:  string(r.Policy),
		Status:  r.Status,
	}
	p, err := q.Query(ctx, engine.Call{
		Method: "getPendingSettlement",
		Args:   ir.IRObject{"request_id": ir.IRString(r.ID)},
	})
	if errors.Is(err, ir.ErrUnknownRequest) {
		return v, nil
	}
	if err != nil {
		return v, err
	}
	id, err := p.GetToken("token_id")
	if err != nil {
		return v, err
	}
	buyer, err := p.GetString("buyer")
	if err != nil {
		return v, err
	}
	expires, err := p.GetUint("expires_at")
	if err != nil {
		return v, err
	}
	v.TokenID = uint64(id)
	v.Buyer = buyer
	v.ExpiresAt = int64(expires)
	return v, nil
}

type resolveOptions struct {
	*RootOptions
	All bool
}

func newOracleResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &resolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve [request-id]",
		Short: "Answer comparison requests",
		Long: `Evaluate a comparison request and submit the callback.

With --all, every open request is answered in the order it was made.

Examples:
  pnftm oracle resolve 01920c4e-...
  pnftm oracle resolve --all`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.All == (len(args) == 1) {
				return NewExitError(ExitCommandError, "pass a request id or --all")
			}
			return runResolve(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "resolve every open request")

	return cmd
}

func runResolve(opts *resolveOptions, args []string, cmd *cobra.Command) error {
	ctx := context.Background()

	s, err := openSession(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.close()

	oracle, err := s.requireOracle()
	if err != nil {
		return err
	}

	var recs []ir.Receipt
	if opts.All {
		recs, err = oracle.ResolveAll(ctx, s.engine)
	} else {
		var rec ir.Receipt
		rec, err = oracle.Resolve(ctx, ir.RequestID(args[0]), s.engine)
		if err == nil {
			recs = []ir.Receipt{rec}
		}
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to resolve", err)
	}

	if len(recs) == 0 {
		if opts.Format == "json" {
			return opts.formatter(cmd).Success([]ReceiptView{})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No open requests.")
		return nil
	}
	views := make([]ReceiptView, len(recs))
	for i, rec := range recs {
		views[i] = newReceiptView(confidential.MethodCallback, rec)
	}
	return printReceipts(opts.RootOptions, cmd, views)
}

// viewQuerier runs marketplace views.
type viewQuerier interface {
	Query(ctx context.Context, c engine.Call) (ir.IRObject, error)
}

// revealPrice decrypts the listed price of id for viewer. The
// authorizeDecrypt view runs first; dec is never asked for a price the
// viewer may not see.
func revealPrice(ctx context.Context, q viewQuerier, dec confidential.Decryptor, id ir.TokenID, viewer ir.Address) (ir.Amount, error) {
	res, err := q.Query(ctx, engine.Call{
		From:   viewer,
		Method: "authorizeDecrypt",
		Args:   ir.IRObject{"token_id": ir.TokenValue(id)},
	})
	if err != nil {
		return 0, err
	}
	h, err := res.GetHandle("handle")
	if err != nil {
		return 0, fmt.Errorf("authorizeDecrypt returned no handle: %w", err)
	}
	return dec.Decrypt(ctx, h)
}

type decryptOptions struct {
	*RootOptions
	Token uint64
	As    string
}

func newOracleDecryptCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &decryptOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "decrypt",
		Short: "Reveal a listed price to an authorized viewer",
		Long: `Reveal the encrypted price of a listed token.

The marketplace's authorizeDecrypt view decides whether --as may see the
price. The seller and any grantee named at listing time are allowed.

Example:
  pnftm oracle decrypt --token 1 --as 0x...04`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecrypt(opts, cmd)
		},
	}

	cmd.Flags().Uint64Var(&opts.Token, "token", 0, "token id")
	cmd.Flags().StringVar(&opts.As, "as", "", "viewer address")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("as")

	return cmd
}

func runDecrypt(opts *decryptOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	viewer, err := ir.ParseAddress(opts.As)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --as", err)
	}

	s, err := openSession(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer s.close()

	oracle, err := s.requireOracle()
	if err != nil {
		return err
	}
	price, err := revealPrice(ctx, s.engine, oracle, ir.TokenID(opts.Token), viewer)
	if ir.IsMarketError(err) {
		return viewError(opts.RootOptions, cmd, err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to decrypt", err)
	}

	f := opts.formatter(cmd)
	if opts.Format == "json" {
		return f.Success(map[string]uint64{"token_id": opts.Token, "price": uint64(price)})
	}
	return f.Success(strconv.FormatUint(uint64(price), 10))
}
