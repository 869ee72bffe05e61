package market

import (
	"slices"

	"github.com/roach88/pnftm/internal/ir"
	"github.com/roach88/pnftm/internal/settlement"
)

// Kind separates state-changing methods from read-only views.
type Kind int

const (
	KindWrite Kind = iota + 1
	KindView
)

type method struct {
	kind    Kind
	payable bool
	call    func(m *Market, env Env, args ir.IRObject) (ir.IRObject, error)
}

var methods = map[string]method{
	// writes
	"mint":                     {kind: KindWrite, call: (*Market).dispatchMint},
	"list":                     {kind: KindWrite, call: (*Market).dispatchList},
	"buy":                      {kind: KindWrite, payable: true, call: (*Market).dispatchBuy},
	"cancel":                   {kind: KindWrite, call: tokenWrite((*Market).Cancel)},
	"onComparisonResult":       {kind: KindWrite, call: (*Market).dispatchResult},
	"reclaimExpiredSettlement": {kind: KindWrite, call: tokenWrite((*Market).ReclaimExpiredSettlement)},
	"transfer":                 {kind: KindWrite, call: (*Market).dispatchTransfer},
	"withdraw":                 {kind: KindWrite, call: (*Market).dispatchWithdraw},
	"setFee":                   {kind: KindWrite, call: (*Market).dispatchSetFee},
	"setFeeCollector":          {kind: KindWrite, call: addressWrite("collector", (*Market).SetFeeCollector)},
	"setOracle":                {kind: KindWrite, call: addressWrite("oracle", (*Market).SetOracle)},
	"transferMarketOwnership":  {kind: KindWrite, call: addressWrite("owner", (*Market).TransferMarketOwnership)},
	"pause":                    {kind: KindWrite, call: plainWrite((*Market).Pause)},
	"unpause":                  {kind: KindWrite, call: plainWrite((*Market).Unpause)},

	// views
	"getName":              {kind: KindView, call: (*Market).viewName},
	"getCurrentTokenId":    {kind: KindView, call: (*Market).viewCurrentTokenID},
	"getEncryptedPrice":    {kind: KindView, call: (*Market).viewEncryptedPrice},
	"fee":                  {kind: KindView, call: (*Market).viewFee},
	"feeCollector":         {kind: KindView, call: (*Market).viewFeeCollector},
	"owner":                {kind: KindView, call: (*Market).viewOwner},
	"oracle":               {kind: KindView, call: (*Market).viewOracle},
	"paused":               {kind: KindView, call: (*Market).viewPaused},
	"ownerOf":              {kind: KindView, call: (*Market).viewOwnerOf},
	"balanceOf":            {kind: KindView, call: (*Market).viewBalanceOf},
	"getListing":           {kind: KindView, call: (*Market).viewListing},
	"getListedNFTs":        {kind: KindView, call: (*Market).viewListedNFTs},
	"getMarketplaceStats":  {kind: KindView, call: (*Market).viewStats},
	"getPendingSettlement": {kind: KindView, call: (*Market).viewPending},
	"creditsOf":            {kind: KindView, call: (*Market).viewCredits},
	"authorizeDecrypt":     {kind: KindView, call: (*Market).viewAuthorizeDecrypt},
}

// MethodKind reports whether name is a write or a view. ok is false for
// unknown methods.
func MethodKind(name string) (kind Kind, ok bool) {
	m, ok := methods[name]
	return m.kind, ok
}

// Methods returns every external method name of the given kind, sorted.
func Methods(kind Kind) []string {
	var out []string
	for name, m := range methods {
		if m.kind == kind {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// Dispatch runs an external method by name. On success it returns the
// method's result and the events it emitted; on failure nothing changed
// and no events are returned.
func (m *Market) Dispatch(env Env, name string, args ir.IRObject) (ir.IRObject, []ir.Event, error) {
	meth, ok := methods[name]
	if !ok {
		return nil, nil, ir.Errorf(ir.CodeUnknownMethod, 0, "unknown method %q", name)
	}
	if env.Value > 0 && !meth.payable {
		return nil, nil, ir.Errorf(ir.CodeInvalidArgs, 0, "method %s does not accept payment", name)
	}
	if args == nil {
		args = ir.IRObject{}
	}

	m.events = nil
	result, err := meth.call(m, env, args)
	if err != nil {
		m.events = nil
		return nil, nil, err
	}
	if result == nil {
		result = ir.IRObject{}
	}
	return result, m.TakeEvents(), nil
}

func tokenWrite(fn func(*Market, Env, ir.TokenID) error) func(*Market, Env, ir.IRObject) (ir.IRObject, error) {
	return func(m *Market, env Env, args ir.IRObject) (ir.IRObject, error) {
		id, err := args.GetToken("token_id")
		if err != nil {
			return nil, err
		}
		return nil, fn(m, env, id)
	}
}

func addressWrite(key string, fn func(*Market, Env, ir.Address) error) func(*Market, Env, ir.IRObject) (ir.IRObject, error) {
	return func(m *Market, env Env, args ir.IRObject) (ir.IRObject, error) {
		addr, err := args.GetAddress(key)
		if err != nil {
			return nil, err
		}
		return nil, fn(m, env, addr)
	}
}

func plainWrite(fn func(*Market, Env) error) func(*Market, Env, ir.IRObject) (ir.IRObject, error) {
	return func(m *Market, env Env, _ ir.IRObject) (ir.IRObject, error) {
		return nil, fn(m, env)
	}
}

func (m *Market) dispatchMint(env Env, args ir.IRObject) (ir.IRObject, error) {
	to, err := args.GetAddress("to")
	if err != nil {
		return nil, err
	}
	name, err := args.GetString("name")
	if err != nil {
		return nil, err
	}
	id, err := m.Mint(env, to, name)
	if err != nil {
		return nil, err
	}
	return ir.IRObject{"token_id": ir.TokenValue(id)}, nil
}

func (m *Market) dispatchList(env Env, args ir.IRObject) (ir.IRObject, error) {
	id, err := args.GetToken("token_id")
	if err != nil {
		return nil, err
	}
	price, err := args.GetHandle("price")
	if err != nil {
		return nil, err
	}
	var grantees []ir.Address
	if raw, ok := args["grantees"]; ok {
		arr, ok := raw.(ir.IRArray)
		if !ok {
			return nil, ir.Errorf(ir.CodeInvalidArgs, id, "argument \"grantees\": want array, got %T", raw)
		}
		for i, v := range arr {
			s, ok := v.(ir.IRString)
			if !ok {
				return nil, ir.Errorf(ir.CodeInvalidArgs, id, "grantees[%d]: want address", i)
			}
			a, err := ir.ParseAddress(string(s))
			if err != nil {
				return nil, ir.Errorf(ir.CodeInvalidArgs, id, "grantees[%d]: %v", i, err)
			}
			grantees = append(grantees, a)
		}
	}
	return nil, m.List(env, id, price, grantees...)
}

func (m *Market) dispatchBuy(env Env, args ir.IRObject) (ir.IRObject, error) {
	id, err := args.GetToken("token_id")
	if err != nil {
		return nil, err
	}
	reqID, err := m.Buy(env, id)
	if err != nil {
		return nil, err
	}
	return ir.IRObject{"request_id": ir.IRString(reqID)}, nil
}

func (m *Market) dispatchResult(env Env, args ir.IRObject) (ir.IRObject, error) {
	reqID, err := args.GetString("request_id")
	if err != nil {
		return nil, err
	}
	satisfied, err := args.GetBool("satisfied")
	if err != nil {
		return nil, err
	}
	return nil, m.OnComparisonResult(env, ir.RequestID(reqID), satisfied)
}

func (m *Market) dispatchTransfer(env Env, args ir.IRObject) (ir.IRObject, error) {
	id, err := args.GetToken("token_id")
	if err != nil {
		return nil, err
	}
	to, err := args.GetAddress("to")
	if err != nil {
		return nil, err
	}
	return nil, m.Transfer(env, id, to)
}

func (m *Market) dispatchWithdraw(env Env, _ ir.IRObject) (ir.IRObject, error) {
	amount, err := m.Withdraw(env)
	if err != nil {
		return nil, err
	}
	return ir.IRObject{"amount": ir.AmountValue(amount)}, nil
}

func (m *Market) dispatchSetFee(env Env, args ir.IRObject) (ir.IRObject, error) {
	bps, err := args.GetUint("bps")
	if err != nil {
		return nil, err
	}
	return nil, m.SetFee(env, bps)
}

func (m *Market) viewName(_ Env, args ir.IRObject) (ir.IRObject, error) {
	id, err := args.GetToken("token_id")
	if err != nil {
		return nil, err
	}
	name, err := m.Name(id)
	if err != nil {
		return nil, err
	}
	return ir.IRObject{"name": ir.IRString(name)}, nil
}

func (m *Market) viewCurrentTokenID(_ Env, _ ir.IRObject) (ir.IRObject, error) {
	return ir.IRObject{"token_id": ir.TokenValue(m.CurrentTokenID())}, nil
}

func (m *Market) viewEncryptedPrice(_ Env, args ir.IRObject) (ir.IRObject, error) {
	id, err := args.GetToken("token_id")
	if err != nil {
		return nil, err
	}
	h, err := m.EncryptedPrice(id)
	if err != nil {
		return nil, err
	}
	return ir.IRObject{"handle": ir.IRString(h.String())}, nil
}

func (m *Market) viewFee(_ Env, _ ir.IRObject) (ir.IRObject, error) {
	return ir.IRObject{"bps": ir.AmountValue(ir.Amount(m.Fee()))}, nil
}

func (m *Market) viewFeeCollector(_ Env, _ ir.IRObject) (ir.IRObject, error) {
	return ir.IRObject{"address": ir.IRString(m.FeeCollector())}, nil
}

func (m *Market) viewOwner(_ Env, _ ir.IRObject) (ir.IRObject, error) {
	return ir.IRObject{"address": ir.IRString(m.Owner())}, nil
}

func (m *Market) viewOracle(_ Env, _ ir.IRObject) (ir.IRObject, error) {
	return ir.IRObject{"address": ir.IRString(m.Oracle())}, nil
}

func (m *Market) viewPaused(_ Env, _ ir.IRObject) (ir.IRObject, error) {
	return ir.IRObject{"paused": ir.IRBool(m.Paused())}, nil
}

func (m *Market) viewOwnerOf(_ Env, args ir.IRObject) (ir.IRObject, error) {
	id, err := args.GetToken("token_id")
	if err != nil {
		return nil, err
	}
	owner, err := m.OwnerOf(id)
	if err != nil {
		return nil, err
	}
	return ir.IRObject{"owner": ir.IRString(owner)}, nil
}

func (m *Market) viewBalanceOf(_ Env, args ir.IRObject) (ir.IRObject, error) {
	addr, err := args.GetAddress("owner")
	if err != nil {
		return nil, err
	}
	n, err := m.BalanceOf(addr)
	if err != nil {
		return nil, err
	}
	return ir.IRObject{"balance": ir.AmountValue(ir.Amount(n))}, nil
}

func (m *Market) viewListing(_ Env, args ir.IRObject) (ir.IRObject, error) {
	id, err := args.GetToken("token_id")
	if err != nil {
		return nil, err
	}
	l, err := m.Listing(id)
	if err != nil {
		return nil, err
	}
	return listingIR(l), nil
}

func (m *Market) viewListedNFTs(_ Env, _ ir.IRObject) (ir.IRObject, error) {
	ids := m.ListedNFTs()
	arr := make(ir.IRArray, len(ids))
	for i, id := range ids {
		arr[i] = ir.TokenValue(id)
	}
	return ir.IRObject{"token_ids": arr}, nil
}

func (m *Market) viewStats(_ Env, _ ir.IRObject) (ir.IRObject, error) {
	s := m.Stats()
	return ir.IRObject{
		"total_tokens":    ir.AmountValue(ir.Amount(s.TotalTokens)),
		"active_listings": ir.AmountValue(ir.Amount(s.ActiveListings)),
		"total_volume":    ir.AmountValue(s.TotalVolume),
		"total_sales":     ir.AmountValue(ir.Amount(s.TotalSales)),
	}, nil
}

// viewPending looks a settlement up by token_id or, for the oracle side,
// by request_id.
func (m *Market) viewPending(_ Env, args ir.IRObject) (ir.IRObject, error) {
	if _, ok := args["request_id"]; ok {
		reqID, err := args.GetString("request_id")
		if err != nil {
			return nil, err
		}
		p, ok := m.PendingByRequest(ir.RequestID(reqID))
		if !ok {
			return nil, ir.Errorf(ir.CodeUnknownRequest, 0, "request %s is unknown or already resolved", reqID)
		}
		return pendingIR(p), nil
	}
	id, err := args.GetToken("token_id")
	if err != nil {
		return nil, err
	}
	if !m.tokens.Exists(id) {
		return nil, ir.Errorf(ir.CodeUnknownToken, id, "token was never minted")
	}
	p, ok := m.PendingSettlement(id)
	if !ok {
		return ir.IRObject{"token_id": ir.TokenValue(id), "state": ir.IRString(settlement.StateIdle)}, nil
	}
	return pendingIR(p), nil
}

func (m *Market) viewCredits(_ Env, args ir.IRObject) (ir.IRObject, error) {
	addr, err := args.GetAddress("account")
	if err != nil {
		return nil, err
	}
	return ir.IRObject{"amount": ir.AmountValue(m.CreditsOf(addr))}, nil
}

func (m *Market) viewAuthorizeDecrypt(env Env, args ir.IRObject) (ir.IRObject, error) {
	id, err := args.GetToken("token_id")
	if err != nil {
		return nil, err
	}
	viewer := env.Caller
	if _, ok := args["viewer"]; ok {
		if viewer, err = args.GetAddress("viewer"); err != nil {
			return nil, err
		}
	}
	h, err := m.AuthorizeDecrypt(id, viewer)
	if err != nil {
		return nil, err
	}
	return ir.IRObject{"handle": ir.IRString(h.String())}, nil
}
