package harness

import (
	"github.com/roach88/pnftm/internal/ir"
)

// TraceEvent is one executed transaction as the scenario saw it.
//
// Addresses are rendered as "@name" aliases and sealed prices as
// "sealed:<amount>", so a trace does not depend on account layout or
// ciphertext nonces.
type TraceEvent struct {
	Seq    int64       `json:"seq"`
	Method string      `json:"method"`
	From   string      `json:"from"`
	Args   ir.IRObject `json:"args"`
	Value  ir.Amount   `json:"value,omitempty"`
	Status string      `json:"status"`
	Error  string      `json:"error,omitempty"`
	Result ir.IRObject `json:"result"`
	Events []ir.Event  `json:"events"`
}

func (e TraceEvent) toIR() ir.IRObject {
	evs := make(ir.IRArray, len(e.Events))
	for i, ev := range e.Events {
		evs[i] = ir.IRObject{"name": ir.IRString(ev.Name), "args": nonNil(ev.Args)}
	}
	obj := ir.IRObject{
		"seq":    ir.IRInt(e.Seq),
		"method": ir.IRString(e.Method),
		"from":   ir.IRString(e.From),
		"args":   nonNil(e.Args),
		"status": ir.IRString(e.Status),
		"result": nonNil(e.Result),
		"events": evs,
	}
	if e.Value > 0 {
		obj["value"] = ir.AmountValue(e.Value)
	}
	return obj
}

func nonNil(obj ir.IRObject) ir.IRObject {
	if obj == nil {
		return ir.IRObject{}
	}
	return obj
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation, assertion and the closing
	// replay check held.
	Pass bool `json:"pass"`

	// Trace holds every executed transaction in block order, setup
	// included.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// StateHash fingerprints the final marketplace state.
	StateHash string `json:"state_hash,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Events flattens the events of the trace in emission order.
func (r *Result) Events() []ir.Event {
	var out []ir.Event
	for _, te := range r.Trace {
		out = append(out, te.Events...)
	}
	return out
}
