package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/pnftm/internal/market"
	"github.com/roach88/pnftm/internal/settlement"
)

// Scenario defines a marketplace conformance scenario: a sequence of
// transactions and oracle answers with expectations, followed by
// assertions on the emitted events and the final state.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Market overrides the construction options.
	Market MarketConfig `yaml:"market,omitempty"`

	// Accounts declares the names usable as "@name" besides the builtin
	// owner, collector and oracle.
	Accounts []string `yaml:"accounts,omitempty"`

	// Setup steps run before the flow and must all succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow contains the steps under test.
	Flow []Step `yaml:"flow"`

	// Assertions validate the events and the final state.
	// Supported types: event_contains, event_order, event_count, final_state
	Assertions []Assertion `yaml:"assertions"`
}

// MarketConfig mirrors market.Options. Zero fields keep the defaults.
type MarketConfig struct {
	FeeBps *uint64 `yaml:"fee_bps,omitempty"`
	Policy string  `yaml:"policy,omitempty"`
	Window int64   `yaml:"window,omitempty"`
}

// Options applies the overrides to market.DefaultOptions.
func (c MarketConfig) Options() market.Options {
	opts := market.DefaultOptions()
	if c.FeeBps != nil {
		opts.FeeBps = *c.FeeBps
	}
	if c.Policy != "" {
		opts.Policy = settlement.Policy(c.Policy)
	}
	if c.Window > 0 {
		opts.Window = c.Window
	}
	return opts
}

// Step is one scenario action. Exactly one of Call, Resolve, Answer and
// Advance is set.
type Step struct {
	// Call is a write method to execute as From.
	Call string `yaml:"call,omitempty"`

	// From is the calling account, "@name" or "name".
	From string `yaml:"from,omitempty"`

	// Args are the method arguments. Strings starting with "@" are
	// replaced by account addresses.
	Args map[string]any `yaml:"args,omitempty"`

	// Value is the attached payment.
	Value uint64 `yaml:"value,omitempty"`

	// Price is sealed by the oracle and passed as args.price.
	Price *uint64 `yaml:"price,omitempty"`

	// Resolve asks the oracle to evaluate a request and deliver the answer.
	Resolve string `yaml:"resolve,omitempty"`

	// Answer delivers a scripted answer without evaluation.
	Answer *Answer `yaml:"answer,omitempty"`

	// Advance skips blocks without a transaction.
	Advance int64 `yaml:"advance,omitempty"`

	// Expect checks the receipt of the step's transaction.
	// If nil, no validation is performed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// Answer is a scripted oracle callback.
type Answer struct {
	RequestID string `yaml:"request_id"`
	Satisfied bool   `yaml:"satisfied"`
}

// Step kinds.
const (
	StepCall    = "call"
	StepResolve = "resolve"
	StepAnswer  = "answer"
	StepAdvance = "advance"
)

// Kind reports which action the step performs, or "" when it sets none
// or more than one.
func (s Step) Kind() string {
	var kinds []string
	if s.Call != "" {
		kinds = append(kinds, StepCall)
	}
	if s.Resolve != "" {
		kinds = append(kinds, StepResolve)
	}
	if s.Answer != nil {
		kinds = append(kinds, StepAnswer)
	}
	if s.Advance != 0 {
		kinds = append(kinds, StepAdvance)
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// ExpectClause specifies the expected receipt.
type ExpectClause struct {
	// Status is "ok" or an error code such as "NotOwner".
	Status string `yaml:"status"`

	// Result is a subset match on the receipt result.
	Result map[string]any `yaml:"result,omitempty"`
}

// Assertion validates the event log or the final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "event_contains": an event named Event with Args (subset) was emitted
	// - "event_order": the events in Events were first emitted in this order
	// - "event_count": Event was emitted exactly Count times
	// - "final_state": the view View called with Args returns Expect (subset)
	Type string `yaml:"type"`

	Event  string         `yaml:"event,omitempty"`
	Events []string       `yaml:"events,omitempty"`
	Count  int            `yaml:"count,omitempty"`
	View   string         `yaml:"view,omitempty"`
	From   string         `yaml:"from,omitempty"`
	Args   map[string]any `yaml:"args,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertEventContains = "event_contains"
	AssertEventOrder    = "event_order"
	AssertEventCount    = "event_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.Market.Policy != "" {
		if _, err := settlement.ParsePolicy(s.Market.Policy); err != nil {
			return fmt.Errorf("market: %w", err)
		}
	}

	for i, step := range s.Setup {
		if err := validateStep(fmt.Sprintf("setup[%d]", i), step); err != nil {
			return err
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(fmt.Sprintf("flow[%d]", i), step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(where string, step Step) error {
	switch step.Kind() {
	case StepCall:
		kind, ok := market.MethodKind(step.Call)
		if !ok {
			return fmt.Errorf("%s: unknown method %q", where, step.Call)
		}
		if kind != market.KindWrite {
			return fmt.Errorf("%s: %s is a view, use a final_state assertion", where, step.Call)
		}
		if step.From == "" {
			return fmt.Errorf("%s: from is required", where)
		}
		if step.Price != nil {
			if _, ok := step.Args["price"]; ok {
				return fmt.Errorf("%s: set either price or args.price", where)
			}
		}
	case StepResolve, StepAnswer:
		if step.From != "" || step.Args != nil || step.Value != 0 || step.Price != nil {
			return fmt.Errorf("%s: oracle steps take no from, args, value or price", where)
		}
		if step.Answer != nil && step.Answer.RequestID == "" {
			return fmt.Errorf("%s: answer.request_id is required", where)
		}
	case StepAdvance:
		if step.Advance < 0 {
			return fmt.Errorf("%s: advance must be positive", where)
		}
		if step.Expect != nil {
			return fmt.Errorf("%s: advance has no receipt to expect", where)
		}
	default:
		return fmt.Errorf("%s: exactly one of call, resolve, answer or advance is required", where)
	}
	if step.Expect != nil && step.Expect.Status == "" {
		return fmt.Errorf("%s.expect: status is required", where)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertEventContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_contains", index)
		}
	case AssertEventOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for event_order", index)
		}
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertFinalState:
		kind, ok := market.MethodKind(a.View)
		if !ok || kind != market.KindView {
			return fmt.Errorf("assertions[%d]: view %q is not a view method", index, a.View)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
