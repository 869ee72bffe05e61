package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pnftm/internal/market"
	"github.com/roach88/pnftm/internal/settlement"
)

const minimalScenario = `
name: minimal
description: "Mint one token"
accounts: [alice]
flow:
  - call: mint
    from: "@alice"
    args: { to: "@alice", name: First }
    expect:
      status: ok
      result: { token_id: 1 }
assertions:
  - type: event_count
    event: Minted
    count: 1
`

func TestLoadScenario_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minimal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario), 0644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "minimal", scenario.Name)
	assert.Equal(t, []string{"alice"}, scenario.Accounts)
	require.Len(t, scenario.Flow, 1)
	assert.Equal(t, StepCall, scenario.Flow[0].Kind())
	assert.Equal(t, "ok", scenario.Flow[0].Expect.Status)
	assert.Equal(t, 1, scenario.Flow[0].Expect.Result["token_id"])
	assert.Equal(t, AssertEventCount, scenario.Assertions[0].Type)
}

func TestLoadScenario_FileNotFound(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_Testdata(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			_, err := LoadScenario(path)
			require.NoError(t, err)
		})
	}
}

func TestParseScenario_UnknownFieldRejected(t *testing.T) {
	_, err := ParseScenario([]byte(minimalScenario + "assertion: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "description: d\nflow: [{advance: 1}]\nassertions: [{type: event_count, event: Minted}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: n\nflow: [{advance: 1}]\nassertions: [{type: event_count, event: Minted}]\n",
			wantErr: "description is required",
		},
		{
			name:    "empty flow",
			yaml:    "name: n\ndescription: d\nassertions: [{type: event_count, event: Minted}]\n",
			wantErr: "flow list is required",
		},
		{
			name:    "no assertions",
			yaml:    "name: n\ndescription: d\nflow: [{advance: 1}]\n",
			wantErr: "assertions list is required",
		},
		{
			name:    "unknown policy",
			yaml:    "name: n\ndescription: d\nmarket: {policy: auction}\nflow: [{advance: 1}]\nassertions: [{type: event_count, event: Minted}]\n",
			wantErr: "market",
		},
		{
			name:    "two actions in one step",
			yaml:    "name: n\ndescription: d\nflow: [{advance: 1, resolve: req-1}]\nassertions: [{type: event_count, event: Minted}]\n",
			wantErr: "flow[0]: exactly one of",
		},
		{
			name:    "unknown method",
			yaml:    "name: n\ndescription: d\nflow: [{call: burn, from: a}]\nassertions: [{type: event_count, event: Minted}]\n",
			wantErr: `unknown method "burn"`,
		},
		{
			name:    "view as step",
			yaml:    "name: n\ndescription: d\nflow: [{call: ownerOf, from: a}]\nassertions: [{type: event_count, event: Minted}]\n",
			wantErr: "is a view",
		},
		{
			name:    "call without from",
			yaml:    "name: n\ndescription: d\nflow: [{call: withdraw}]\nassertions: [{type: event_count, event: Minted}]\n",
			wantErr: "from is required",
		},
		{
			name:    "price twice",
			yaml:    "name: n\ndescription: d\nflow: [{call: list, from: a, price: 5, args: {price: '0x01'}}]\nassertions: [{type: event_count, event: Minted}]\n",
			wantErr: "either price or args.price",
		},
		{
			name:    "oracle step with from",
			yaml:    "name: n\ndescription: d\nflow: [{resolve: req-1, from: a}]\nassertions: [{type: event_count, event: Minted}]\n",
			wantErr: "oracle steps take no",
		},
		{
			name:    "expect without status",
			yaml:    "name: n\ndescription: d\nflow: [{resolve: req-1, expect: {result: {a: 1}}}]\nassertions: [{type: event_count, event: Minted}]\n",
			wantErr: "status is required",
		},
		{
			name:    "final_state on a write",
			yaml:    "name: n\ndescription: d\nflow: [{advance: 1}]\nassertions: [{type: final_state, view: mint, expect: {a: 1}}]\n",
			wantErr: "is not a view method",
		},
		{
			name:    "unknown assertion",
			yaml:    "name: n\ndescription: d\nflow: [{advance: 1}]\nassertions: [{type: trace_contains}]\n",
			wantErr: "unknown assertion type",
		},
		{
			name:    "event_order without events",
			yaml:    "name: n\ndescription: d\nflow: [{advance: 1}]\nassertions: [{type: event_order}]\n",
			wantErr: "events list is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMarketConfig_Options(t *testing.T) {
	assert.Equal(t, market.DefaultOptions(), MarketConfig{}.Options())

	zero := uint64(0)
	opts := MarketConfig{FeeBps: &zero, Policy: "exact", Window: 7}.Options()
	assert.Equal(t, uint64(0), opts.FeeBps)
	assert.Equal(t, settlement.Policy("exact"), opts.Policy)
	assert.Equal(t, int64(7), opts.Window)
}

func TestStep_Kind(t *testing.T) {
	assert.Equal(t, StepCall, Step{Call: "mint"}.Kind())
	assert.Equal(t, StepResolve, Step{Resolve: "req-1"}.Kind())
	assert.Equal(t, StepAnswer, Step{Answer: &Answer{RequestID: "req-1"}}.Kind())
	assert.Equal(t, StepAdvance, Step{Advance: 3}.Kind())
	assert.Empty(t, Step{}.Kind())
	assert.Empty(t, Step{Call: "mint", Advance: 1}.Kind())
}
