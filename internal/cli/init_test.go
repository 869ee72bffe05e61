package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pnftm/internal/confidential"
	"github.com/roach88/pnftm/internal/store"
)

func addr(n int) string {
	return fmt.Sprintf("0x%040x", n)
}

var (
	ownerAddr     = addr(1)
	collectorAddr = addr(2)
	oracleAddr    = addr(3)
	sellerAddr    = addr(4)
	buyerAddr     = addr(5)
)

// execCLI runs the root command against db and returns stdout.
func execCLI(t *testing.T, db string, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(append([]string{"--db", db}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// decodeResponse parses a JSON CLI response.
func decodeResponse(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}

// initMarket creates a marketplace with an oracle in a temp database.
func initMarket(t *testing.T, extra ...string) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "market.db")
	args := append([]string{"init", "--owner", ownerAddr, "--collector", collectorAddr, "--oracle", oracleAddr}, extra...)
	_, err := execCLI(t, db, args...)
	require.NoError(t, err)
	return db
}

func TestInit_CreatesMarketplace(t *testing.T) {
	db := filepath.Join(t.TempDir(), "market.db")
	out, err := execCLI(t, db, "--format", "json",
		"init", "--owner", ownerAddr, "--collector", collectorAddr, "--oracle", oracleAddr,
		"--fee-bps", "100", "--policy", "exact", "--window", "10")
	require.NoError(t, err)

	resp := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]any)
	assert.Equal(t, ownerAddr, data["owner"])
	assert.Equal(t, oracleAddr, data["oracle"])
	assert.Equal(t, float64(100), data["fee_bps"])
	assert.Equal(t, "exact", data["policy"])
	assert.Equal(t, float64(10), data["settlement_window_blocks"])

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	state, err := st.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), state.Meta.FeeBps)
	assert.EqualValues(t, "exact", state.Meta.Policy)
	assert.Equal(t, int64(10), state.Meta.Window)

	key, err := st.OracleKey(ctx)
	require.NoError(t, err)
	assert.Len(t, key, confidential.KeySize)
}

func TestInit_Twice(t *testing.T) {
	db := initMarket(t)

	_, err := execCLI(t, db, "init", "--owner", ownerAddr, "--collector", collectorAddr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already initialized")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInit_MissingOwner(t *testing.T) {
	db := filepath.Join(t.TempDir(), "market.db")

	_, err := execCLI(t, db, "init", "--collector", collectorAddr)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestInit_RejectsBadFee(t *testing.T) {
	db := filepath.Join(t.TempDir(), "market.db")

	_, err := execCLI(t, db, "init", "--owner", ownerAddr, "--collector", collectorAddr, "--fee-bps", "10001")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInit_FlagsOverrideConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "market.yaml")
	cfg := fmt.Sprintf("owner: %q\nfee_collector: %q\nfee_bps: 300\npolicy: exact\n", ownerAddr, collectorAddr)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0644))
	db := filepath.Join(dir, "market.db")

	out, err := execCLI(t, db, "--config", cfgPath, "--format", "json", "init", "--fee-bps", "50")
	require.NoError(t, err)

	data := decodeResponse(t, out).Data.(map[string]any)
	assert.Equal(t, float64(50), data["fee_bps"])
	assert.Equal(t, "exact", data["policy"])
	assert.NotContains(t, data, "oracle")
}

func TestCommandsRequireInit(t *testing.T) {
	db := filepath.Join(t.TempDir(), "empty.db")

	for _, args := range [][]string{
		{"query", "fee"},
		{"invoke", "withdraw", "--from", sellerAddr},
		{"trace"},
		{"replay"},
		{"encrypt", "5"},
	} {
		t.Run(args[0], func(t *testing.T) {
			_, err := execCLI(t, db, args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "not initialized")
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}
