package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pnftm/internal/ir"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]int{"token_id": 1}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"token_id": float64(1)}, resp.Data)
	assert.Empty(t, resp.TraceID)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  ir.Code
		wantToken uint64
	}{
		{"marketplace rejection", ir.Errorf(ir.CodeNotOwner, 7, "caller is not the owner"), ir.CodeNotOwner, 7},
		{"wrapped rejection", fmt.Errorf("list: %w", ir.Errorf(ir.CodePaused, 0, "marketplace is paused")), ir.CodePaused, 0},
		{"infrastructure failure", errors.New("database is locked"), CodeCommand, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "json", Writer: buf}
			require.NoError(t, formatter.Error(tt.err))

			var resp CLIResponse
			require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, tt.wantToken, resp.Error.TokenID)
			assert.Equal(t, tt.err.Error(), resp.Error.Message)
		})
	}
}

func TestOutputFormatter_TextError(t *testing.T) {
	tests := []struct {
		name      string
		verbose   bool
		wantToken bool
	}{
		{"quiet", false, false},
		{"verbose", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}

			require.NoError(t, formatter.Error(ir.Errorf(ir.CodeAlreadyListed, 4, "token is listed")))
			assert.Contains(t, buf.String(), "Error [AlreadyListed]: AlreadyListed: token is listed (token=4)")
			if tt.wantToken {
				assert.Contains(t, buf.String(), "Token: 4")
			} else {
				assert.NotContains(t, buf.String(), "Token:")
			}
		})
	}
}

func TestReceiptError(t *testing.T) {
	ce := receiptError(ReceiptView{Status: string(ir.CodeNotListed), Error: "NotListed: no active listing (token=1)"})
	assert.Equal(t, ir.CodeNotListed, ce.Code)
	assert.Equal(t, "NotListed: no active listing (token=1)", ce.Message)
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			errOut := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    out,
				ErrWriter: errOut,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("opening %s", "pnftm.db")

			assert.Empty(t, out.String(), "verbose logs never corrupt stdout")
			if tt.wantLog {
				assert.Contains(t, errOut.String(), "opening pnftm.db")
			} else {
				assert.Empty(t, errOut.String())
			}
		})
	}
}

func TestExitError(t *testing.T) {
	base := errors.New("disk full")
	err := WrapExitError(ExitCommandError, "failed to open database", base)

	assert.Equal(t, "failed to open database: disk full", err.Error())
	assert.ErrorIs(t, err, base)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", err)))

	assert.Equal(t, "rejected", NewExitError(ExitFailure, "rejected").Error())
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
}

func TestRejectedError(t *testing.T) {
	rejected := rejectedError("query failed", ir.Errorf(ir.CodeUnknownToken, 9, "token was never minted"))
	assert.Equal(t, ExitFailure, GetExitCode(rejected))
	assert.ErrorIs(t, rejected, ir.ErrUnknownToken)

	broken := rejectedError("query failed", errors.New("engine stopped"))
	assert.Equal(t, ExitCommandError, GetExitCode(broken))
}
