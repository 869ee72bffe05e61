package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/pnftm/internal/ir"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Marketplace rejection, failed scenario, replay mismatch
	ExitCommandError = 2 // Bad flags, uninitialized database, infrastructure failure
)

// Codes for failures the marketplace itself does not report. JSON error
// responses carry these or a marketplace ir.Code.
const (
	CodeCommand        ir.Code = "E_COMMAND"
	CodeScenarioFailed ir.Code = "E_SCENARIO_FAILED"
	CodeReplayMismatch ir.Code = "E_REPLAY_MISMATCH"
)

// ExitError carries the process exit code of a failed command.
type ExitError struct {
	Code    int    // ExitFailure or ExitCommandError
	Message string // what the command was doing
	Err     error  // cause, optional
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// rejectedError exits 1 when err is a marketplace rejection and 2 for
// anything else.
func rejectedError(message string, err error) *ExitError {
	if ir.IsMarketError(err) {
		return WrapExitError(ExitFailure, message, err)
	}
	return WrapExitError(ExitCommandError, message, err)
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose diagnostics; defaults to Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status  string    `json:"status"`             // "ok" or "error"
	Data    any       `json:"data,omitempty"`     // success payload
	Error   *CLIError `json:"error,omitempty"`    // set when Status is "error"
	TraceID string    `json:"trace_id,omitempty"` // tx id when the command executed one
}

// CLIError describes a failure in a JSON response.
type CLIError struct {
	Code    ir.Code `json:"code"`
	Message string  `json:"message"`
	TokenID uint64  `json:"token_id,omitempty"` // token the rejection concerns
	Details any     `json:"details,omitempty"`
}

// NewCLIError describes err. Marketplace rejections keep their code and
// token; every other error is reported as E_COMMAND.
func NewCLIError(err error) *CLIError {
	e := &CLIError{Code: CodeCommand, Message: err.Error()}
	var me *ir.Error
	if errors.As(err, &me) {
		e.Code = me.Code
		e.TokenID = uint64(me.TokenID)
	}
	return e
}

// receiptError describes a rejected receipt. The receipt status is the
// marketplace code.
func receiptError(r ReceiptView) *CLIError {
	return &CLIError{Code: ir.Code(r.Status), Message: r.Error}
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs err in the configured format.
func (f *OutputFormatter) Error(err error) error {
	ce := NewCLIError(err)
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  ce,
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", ce.Code, ce.Message)
	if f.Verbose && ce.TokenID != 0 {
		fmt.Fprintf(f.Writer, "Token: %d\n", ce.TokenID)
	}
	return nil
}

// VerboseLog writes a diagnostic line in verbose mode. It goes to
// ErrWriter when set so JSON on Writer stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}
