// Package config loads marketplace configuration from YAML or CUE files
// and validates it against an embedded CUE schema.
package config

import (
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/pnftm/internal/ir"
	"github.com/roach88/pnftm/internal/market"
	"github.com/roach88/pnftm/internal/settlement"
)

//go:embed schema.cue
var schemaCUE string

// Config is a validated marketplace configuration.
type Config struct {
	Owner        string `json:"owner"`
	FeeCollector string `json:"fee_collector"`
	Oracle       string `json:"oracle"`

	FeeBps           uint64 `json:"fee_bps"`
	Policy           string `json:"policy"`
	SettlementWindow int64  `json:"settlement_window_blocks"`

	DB  string    `json:"db"`
	Log LogConfig `json:"log"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// ConfigError is a configuration problem, with a position when the CUE
// evaluator reported one.
type ConfigError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *ConfigError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load reads a .yaml, .yml, .json or .cue file and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".cue", ".json":
		return ParseCUE(path, data)
	default:
		return nil, &ConfigError{Field: "file", Message: fmt.Sprintf("unsupported config extension %q", filepath.Ext(path))}
	}
}

// ParseYAML validates YAML configuration.
func ParseYAML(data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Field: "yaml", Message: err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	ctx := cuecontext.New()
	return validate(ctx, ctx.Encode(raw))
}

// ParseCUE validates CUE (or JSON) configuration.
func ParseCUE(filename string, data []byte) (*Config, error) {
	ctx := cuecontext.New()
	return validate(ctx, ctx.CompileBytes(data, cue.Filename(filename)))
}

// Default returns the schema defaults for the given admin addresses.
func Default(owner, collector string) (*Config, error) {
	return FromMap(map[string]any{
		"owner":         owner,
		"fee_collector": collector,
	})
}

// FromMap validates configuration assembled in code, such as from
// command-line flags. Keys follow the file format.
func FromMap(m map[string]any) (*Config, error) {
	if m == nil {
		m = map[string]any{}
	}
	ctx := cuecontext.New()
	return validate(ctx, ctx.Encode(m))
}

func validate(ctx *cue.Context, data cue.Value) (*Config, error) {
	if err := data.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(data)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return nil, formatCUEError(err)
	}
	if _, err := cfg.Admin(); err != nil {
		return nil, &ConfigError{Field: "admin", Message: err.Error()}
	}
	return &cfg, nil
}

// formatCUEError keeps the first error and its position.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	ce := &ConfigError{
		Field:   strings.Join(first.Path(), "."),
		Message: first.Error(),
	}
	if ce.Field == "" {
		ce.Field = "cue"
	}
	if pos := cueerrors.Positions(first); len(pos) > 0 {
		ce.Pos = pos[0]
	}
	return ce
}

// Admin returns the marketplace capabilities.
func (c *Config) Admin() (market.Admin, error) {
	var (
		a   market.Admin
		err error
	)
	if a.Owner, err = ir.ParseAddress(c.Owner); err != nil {
		return a, fmt.Errorf("owner: %w", err)
	}
	if a.FeeCollector, err = ir.ParseAddress(c.FeeCollector); err != nil {
		return a, fmt.Errorf("fee_collector: %w", err)
	}
	if c.Oracle != "" {
		if a.Oracle, err = ir.ParseAddress(c.Oracle); err != nil {
			return a, fmt.Errorf("oracle: %w", err)
		}
	}
	return a, a.Validate()
}

// Options returns the marketplace tunables.
func (c *Config) Options() market.Options {
	return market.Options{
		FeeBps: c.FeeBps,
		Policy: settlement.Policy(c.Policy),
		Window: c.SettlementWindow,
	}
}

// NewLogger builds the slog logger the config asks for. verbose forces
// debug level.
func (c *Config) NewLogger(w io.Writer, verbose bool) *slog.Logger {
	return NewLogger(w, c.Log.Level, c.Log.Format, verbose)
}

// NewLogger builds a text or JSON slog logger at the named level.
func NewLogger(w io.Writer, level, format string, verbose bool) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
