package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/pnftm/internal/confidential"
	"github.com/roach88/pnftm/internal/engine"
	"github.com/roach88/pnftm/internal/ir"
	"github.com/roach88/pnftm/internal/settlement"
	"github.com/roach88/pnftm/internal/store"
)

// errNoOracle is returned by buy when the marketplace has no oracle
// address or the database holds no sealing key.
var errNoOracle = errors.New("no comparison oracle configured (set an oracle at init or call setOracle)")

// session is one command's view of an initialized marketplace: the store,
// a running engine and, when configured, the local oracle.
type session struct {
	store  *store.Store
	engine *engine.Engine
	oracle *confidential.LocalOracle
	cancel context.CancelFunc
	done   chan struct{}
}

// offlineComparator rejects every comparison request. Buys fail before
// anything is logged.
var offlineComparator = settlement.ComparatorFunc(
	func(context.Context, ir.Handle, ir.Amount, settlement.Policy) (ir.RequestID, error) {
		return "", errNoOracle
	})

// openStore opens the database and checks that init has run.
func openStore(ctx context.Context, opts *RootOptions) (*store.Store, error) {
	path := opts.DatabasePath()
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	ok, err := st.Initialized(ctx)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to read database", err)
	}
	if !ok {
		st.Close()
		return nil, NewExitError(ExitCommandError,
			fmt.Sprintf("marketplace not initialized in %s (run pnftm init)", path))
	}
	return st, nil
}

// openSession opens the store and starts the engine loop.
func openSession(ctx context.Context, opts *RootOptions) (*session, error) {
	st, err := openStore(ctx, opts)
	if err != nil {
		return nil, err
	}

	oracle, err := loadOracle(ctx, st)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to load oracle", err)
	}
	var cmp settlement.Comparator = offlineComparator
	if oracle != nil {
		cmp = oracle
	}

	eng, err := engine.New(ctx, st, cmp)
	if err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to start engine", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &session{
		store:  st,
		engine: eng,
		oracle: oracle,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		_ = eng.Run(runCtx)
	}()
	return s, nil
}

// loadOracle builds the local oracle from the current oracle address and
// the persisted key. Returns nil when either is missing.
func loadOracle(ctx context.Context, st *store.Store) (*confidential.LocalOracle, error) {
	state, err := st.LoadState(ctx)
	if err != nil {
		return nil, err
	}
	if state.Meta.Oracle.IsZero() {
		return nil, nil
	}
	key, err := st.OracleKey(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return confidential.NewLocalOracle(state.Meta.Oracle, key, st.OracleBook(), engine.UUIDv7Generator{})
}

// requireOracle returns the session's oracle or a command error.
func (s *session) requireOracle() (*confidential.LocalOracle, error) {
	if s.oracle == nil {
		return nil, WrapExitError(ExitCommandError, "oracle unavailable", errNoOracle)
	}
	return s.oracle, nil
}

// close stops the engine, waits for the loop and closes the store.
func (s *session) close() {
	s.engine.Stop()
	<-s.done
	s.cancel()
	s.store.Close()
}
