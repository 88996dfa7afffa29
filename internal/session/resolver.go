package session

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when the configured strategy requires a session
// and none can be resolved. The caller answers 404; the scan is not recorded.
var ErrNotFound = errors.New("active session not found")

// Strategy selects how a scan is attributed to a session. Exactly one is
// configured at boot; readers are installed with a session code under the
// explicit strategy, the fallback strategies exist for deployments that
// cannot push per-session config to hardware.
type Strategy string

const (
	// StrategyExplicit requires a session_code matching an active session.
	StrategyExplicit Strategy = "explicit"
	// StrategyActiveFallback tries the code first, then the newest active session.
	StrategyActiveFallback Strategy = "active_fallback"
	// StrategyMostRecent additionally falls back to the newest session of any
	// state, and resolves to no session at all when none exist.
	StrategyMostRecent Strategy = "most_recent"
)

// ParseStrategy validates a configured strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyExplicit, StrategyActiveFallback, StrategyMostRecent:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown session strategy %q", s)
}

// Store is the persistence surface the resolver needs.
type Store interface {
	ActiveByCode(ctx context.Context, code string) (*Session, error)
	LatestActive(ctx context.Context) (*Session, error)
	Latest(ctx context.Context) (*Session, error)
}

// Resolver attributes scans to sessions under a fixed strategy.
type Resolver struct {
	store    Store
	strategy Strategy
}

// NewResolver creates a resolver with the configured strategy.
func NewResolver(store Store, strategy Strategy) *Resolver {
	return &Resolver{store: store, strategy: strategy}
}

// Resolve maps an optional session-code hint to a session. A nil session
// with nil error means the strategy allows recording without one.
func (r *Resolver) Resolve(ctx context.Context, hint string) (*Session, error) {
	if hint != "" {
		sess, err := r.store.ActiveByCode(ctx, hint)
		if err != nil {
			return nil, err
		}
		if sess != nil {
			return sess, nil
		}
	}
	if r.strategy == StrategyExplicit {
		return nil, ErrNotFound
	}

	sess, err := r.store.LatestActive(ctx)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		return sess, nil
	}
	if r.strategy == StrategyActiveFallback {
		return nil, ErrNotFound
	}

	// most_recent: any session beats none, none is still acceptable.
	return r.store.Latest(ctx)
}
