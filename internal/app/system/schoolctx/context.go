package schoolctx

import (
	"context"
	"errors"
)

// ErrNoProvider means FromContext was called on a context that no
// provider was mounted on.
var ErrNoProvider = errors.New("schoolctx: no school context provider mounted; wrap the handler with schoolctx.Middleware or call Provider.Mount")

type contextKey struct{}

func stateFrom(ctx context.Context) (*state, bool) {
	st, ok := ctx.Value(contextKey{}).(*state)
	return st, ok && st != nil
}

// FromContext returns the current school context value.
func FromContext(ctx context.Context) (*Value, error) {
	st, ok := stateFrom(ctx)
	if !ok {
		return nil, ErrNoProvider
	}
	return st.snapshot(), nil
}

// MustFromContext is FromContext for code that cannot run without a
// provider. It panics with ErrNoProvider.
func MustFromContext(ctx context.Context) *Value {
	v, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return v
}
