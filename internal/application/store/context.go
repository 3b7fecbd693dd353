package store

import "context"

type ctxKey struct{}

// WithContext attaches s to ctx for handlers further down the call chain.
func WithContext(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the store attached by WithContext. It panics when
// there is none: the caller was wired without a store.
func FromContext(ctx context.Context) *Store {
	s, _ := ctx.Value(ctxKey{}).(*Store)
	s.mustBeReady()
	return s
}
