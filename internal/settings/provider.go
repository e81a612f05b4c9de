package settings

import "context"

// Provider is the settings capability handed to the query builder and
// mapping builder. Hold the provider and resolve on each use; values are
// not cached by consumers.
type Provider interface {
	Resolve(key string) (any, error)
	Float(key string) (float64, error)
	String(key string) (string, error)
	Strings(key string) ([]string, error)
	Branch(key string) (*NestedChainMap, error)
	RefreshLayer(ctx context.Context, layer string) error
	Snapshot() map[string]any
}

var _ Provider = (*SearchSettings)(nil)
