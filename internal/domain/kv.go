package domain

import "context"

// KV is a minimal persistent key-value string store. A missing key is
// reported through ok=false, not through an error, so callers can fall back
// to defaults without inspecting error values.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
