// Package realtime addresses the hosted key-value tree that carries live
// bus positions and active-status flags. The store itself is an external
// service; this package only publishes, reads, and subscribes to per-bus
// paths. Values are raw JSON documents; a nil value means the path is
// absent or was deleted.
package realtime

import "context"

// Store is the push-capable key-value tree the bridge writes through.
// Subscribe registers fn for every change to path, including the value
// present at subscription time, and returns a cancel function. Cancelling
// more than once is safe. Deliveries for one subscription arrive in store
// order; there is no ordering guarantee across subscriptions.
type Store interface {
	Set(ctx context.Context, path string, value []byte) error
	Get(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
	Subscribe(path string, fn func(value []byte)) (func(), error)
}
