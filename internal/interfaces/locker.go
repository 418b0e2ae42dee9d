package interfaces

import "context"

// Locker serializes work on a single payment identifier.
// Lock blocks until the key is held or ctx is done; the returned func releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
