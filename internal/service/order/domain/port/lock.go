package port

import (
	"context"

	"github.com/pkg/errors"
)

var ErrLockTimeout = errors.New("timed out waiting for lock")

// Locker serializes work on one resource across instances.
type Locker interface {
	// Lock blocks until the resource is held or ctx ends. The returned func releases it.
	Lock(ctx context.Context, resource string) (unlock func() error, err error)
}
