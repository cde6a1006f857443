package adapter

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"nexus-settlement/internal/service/order/domain/port"
	"nexus-settlement/internal/zookeeper"
)

// ZKLocker implements port.Locker with the ZooKeeper lock recipe.
type ZKLocker struct {
	conn *zookeeper.Conn
	root string
}

func NewZKLocker(conn *zookeeper.Conn, root string) *ZKLocker {
	return &ZKLocker{conn: conn, root: root}
}

func (l *ZKLocker) Lock(ctx context.Context, resource string) (func() error, error) {
	lock, err := zookeeper.NewDistributedLock(l.conn, l.root, resource)
	if err != nil {
		return nil, errors.Wrapf(err, "prepare lock %s", resource)
	}
	if err := lock.Lock(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrapf(port.ErrLockTimeout, "%s: %v", resource, err)
		}
		return nil, errors.Wrapf(err, "acquire lock %s", resource)
	}
	return lock.Unlock, nil
}

// MemoryLocker implements port.Locker within one process.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{slots: map[string]chan struct{}{}}
}

func (l *MemoryLocker) slot(resource string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[resource]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[resource] = ch
	}
	return ch
}

func (l *MemoryLocker) Lock(ctx context.Context, resource string) (func() error, error) {
	ch := l.slot(resource)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, errors.Wrapf(port.ErrLockTimeout, "%s: %v", resource, ctx.Err())
	}
	var once sync.Once
	return func() error {
		once.Do(func() { <-ch })
		return nil
	}, nil
}
