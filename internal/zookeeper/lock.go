// internal/zookeeper/lock.go
package zookeeper

import (
	"context"
	"sort"
	"strings"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
)

const DefaultLockRoot = "/distributed_locks"

var ErrNotLocked = errors.New("no lock to unlock")

// DistributedLock is the ZooKeeper lock recipe: each contender creates an
// ephemeral sequential node and waits for the node just before its own to go away.
type DistributedLock struct {
	conn     *Conn
	path     string // e.g. /distributed_locks/return-123
	lockNode string // our node once created
}

// NewDistributedLock prepares a lock on root/resourceID.
func NewDistributedLock(conn *Conn, root, resourceID string) (*DistributedLock, error) {
	if root == "" {
		root = DefaultLockRoot
	}
	lockPath := strings.TrimRight(root, "/") + "/" + resourceID
	if err := conn.EnsurePath(lockPath); err != nil {
		return nil, err
	}
	return &DistributedLock{conn: conn, path: lockPath}, nil
}

// sequence strips the protected-node GUID prefix so nodes order by sequence only.
func sequence(node string) string {
	if i := strings.LastIndex(node, "lock-"); i >= 0 {
		return node[i+len("lock-"):]
	}
	return node
}

// Lock blocks until the lock is held or ctx is done.
func (l *DistributedLock) Lock(ctx context.Context) error {
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", nil, zk.WorldACL(zk.PermAll))
	if err != nil {
		return errors.Wrap(err, "create sequential node")
	}
	l.lockNode = nodePath
	myNodeName := strings.TrimPrefix(nodePath, l.path+"/")

	for {
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			l.abandon()
			return errors.Wrap(err, "list contenders")
		}
		sort.Slice(children, func(i, j int) bool { return sequence(children[i]) < sequence(children[j]) })

		idx := -1
		for i, child := range children {
			if child == myNodeName {
				idx = i
				break
			}
		}
		if idx < 0 {
			l.lockNode = ""
			return errors.New("lock node vanished, session probably expired")
		}
		if idx == 0 {
			return nil
		}

		exists, _, eventChan, err := l.conn.ExistsW(l.path + "/" + children[idx-1])
		if err != nil {
			l.abandon()
			return errors.Wrap(err, "watch previous node")
		}
		if !exists {
			continue
		}

		select {
		case <-eventChan:
		case <-ctx.Done():
			l.abandon()
			return errors.Wrap(ctx.Err(), "waiting for lock")
		}
	}
}

func (l *DistributedLock) abandon() {
	if l.lockNode != "" {
		_ = l.conn.Delete(l.lockNode, -1)
		l.lockNode = ""
	}
}

// Unlock releases the lock.
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return ErrNotLocked
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return errors.Wrap(err, "delete lock node")
	}
	l.lockNode = ""
	return nil
}
