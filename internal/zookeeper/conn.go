// internal/zookeeper/conn.go
package zookeeper

import (
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"

	"nexus-settlement/internal/pkg/logger"
)

// Conn is a ZooKeeper session.
type Conn struct {
	*zk.Conn
}

// Connect opens a session and waits until it is established or timeout passes.
func Connect(servers []string, sessionTimeout time.Duration) (*Conn, error) {
	if len(servers) == 0 {
		return nil, errors.New("no zookeeper server")
	}
	c, events, err := zk.Connect(servers, sessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, errors.Wrapf(err, "connect zookeeper %s", strings.Join(servers, ","))
	}

	deadline := time.After(sessionTimeout)
	for {
		select {
		case ev := <-events:
			if ev.State == zk.StateHasSession {
				logger.Logger.Info().Strs("servers", servers).Msg("connected to zookeeper")
				return &Conn{Conn: c}, nil
			}
		case <-deadline:
			c.Close()
			return nil, errors.Errorf("zookeeper session not established within %s", sessionTimeout)
		}
	}
}

// EnsurePath creates every missing persistent node along path.
func (c *Conn) EnsurePath(path string) error {
	cur := ""
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		if part == "" {
			continue
		}
		cur += "/" + part
		_, err := c.Create(cur, nil, 0, zk.WorldACL(zk.PermAll))
		if err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return errors.Wrapf(err, "create %s", cur)
		}
	}
	return nil
}
