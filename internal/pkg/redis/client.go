// internal/pkg/redis/client.go
package redis

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

// Client wraps a go-redis client with a registry of preloaded Lua scripts.
type Client struct {
	client  goredis.UniversalClient
	mu      sync.RWMutex
	scripts map[string]*goredis.Script
}

// NewClient connects to one node, or a cluster when several addresses are given.
func NewClient(ctx context.Context, addrs []string, password string, db int) (*Client, error) {
	if len(addrs) == 0 {
		return nil, errors.New("no redis address")
	}
	c := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:    addrs,
		Password: password,
		DB:       db,
	})
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrapf(err, "ping redis %s", strings.Join(addrs, ","))
	}
	return Wrap(c), nil
}

// Wrap adopts an existing client.
func Wrap(c goredis.UniversalClient) *Client {
	return &Client{client: c, scripts: map[string]*goredis.Script{}}
}

func (c *Client) GetClient() goredis.UniversalClient {
	return c.client
}

// LoadScriptFromContent registers a script under name and loads it on the server.
func (c *Client) LoadScriptFromContent(ctx context.Context, name, content string) error {
	script := goredis.NewScript(content)
	if err := script.Load(ctx, c.client).Err(); err != nil {
		return errors.Wrapf(err, "load script %s", name)
	}
	c.mu.Lock()
	c.scripts[name] = script
	c.mu.Unlock()
	return nil
}

// RunScript runs a registered script, reloading it if the server lost it.
func (c *Client) RunScript(ctx context.Context, name string, keys []string, args ...any) (any, error) {
	c.mu.RLock()
	script, ok := c.scripts[name]
	c.mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("script %s is not loaded", name)
	}
	return script.Run(ctx, c.client, keys, args...).Result()
}

func (c *Client) Close() error {
	return c.client.Close()
}
