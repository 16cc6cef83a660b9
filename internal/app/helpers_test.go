package app

import (
	"encoding/json"
	"sync"

	"github.com/dkeye/cbradio/internal/core"
	"github.com/dkeye/cbradio/internal/domain"
)

// recConn records every frame handed to it.
type recConn struct {
	mu     sync.Mutex
	frames []map[string]any
	closed bool
}

func newRecConn() *recConn { return &recConn{} }

func (c *recConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnClosed
	}
	var m map[string]any
	if err := json.Unmarshal(f, &m); err != nil {
		return err
	}
	c.frames = append(c.frames, m)
	return nil
}

func (c *recConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *recConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *recConn) all() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]any(nil), c.frames...)
}

func (c *recConn) ofType(t string) []map[string]any {
	var out []map[string]any
	for _, f := range c.all() {
		if f["type"] == t {
			out = append(out, f)
		}
	}
	return out
}

func (c *recConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

type user struct {
	id   domain.UserID
	conn *recConn
}

func newUser(id string) user {
	return user{id: domain.UserID(id), conn: newRecConn()}
}

func (u user) member() core.Member {
	return core.Member{UserID: u.id, Conn: u.conn}
}

func ptr(s string) *string { return &s }
