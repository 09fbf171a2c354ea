package router

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/tabbridge/tabbridge/internal/protocol"
	"github.com/tabbridge/tabbridge/internal/tabstore"
)

// wsConnection adapts a websocket connection to tabstore.Connection. Writes
// are serialized: the read loop, the auth probe, answer streams, and global
// broadcasts may all send concurrently.
type wsConnection struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

var _ tabstore.Connection = (*wsConnection)(nil)

func newWSConnection(conn *websocket.Conn) *wsConnection {
	return &wsConnection{conn: conn}
}

// Send implements tabstore.Connection.Send
func (c *wsConnection) Send(_ context.Context, msg *protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

// Close implements tabstore.Connection.Close
func (c *wsConnection) Close(_ context.Context) error {
	return c.conn.Close()
}
