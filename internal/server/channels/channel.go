package channels

import (
	"sync"

	"github.com/casanet/remote-server/internal/protocol"
)

// Conn is the transport under a channel. Once the channel is registered
// only the relay closes it.
type Conn interface {
	Send(data []byte) error
	Close() error
}

// Channel is a live duplex connection from one local server. Its identity is
// empty until a handshake succeeds and is cleared again when superseded.
type Channel struct {
	conn Conn

	mu       sync.RWMutex
	identity string
}

func NewChannel(conn Conn) *Channel {
	return &Channel{conn: conn}
}

// Identity returns the bound local server address, or "" if unauthenticated.
func (c *Channel) Identity() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

func (c *Channel) bind(identity string) {
	c.mu.Lock()
	c.identity = identity
	c.mu.Unlock()
}

func (c *Channel) unbind() {
	c.bind("")
}

func (c *Channel) send(msg protocol.RemoteMessage) error {
	b, err := msg.Encode()
	if err != nil {
		return err
	}
	return c.conn.Send(b)
}

func (c *Channel) close() error {
	return c.conn.Close()
}
