package chat

import (
	"sync"

	v1 "chamados/contracts/chat/v1"
)

// Client represents one connected websocket session.
//
// Design notes:
// - Send is intentionally NOT closed by the server to avoid panics from concurrent fanout.
// - done is used to signal goroutines to stop.
// - Close is idempotent.
type Client struct {
	// Handle is the opaque per-connection identifier. It is unrelated to
	// user identity: one account with two tabs open has two handles.
	Handle string

	// Username is the normalized account username.
	Username string
	// DisplayName is the name shown to other participants.
	DisplayName string
	// Role is fixed at handshake time.
	Role Role

	Send chan v1.Envelope

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(handle string, acct Account, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Client{
		Handle:      handle,
		Username:    NormalizeUsername(acct.Username),
		DisplayName: acct.Display(),
		Role:        acct.Role(),
		Send:        make(chan v1.Envelope, sendQueueSize),
		done:        make(chan struct{}),
	}
}

// Done returns a channel that is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals the client goroutines to stop (idempotent).
// It does NOT close Send to keep fanout safe under concurrency.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
