package rpc

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"sync"
	"sync/atomic"
	"tee/trusted-ops/internal/transport"
	"tee/trusted-ops/internal/types"
	"time"
)

// Mode decides how many inbound messages a connection forwards.
type Mode int

const (
	// OneShot forwards the first reply and closes.
	OneShot Mode = iota
	// Streaming forwards every reply until closed.
	Streaming
)

func (m Mode) String() string {
	if m == Streaming {
		return "streaming"
	}
	return "one-shot"
}

type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateStreaming
	StateOneShot
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateStreaming:
		return "streaming"
	case StateOneShot:
		return "one-shot"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

var ErrConnectionClosed = errors.New("connection closed")

const closeWriteTimeout = time.Second

// DialerConfig controls how the websocket is established.
type DialerConfig struct {
	InsecureSkipVerify bool
	HandshakeTimeout   time.Duration
	Connection         transport.ConnectionConfig
}

// NewDialer builds a websocket dialer. TLS certificates are verified unless
// InsecureSkipVerify is set.
func NewDialer(cfg DialerConfig) *websocket.Dialer {
	timeout := cfg.HandshakeTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if cfg.InsecureSkipVerify {
		log.Warn("TLS certificate verification disabled for worker connection")
	}
	return &websocket.Dialer{
		NetDialContext:   cfg.Connection.DialContext,
		HandshakeTimeout: timeout,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
			// #nosec G402 opt-in for self-signed worker certificates
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
	}
}

type delivery struct {
	response Response
	err      error
}

// Connection carries exactly one request and the replies to it.
type Connection struct {
	ws      *websocket.Conn
	mode    Mode
	request Request

	state     atomic.Int32
	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
	inbound   chan delivery
}

// Open dials url, sends request and starts forwarding replies.
func Open(ctx context.Context, dialer *websocket.Dialer, url string, mode Mode, request Request) (*Connection, error) {
	c := &Connection{
		mode:    mode,
		request: request,
		done:    make(chan struct{}),
		inbound: make(chan delivery),
	}
	c.state.Store(int32(StateConnecting))

	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		c.state.Store(int32(StateClosed))
		return nil, &types.TransportError{Op: "dial", Err: err}
	}
	c.ws = ws
	c.state.Store(int32(StateOpen))
	log.Debugf("connected to %s for %s", url, request.Method)

	if err := c.send(request); err != nil {
		c.Close()
		return nil, err
	}
	if mode == Streaming {
		c.state.Store(int32(StateStreaming))
	} else {
		c.state.Store(int32(StateOneShot))
	}

	go c.readLoop()
	return c, nil
}

func (c *Connection) State() State {
	return State(c.state.Load())
}

func (c *Connection) Request() Request {
	return c.request
}

func (c *Connection) send(request Request) error {
	payload, err := json.Marshal(request)
	if err != nil {
		return &types.TransportError{Op: "marshal", Err: err}
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.State() == StateClosed {
		return &types.TransportError{Op: "write", Err: ErrConnectionClosed}
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		return &types.TransportError{Op: "write", Err: err}
	}
	return nil
}

func (c *Connection) readLoop() {
	defer close(c.inbound)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.State() == StateClosed {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = ErrConnectionClosed
			}
			c.deliver(delivery{err: &types.TransportError{Op: "read", Err: err}})
			return
		}

		var response Response
		if err := json.Unmarshal(data, &response); err != nil {
			log.Warnf("skipping malformed message on %s: %v", c.request.Method, err)
			continue
		}
		if !response.MatchesID(c.request.ID) {
			log.Warnf("skipping response with unexpected id %s on %s", string(response.ID), c.request.Method)
			continue
		}

		if !c.deliver(delivery{response: response}) {
			return
		}
		if c.mode == OneShot {
			c.Close()
			return
		}
	}
}

// deliver hands one message to the reader; it reports false once the connection is closed.
func (c *Connection) deliver(d delivery) bool {
	select {
	case c.inbound <- d:
		return true
	case <-c.done:
		return false
	}
}

// Next blocks for the next reply in receipt order.
func (c *Connection) Next(ctx context.Context) (Response, error) {
	select {
	case <-c.done:
		return Response{}, &types.TransportError{Op: "read", Err: ErrConnectionClosed}
	default:
	}

	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-c.done:
		return Response{}, &types.TransportError{Op: "read", Err: ErrConnectionClosed}
	case d, ok := <-c.inbound:
		if !ok {
			return Response{}, &types.TransportError{Op: "read", Err: ErrConnectionClosed}
		}
		return d.response, d.err
	}
}

// Close is idempotent; after it returns no further reply is delivered.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()

		c.state.Store(int32(StateClosed))
		close(c.done)
		if c.ws == nil {
			return
		}
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
		_ = c.ws.Close()
	})
}
