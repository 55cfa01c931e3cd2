package transport

import (
	"context"
	"fmt"
	"github.com/mdlayher/vsock"
	"net"
	"strings"
	"time"
)

type ConnectionType int

const (
	TCP ConnectionType = iota
	VSOCK
)

func (c ConnectionType) String() string {
	if c == VSOCK {
		return "vsock"
	}
	return "tcp"
}

// ParseConnectionType accepts "tcp" or "vsock"; empty means tcp.
func ParseConnectionType(s string) (ConnectionType, error) {
	switch strings.ToLower(s) {
	case "", "tcp":
		return TCP, nil
	case "vsock":
		return VSOCK, nil
	}
	return TCP, fmt.Errorf("unknown connection type %q", s)
}

// ConnectionConfig selects how outbound connections leave the host. With VSOCK every dial
// goes to the fixed context id and port of a proxy, whatever address was requested.
type ConnectionConfig struct {
	connectionType ConnectionType
	contextID      uint32
	port           uint32
	timeout        time.Duration
}

func NewConnectionConfig(connectionType ConnectionType, contextID uint32, port uint32) ConnectionConfig {
	if connectionType != VSOCK {
		return ConnectionConfig{
			connectionType: connectionType,
			timeout:        10 * time.Second,
		}
	}

	return ConnectionConfig{
		connectionType: connectionType,
		contextID:      contextID,
		port:           port,
		timeout:        10 * time.Second,
	}
}

func (c ConnectionConfig) Type() ConnectionType {
	return c.connectionType
}

func (c ConnectionConfig) String() string {
	if c.connectionType == VSOCK {
		return fmt.Sprintf("vsock(%d:%d)", c.contextID, c.port)
	}
	return "tcp"
}

// DialContext has the signature expected by http.Transport and websocket.Dialer.
func (c ConnectionConfig) DialContext(ctx context.Context, network string, address string) (net.Conn, error) {
	if c.connectionType == VSOCK {
		return vsock.Dial(c.contextID, c.port, nil)
	}
	d := net.Dialer{Timeout: c.timeout}
	return d.DialContext(ctx, network, address)
}
