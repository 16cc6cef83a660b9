//go:generate mockgen -source=session_iface.go -destination=mocks/mock_probe.go -package=mocks

package core

import "github.com/dkeye/cbradio/internal/domain"

type SessionID string

// Member pairs a user handle with the connection frames for it go to.
// This is what a channel stores and fans out to.
type Member struct {
	UserID domain.UserID
	Conn   SignalConnection
}

// Probe is the liveness side of a connection.
type Probe interface {
	// Ping sends a transport-level liveness probe.
	Ping() error
	// Terminate drops the transport without a close handshake.
	Terminate()
}
