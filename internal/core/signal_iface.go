//go:generate mockgen -source=signal_iface.go -destination=mocks/mock_signal.go -package=mocks

package core

import "errors"

// Frame is a raw encoded message, one per transport write.
type Frame []byte

var (
	ErrConnClosed   = errors.New("connection closed")
	ErrBackpressure = errors.New("backpressure")
)

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend enqueues f without blocking. A non-nil error means the frame
	// was dropped and the caller should move on.
	TrySend(Frame) error
	// IsOpen reports whether the transport still accepts frames.
	IsOpen() bool
	Close()
}
