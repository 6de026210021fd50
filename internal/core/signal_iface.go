package core

// Frame is a raw signaling payload.
type Frame []byte

// SessionID identifies one connected client transport channel.
// Assigned at connect time, stable for the session lifetime.
type SessionID string

// SignalConnection abstracts a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
