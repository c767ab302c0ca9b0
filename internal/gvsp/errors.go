package gvsp

import "errors"

// Errors surfaced by Session operations. Protocol-level failures (malformed
// or out-of-sequence packets) are never surfaced; they are logged as
// warnings and the packet or frame is dropped.
var (
	ErrAlreadyReceiving = errors.New("gvsp: receiver is active")
	ErrNotReceiving     = errors.New("gvsp: receiver is already stopped")
	ErrNoSocket         = errors.New("gvsp: no socket, call NewSession first")
	ErrSocketClosed     = errors.New("gvsp: socket has been closed already")
	ErrBufferExists     = errors.New("gvsp: frame buffer already exists")
	ErrNoBuffer         = errors.New("gvsp: frame buffer does not exist, call CreateBuffer first")
)
