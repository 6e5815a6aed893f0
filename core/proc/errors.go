package proc

import "errors"

var (
	ErrConnClosed   = errors.New("transport connection closed")
	ErrProxyFailed  = errors.New("transport permanently failed")
	ErrHandshake    = errors.New("creation handshake failed")
	ErrNotSupported = errors.New("operation not supported on a transport proxy")
)
