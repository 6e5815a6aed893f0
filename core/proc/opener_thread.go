package proc

import (
	"context"
	"net"
)

// ThreadOpener places the child endpoint on a goroutine inside the current
// process, connected through an in-memory pipe. The actor still lives behind
// the full transport contract, it just never leaves the process.
type ThreadOpener struct {
	Env Env
}

func (o ThreadOpener) Open(ctx context.Context) (*Conn, error) {
	parent, child := net.Pipe()
	// the endpoint outlives the creation call; its lifetime is bound to the
	// connection, not to ctx
	go func() {
		_ = Serve(context.WithoutCancel(ctx), NewConn(child), o.Env)
	}()
	return NewConn(parent), nil
}
