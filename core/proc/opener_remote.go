package proc

import (
	"context"
	"fmt"
	"net"
)

// RemoteOpener places the child endpoint on another machine by dialing a
// running listener (see Listen) over TCP.
type RemoteOpener struct {
	Host string
	Port int
}

func (o RemoteOpener) Open(ctx context.Context) (*Conn, error) {
	var d net.Dialer
	addr := fmt.Sprintf("%s:%d", o.Host, o.Port)
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewConn(c), nil
}
