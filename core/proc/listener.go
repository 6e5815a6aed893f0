package proc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
)

// Listener accepts transport connections and serves one endpoint per
// connection. Remote parents reach it through RemoteOpener.
type Listener struct {
	l   net.Listener
	log *slog.Logger

	mu    sync.Mutex
	conns map[*Conn]struct{}

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// Listen binds addr and starts accepting. Each accepted connection hosts at
// most one actor, so a listener serves as many actors as it has connections.
func Listen(ctx context.Context, addr string, env Env) (*Listener, error) {
	env = env.withDefaults()

	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	srv := &Listener{
		l:     l,
		log:   env.Log.With(slog.String("component", "listener"), slog.String("addr", l.Addr().String())),
		conns: make(map[*Conn]struct{}),
		done:  make(chan struct{}),
	}

	srv.wg.Add(1)
	go func() {
		defer srv.wg.Done()
		srv.log.Info("listening for actor placements")
		for {
			c, err := l.Accept()
			if err != nil {
				select {
				case <-srv.done:
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				srv.log.Warn("accept failed", slog.Any("error", err))
				continue
			}

			conn := NewConn(c)
			srv.track(conn)

			srv.wg.Add(1)
			go func() {
				defer srv.wg.Done()
				defer srv.untrack(conn)
				if err := Serve(ctx, conn, env); err != nil && !errors.Is(err, ErrConnClosed) {
					srv.log.Warn("endpoint terminated", slog.Any("error", err))
				}
			}()
		}
	}()

	return srv, nil
}

func (s *Listener) track(c *Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Listener) untrack(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// Addr is the bound address, useful when listening on port 0.
func (s *Listener) Addr() net.Addr { return s.l.Addr() }

// Close stops accepting, drops every active connection and waits for their
// endpoints to wind down. Hosted actors are destroyed by their endpoints.
func (s *Listener) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.l.Close()

		s.mu.Lock()
		for c := range s.conns {
			_ = c.Close()
		}
		s.mu.Unlock()

		s.wg.Wait()
	})
	return err
}
