package proc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/codewandler/troupe-go/internal/codec"
)

// Conn frames a duplex byte stream into newline-delimited JSON frames.
// Writes are serialized; reads must come from a single goroutine.
type Conn struct {
	rwc io.ReadWriteCloser
	c   codec.Codec
	r   *bufio.Reader

	wmu sync.Mutex
	w   *bufio.Writer

	closeOnce sync.Once
	closed    chan struct{}
}

func NewConn(rwc io.ReadWriteCloser) *Conn {
	return &Conn{
		rwc:    rwc,
		c:      codec.JSONCodec{},
		r:      bufio.NewReader(rwc),
		w:      bufio.NewWriter(rwc),
		closed: make(chan struct{}),
	}
}

// Write encodes and flushes one frame.
func (c *Conn) Write(f Frame) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}

	data, err := c.c.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.w.Write(data); err != nil {
		return fmt.Errorf("%w: %v", ErrConnClosed, err)
	}
	if err := c.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("%w: %v", ErrConnClosed, err)
	}
	if err := c.w.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnClosed, err)
	}
	return nil
}

// Read blocks for the next frame. io.EOF or a closed connection surface as
// ErrConnClosed.
func (c *Conn) Read() (Frame, error) {
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
			return Frame{}, ErrConnClosed
		}
		return Frame{}, fmt.Errorf("%w: %v", ErrConnClosed, err)
	}

	var f Frame
	if err := c.c.Unmarshal(line, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

// Done is closed when Close is called locally.
func (c *Conn) Done() <-chan struct{} { return c.closed }

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.rwc.Close()
	})
	return err
}
