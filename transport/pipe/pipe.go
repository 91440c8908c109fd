// Package pipe provides in-memory connections and a network to dial them,
// with deadlines driven by [clock.Clock].
package pipe

import (
	"bytes"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type Addr struct {
	Name string
}

func (a Addr) Network() string { return "pipe" }
func (a Addr) String() string  { return a.Name }

var _ net.Addr = Addr{}

// Conn is one end of a buffered, asynchronous pipe.
// See:
// - https://github.com/golang/go/issues/24205
// - https://github.com/golang/go/issues/34502
type Conn struct {
	addr Addr

	buf *bytes.Buffer // protected by in.

	in, out  sync.Cond
	serialMu sync.Mutex // For serialized write operations.

	_closed  bool
	closedMu sync.Mutex

	rdeadline, wdeadline *deadline

	// the opposite end.
	counterpart *Conn
}

var _ net.Conn = (*Conn)(nil)

// Pair creates a pair of connected ends.
// Each end only reads through its own buffer, so bufSize MUST be more than 0.
func Pair(name1, name2 string, clock clock.Clock, bufSize uint) (c1, c2 *Conn) {
	if bufSize == 0 {
		panic("buffer size cannot be 0")
	}

	c1 = newConn(name1, clock, bufSize)
	c2 = newConn(name2, clock, bufSize)
	c1.counterpart, c2.counterpart = c2, c1
	return
}

func newConn(name string, clock clock.Clock, bufSize uint) *Conn {
	c := &Conn{
		buf:       bytes.NewBuffer(make([]byte, 0, bufSize)),
		rdeadline: &deadline{clock: clock},
		wdeadline: &deadline{clock: clock},
		addr:      Addr{Name: name},
	}
	c.in.L, c.out.L = &sync.Mutex{}, &sync.Mutex{}
	return c
}

func (c *Conn) ReadBufSize() uint    { return uint(c.buf.Cap()) }
func (c *Conn) WriteBufSize() uint   { return uint(c.counterpart.buf.Cap()) }
func (c *Conn) LocalAddr() net.Addr  { return c.addr }
func (c *Conn) RemoteAddr() net.Addr { return c.counterpart.addr }

// Close closes this end. The counterpart reads the remaining bytes, then io.EOF.
func (c *Conn) Close() error {
	c.closedMu.Lock()
	c._closed = true
	c.closedMu.Unlock()

	broadcast(&c.in)
	broadcast(&c.out)
	broadcast(&c.counterpart.in)
	broadcast(&c.counterpart.out)
	return nil
}

func (c *Conn) Read(b []byte) (n int, err error) {
	defer func() {
		if err != nil {
			return
		}
		// If buffer was full and counterpart was waiting,
		// we must notify them that it is now available to write.
		broadcast(&c.counterpart.out)
	}()

	c.in.L.Lock()
	defer c.in.L.Unlock()

	for {
		if c.closed() {
			return 0, net.ErrClosed
		}

		// We must check for deadline first.
		if c.rdeadline.exceeded() {
			return 0, os.ErrDeadlineExceeded
		}

		// Even if counterpart is closed, we must be able to read from buffer.
		if c.buf.Len() > 0 {
			return c.buf.Read(b)
		}

		if c.counterpart.closed() {
			return 0, io.EOF
		}

		// Wait until one of conditions is satisfied.
		c.in.Wait()
	}
}

func (c *Conn) Write(b []byte) (n int, err error) {
	// Serialize write operations to prevent interleaving write.
	c.serialMu.Lock()
	defer c.serialMu.Unlock()

	c.out.L.Lock()
	defer c.out.L.Unlock()

	// Ensure all the bytes are sent.
	nn := 0
	for once := true; once || len(b) > 0; once = false {
		if c.closed() {
			return nn, net.ErrClosed
		}

		if c.wdeadline.exceeded() {
			return nn, os.ErrDeadlineExceeded
		}

		if c.counterpart.closed() {
			return nn, io.ErrClosedPipe
		}

		// It might race with counterpart's read. So acquire lock.
		c.counterpart.in.L.Lock()

		// We don't want counterpart's buffer to grow.
		remain := c.counterpart.buf.Cap() - c.counterpart.buf.Len()

		if canWrite := min(len(b), remain); canWrite > 0 {
			c.counterpart.buf.Write(b[:canWrite])
			b = b[canWrite:]
			nn += canWrite

			// Read of counterpart resumes after we release its lock.
			c.counterpart.in.Broadcast()
			c.counterpart.in.L.Unlock()
			continue
		}

		c.counterpart.in.L.Unlock()
		c.out.Wait()
	}

	return nn, nil
}

func (c *Conn) closed() bool {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()

	return c._closed
}

func (c *Conn) SetDeadline(t time.Time) error {
	c.SetReadDeadline(t)
	c.SetWriteDeadline(t)
	return nil
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	c.rdeadline.set(t, func() { broadcast(&c.in) })
	return nil
}

func (c *Conn) SetWriteDeadline(t time.Time) error {
	c.wdeadline.set(t, func() { broadcast(&c.out) })
	return nil
}

// broadcast holds the lock so that a waiter can't miss it
// between checking its condition and calling Wait.
func broadcast(cond *sync.Cond) {
	cond.L.Lock()
	cond.Broadcast()
	cond.L.Unlock()
}

type deadline struct {
	clock clock.Clock
	m     sync.Mutex

	timer *clock.Timer
	t     time.Time
}

// set arms onExceed to be called when t has passed.
// A zero t clears the deadline.
func (d *deadline) set(t time.Time, onExceed func()) {
	d.m.Lock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	d.t = t

	if t.IsZero() {
		d.m.Unlock()
		return
	}

	dur := d.clock.Until(t)
	if dur > 0 {
		d.timer = d.clock.AfterFunc(dur, onExceed)
		d.m.Unlock()
		return
	}
	d.m.Unlock()

	// Wake up the ones already waiting.
	onExceed()
}

func (d *deadline) exceeded() bool {
	d.m.Lock()
	defer d.m.Unlock()

	if d.t.IsZero() {
		return false
	}

	return d.clock.Until(d.t) <= 0
}
