package pipe

import (
	"context"
	"net"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

var (
	ErrAddrInUse      = errors.New("address already in use")
	ErrConnRefused    = errors.New("connection refused")
	ErrListenerClosed = errors.New("listener is closed")
	ErrUnknownNetwork = errors.New("unknown network")
)

const (
	DefaultBufSize = 64 << 10
	dialerName     = "dialer"
)

var supportedNetworks = []string{"tcp", "tcp4", "tcp6", "pipe"}

// Network is an in-memory network. Addresses are plain names, e.g. "example.com:80".
type Network struct {
	listeners map[string]*Listener
	clock     clock.Clock
	bufSize   uint

	mu sync.Mutex
}

func NewNetwork(clock clock.Clock, bufSize uint) *Network {
	if bufSize == 0 {
		bufSize = DefaultBufSize
	}

	return &Network{
		listeners: make(map[string]*Listener),
		clock:     clock,
		bufSize:   bufSize,
	}
}

// DialContext connects to the listener at addr.
// It has the signature of [net.Dialer.DialContext].
func (pn *Network) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if !isSupported(network) {
		return nil, errors.Wrapf(ErrUnknownNetwork, "%q", network)
	}

	pn.mu.Lock()
	listener, ok := pn.listeners[addr]
	pn.mu.Unlock()

	if !ok {
		return nil, errors.Wrapf(ErrConnRefused, "dialing %s", addr)
	}

	c1, c2 := Pair(dialerName, addr, pn.clock, pn.bufSize)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-listener.closed:
		return nil, errors.Wrapf(ErrConnRefused, "dialing %s", addr)
	case listener.conns <- c2:
	}

	return c1, nil
}

func isSupported(network string) bool {
	for _, n := range supportedNetworks {
		if n == network {
			return true
		}
	}
	return false
}

func (pn *Network) Listen(addr string) (*Listener, error) {
	pn.mu.Lock()
	defer pn.mu.Unlock()

	if _, ok := pn.listeners[addr]; ok {
		return nil, errors.Wrapf(ErrAddrInUse, "%s", addr)
	}

	l := &Listener{
		addr:    Addr{Name: addr},
		network: pn,
		conns:   make(chan *Conn),
		closed:  make(chan struct{}),
	}
	pn.listeners[addr] = l

	return l, nil
}

type Listener struct {
	addr    Addr
	network *Network

	conns  chan *Conn
	closed chan struct{}
	once   sync.Once
}

var _ net.Listener = (*Listener)(nil)

func (l *Listener) Addr() net.Addr { return l.addr }

func (l *Listener) Accept() (net.Conn, error) {
	select {
	case <-l.closed:
		return nil, ErrListenerClosed
	case conn := <-l.conns:
		return conn, nil
	}
}

// Close stops accepting. Connections already accepted stay open.
func (l *Listener) Close() error {
	err := ErrListenerClosed
	l.once.Do(func() {
		err = nil
		close(l.closed)

		l.network.mu.Lock()
		delete(l.network.listeners, l.addr.Name)
		l.network.mu.Unlock()
	})

	return err
}
