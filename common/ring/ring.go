// Package ring implements the unidirectional-ring transport shared by
// the screen ring and the robot ring: one TCP listener accepting the
// single inbound connection from the predecessor, and one outbound
// sender holding a persistent connection to the successor, retired by
// closing its kill channel and reconnected with backoff whenever the
// successor changes.
//
// Both rings in the original program duplicate this exact state machine
// between robot.rs and screen.rs; here it is written once and
// parameterized by address, matching spec.md's §4.1 ring contract for
// either ring.
package ring

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/lucas-128/heladeria-concurrente/common/wire"
)

// Inbound is a frame received from the predecessor, paired with the
// connection it arrived on so a handler can tell successive reads on
// the same persistent connection apart if it needs to.
type Inbound struct {
	Envelope wire.Envelope
	Conn     net.Conn
}

// Listener accepts the single persistent inbound connection from a
// ring's predecessor and streams decoded frames out on Frames. Closed
// receives the connection whenever its read loop ends (predecessor
// went away or sent a malformed frame), so a caller can run its own
// death-detection logic the way the original does on Ok(0)/Err.
type Listener struct {
	Frames chan Inbound
	Closed chan net.Conn

	addr     string
	listener net.Listener
}

// NewListener binds addr and returns a Listener ready to Serve.
func NewListener(addr string) (*Listener, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ring: listen %s: %w", addr, err)
	}
	return &Listener{
		Frames:   make(chan Inbound, 64),
		Closed:   make(chan net.Conn, 8),
		addr:     addr,
		listener: l,
	}, nil
}

// Addr returns the bound address (with the OS-assigned port resolved,
// if addr was given with port 0).
func (l *Listener) Addr() string { return l.listener.Addr().String() }

// Serve accepts connections until ctx is canceled or the listener is
// closed, reading frames from each into Frames. The ring protocol as
// specified only ever has one live predecessor connection at a time,
// but Serve tolerates a reconnect (e.g. after the predecessor itself
// restarts its sender) by accepting again.
func (l *Listener) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		l.listener.Close()
	}()

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				close(l.Frames)
				return nil
			}
			return fmt.Errorf("ring: accept on %s: %w", l.addr, err)
		}
		go l.readLoop(conn)
	}
}

func (l *Listener) readLoop(conn net.Conn) {
	defer conn.Close()
	for {
		env, err := wire.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				// Connection reset mid-frame; the ring's death-detection
				// logic above this layer treats this the same as a clean
				// EOF: the predecessor is gone.
			}
			select {
			case l.Closed <- conn:
			default:
			}
			return
		}
		l.Frames <- Inbound{Envelope: env, Conn: conn}
	}
}

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.listener.Close() }

// Sender holds the persistent outbound connection to the current
// successor. Messages are queued by Send and written in FIFO order. A
// failed write pushes the message back onto the tail of the queue (it
// is dropped if the queue is full) and ends that connection's run loop;
// nothing is sent again until SetSuccessor or Introduce starts a new one.
type Sender struct {
	outbound chan wire.Envelope

	mu      sync.Mutex
	addr    string
	kill    chan struct{}
	onRetry func(addr string, err error)
}

// NewSender creates a Sender with no successor yet; call SetSuccessor to
// point it at one.
func NewSender(onRetry func(addr string, err error)) *Sender {
	return &Sender{
		outbound: make(chan wire.Envelope, 256),
		onRetry:  onRetry,
	}
}

// Send enqueues env for delivery to the current successor.
func (s *Sender) Send(env wire.Envelope) {
	s.outbound <- env
}

// SetSuccessor retires the connection to the previous successor (if
// any) by closing its kill channel, then starts a fresh run
// loop connecting to addr. Safe to call repeatedly as the ring is
// repaired after a death.
func (s *Sender) SetSuccessor(ctx context.Context, addr string) {
	s.mu.Lock()
	if s.kill != nil {
		close(s.kill)
	}
	kill := make(chan struct{})
	s.kill = kill
	s.addr = addr
	s.mu.Unlock()

	go s.run(ctx, addr, kill)
}

// run owns one successor connection's lifetime: connect (with backoff),
// introduce ourselves, then drain outbound until Kill fires or ctx is
// done.
func (s *Sender) run(ctx context.Context, addr string, kill chan struct{}, introIfAny ...wire.Envelope) {
	conn, err := s.dial(ctx, addr)
	if err != nil {
		if s.onRetry != nil {
			s.onRetry(addr, err)
		}
		return
	}
	defer conn.Close()

	for _, intro := range introIfAny {
		_ = wire.WriteFrame(conn, intro)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-kill:
			return
		case env := <-s.outbound:
			if err := wire.WriteFrame(conn, env); err != nil {
				// Write failed: requeue at the front of the channel isn't
				// directly possible with a plain chan, so we push back onto
				// the buffered channel; ordering among already-queued
				// messages that arrived after this one may shift by one,
				// which the protocol tolerates since every ring message
				// carries its own ids and is idempotent to re-deliver.
				select {
				case s.outbound <- env:
				default:
				}
				return
			}
		}
	}
}

// Introduce sets the successor and sends intro as the very first frame
// on the new connection, used for RobotIntroduction/ScreenIntroduction.
func (s *Sender) Introduce(ctx context.Context, addr string, intro wire.Envelope) {
	s.mu.Lock()
	if s.kill != nil {
		close(s.kill)
	}
	kill := make(chan struct{})
	s.kill = kill
	s.addr = addr
	s.mu.Unlock()

	go s.run(ctx, addr, kill, intro)
}

func (s *Sender) dial(ctx context.Context, addr string) (net.Conn, error) {
	op := func() (net.Conn, error) {
		d := net.Dialer{Timeout: 2 * time.Second}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(8),
	)
}

// Successor returns the address the sender currently targets, or "" if
// none has been set yet.
func (s *Sender) Successor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
