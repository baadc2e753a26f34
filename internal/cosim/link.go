// Package cosim owns the stream-socket connection to the external
// decision controller: one inbound TCP connection accepted once at
// startup, best-effort sends, deadline-bounded receives, and the
// link-health state that decides whether remote commands are
// authoritative.
package cosim

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/crosswalk-data/aeb.report/internal/monitoring"
	"github.com/crosswalk-data/aeb.report/internal/telemetry"
)

// Error taxonomy for the network path. Bind/accept failures are fatal
// to the network path only; the caller continues with a DisabledLink.
var (
	ErrBindFailed   = errors.New("cosim: bind failed")
	ErrAcceptFailed = errors.New("cosim: accept failed")
	ErrTimeout      = errors.New("cosim: receive deadline exceeded")
	ErrIO           = errors.New("cosim: link i/o error")
	ErrClosed       = errors.New("cosim: link closed")
)

// LinkState tracks connection health. Degraded is permanent within a
// run: there is a single external party and a single connection
// attempt, so the link either stays healthy or falls back to local
// decision-making for the remainder of the run.
type LinkState int

const (
	Listening LinkState = iota
	Connected
	Degraded
)

func (s LinkState) String() string {
	switch s {
	case Listening:
		return "listening"
	case Connected:
		return "connected"
	case Degraded:
		return "degraded"
	default:
		return fmt.Sprintf("LinkState(%d)", int(s))
	}
}

// Conn is the minimal connection surface the link needs. net.Conn
// satisfies it; tests inject a TestableConn instead of a socket.
type Conn interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
}

// CommandLink is the per-tick exchange contract the step driver
// consumes. Link and DisabledLink implement it.
type CommandLink interface {
	// Send writes one encoded TelemetryFrame. Any write error marks
	// the link Degraded permanently.
	Send(f telemetry.TelemetryFrame) error
	// Receive waits up to deadline for one complete CommandFrame. A
	// timeout is an expected, non-fatal outcome meaning "no fresh
	// command this tick"; any other I/O error marks the link Degraded.
	Receive(deadline time.Duration) (telemetry.CommandFrame, error)
	// State reports current link health.
	State() LinkState
	Close() error
}

// Link is a CommandLink over one accepted stream connection. It is
// driven from the single step-loop goroutine; no internal locking.
type Link struct {
	conn    Conn
	state   LinkState
	recvBuf [telemetry.CommandFrameSize]byte
}

// Open binds addr, listens with backlog for the one expected client and
// blocks until it connects. The acquisition phase is operator-paced so
// there is deliberately no accept deadline. The listener is closed as
// soon as the single connection is up; a second client is never
// accepted.
func Open(addr string) (*Link, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBindFailed, err)
	}
	defer ln.Close()

	monitoring.Logf("cosim: waiting for controller connection on %s", addr)
	conn, err := ln.Accept()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAcceptFailed, err)
	}
	monitoring.Logf("cosim: controller connected from %s", conn.RemoteAddr())

	return NewLink(conn), nil
}

// NewLink wraps an established connection. Exposed so tests and
// alternative transports can inject their own Conn.
func NewLink(conn Conn) *Link {
	return &Link{conn: conn, state: Connected}
}

// State reports current link health.
func (l *Link) State() LinkState { return l.state }

// Send writes one telemetry frame. Partial writes and broken pipes
// degrade the link; the error is reported once and the caller carries
// on with local fallback.
func (l *Link) Send(f telemetry.TelemetryFrame) error {
	if l.state != Connected {
		return ErrClosed
	}
	b := telemetry.EncodeTelemetry(f)
	n, err := l.conn.Write(b)
	if err == nil && n != len(b) {
		err = io.ErrShortWrite
	}
	if err != nil {
		l.degrade("send", err)
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

// Receive blocks up to deadline for a complete CommandFrame. The
// deadline is the loop's only cooperative-suspension point, so it must
// hold even when the controller stops mid-frame: a frame still
// incomplete when the deadline fires is reported as a timeout, not an
// error, and any partial bytes are discarded.
func (l *Link) Receive(deadline time.Duration) (telemetry.CommandFrame, error) {
	if l.state != Connected {
		return telemetry.CommandFrame{}, ErrClosed
	}
	if err := l.conn.SetReadDeadline(time.Now().Add(deadline)); err != nil {
		l.degrade("receive", err)
		return telemetry.CommandFrame{}, fmt.Errorf("%w: %v", ErrIO, err)
	}

	n, err := io.ReadFull(l.conn, l.recvBuf[:])
	if err != nil {
		if isTimeout(err) {
			return telemetry.CommandFrame{}, fmt.Errorf("%w: %d of %d bytes", ErrTimeout, n, telemetry.CommandFrameSize)
		}
		l.degrade("receive", err)
		return telemetry.CommandFrame{}, fmt.Errorf("%w: %v", ErrIO, err)
	}

	return telemetry.DecodeCommand(l.recvBuf[:])
}

// Close releases the connection. Safe to call on a degraded link.
func (l *Link) Close() error {
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	l.conn = nil
	if l.state == Connected {
		l.state = Degraded
	}
	return err
}

// degrade marks the link permanently Degraded, logging the transition
// once. Failed connections are never retried within a run.
func (l *Link) degrade(op string, err error) {
	if l.state == Degraded {
		return
	}
	l.state = Degraded
	monitoring.Logf("cosim: link degraded during %s, local fallback takes over: %v", op, err)
}

// isTimeout classifies deadline expiry as distinct from a dead peer.
func isTimeout(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}
