package cosim

import (
	"bytes"
	"os"
	"sync"
	"time"
)

// TestableConn implements Conn with configurable behaviour for testing.
// It provides fine-grained control over reads, writes, errors and the
// read deadline without touching a real socket.
type TestableConn struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls.
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the conn.
	WriteBuffer *bytes.Buffer

	// ReadError is returned by the next Read call if set.
	ReadError error

	// WriteError is returned by the next Write call if set.
	WriteError error

	// ShortWrite caps the next Write to the given byte count when > 0.
	ShortWrite int

	// TimeoutWhenEmpty makes Read report os.ErrDeadlineExceeded once
	// the buffer is drained, mimicking a socket read deadline.
	TimeoutWhenEmpty bool

	// Deadline records the most recent SetReadDeadline value.
	Deadline time.Time

	// Closed indicates whether Close was called.
	Closed bool

	ReadCalls  int
	WriteCalls int
}

// NewTestableConn creates a TestableConn with empty buffers and
// deadline-style timeouts enabled.
func NewTestableConn() *TestableConn {
	return &TestableConn{
		ReadBuffer:       bytes.NewBuffer(nil),
		WriteBuffer:      bytes.NewBuffer(nil),
		TimeoutWhenEmpty: true,
	}
}

func (c *TestableConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ReadCalls++
	if c.Closed {
		return 0, os.ErrClosed
	}
	if c.ReadError != nil {
		err := c.ReadError
		c.ReadError = nil
		return 0, err
	}
	if c.ReadBuffer.Len() == 0 && c.TimeoutWhenEmpty {
		return 0, os.ErrDeadlineExceeded
	}
	return c.ReadBuffer.Read(p)
}

func (c *TestableConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.WriteCalls++
	if c.Closed {
		return 0, os.ErrClosed
	}
	if c.WriteError != nil {
		err := c.WriteError
		c.WriteError = nil
		return 0, err
	}
	if c.ShortWrite > 0 && len(p) > c.ShortWrite {
		n, _ := c.WriteBuffer.Write(p[:c.ShortWrite])
		c.ShortWrite = 0
		return n, nil
	}
	return c.WriteBuffer.Write(p)
}

func (c *TestableConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

func (c *TestableConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Deadline = t
	return nil
}

// AddReadData queues data for subsequent Read calls.
func (c *TestableConn) AddReadData(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ReadBuffer.Write(data)
}

// WrittenData returns everything written to the conn so far.
func (c *TestableConn) WrittenData() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.WriteBuffer.Bytes()
}
