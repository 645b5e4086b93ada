package lib

import (
	"net"
	"sync"
	"time"
)

// ReadState is where a Conn is in its read lifecycle.
type ReadState int

const (
	StateIdle ReadState = iota
	StateAwaitingData
	StateEnded
	StateFailed
)

func (s ReadState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingData:
		return "awaiting data"
	case StateEnded:
		return "ended"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

var _ Events = (*Conn)(nil)

// Conn offers sequential, pull-based reads and acknowledged writes on top of
// an event-driven Transport. The transport is kept paused except while a Read
// is waiting, so a fast sender is held back at the transport rather than
// buffered in memory.
//
// At most one Read may be outstanding at a time. Writes may be issued from
// any goroutine.
type Conn struct {
	ReadTimeout time.Duration

	transport Transport

	mu     sync.Mutex
	once   sync.Once
	err    error        // terminal once set
	ended  bool         // end of stream observed
	reader *pendingRead // the waiting reader, if any
	unread []byte       // data delivered while no reader was waiting
}

// NewConn wraps t and attaches itself as t's event handler.
func NewConn(t Transport) *Conn {
	c := &Conn{transport: t}
	t.Attach(c)
	return c
}

func (c *Conn) RemoteAddr() net.Addr { return c.transport.RemoteAddr() }

func (c *Conn) State() ReadState {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.err != nil:
		return StateFailed
	case c.reader != nil:
		return StateAwaitingData
	case c.ended:
		return StateEnded
	}
	return StateIdle
}

// Err returns the error the conn failed with, if any.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Read waits for the next chunk of data. A zero-length result with a nil
// error means the peer ended the stream. The returned slice is only valid
// until the next call to Read.
func (c *Conn) Read() ([]byte, error) {
	c.mu.Lock()
	if c.reader != nil {
		c.mu.Unlock()
		return nil, ErrReadPending
	}
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	if len(c.unread) > 0 {
		buf := c.unread
		c.unread = nil
		c.mu.Unlock()
		return buf, nil
	}
	if c.ended {
		c.mu.Unlock()
		return nil, nil
	}

	pr := pendingReadPool.acquire()
	c.reader = pr
	c.mu.Unlock()

	c.transport.Resume()

	if c.ReadTimeout <= 0 {
		res := <-pr.ch
		pendingReadPool.release(pr)
		return res.buf, res.err
	}

	timer := timerPool.acquire(c.ReadTimeout)
	defer timerPool.release(timer)

	select {
	case res := <-pr.ch:
		pendingReadPool.release(pr)
		return res.buf, res.err
	case <-timer.C:
	}

	c.mu.Lock()
	if c.reader != pr {
		// an event won the race and already resolved the slot
		c.mu.Unlock()
		res := <-pr.ch
		pendingReadPool.release(pr)
		return res.buf, res.err
	}
	c.reader = nil
	if c.err == nil {
		c.err = ErrReadTimeout
	}
	err := c.err
	c.mu.Unlock()

	pendingReadPool.release(pr)
	_ = c.transport.Close()

	return nil, err
}

// Write sends buf and waits until the transport has accepted it. buf may be
// reused once Write returns.
func (c *Conn) Write(buf []byte) error {
	if len(buf) == 0 {
		return ErrEmptyWrite
	}
	if err := c.Err(); err != nil {
		return err
	}

	pw := pendingWritePool.acquire(buf)
	defer pendingWritePool.release(pw)

	c.transport.Write(pw.buf.B, pw.done)
	pw.wg.Wait()

	return pw.err
}

// Close fails any waiting reader with ErrConnClosed and closes the transport.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		c.fail(ErrConnClosed)
		err = c.transport.Close()
	})
	return err
}

// HandleData is called by the transport when a chunk arrives.
func (c *Conn) HandleData(buf []byte) {
	c.transport.Pause()

	c.mu.Lock()
	pr := c.reader
	c.reader = nil
	if pr == nil {
		c.unread = append(c.unread, buf...)
	}
	c.mu.Unlock()

	if pr != nil {
		pr.resolve(buf)
	}
}

// HandleEnd is called by the transport when the peer ends the stream.
func (c *Conn) HandleEnd() {
	c.mu.Lock()
	c.ended = true
	pr := c.reader
	c.reader = nil
	c.mu.Unlock()

	if pr != nil {
		pr.resolve(nil)
	}
}

// HandleError is called by the transport when it fails.
func (c *Conn) HandleError(err error) { c.fail(err) }

func (c *Conn) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	err = c.err
	pr := c.reader
	c.reader = nil
	c.mu.Unlock()

	if pr != nil {
		pr.reject(err)
	}
}
