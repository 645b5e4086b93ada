package lib

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"time"
)

const DefaultReadBufferSize = 4096

// Events receives the push notifications of a Transport. Calls for one
// transport are made sequentially and in arrival order.
type Events interface {
	HandleData(buf []byte)
	HandleEnd()
	HandleError(err error)
}

// Transport is an event-driven byte stream. It delivers data only while
// resumed, and acknowledges each write through its done callback.
type Transport interface {
	Attach(events Events)
	Pause()
	Resume()
	Write(buf []byte, done func(err error))
	Close() error
	RemoteAddr() net.Addr
}

var _ Transport = (*StreamTransport)(nil)

// StreamTransport turns a net.Conn into a Transport. It starts paused, reads
// at most one chunk per Resume, and coalesces queued writes into a single
// flush.
//
// A delivered chunk aliases the transport's read buffer and stays valid
// until the transport is resumed again.
type StreamTransport struct {
	ReadBufferSize int
	WriteTimeout   time.Duration

	conn   net.Conn
	events Events

	mu     sync.Mutex
	once   sync.Once
	closed bool

	paused   bool
	readCond sync.Cond

	writerQueue []*queuedWrite
	writerCond  sync.Cond

	wg sync.WaitGroup
}

type queuedWrite struct {
	buf  []byte
	done func(err error)
}

func NewStreamTransport(conn net.Conn) *StreamTransport {
	t := &StreamTransport{conn: conn, paused: true}
	t.readCond.L = &t.mu
	t.writerCond.L = &t.mu
	return t
}

// Attach starts the transport's read and write loops. It must be called
// exactly once.
func (t *StreamTransport) Attach(events Events) {
	t.events = events

	size := t.ReadBufferSize
	if size <= 0 {
		size = DefaultReadBufferSize
	}

	t.wg.Add(2)
	go t.readLoop(make([]byte, size))
	go t.writeLoop()
}

func (t *StreamTransport) Pause() {
	t.mu.Lock()
	t.paused = true
	t.mu.Unlock()
}

func (t *StreamTransport) Resume() {
	t.mu.Lock()
	t.paused = false
	t.mu.Unlock()
	t.readCond.Signal()
}

func (t *StreamTransport) Write(buf []byte, done func(err error)) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		done(net.ErrClosed)
		return
	}
	t.writerQueue = append(t.writerQueue, &queuedWrite{buf: buf, done: done})
	t.mu.Unlock()
	t.writerCond.Signal()
}

func (t *StreamTransport) RemoteAddr() net.Addr { return t.conn.RemoteAddr() }

// Close closes the underlying connection and waits for both loops to exit.
// Queued writes fail with net.ErrClosed. No events are emitted after Close.
func (t *StreamTransport) Close() error {
	var err error
	t.once.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()

		t.readCond.Broadcast()
		t.writerCond.Broadcast()

		err = t.conn.Close()
		t.wg.Wait()
	})
	return err
}

func (t *StreamTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *StreamTransport) readLoop(buf []byte) {
	defer t.wg.Done()

	for {
		t.mu.Lock()
		for t.paused && !t.closed {
			t.readCond.Wait()
		}
		closed := t.closed
		t.mu.Unlock()

		if closed {
			return
		}

		n, err := t.conn.Read(buf)
		if n > 0 {
			t.events.HandleData(buf[:n])
		}
		if err == nil {
			continue
		}

		switch {
		case t.isClosed():
		case errors.Is(err, io.EOF):
			t.events.HandleEnd()
		default:
			t.events.HandleError(err)
		}
		return
	}
}

func (t *StreamTransport) writeLoop() {
	defer t.wg.Done()

	bw := bufio.NewWriter(t.conn)

	for {
		t.mu.Lock()
		for !t.closed && len(t.writerQueue) == 0 {
			t.writerCond.Wait()
		}
		queue := t.writerQueue
		t.writerQueue = nil
		closed := t.closed
		t.mu.Unlock()

		if closed {
			for _, w := range queue {
				w.done(net.ErrClosed)
			}
			return
		}

		if t.WriteTimeout > 0 {
			_ = t.conn.SetWriteDeadline(time.Now().Add(t.WriteTimeout))
		}

		var err error
		for _, w := range queue {
			if _, err = bw.Write(w.buf); err != nil {
				break
			}
		}
		if err == nil {
			err = bw.Flush()
		}
		if err != nil {
			bw.Reset(t.conn)
		}

		for _, w := range queue {
			w.done(err)
		}
	}
}
