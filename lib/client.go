package lib

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/TheSmallBoat/pullconn/dynbuf"
	"github.com/TheSmallBoat/pullconn/framing"
	"github.com/jpillora/backoff"
)

var ErrClientShutdown = errors.New("client shut down")

// Client sends framed units to a Server over a single connection and reads
// back one framed unit per request. Requests are serialized.
type Client struct {
	Addr string

	HandShaker HandShaker
	Scanner    framing.Scanner // defaults to framing.NewDelimiterScanner()

	DialTimeout      time.Duration
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	DialAttempts     int // defaults to 1

	mu       sync.Mutex
	conn     *Conn
	buf      dynbuf.Buffer
	shutdown bool
}

func (c *Client) scanner() framing.Scanner {
	if c.Scanner == nil {
		c.Scanner = framing.NewDelimiterScanner()
	}
	return c.Scanner
}

// Request writes unit and returns the next framed unit sent back by the
// server, appended to dst[:0].
func (c *Client) Request(dst, unit []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.getConn()
	if err != nil {
		return nil, err
	}

	res, err := c.roundTrip(conn, dst, unit)
	if err != nil {
		c.dropConn()
		return nil, err
	}
	return res, nil
}

func (c *Client) roundTrip(conn *Conn, dst, unit []byte) ([]byte, error) {
	if err := conn.Write(unit); err != nil {
		return nil, fmt.Errorf("failed to write request: %w", err)
	}

	scanner := c.scanner()

	for {
		n, err := scanner.Scan(&c.buf)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			dst = append(dst[:0], c.buf.Bytes()[:n]...)
			c.buf.Consume(n)
			return dst, nil
		}

		data, err := conn.Read()
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("server closed the connection: %w", ErrConnClosed)
		}
		c.buf.Append(data)
	}
}

func (c *Client) getConn() (*Conn, error) {
	if c.shutdown {
		return nil, ErrClientShutdown
	}
	if c.conn != nil {
		return c.conn, nil
	}

	attempts := c.DialAttempts
	if attempts <= 0 {
		attempts = 1
	}

	b := &backoff.Backoff{
		Factor: 1.25,
		Jitter: true,
		Min:    50 * time.Millisecond,
		Max:    1 * time.Second,
	}

	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(b.Duration())
		}

		var conn *Conn
		conn, err = c.dial()
		if err == nil {
			c.conn = conn
			c.buf.Reset()
			return conn, nil
		}
	}

	return nil, fmt.Errorf("failed to connect to '%s' after %d attempt(s): %w", c.Addr, attempts, err)
}

func (c *Client) dial() (*Conn, error) {
	timeout := c.DialTimeout
	if timeout == 0 {
		timeout = 3 * time.Second
	}

	nc, err := net.DialTimeout("tcp", c.Addr, timeout)
	if err != nil {
		return nil, err
	}

	if c.HandShaker != nil {
		handshakeTimeout := c.HandshakeTimeout
		if handshakeTimeout == 0 {
			handshakeTimeout = 3 * time.Second
		}

		_ = nc.SetDeadline(time.Now().Add(handshakeTimeout))
		hc, err := c.HandShaker.Handshake(nc)
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("handshake failed: %w", err)
		}
		_ = nc.SetDeadline(zeroTime)
		nc = hc
	}

	conn := NewConn(NewStreamTransport(nc))
	conn.ReadTimeout = c.ReadTimeout
	return conn, nil
}

func (c *Client) dropConn() {
	if c.conn == nil {
		return
	}
	c.conn.Close()
	c.conn = nil
	c.buf.Reset()
}

// Shutdown closes the client's connection. Later requests fail with
// ErrClientShutdown.
func (c *Client) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.shutdown = true
	c.dropConn()
}
