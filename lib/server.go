package lib

import (
	"errors"
	"log"
	"net"
	"sync"
	"time"

	"github.com/TheSmallBoat/pullconn/dynbuf"
	"github.com/TheSmallBoat/pullconn/framing"
	"github.com/jpillora/backoff"
)

// Server runs one session per accepted connection: it reads chunks into a
// buffer, cuts framed units out of it with Scanner, and hands each unit to
// Handler.
type Server struct {
	Handler    Handler
	ConnState  ConnStateHandler
	HandShaker HandShaker
	Scanner    framing.Scanner // defaults to framing.NewDelimiterScanner()

	ReadBufferSize   int
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration

	// ProtocolErrorReply, if set, is written to the peer before the
	// connection is closed because Handler rejected a unit.
	ProtocolErrorReply []byte

	once sync.Once
	wg   sync.WaitGroup

	mu    sync.Mutex
	done  bool
	lns   map[net.Listener]struct{}
	conns map[*Conn]struct{}
}

func (s *Server) init() {
	s.once.Do(func() {
		if s.Handler == nil {
			s.Handler = DefaultHandler
		}
		if s.ConnState == nil {
			s.ConnState = DefaultConnStateHandler
		}
		if s.Scanner == nil {
			s.Scanner = framing.NewDelimiterScanner()
		}
		if s.HandshakeTimeout == 0 {
			s.HandshakeTimeout = 3 * time.Second
		}
		s.lns = make(map[net.Listener]struct{})
		s.conns = make(map[*Conn]struct{})
	})
}

// Serve accepts connections on ln until ln fails or the server shuts down.
// It returns nil if the server was shut down.
func (s *Server) Serve(ln net.Listener) error {
	s.init()

	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil
	}
	s.lns[ln] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.lns, ln)
		s.mu.Unlock()
	}()

	b := &backoff.Backoff{
		Factor: 2,
		Jitter: true,
		Min:    5 * time.Millisecond,
		Max:    1 * time.Second,
	}

	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.isShutdown() {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Temporary() {
				duration := b.Duration()
				log.Printf("accept error: %v; retrying in %s", err, duration)
				time.Sleep(duration)
				continue
			}
			return err
		}
		b.Reset()

		s.mu.Lock()
		if s.done {
			s.mu.Unlock()
			nc.Close()
			return nil
		}
		s.wg.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.wg.Done()
			s.handle(nc)
		}()
	}
}

func (s *Server) isShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Shutdown stops every Serve loop, closes all live connections and waits
// for their sessions to finish.
func (s *Server) Shutdown() {
	s.init()

	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	for ln := range s.lns {
		ln.Close()
	}
	conns := make([]*Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}

	s.wg.Wait()
}

func (s *Server) handle(nc net.Conn) {
	defer nc.Close()

	if s.HandShaker != nil {
		_ = nc.SetDeadline(time.Now().Add(s.HandshakeTimeout))
		hc, err := s.HandShaker.Handshake(nc)
		if err != nil {
			log.Printf("%s: handshake failed: %v", nc.RemoteAddr(), err)
			return
		}
		_ = nc.SetDeadline(zeroTime)
		nc = hc
	}

	t := NewStreamTransport(nc)
	t.ReadBufferSize = s.ReadBufferSize
	t.WriteTimeout = s.WriteTimeout

	conn := NewConn(t)
	conn.ReadTimeout = s.ReadTimeout
	defer conn.Close()

	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	s.ConnState.HandleConnState(conn, StateNew)
	defer s.ConnState.HandleConnState(conn, StateClosed)

	err := s.serveConn(conn)
	if err == nil || errors.Is(err, ErrConnClosed) {
		return
	}

	log.Printf("%s: session ended: %v", nc.RemoteAddr(), err)

	if errors.Is(err, ErrProtocolViolation) && len(s.ProtocolErrorReply) > 0 {
		_ = conn.Write(s.ProtocolErrorReply)
	}
}

func (s *Server) serveConn(conn *Conn) error {
	buf := bufferPool.acquire()
	defer bufferPool.release(buf)

	for {
		data, err := conn.Read()
		if err != nil {
			return err
		}
		if len(data) == 0 {
			return nil
		}

		buf.Append(data)

		if err := s.drain(conn, buf); err != nil {
			return err
		}
	}
}

// drain hands every complete unit in buf to the handler.
func (s *Server) drain(conn *Conn, buf *dynbuf.Buffer) error {
	for {
		n, err := s.Scanner.Scan(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		ctx := contextPool.acquire(conn, buf.Bytes()[:n])
		err = s.Handler.HandleMessage(ctx)
		werr := ctx.err
		contextPool.release(ctx)

		if err != nil {
			// a failed Reply is a transport error, not a rejected unit
			if werr != nil && errors.Is(err, werr) {
				return err
			}
			if errors.Is(err, ErrProtocolViolation) {
				return err
			}
			return &protocolError{err: err}
		}

		buf.Consume(n)
	}
}
