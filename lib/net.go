package lib

import (
	"errors"
	"net"
)

var (
	ErrReadPending       = errors.New("read already pending on conn")
	ErrEmptyWrite        = errors.New("write of zero bytes")
	ErrReadTimeout       = errors.New("read timed out")
	ErrConnClosed        = errors.New("conn closed")
	ErrProtocolViolation = errors.New("protocol violation")
)

// protocolError is a unit rejected by a Handler. It matches both
// ErrProtocolViolation and the handler's own error.
type protocolError struct {
	err error
}

func (e *protocolError) Error() string        { return ErrProtocolViolation.Error() + ": " + e.err.Error() }
func (e *protocolError) Is(target error) bool { return target == ErrProtocolViolation }
func (e *protocolError) Unwrap() error        { return e.err }

type ConnState int

const (
	StateNew ConnState = iota
	StateClosed
)

type ConnStateHandler interface {
	HandleConnState(conn *Conn, state ConnState)
}

type ConnStateHandlerFunc func(conn *Conn, state ConnState)

func (fn ConnStateHandlerFunc) HandleConnState(conn *Conn, state ConnState) { fn(conn, state) }

var DefaultConnStateHandler ConnStateHandlerFunc = func(conn *Conn, state ConnState) {}

// Handler consumes one framed unit. A returned error is treated as a
// protocol violation and ends the session.
type Handler interface {
	HandleMessage(ctx *Context) error
}

type HandlerFunc func(ctx *Context) error

func (fn HandlerFunc) HandleMessage(ctx *Context) error { return fn(ctx) }

var DefaultHandler HandlerFunc = func(ctx *Context) error { return nil }

// EchoHandler replies to every unit with the unit itself.
var EchoHandler HandlerFunc = func(ctx *Context) error { return ctx.Reply(ctx.Body()) }

// HandShaker runs on a freshly accepted or dialed connection before any
// framed traffic flows over it.
type HandShaker interface {
	Handshake(conn net.Conn) (net.Conn, error)
}

type HandShakerFunc func(conn net.Conn) (net.Conn, error)

func (fn HandShakerFunc) Handshake(conn net.Conn) (net.Conn, error) { return fn(conn) }
