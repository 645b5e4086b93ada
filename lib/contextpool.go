package lib

import (
	"sync"
)

// Context carries one framed unit to a Handler.
type Context struct {
	conn *Conn
	buf  []byte
	err  error // last failed Reply
}

func (c *Context) Conn() *Conn { return c.conn }

// Body returns the framed unit, delimiter included. It is only valid until
// the handler returns.
func (c *Context) Body() []byte { return c.buf }

// Reply writes buf back to the peer and waits for the transport to accept it.
func (c *Context) Reply(buf []byte) error {
	err := c.conn.Write(buf)
	if err != nil {
		c.err = err
	}
	return err
}

type ContextPool struct {
	sp sync.Pool
	m  *PoolMetrics
}

func (p *ContextPool) acquire(conn *Conn, buf []byte) *Context {
	v := p.sp.Get()
	if v == nil {
		v = &Context{}
		p.m.acquired(false)
	} else {
		p.m.acquired(true)
	}
	ctx := v.(*Context)
	ctx.conn = conn
	ctx.buf = buf
	ctx.err = nil
	return ctx
}

func (p *ContextPool) release(ctx *Context) {
	ctx.conn = nil
	ctx.buf = nil
	ctx.err = nil
	p.sp.Put(ctx)
	p.m.released()
}
