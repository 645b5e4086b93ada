package lib

import "sync"

type readResult struct {
	buf []byte
	err error
}

// pendingRead is the single waiting-reader slot of a Conn. Whoever clears the
// slot owns the right to resolve it, so ch never holds more than one result.
type pendingRead struct {
	ch chan readResult
}

func (pr *pendingRead) resolve(buf []byte) { pr.ch <- readResult{buf: buf} }
func (pr *pendingRead) reject(err error)   { pr.ch <- readResult{err: err} }

type PendingReadPool struct {
	sp sync.Pool
	m  *PoolMetrics
}

func (p *PendingReadPool) acquire() *pendingRead {
	v := p.sp.Get()
	if v == nil {
		v = &pendingRead{ch: make(chan readResult, 1)}
		p.m.acquired(false)
	} else {
		p.m.acquired(true)
	}
	return v.(*pendingRead)
}

// release must only be called once the slot's result has been received.
func (p *PendingReadPool) release(pr *pendingRead) {
	p.sp.Put(pr)
	p.m.released()
}
