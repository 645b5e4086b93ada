package lib

import (
	"sync"

	"github.com/valyala/bytebufferpool"
)

type pendingWrite struct {
	buf *bytebufferpool.ByteBuffer // payload
	err error                      // keeps track of any socket errors on write
	wg  sync.WaitGroup             // signals the caller that this write is complete
}

func (pw *pendingWrite) done(err error) {
	pw.err = err
	pw.wg.Done()
}

type PendingWritePool struct {
	sp sync.Pool
	m  *PoolMetrics
}

func (p *PendingWritePool) acquire(payload []byte) *pendingWrite {
	v := p.sp.Get()
	if v == nil {
		v = &pendingWrite{}
		p.m.acquired(false)
	} else {
		p.m.acquired(true)
	}

	pw := v.(*pendingWrite)
	pw.buf = bytebufferpool.Get()
	pw.buf.B = append(pw.buf.B[:0], payload...)
	pw.err = nil
	pw.wg.Add(1)
	return pw
}

func (p *PendingWritePool) release(pw *pendingWrite) {
	bytebufferpool.Put(pw.buf)
	pw.buf = nil
	pw.err = nil
	p.sp.Put(pw)
	p.m.released()
}
