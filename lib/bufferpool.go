package lib

import (
	"sync"

	"github.com/TheSmallBoat/pullconn/dynbuf"
)

// BufferPool recycles session buffers. A released buffer keeps its grown
// capacity for the next session.
type BufferPool struct {
	sp sync.Pool
	m  *PoolMetrics
}

func (p *BufferPool) acquire() *dynbuf.Buffer {
	v := p.sp.Get()
	if v == nil {
		v = &dynbuf.Buffer{}
		p.m.acquired(false)
	} else {
		p.m.acquired(true)
	}
	return v.(*dynbuf.Buffer)
}

func (p *BufferPool) release(buf *dynbuf.Buffer) {
	buf.Reset()
	p.sp.Put(buf)
	p.m.released()
}
