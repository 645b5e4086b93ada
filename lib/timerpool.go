package lib

import (
	"sync"
	"time"
)

var zeroTime time.Time

type TimerPool struct {
	sp sync.Pool
	m  *PoolMetrics
}

func (p *TimerPool) acquire(timeout time.Duration) *time.Timer {
	v := p.sp.Get()
	if v == nil {
		p.m.acquired(false)
		return time.NewTimer(timeout)
	}
	p.m.acquired(true)
	t := v.(*time.Timer)
	t.Reset(timeout)
	return t
}

func (p *TimerPool) release(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	p.sp.Put(t)
	p.m.released()
}
