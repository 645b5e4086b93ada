package lib

import (
	"fmt"
	"sync"
)

var timerPool = &TimerPool{sp: sync.Pool{}, m: newPoolMetrics()}
var contextPool = &ContextPool{sp: sync.Pool{}, m: newPoolMetrics()}
var pendingReadPool = &PendingReadPool{sp: sync.Pool{}, m: newPoolMetrics()}
var pendingWritePool = &PendingWritePool{sp: sync.Pool{}, m: newPoolMetrics()}
var bufferPool = &BufferPool{sp: sync.Pool{}, m: newPoolMetrics()}

func StartPoolMetrics() {
	timerPool.m.start()
	contextPool.m.start()
	pendingReadPool.m.start()
	pendingWritePool.m.start()
	bufferPool.m.start()
}

func ReleasePoolMetrics() {
	timerPool.m.release()
	contextPool.m.release()
	pendingReadPool.m.release()
	pendingWritePool.m.release()
	bufferPool.m.release()
}

func JsonStringPoolMetrics() string {
	return fmt.Sprintf("{\"timerPool\" = %s, \"contextPool\" = %s, \"pendingReadPool\" = %s, \"pendingWritePool\" = %s, \"bufferPool\" = %s}",
		timerPool.m.metricsString(),
		contextPool.m.metricsString(),
		pendingReadPool.m.metricsString(),
		pendingWritePool.m.metricsString(),
		bufferPool.m.metricsString(),
	)
}
