package framing

import (
	"errors"

	"github.com/TheSmallBoat/pullconn/dynbuf"
)

// DefaultMaxUnitSize is the largest unit a scanner accepts unless configured otherwise.
const DefaultMaxUnitSize = 8 * 1024

// DefaultDelimiter ends a block of protocol headers.
var DefaultDelimiter = []byte("\r\n\r\n")

var (
	ErrOversizedUnit    = errors.New("framing: unit exceeds maximum size")
	ErrInvalidDelimiter = errors.New("framing: empty delimiter")
)

// Scanner finds the first complete unit at the front of a buffer.
//
// Scan returns n > 0 when a unit of n bytes is fully buffered; the caller
// consumes it from the buffer. n == 0 with a nil error means more data is
// needed. A non-nil error is fatal for the stream. Scan never consumes and
// reports at most one unit per call, so callers loop until n == 0.
type Scanner interface {
	Scan(buf *dynbuf.Buffer) (n int, err error)
}

type ScannerFunc func(buf *dynbuf.Buffer) (int, error)

func (fn ScannerFunc) Scan(buf *dynbuf.Buffer) (int, error) { return fn(buf) }
