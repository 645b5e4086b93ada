package framing

import "github.com/TheSmallBoat/pullconn/dynbuf"

var _ Scanner = (*DelimiterScanner)(nil)

// DelimiterScanner cuts units that end with Delimiter. Units include the
// delimiter.
type DelimiterScanner struct {
	Delimiter []byte
	MaxSize   int // zero means DefaultMaxUnitSize
}

func NewDelimiterScanner() *DelimiterScanner {
	return &DelimiterScanner{Delimiter: DefaultDelimiter, MaxSize: DefaultMaxUnitSize}
}

func (s *DelimiterScanner) maxSize() int {
	if s.MaxSize <= 0 {
		return DefaultMaxUnitSize
	}
	return s.MaxSize
}

func (s *DelimiterScanner) Scan(buf *dynbuf.Buffer) (int, error) {
	if len(s.Delimiter) == 0 {
		return 0, ErrInvalidDelimiter
	}

	max := s.maxSize()

	idx := buf.Index(s.Delimiter)
	if idx < 0 {
		if buf.Len() >= max {
			return 0, ErrOversizedUnit
		}
		return 0, nil
	}

	n := idx + len(s.Delimiter)
	if n > max {
		return 0, ErrOversizedUnit
	}
	return n, nil
}
