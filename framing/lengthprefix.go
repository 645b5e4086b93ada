package framing

import (
	"io"

	"github.com/TheSmallBoat/pullconn/dynbuf"
	"github.com/lithdew/bytesutil"
)

// HeaderSize is the size of the big-endian length prefix in front of every
// length-prefixed unit.
const HeaderSize = 4

var _ Scanner = (*LengthPrefixScanner)(nil)

// LengthPrefixScanner cuts units made of a 4-byte big-endian payload length
// followed by the payload. Reported units include the header; MaxSize bounds
// header plus payload.
type LengthPrefixScanner struct {
	MaxSize int // zero means DefaultMaxUnitSize
}

func (s *LengthPrefixScanner) Scan(buf *dynbuf.Buffer) (int, error) {
	b := buf.Bytes()
	if len(b) < HeaderSize {
		return 0, nil
	}

	size, err := s.unitSize(b)
	if err != nil {
		return 0, err
	}
	if len(b) < size {
		return 0, nil
	}
	return size, nil
}

// unitSize returns the size of the unit whose header starts b.
func (s *LengthPrefixScanner) unitSize(b []byte) (int, error) {
	max := s.MaxSize
	if max <= 0 {
		max = DefaultMaxUnitSize
	}

	size := uint64(bytesutil.Uint32BE(b[:HeaderSize])) + HeaderSize
	if size > uint64(max) {
		return 0, ErrOversizedUnit
	}
	return int(size), nil
}

// ReadUnit reads exactly one unit from r, never past its end, and returns
// its payload.
func (s *LengthPrefixScanner) ReadUnit(r io.Reader) ([]byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	size, err := s.unitSize(header[:])
	if err != nil {
		return nil, err
	}

	unit := make([]byte, size)
	copy(unit, header[:])
	if _, err := io.ReadFull(r, unit[HeaderSize:]); err != nil {
		return nil, err
	}
	return FramePayload(unit)
}

// AppendFrame appends payload to dst prefixed with its length.
func AppendFrame(dst, payload []byte) []byte {
	dst = bytesutil.AppendUint32BE(dst, uint32(len(payload)))
	dst = append(dst, payload...)
	return dst
}

// FramePayload strips the length prefix from a unit reported by a
// LengthPrefixScanner.
func FramePayload(unit []byte) ([]byte, error) {
	if len(unit) < HeaderSize {
		return nil, io.ErrUnexpectedEOF
	}
	size := bytesutil.Uint32BE(unit[:HeaderSize])
	unit = unit[HeaderSize:]
	if uint64(len(unit)) < uint64(size) {
		return nil, io.ErrUnexpectedEOF
	}
	return unit[:size], nil
}
