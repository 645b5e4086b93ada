package lib

import (
	"errors"
	"io"

	"github.com/lithdew/kademlia"
)

// HelloPacket is exchanged by SignedHandShaker. It carries the sender's
// identity and a signature over it.
type HelloPacket struct {
	ID        *kademlia.ID
	Signature kademlia.Signature
}

func (h HelloPacket) AppendPayloadTo(dst []byte) []byte {
	return h.ID.AppendTo(dst)
}

func (h HelloPacket) AppendTo(dst []byte) []byte {
	if h.ID != nil {
		dst = append(dst, 1)
		dst = h.ID.AppendTo(dst)
		dst = append(dst, h.Signature[:]...)
	} else {
		dst = append(dst, 0)
	}
	return dst
}

func UnmarshalHelloPacket(buf []byte) (HelloPacket, error) {
	var pkt HelloPacket

	if len(buf) < 1 {
		return pkt, io.ErrUnexpectedEOF
	}

	hasID := buf[0] == 1
	buf = buf[1:]

	if !hasID {
		return pkt, nil
	}

	id, leftover, err := kademlia.UnmarshalID(buf)
	if err != nil {
		return pkt, err
	}
	pkt.ID = &id
	buf = leftover

	if len(buf) < kademlia.SizeSignature {
		return pkt, io.ErrUnexpectedEOF
	}
	copy(pkt.Signature[:], buf[:kademlia.SizeSignature])

	return pkt, nil
}

// Validate checks the identity and its signature. dst is scratch space for
// rebuilding the signed payload.
func (h HelloPacket) Validate(dst []byte) error {
	if h.ID == nil {
		return nil
	}
	if err := h.ID.Validate(); err != nil {
		return err
	}
	if !h.Signature.Verify(h.ID.Pub, h.AppendPayloadTo(dst)) {
		return errors.New("signature is malformed")
	}
	return nil
}
