package lib

import (
	"errors"
	"fmt"
	"math"
	"net"

	"github.com/TheSmallBoat/pullconn/framing"
	"github.com/lithdew/kademlia"
)

const maxHelloSize = 1024

var _ HandShaker = (*SignedHandShaker)(nil)

func GenerateSecretKey() kademlia.PrivateKey {
	_, secret, err := kademlia.GenerateKeys(nil)
	if err != nil {
		panic(err)
	}
	return secret
}

// SignedHandShaker exchanges signed HelloPackets with the peer before any
// framed traffic flows. Peers with a zero SecretKey stay anonymous.
// RequirePeerID rejects anonymous peers.
type SignedHandShaker struct {
	SecretKey     kademlia.PrivateKey
	RequirePeerID bool
}

// PeerConn is the net.Conn returned by SignedHandShaker.
type PeerConn struct {
	net.Conn
	Peer *kademlia.ID // nil if the peer is anonymous
}

func (h *SignedHandShaker) Handshake(conn net.Conn) (net.Conn, error) {
	hello, err := h.hello(conn)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Write(framing.AppendFrame(nil, hello.AppendTo(nil))); err != nil {
		return nil, fmt.Errorf("failed to send hello: %w", err)
	}

	scanner := framing.LengthPrefixScanner{MaxSize: maxHelloSize + framing.HeaderSize}
	buf, err := scanner.ReadUnit(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to read hello: %w", err)
	}

	peer, err := UnmarshalHelloPacket(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to decode hello: %w", err)
	}
	if err := peer.Validate(nil); err != nil {
		return nil, err
	}
	if h.RequirePeerID && peer.ID == nil {
		return nil, errors.New("peer did not identify itself")
	}

	return &PeerConn{Conn: conn, Peer: peer.ID}, nil
}

func (h *SignedHandShaker) hello(conn net.Conn) (HelloPacket, error) {
	var pkt HelloPacket
	if h.SecretKey == kademlia.ZeroPrivateKey {
		return pkt, nil
	}

	addr, ok := conn.LocalAddr().(*net.TCPAddr)
	if !ok {
		return pkt, fmt.Errorf("'%s' is not a tcp address", conn.LocalAddr())
	}
	if addr.Port <= 0 || addr.Port >= math.MaxUint16 {
		return pkt, fmt.Errorf("'%d' is an invalid port", addr.Port)
	}

	pkt.ID = &kademlia.ID{
		Pub:  h.SecretKey.Public(),
		Host: addr.IP,
		Port: uint16(addr.Port),
	}
	pkt.Signature = h.SecretKey.Sign(pkt.AppendPayloadTo(nil))
	return pkt, nil
}
