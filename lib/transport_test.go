package lib

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestStreamTransportBackpressure(t *testing.T) {
	defer goleak.VerifyNone(t)

	local, remote := net.Pipe()
	defer remote.Close()

	c := NewConn(NewStreamTransport(local))
	defer c.Close()

	written := make(chan error, 1)
	go func() {
		_, err := remote.Write([]byte("first"))
		written <- err
	}()

	// nothing reads from the pipe until Read resumes the transport
	select {
	case <-written:
		t.Fatal("transport consumed data without a pending read")
	case <-time.After(50 * time.Millisecond):
	}

	buf, err := c.Read()
	require.NoError(t, err)
	require.Equal(t, []byte("first"), buf)
	require.NoError(t, <-written)
}

func TestStreamTransportWriteAndEnd(t *testing.T) {
	defer goleak.VerifyNone(t)

	local, remote := net.Pipe()

	c := NewConn(NewStreamTransport(local))
	defer c.Close()

	received := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 5)
		_, _ = io.ReadFull(remote, buf)
		received <- buf
	}()

	require.NoError(t, c.Write([]byte("hello")))
	require.Equal(t, []byte("hello"), <-received)

	require.NoError(t, remote.Close())

	buf, err := c.Read()
	require.NoError(t, err)
	require.Len(t, buf, 0)
	require.Equal(t, StateEnded, c.State())
}

func TestStreamTransportCloseFailsWrites(t *testing.T) {
	defer goleak.VerifyNone(t)

	local, remote := net.Pipe()
	defer remote.Close()

	tr := NewStreamTransport(local)
	c := NewConn(tr)
	require.NoError(t, c.Close())

	done := make(chan error, 1)
	tr.Write([]byte("late"), func(err error) { done <- err })
	require.ErrorIs(t, <-done, net.ErrClosed)

	require.ErrorIs(t, c.Write([]byte("late")), ErrConnClosed)
}
