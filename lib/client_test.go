package lib

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TheSmallBoat/pullconn/framing"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestClientHandshakeTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	client := &Client{
		Addr:             ln.Addr().String(),
		HandShaker:       &SignedHandShaker{SecretKey: GenerateSecretKey()},
		HandshakeTimeout: 1 * time.Millisecond,
	}

	attempts := 16

	var wg sync.WaitGroup
	wg.Add(1)

	var mu sync.Mutex
	var accepted []net.Conn

	go func() {
		defer wg.Done()
		for i := 0; i < attempts; i++ {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			accepted = append(accepted, conn)
			mu.Unlock()
		}
	}()

	defer func() {
		client.Shutdown()
		require.NoError(t, ln.Close())
		wg.Wait()

		mu.Lock()
		for _, conn := range accepted {
			conn.Close()
		}
		mu.Unlock()
	}()

	for i := 0; i < attempts; i++ {
		_, err := client.Request(nil, []byte("hello\r\n\r\n"))
		require.Error(t, err)
	}
}

func TestClientRequest(t *testing.T) {
	defer goleak.VerifyNone(t)

	n := 4
	m := 256
	c := uint32(n * m * 2)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	handler := func(ctx *Context) error {
		atomic.AddUint32(&c, ^uint32(0))
		return ctx.Reply([]byte("a reply!\r\n\r\n"))
	}

	var server Server
	server.Handler = HandlerFunc(handler)

	client := &Client{Addr: ln.Addr().String()}

	go func() {
		require.NoError(t, server.Serve(ln))
	}()

	defer func() {
		client.Shutdown()
		server.Shutdown()

		require.EqualValues(t, 0, atomic.LoadUint32(&c))
	}()

	var wg sync.WaitGroup
	wg.Add(n)

	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			for j := 0; j < m; j++ {
				res, err := client.Request(nil, []byte(fmt.Sprintf("[%d] hello %d\r\n\r\n", i, j)))
				require.NoError(t, err)
				require.EqualValues(t, []byte("a reply!\r\n\r\n"), res)
				atomic.AddUint32(&c, ^uint32(0))
			}
		}(i)
	}

	wg.Wait()

	t.Logf("Timer Pool => %s", timerPool.m.metricsString())
	t.Logf("Context Pool => %s", contextPool.m.metricsString())
	t.Logf("PendingRead Pool => %s", pendingReadPool.m.metricsString())
	t.Logf("PendingWrite Pool => %s", pendingWritePool.m.metricsString())
	t.Logf("Buffer Pool => %s", bufferPool.m.metricsString())
}

func TestClientSignedHandshake(t *testing.T) {
	defer goleak.VerifyNone(t)

	serverKey := GenerateSecretKey()
	clientKey := GenerateSecretKey()

	peers := make(chan *PeerConn, 1)

	handShaker := &SignedHandShaker{SecretKey: serverKey, RequirePeerID: true}

	srv := &Server{
		Handler: EchoHandler,
		HandShaker: HandShakerFunc(func(conn net.Conn) (net.Conn, error) {
			hc, err := handShaker.Handshake(conn)
			if err == nil {
				peers <- hc.(*PeerConn)
			}
			return hc, err
		}),
	}
	addr, stop := startServer(t, srv)
	defer stop()

	client := &Client{Addr: addr, HandShaker: &SignedHandShaker{SecretKey: clientKey}}
	defer client.Shutdown()

	res, err := client.Request(nil, []byte("who are you?\r\n\r\n"))
	require.NoError(t, err)
	require.Equal(t, "who are you?\r\n\r\n", string(res))

	peer := <-peers
	require.NotNil(t, peer.Peer)
	require.Equal(t, clientKey.Public(), peer.Peer.Pub)
}

func TestClientAnonymousPeerRejected(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv := &Server{
		Handler:    EchoHandler,
		HandShaker: &SignedHandShaker{SecretKey: GenerateSecretKey(), RequirePeerID: true},
	}
	addr, stop := startServer(t, srv)
	defer stop()

	client := &Client{Addr: addr, HandShaker: &SignedHandShaker{}, ReadTimeout: 2 * time.Second}
	defer client.Shutdown()

	_, err := client.Request(nil, []byte("hi\r\n\r\n"))
	require.Error(t, err)
}

func TestClientLengthPrefixedRequest(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv := &Server{
		Scanner: &framing.LengthPrefixScanner{},
		Handler: HandlerFunc(func(ctx *Context) error {
			payload, err := framing.FramePayload(ctx.Body())
			if err != nil {
				return err
			}
			return ctx.Reply(framing.AppendFrame(nil, append([]byte("echo: "), payload...)))
		}),
	}
	addr, stop := startServer(t, srv)
	defer stop()

	client := &Client{Addr: addr, Scanner: &framing.LengthPrefixScanner{}}
	defer client.Shutdown()

	for i := 0; i < 8; i++ {
		res, err := client.Request(nil, framing.AppendFrame(nil, []byte(fmt.Sprintf("msg %d", i))))
		require.NoError(t, err)

		payload, err := framing.FramePayload(res)
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("echo: msg %d", i), string(payload))
	}
}

func TestClientReconnectsAfterServerClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	srv := &Server{
		Scanner: &framing.DelimiterScanner{Delimiter: []byte("\n"), MaxSize: 16},
		Handler: EchoHandler,
	}
	addr, stop := startServer(t, srv)
	defer stop()

	client := &Client{
		Addr:         addr,
		Scanner:      &framing.DelimiterScanner{Delimiter: []byte("\n")},
		DialAttempts: 3,
	}
	defer client.Shutdown()

	res, err := client.Request(nil, []byte("short\n"))
	require.NoError(t, err)
	require.Equal(t, "short\n", string(res))

	// oversized for the server, which drops the connection
	_, err = client.Request(nil, []byte("this line is far too long\n"))
	require.Error(t, err)

	res, err = client.Request(res, []byte("again\n"))
	require.NoError(t, err)
	require.Equal(t, "again\n", string(res))
}

func TestClientShutdown(t *testing.T) {
	client := &Client{Addr: "127.0.0.1:1"}
	client.Shutdown()

	_, err := client.Request(nil, []byte("x\r\n\r\n"))
	require.ErrorIs(t, err, ErrClientShutdown)
}

func BenchmarkRequest(b *testing.B) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(b, err)

	var server Server
	server.Handler = EchoHandler

	client := &Client{Addr: ln.Addr().String()}

	go func() {
		require.NoError(b, server.Serve(ln))
	}()

	defer func() {
		client.Shutdown()
		server.Shutdown()
	}()

	buf := make([]byte, 1400)
	_, err = rand.Read(buf)
	require.NoError(b, err)
	for i := range buf {
		if buf[i] == '\r' || buf[i] == '\n' {
			buf[i] = 'x'
		}
	}
	buf = append(buf, framing.DefaultDelimiter...)

	var res []byte

	b.SetBytes(int64(len(buf)))
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		res, err = client.Request(res, buf)
		if err != nil {
			b.Fatal(err)
		}
		if len(res) != len(buf) {
			b.Fatalf("expected %d byte response, got %d", len(buf), len(res))
		}
	}
}
