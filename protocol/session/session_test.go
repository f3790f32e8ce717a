package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mpmcore/mpmcore/protocol/mpm"
)

func pipePair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

// echoResponder reads one frame off conn and writes back a GetResponse-style
// reply correlated by the same id.
func echoResponder(t *testing.T, conn net.Conn, responseCode uint16) {
	t.Helper()
	go func() {
		header := make([]byte, mpm.HeaderSize)
		if _, err := ioReadFull(conn, header); err != nil {
			return
		}
		size := int(header[4])<<24 | int(header[5])<<16 | int(header[6])<<8 | int(header[7])
		body := make([]byte, size-mpm.HeaderSize)
		if _, err := ioReadFull(conn, body); err != nil {
			return
		}
		frame := append(header, body...)
		req, err := mpm.Parse(frame)
		if err != nil {
			return
		}
		resp := mpm.NewMessage(responseCode, req.ID, req.Version)
		resp.SetInt32(1, 200)
		raw, err := resp.Serialize(false)
		if err != nil {
			return
		}
		_, _ = conn.Write(raw)
	}()
}

func ioReadFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestSendRequestCorrelatesReply(t *testing.T) {
	require := require.New(t)
	client, server := pipePair(t)
	echoResponder(t, server, 100)

	sess := New(client, WithCommandTimeout(2*time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	req := mpm.NewMessage(50, 0, 5)
	reply, err := sess.SendRequest(req, 100)
	require.NoError(err)
	require.Equal(int32(200), reply.GetInt32(1))
}

func TestSendRequestTimesOutWithNoReply(t *testing.T) {
	require := require.New(t)
	client, server := pipePair(t)
	// Consume the request so Send completes and SendRequest reaches its wait.
	go func() { _, _ = ioReadFull(server, make([]byte, mpm.HeaderSize)) }()

	sess := New(client, WithCommandTimeout(100*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	req := mpm.NewMessage(50, 0, 5)
	_, err := sess.SendRequest(req, 100)
	require.Error(err)
}

func TestSendRequestFailsImmediatelyOnPeerClose(t *testing.T) {
	require := require.New(t)
	client, server := pipePair(t)
	// Consume the request so Send completes and SendRequest reaches its wait.
	go func() { _, _ = ioReadFull(server, make([]byte, mpm.HeaderSize)) }()

	sess := New(client, WithCommandTimeout(5*time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	done := make(chan struct{})
	var err error
	go func() {
		req := mpm.NewMessage(50, 0, 5)
		_, err = sess.SendRequest(req, 100)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	server.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SendRequest did not return after peer closed the connection")
	}
	require.Less(time.Since(start), time.Second)
	require.ErrorIs(err, errCommFailure)
}

func TestAsyncCodeRoutesToHandler(t *testing.T) {
	require := require.New(t)
	client, server := pipePair(t)

	received := make(chan *mpm.Message, 1)
	sess := New(client, WithAsyncHandler(func(msg *mpm.Message) {
		received <- msg
	}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	evt := mpm.NewMessage(CodeEvent, 1, 5)
	evt.SetString(1, "something-happened", 0)
	raw, err := evt.Serialize(false)
	require.NoError(err)
	_, err = server.Write(raw)
	require.NoError(err)

	select {
	case msg := <-received:
		require.Equal("something-happened", msg.GetString(1))
	case <-time.After(2 * time.Second):
		t.Fatal("async handler was never invoked")
	}
}
