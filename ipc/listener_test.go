package ipc

import (
	"fmt"
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func uniqueName(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("mpmcore-test-%d-%d", time.Now().UnixNano(), rand.Int())
}

func TestListenerAcceptsAndEchoes(t *testing.T) {
	require := require.New(t)
	name := uniqueName(t)

	l := NewListener(name)
	require.NoError(l.Listen())
	defer l.Close()

	go l.Serve(func(conn net.Conn, peerUID uint32) {
		buf := make([]byte, 64)
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		conn.Write(buf[:n])
	})

	conn, err := Dial(name)
	require.NoError(err)
	defer conn.Close()

	_, err = conn.Write([]byte("ping"))
	require.NoError(err)

	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	require.NoError(err)
	require.Equal("ping", string(buf[:n]))
}

func TestListenerRejectsDisallowedUID(t *testing.T) {
	require := require.New(t)
	name := uniqueName(t)

	l := NewListener(name)
	l.AllowedUID = -2 // no real process has this uid
	require.NoError(l.Listen())
	defer l.Close()

	go l.Serve(func(conn net.Conn, peerUID uint32) {
		conn.Write([]byte("should not run"))
	})

	conn, err := Dial(name)
	require.NoError(err)
	defer conn.Close()

	buf := make([]byte, 16)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = conn.Read(buf)
	require.Error(err) // connection closed by the listener before any write
}
