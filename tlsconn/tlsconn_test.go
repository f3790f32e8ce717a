package tlsconn

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// selfSignedCert builds a throwaway certificate for a test TLS server; the
// client side never verifies it (see tlsconn.go), so it only needs to be
// well-formed.
func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "tlsconn-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

func tlsEchoServer(t *testing.T) string {
	t.Helper()
	cert := selfSignedCert(t)
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{cert}})
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 256)
				for {
					n, err := c.Read(buf)
					if err != nil {
						return
					}
					if _, err := c.Write(buf[:n]); err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func plainEchoServer(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 256)
				for {
					n, err := c.Read(buf)
					if err != nil {
						return
					}
					if _, err := c.Write(buf[:n]); err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func TestConnectWithTLSRoundTrips(t *testing.T) {
	require := require.New(t)
	addr := tlsEchoServer(t)

	c, err := Connect("tcp", addr, true, time.Second, "", "test")
	require.NoError(err)
	defer c.Close()
	require.True(c.IsTLS())

	_, err = c.Write([]byte("hello"), time.Second)
	require.NoError(err)

	buf := make([]byte, 16)
	n, err := c.Read(buf, time.Second)
	require.NoError(err)
	require.Equal("hello", string(buf[:n]))
}

func TestStartTLSIsIdempotent(t *testing.T) {
	require := require.New(t)
	addr := tlsEchoServer(t)

	c, err := Connect("tcp", addr, true, time.Second, "", "test")
	require.NoError(err)
	defer c.Close()

	require.NoError(c.StartTLS(time.Second, ""))
	require.True(c.IsTLS())
}

func TestStartTLSOverPlainConnection(t *testing.T) {
	require := require.New(t)
	addr := tlsEchoServer(t)

	c, err := Connect("tcp", addr, false, time.Second, "", "test")
	require.NoError(err)
	defer c.Close()
	require.False(c.IsTLS())

	require.NoError(c.StartTLS(time.Second, "example.test"))
	require.True(c.IsTLS())

	_, err = c.Write([]byte("after-upgrade"), time.Second)
	require.NoError(err)
	buf := make([]byte, 32)
	n, err := c.Read(buf, time.Second)
	require.NoError(err)
	require.Equal("after-upgrade", string(buf[:n]))
}

func TestStartTLSAgainstNonTLSPeerFailsButKeepsSocketOpen(t *testing.T) {
	require := require.New(t)
	addr := plainEchoServer(t)

	c, err := Connect("tcp", addr, false, time.Second, "", "test")
	require.NoError(err)
	defer c.Close()

	err = c.StartTLS(300*time.Millisecond, "")
	require.Error(err)
	require.ErrorIs(err, ErrHandshakeFailed)
	require.False(c.IsTLS())

	// The raw connection survives the failed handshake and can still be
	// used directly.
	_, err = c.Write([]byte("still-here"), time.Second)
	require.NoError(err)
}

func TestOperationsBeforeConnectFail(t *testing.T) {
	require := require.New(t)
	c := &Conn{}
	_, err := c.Read(make([]byte, 1), time.Second)
	require.ErrorIs(err, ErrNotConnected)
}
