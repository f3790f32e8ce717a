package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mpmcore/mpmcore/snmp"
)

func startEchoAgent(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	go func() {
		buf := make([]byte, 65536)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			req, err := snmp.Parse(buf[:n])
			if err != nil {
				continue
			}
			resp := &snmp.PDU{
				Version:   req.Version,
				Community: req.Community,
				Command:   snmp.CmdGetResponse,
				RequestID: req.RequestID,
				Variables: req.Variables,
			}
			encoded, err := resp.Encode()
			if err != nil {
				continue
			}
			_, _ = conn.WriteToUDP(encoded, addr)
		}
	}()
	return conn
}

func TestDoRequestSuccess(t *testing.T) {
	require := require.New(t)
	agent := startEchoAgent(t)
	defer agent.Close()

	tr, err := Dial(agent.LocalAddr().String())
	require.NoError(err)
	defer tr.Close()

	oid, err := snmp.ParseOID("1.3.6.1.2.1.1.3.0")
	require.NoError(err)
	req := &snmp.PDU{
		Version:   snmp.VersionV2c,
		Community: "public",
		Command:   snmp.CmdGetRequest,
		RequestID: 7,
		Variables: []snmp.Variable{{OID: oid, Type: snmp.TypeNull}},
	}

	resp, err := tr.DoRequest(req, 2*time.Second, 3)
	require.NoError(err)
	require.Equal(int32(7), resp.RequestID)
}

func TestDoRequestTimeoutWithNoAgent(t *testing.T) {
	require := require.New(t)
	// Bind a socket that never replies to stand in for an unreachable peer.
	silent, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(err)
	defer silent.Close()

	tr, err := Dial(silent.LocalAddr().String())
	require.NoError(err)
	defer tr.Close()

	oid, err := snmp.ParseOID("1.3.6.1.2.1.1.3.0")
	require.NoError(err)
	req := &snmp.PDU{
		Version:   snmp.VersionV2c,
		Community: "public",
		Command:   snmp.CmdGetRequest,
		RequestID: 1,
		Variables: []snmp.Variable{{OID: oid, Type: snmp.TypeNull}},
	}

	start := time.Now()
	_, err = tr.DoRequest(req, 100*time.Millisecond, 3)
	require.ErrorIs(err, ErrTimeout)
	require.GreaterOrEqual(time.Since(start), 300*time.Millisecond)
}

func TestDoRequestRejectsZeroRetries(t *testing.T) {
	require := require.New(t)
	tr := &Transport{}
	_, err := tr.DoRequest(&snmp.PDU{}, time.Second, 0)
	require.ErrorIs(err, ErrParameter)
}
