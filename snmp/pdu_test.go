package snmp

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mpmcore/mpmcore/ber"
)

func TestGetRequestRoundTrip(t *testing.T) {
	require := require.New(t)
	oid, err := ParseOID("1.3.6.1.2.1.1.3.0")
	require.NoError(err)

	pdu := &PDU{
		Version:   VersionV2c,
		Community: "public",
		Command:   CmdGetRequest,
		RequestID: 42,
		Variables: []Variable{{OID: oid, Type: TypeNull}},
	}
	encoded, err := pdu.Encode()
	require.NoError(err)

	decoded, err := Parse(encoded)
	require.NoError(err)
	require.Equal(pdu.Version, decoded.Version)
	require.Equal(pdu.Community, decoded.Community)
	require.Equal(pdu.Command, decoded.Command)
	require.Equal(pdu.RequestID, decoded.RequestID)
	require.Len(decoded.Variables, 1)
	require.True(decoded.Variables[0].OID.Equal(oid))
}

func TestTrapV1Normalization(t *testing.T) {
	require := require.New(t)
	enterprise, err := ParseOID("1.3.6.1.4.1.9")
	require.NoError(err)
	sysUpTime, err := ParseOID("1.3.6.1.2.1.1.3.0")
	require.NoError(err)

	pdu := &PDU{
		Version:      VersionV1,
		Community:    "public",
		Command:      CmdTrapV1,
		Enterprise:   enterprise,
		AgentAddr:    net.IPv4(10, 0, 0, 1),
		GenericType:  6,
		SpecificType: 100,
		Timestamp:    123456,
		Variables:    []Variable{NewUint(sysUpTime, TypeTimeTicks, 123456)},
	}
	encoded, err := pdu.Encode()
	require.NoError(err)

	decoded, err := Parse(encoded)
	require.NoError(err)
	require.Equal("1.3.6.1.4.1.9.0.100", decoded.Enterprise.String())
	require.Equal(int32(6), decoded.GenericType)
	require.Equal(int32(100), decoded.SpecificType)
	require.Equal("10.0.0.1", decoded.AgentAddr.String())
}

func TestTrapV2Normalization(t *testing.T) {
	require := require.New(t)
	sysUpTime, err := ParseOID("1.3.6.1.2.1.1.3.0")
	require.NoError(err)
	trapOID, err := ParseOID("1.3.6.1.6.3.1.1.5.3")
	require.NoError(err)

	pdu := &PDU{
		Version:   VersionV2c,
		Community: "public",
		Command:   CmdTrapV2,
		RequestID: 1,
		Variables: []Variable{
			NewUint(sysUpTime, TypeTimeTicks, 999),
			NewObjectID(ObjectID{1, 3, 6, 1, 6, 3, 1, 1, 4, 1, 0}, trapOID),
		},
	}
	encoded, err := pdu.Encode()
	require.NoError(err)

	decoded, err := Parse(encoded)
	require.NoError(err)
	require.Equal(int32(2), decoded.GenericType)
	require.Equal(int32(0), decoded.SpecificType)
	require.Equal("1.3.6.1.6.3.1.1.5", decoded.Enterprise.String())
}

func TestVariableAccessors(t *testing.T) {
	require := require.New(t)
	oid, err := ParseOID("1.3.6.1.2.1.2.2.1.6.1")
	require.NoError(err)
	mac := []byte{0x00, 0x1a, 0x2b, 0x3c, 0x4d, 0x5e}
	v := Variable{OID: oid, Type: TypeOctetString, Value: mac}
	got, err := v.AsMACAddress()
	require.NoError(err)
	require.Equal("00:1A:2B:3C:4D:5E", got)
}

func TestEncodeIntegerRoundTripThroughBER(t *testing.T) {
	require := require.New(t)
	enc := ber.EncodeInteger(-1)
	dec, err := ber.DecodeInteger(enc)
	require.NoError(err)
	require.Equal(int32(-1), int32(dec))
}
