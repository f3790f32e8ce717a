package mpm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderAndInt32FieldRoundTrip(t *testing.T) {
	require := require.New(t)

	m := NewMessage(0x0042, 17, 4)
	m.SetInt32(1, 9)

	raw, err := m.Serialize(false)
	require.NoError(err)

	// Pinned by the worked scenario this format was specified against:
	// header 00 42 40 00 00 00 00 20 00 00 00 11 00 00 00 01
	// followed by field 00 00 00 01 04 00 00 00 00 00 00 09 00 00 00 00
	expected := []byte{
		0x00, 0x42, 0x40, 0x00, 0x00, 0x00, 0x00, 0x20, 0x00, 0x00, 0x00, 0x11, 0x00, 0x00, 0x00, 0x01,
		0x00, 0x00, 0x00, 0x01, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x09, 0x00, 0x00, 0x00, 0x00,
	}
	require.Equal(expected, raw)

	parsed, err := Parse(raw)
	require.NoError(err)
	require.False(parsed.Invalid)
	require.Equal(uint16(0x0042), parsed.Code)
	require.Equal(uint32(17), parsed.ID)
	require.Equal(byte(4), parsed.Version)
	require.Equal(int32(9), parsed.GetInt32(1))
}

func TestStringFieldRoundTrip(t *testing.T) {
	require := require.New(t)

	m := NewMessage(1, 1, 4)
	m.SetString(1, "abc", 0)
	m.SetUTF8String(2, "héllo", 0)

	raw, err := m.Serialize(false)
	require.NoError(err)

	parsed, err := Parse(raw)
	require.NoError(err)
	require.False(parsed.Invalid)
	require.Equal("abc", parsed.GetString(1))
	require.Equal("héllo", parsed.GetString(2))
}

func TestBinaryMessageRoundTrip(t *testing.T) {
	require := require.New(t)

	payload := []byte("opaque-blob-data")
	m := NewBinaryMessage(5, 2, 4, payload)

	raw, err := m.Serialize(false)
	require.NoError(err)

	parsed, err := Parse(raw)
	require.NoError(err)
	require.True(parsed.IsBinary())
	require.Equal(payload, parsed.BinaryPayload)
}

func TestControlMessageRoundTrip(t *testing.T) {
	require := require.New(t)

	m := NewControlMessage(9, 3, 4, 0xDEADBEEF)
	raw, err := m.Serialize(false)
	require.NoError(err)

	parsed, err := Parse(raw)
	require.NoError(err)
	require.True(parsed.IsControl())
	require.Equal(uint32(0xDEADBEEF), parsed.ControlCode)
}

func TestCompressionAppliesOnlyWhenItShrinks(t *testing.T) {
	require := require.New(t)

	m := NewMessage(1, 1, 4)
	// Highly repetitive payload: large enough to trigger the >128-byte gate
	// and compressible enough to actually shrink.
	m.SetBinary(1, nil)
	m.SetString(2, stringsRepeat("a", 400), 0)

	raw, err := m.Serialize(true)
	require.NoError(err)

	parsed, err := Parse(raw)
	require.NoError(err)
	require.True(parsed.HasFlag(FlagCompressed))
	require.False(parsed.Invalid)
	require.Equal(stringsRepeat("a", 400), parsed.GetString(2))
}

func TestInvalidFieldBoundsMarksMessageInvalid(t *testing.T) {
	require := require.New(t)

	// A structured frame whose declared field count doesn't match the
	// bytes actually present.
	raw := []byte{
		0x00, 0x01, 0x40, 0x00, 0x00, 0x00, 0x00, 0x18, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x02,
		0x00, 0x00, 0x00, 0x01, 0x04, 0x00, 0x00, 0x00,
	}
	parsed, err := Parse(raw)
	require.NoError(err)
	require.True(parsed.Invalid)
}

func TestProtocolVersionDowngradeConvertsUTF8ToString(t *testing.T) {
	require := require.New(t)

	m := NewMessage(1, 1, 5)
	m.SetUTF8String(1, "hello", 0)
	m.SetProtocolVersion(4)

	f := m.GetField(1)
	require.Equal(TypeString, f.Type)
}

func stringsRepeat(s string, n int) string {
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
