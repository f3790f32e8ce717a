package ber

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeIdentifierShortForm(t *testing.T) {
	assert := assert.New(t)
	tag, length, content, hdr, err := DecodeIdentifier([]byte{0x02, 0x01, 0x05})
	assert.NoError(err)
	assert.Equal(byte(TagInteger), tag)
	assert.Equal(1, length)
	assert.Equal([]byte{0x05}, content)
	assert.Equal(2, hdr)
}

func TestDecodeIdentifierLongForm(t *testing.T) {
	assert := assert.New(t)
	data := append([]byte{0x04, 0x81, 0x80}, make([]byte, 128)...)
	_, length, content, hdr, err := DecodeIdentifier(data)
	assert.NoError(err)
	assert.Equal(128, length)
	assert.Len(content, 128)
	assert.Equal(3, hdr)
}

func TestDecodeIdentifierRejectsMultiByteTag(t *testing.T) {
	assert := assert.New(t)
	_, _, _, _, err := DecodeIdentifier([]byte{0x1F, 0x00})
	assert.ErrorIs(err, ErrMultiByteTag)
}

func TestIntegerRoundTrip(t *testing.T) {
	require := require.New(t)
	for _, v := range []int32{0, 1, -1, 127, -128, 128, -129, 1 << 20, -(1 << 20)} {
		enc := EncodeInteger(v)
		require.LessOrEqual(len(enc), 5)
		dec, err := DecodeInteger(enc)
		require.NoError(err)
		require.Equal(v, int32(dec))
	}
}

func TestUnsignedEncodeAddsSignPad(t *testing.T) {
	assert := assert.New(t)
	enc := EncodeUnsigned(0x80000001)
	assert.Equal([]byte{0x00, 0x80, 0x00, 0x00, 0x01}, enc)
	dec, err := DecodeInteger(enc)
	assert.NoError(err)
	assert.Equal(uint32(0x80000001), dec)
}

func TestCounter64RoundTrip(t *testing.T) {
	require := require.New(t)
	for _, v := range []uint64{0, 1, 1 << 40, 1<<64 - 1} {
		enc := EncodeCounter64(v)
		require.LessOrEqual(len(enc), 9)
		dec, err := DecodeCounter64(enc)
		require.NoError(err)
		require.Equal(v, dec)
	}
}

func TestObjectIDRoundTrip(t *testing.T) {
	require := require.New(t)
	oid := []uint32{1, 3, 6, 1, 4, 1, 9, 0, 100}
	enc := EncodeObjectID(oid)
	dec, err := DecodeObjectID(enc)
	require.NoError(err)
	require.Equal(oid, dec)
}

func TestObjectIDShortRoundTripsEmpty(t *testing.T) {
	assert := assert.New(t)
	assert.Nil(EncodeObjectID([]uint32{1}))
}

func TestEncodeBufferTooSmall(t *testing.T) {
	assert := assert.New(t)
	buf := make([]byte, 1)
	_, err := Encode(buf, TagInteger, []byte{1, 2, 3})
	assert.ErrorIs(err, ErrBufferTooSmall)
}

func TestEncodeLongLength(t *testing.T) {
	assert := assert.New(t)
	content := make([]byte, 300)
	buf := make([]byte, 400)
	n, err := Encode(buf, TagOctetString, content)
	assert.NoError(err)
	tag, length, got, hdr, err := DecodeIdentifier(buf[:n])
	assert.NoError(err)
	assert.Equal(byte(TagOctetString), tag)
	assert.Equal(300, length)
	assert.Equal(content, got)
	assert.Equal(4, hdr)
}
