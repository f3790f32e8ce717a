package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUint32RoundTrip(t *testing.T) {
	assert := assert.New(t)
	w := NewWriter()
	w.WriteUint32(0xdeadbeef, Big)
	r := NewReader(w.Bytes())
	v, err := r.ReadUint32(Big)
	assert.NoError(err)
	assert.Equal(uint32(0xdeadbeef), v)
	assert.True(r.Eos())
}

func TestUint64LittleEndian(t *testing.T) {
	assert := assert.New(t)
	w := NewWriter()
	w.WriteUint64(0x0102030405060708, Little)
	assert.Equal([]byte{8, 7, 6, 5, 4, 3, 2, 1}, w.Bytes())
}

func TestVarintRoundTrip(t *testing.T) {
	require := require.New(t)
	cases := []int64{0, 1, -1, 127, -128, 1 << 40, -(1 << 40)}
	w := NewWriter()
	for _, c := range cases {
		w.WriteVarint(c)
	}
	r := NewReader(w.Bytes())
	for _, c := range cases {
		v, err := r.ReadVarint()
		require.NoError(err)
		require.Equal(c, v)
	}
}

func TestReadPastEndFails(t *testing.T) {
	assert := assert.New(t)
	r := NewReader([]byte{1, 2})
	_, err := r.ReadUint32(Big)
	assert.ErrorIs(err, ErrFormat)
}

func TestSeekEnd(t *testing.T) {
	assert := assert.New(t)
	r := NewReader([]byte{1, 2, 3, 4})
	assert.NoError(r.Seek(-2, SeekEnd))
	assert.Equal(2, r.Pos())
}

func TestStringUCS2RoundTrip(t *testing.T) {
	assert := assert.New(t)
	w := NewWriter()
	assert.NoError(w.WriteString("hello", UCS2, 0))
	r := NewReader(w.Bytes())
	got, err := r.ReadString(UCS2)
	assert.NoError(err)
	assert.Equal("hello", got)
}

func TestStringUTF8RoundTrip(t *testing.T) {
	assert := assert.New(t)
	w := NewWriter()
	assert.NoError(w.WriteString("héllo→", UTF8, 0))
	r := NewReader(w.Bytes())
	got, err := r.ReadString(UTF8)
	assert.NoError(err)
	assert.Equal("héllo→", got)
}

func TestStringMaxLenTruncates(t *testing.T) {
	assert := assert.New(t)
	w := NewWriter()
	assert.NoError(w.WriteString("abcdef", UTF8, 3))
	r := NewReader(w.Bytes())
	got, err := r.ReadString(UTF8)
	assert.NoError(err)
	assert.Equal("abc", got)
}

func TestLongFormLengthPrefix(t *testing.T) {
	assert := assert.New(t)
	big := make([]byte, 70000)
	for i := range big {
		big[i] = 'x'
	}
	w := NewWriter()
	assert.NoError(w.WriteString(string(big), UTF8, 0))
	r := NewReader(w.Bytes())
	got, err := r.ReadString(UTF8)
	assert.NoError(err)
	assert.Len(got, 70000)
}
