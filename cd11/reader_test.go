package cd11

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seisnet/cd11streams/errors"
)

func TestFrameReaderSplitsStream(t *testing.T) {
	a := NewFrame("AAK", "0", 1, sampleDataFrame())
	a.Trailer.AuthValue = []byte("abcde")
	b := NewFrame("AAK", "0", 2, &Alert{Message: "bye"})

	var stream bytes.Buffer
	rawA, rawB := mustEncode(a), mustEncode(b)
	stream.Write(rawA)
	stream.Write(rawB)

	fr := NewFrameReader(&stream, 0)

	got, err := fr.Next()
	require.NoError(t, err)
	assert.Equal(t, rawA, got)

	got, err = fr.Next()
	require.NoError(t, err)
	assert.Equal(t, rawB, got)

	_, err = fr.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameReaderPassesUnknownTypesThrough(t *testing.T) {
	raw := mustEncode(NewFrame("AAK", "0", 1, &Alert{Message: "x"}))
	binary.BigEndian.PutUint32(raw[0:4], 77)

	got, err := NewFrameReader(bytes.NewReader(raw), 0).Next()
	require.NoError(t, err)
	assert.Equal(t, KindMalformed, NewDecoder().Decode(got).Kind())
}

func TestFrameReaderTruncatedStream(t *testing.T) {
	raw := mustEncode(NewFrame("AAK", "0", 1, &Alert{Message: "hello"}))
	for _, n := range []int{10, HeaderLength + 2, len(raw) - 1} {
		_, err := NewFrameReader(bytes.NewReader(raw[:n]), 0).Next()
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF, "prefix %d", n)
	}
}

func TestFrameReaderLosesSync(t *testing.T) {
	raw := mustEncode(NewFrame("AAK", "0", 1, &Alert{Message: "hello"}))

	small := append([]byte(nil), raw...)
	binary.BigEndian.PutUint32(small[4:8], 8)
	_, err := NewFrameReader(bytes.NewReader(small), 0).Next()
	assert.ErrorIs(t, err, errors.ErrFrameSync)
	assert.True(t, errors.IsFatal(err))

	_, err = NewFrameReader(bytes.NewReader(raw), 32).Next()
	assert.ErrorIs(t, err, errors.ErrFrameSync)

	negAuth := append([]byte(nil), raw...)
	trailerAt := int(binary.BigEndian.Uint32(raw[4:8]))
	binary.BigEndian.PutUint32(negAuth[trailerAt+4:], 0xffffffff)
	_, err = NewFrameReader(bytes.NewReader(negAuth), 0).Next()
	assert.ErrorIs(t, err, errors.ErrFrameSync)
}
