package transcript

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echoplex/pkg/protocol/codec"
)

func TestRecordsRoundTripThroughEachCodec(t *testing.T) {
	reg, err := codec.NewRegistry()
	require.NoError(t, err)

	for _, name := range []string{"json", "cbor", "proto"} {
		t.Run(name, func(t *testing.T) {
			c, err := reg.Lookup(name)
			require.NoError(t, err)

			var buf bytes.Buffer
			rec := New(&buf, c)
			at := time.UnixMilli(1700000000123)
			rec.now = func() time.Time { return at }

			require.NoError(t, rec.Record(DirOut, []byte("hello\n")))
			require.NoError(t, rec.Record(DirIn, []byte{0, 0xff, '\n', 7}))
			require.NoError(t, rec.Record(DirIn, nil))

			r := NewReader(&buf, c)
			first, err := r.Next()
			require.NoError(t, err)
			assert.Equal(t, uint64(1), first.Seq)
			assert.Equal(t, DirOut, first.Dir)
			assert.Equal(t, at.UnixMilli(), first.AtUnixMs)
			assert.Equal(t, []byte("hello\n"), first.Data)

			second, err := r.Next()
			require.NoError(t, err)
			assert.Equal(t, uint64(2), second.Seq)
			assert.Equal(t, DirIn, second.Dir)
			assert.Equal(t, []byte{0, 0xff, '\n', 7}, second.Data)

			third, err := r.Next()
			require.NoError(t, err)
			assert.Equal(t, uint64(3), third.Seq)
			assert.Empty(t, third.Data)

			_, err = r.Next()
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestRecorderCopiesData(t *testing.T) {
	var buf bytes.Buffer
	rec := New(&buf, codec.JSON())
	data := []byte("abc")
	require.NoError(t, rec.Record(DirOut, data))
	data[0] = 'z'

	got, err := NewReader(&buf, codec.JSON()).Next()
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got.Data)
}

func TestReaderRejectsTruncatedFrame(t *testing.T) {
	c, err := codec.CBOR()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, New(&buf, c).Record(DirIn, []byte("payload")))
	truncated := buf.Bytes()[:buf.Len()-2]

	_, err = NewReader(bytes.NewReader(truncated), c).Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReaderRejectsOversizedFrame(t *testing.T) {
	c, err := codec.CBOR()
	require.NoError(t, err)
	_, err = NewReader(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff}), c).Next()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}
