// Package transcript records relay traffic to a file. Records are encoded
// with one of the codecs in pkg/protocol/codec. JSON records are newline
// delimited; CBOR and Protobuf records carry a 4-byte little-endian length
// prefix.
package transcript

import (
	"bufio"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"echoplex/pkg/protocol/codec"
)

// Direction tells whether a chunk was received from or sent to the remote.
type Direction string

const (
	DirIn  Direction = "in"
	DirOut Direction = "out"
)

// Record is one chunk of traffic.
type Record struct {
	Seq      uint64    `json:"seq" cbor:"seq"`
	Dir      Direction `json:"dir" cbor:"dir"`
	AtUnixMs int64     `json:"at_unix_ms" cbor:"at_unix_ms"`
	Data     []byte    `json:"data" cbor:"data"`
}

const maxFrame = 1 << 20

// ErrFrameTooLarge is returned by Reader.Next for a corrupt length prefix.
var ErrFrameTooLarge = errors.New("transcript: frame too large")

// Recorder appends records to w. It is safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	bw    *bufio.Writer
	codec codec.Codec
	seq   uint64
	now   func() time.Time
}

// New returns a Recorder writing with c.
func New(w io.Writer, c codec.Codec) *Recorder {
	return &Recorder{bw: bufio.NewWriter(w), codec: c, now: time.Now}
}

// Record encodes one chunk and flushes it. data is copied.
func (r *Recorder) Record(dir Direction, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	rec := Record{
		Seq:      r.seq,
		Dir:      dir,
		AtUnixMs: r.now().UnixMilli(),
		Data:     append([]byte(nil), data...),
	}
	b, err := marshal(r.codec, rec)
	if err != nil {
		return fmt.Errorf("transcript: encode record %d: %w", rec.Seq, err)
	}
	if err := writeFrame(r.bw, r.codec, b); err != nil {
		return err
	}
	return r.bw.Flush()
}

// Flush writes any buffered data.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bw.Flush()
}

// Reader decodes records written by a Recorder using the same codec.
type Reader struct {
	br    *bufio.Reader
	codec codec.Codec
}

func NewReader(r io.Reader, c codec.Codec) *Reader {
	return &Reader{br: bufio.NewReader(r), codec: c}
}

// Next returns the next record, or io.EOF at the end of the stream.
func (r *Reader) Next() (Record, error) {
	b, err := readFrame(r.br, r.codec)
	if err != nil {
		return Record{}, err
	}
	return unmarshal(r.codec, b)
}

func delimited(c codec.Codec) bool { return c.Name() == "json" }

func writeFrame(w *bufio.Writer, c codec.Codec, b []byte) error {
	if delimited(c) {
		if _, err := w.Write(b); err != nil {
			return err
		}
		return w.WriteByte('\n')
	}
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(b)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readFrame(br *bufio.Reader, c codec.Codec) ([]byte, error) {
	if delimited(c) {
		line, err := br.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && len(line) > 0 {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
		return line[:len(line)-1], nil
	}
	var hdr [4]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	if n > maxFrame {
		return nil, ErrFrameTooLarge
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(br, b); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return b, nil
}

// marshal handles the Protobuf codec, which needs a proto.Message, by going
// through structpb. Data is carried as base64 there.
func marshal(c codec.Codec, rec Record) ([]byte, error) {
	if c.Name() != "proto" {
		return c.Marshal(rec)
	}
	s, err := structpb.NewStruct(map[string]any{
		"seq":        float64(rec.Seq),
		"dir":        string(rec.Dir),
		"at_unix_ms": float64(rec.AtUnixMs),
		"data":       base64.StdEncoding.EncodeToString(rec.Data),
	})
	if err != nil {
		return nil, err
	}
	return c.Marshal(s)
}

func unmarshal(c codec.Codec, b []byte) (Record, error) {
	var rec Record
	if c.Name() != "proto" {
		err := c.Unmarshal(b, &rec)
		return rec, err
	}
	var s structpb.Struct
	if err := c.Unmarshal(b, &s); err != nil {
		return rec, err
	}
	f := s.GetFields()
	data, err := base64.StdEncoding.DecodeString(f["data"].GetStringValue())
	if err != nil {
		return rec, fmt.Errorf("transcript: data field: %w", err)
	}
	rec.Seq = uint64(f["seq"].GetNumberValue())
	rec.Dir = Direction(f["dir"].GetStringValue())
	rec.AtUnixMs = int64(f["at_unix_ms"].GetNumberValue())
	rec.Data = data
	return rec, nil
}
