// Package relay interleaves local input with traffic on one transport
// endpoint: an input goroutine queues chunks of each line, and the relay
// loop alternates one socket read with one non-blocking poll of that queue.
package relay

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"echoplex/pkg/core/handoff"
	"echoplex/pkg/transcript"
	"echoplex/pkg/transport"
)

const defaultReadBuffer = 4096

type Options struct {
	// ReadBuffer is the size of each socket read
	ReadBuffer int
	// ReadTimeout bounds each socket read. Zero blocks until data arrives,
	// so queued input waits for inbound traffic.
	ReadTimeout time.Duration
}

// Relay owns ep for its lifetime.
type Relay struct {
	ep     transport.Endpoint
	input  *handoff.Queue[Chunk]
	out    *Printer
	record *transcript.Recorder
	opts   Options
	buf    []byte
}

func New(ep transport.Endpoint, input *handoff.Queue[Chunk], out *Printer, opts Options) *Relay {
	if opts.ReadBuffer <= 0 {
		opts.ReadBuffer = defaultReadBuffer
	}
	return &Relay{ep: ep, input: input, out: out, opts: opts, buf: make([]byte, opts.ReadBuffer)}
}

// WithTranscript records every chunk read from or written to the endpoint.
func (r *Relay) WithTranscript(rec *transcript.Recorder) *Relay {
	r.record = rec
	return r
}

// Run steps until a transport error. Cancelling ctx closes the endpoint to
// unblock a pending read; Run then returns ctx.Err().
func (r *Relay) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = r.ep.Close() })
	defer stop()
	for {
		if err := r.Step(); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

// Step performs one read and prints what arrived, then sends at most one
// queued chunk. io.EOF from the endpoint is returned unwrapped.
func (r *Relay) Step() error {
	if r.opts.ReadTimeout > 0 {
		if err := r.ep.SetReadDeadline(time.Now().Add(r.opts.ReadTimeout)); err != nil {
			return err
		}
	}
	n, err := r.ep.Read(r.buf)
	if err != nil && !transport.IsTimeout(err) {
		return err
	}
	if n > 0 {
		if err := r.out.Print(r.buf[:n]); err != nil {
			return fmt.Errorf("print: %w", err)
		}
		r.note(transcript.DirIn, r.buf[:n])
	}

	c, ok := r.input.TryPop()
	if !ok {
		return nil
	}
	if _, err := r.ep.Write(c.Bytes()); err != nil {
		return err
	}
	r.note(transcript.DirOut, c.Bytes())
	return nil
}

func (r *Relay) note(dir transcript.Direction, b []byte) {
	if r.record == nil {
		return
	}
	if err := r.record.Record(dir, b); err != nil {
		zap.L().Warn("transcript write failed", zap.Error(err))
	}
}
