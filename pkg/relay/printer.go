package relay

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Format selects how received bytes are printed.
type Format int

const (
	// FormatQuoted prints each read as a Go-quoted string on its own line.
	FormatQuoted Format = iota
	FormatRaw
	// FormatHex prints a hex dump per read.
	FormatHex
)

func (f Format) String() string {
	switch f {
	case FormatRaw:
		return "raw"
	case FormatHex:
		return "hex"
	default:
		return "quoted"
	}
}

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "quoted":
		return FormatQuoted, nil
	case "raw":
		return FormatRaw, nil
	case "hex":
		return FormatHex, nil
	default:
		return FormatQuoted, fmt.Errorf("unknown output format %q", s)
	}
}

// Printer writes received bytes to w in one Format.
type Printer struct {
	w io.Writer
	f Format
}

func NewPrinter(w io.Writer, f Format) *Printer { return &Printer{w: w, f: f} }

func (p *Printer) Print(b []byte) error {
	var err error
	switch p.f {
	case FormatRaw:
		_, err = p.w.Write(b)
	case FormatHex:
		_, err = io.WriteString(p.w, hex.Dump(b))
	default:
		_, err = io.WriteString(p.w, strconv.Quote(string(b))+"\n")
	}
	return err
}
