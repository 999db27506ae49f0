package main

import (
	"flag"
	"strings"
)

// Options holds CLI options for the interactive client.
type Options struct {
	ConfigPath string
	// Protocol: tcp, udp, or the one-letter forms t and u
	Protocol string
	// Format overrides client.format when set
	Format string
	// Transcript overrides client.transcript when set
	Transcript       string
	TranscriptFormat string

	Host string
	Port string
}

// ParseFlags parses CLI flags from args and returns Options.
func ParseFlags(args []string) Options {
	fs := flag.NewFlagSet("echoplex-cat", flag.ExitOnError)
	fs.Usage = func() {
		_, _ = fs.Output().Write([]byte("usage: echoplex-cat [flags] <host> <port>\n"))
		fs.PrintDefaults()
	}
	var opts Options
	fs.StringVar(&opts.ConfigPath, "config", "", "Path to YAML config file")
	fs.StringVar(&opts.Protocol, "p", "tcp", "Protocol: tcp (t) or udp (u)")
	fs.StringVar(&opts.Format, "format", "", "Output format: quoted, raw or hex")
	fs.StringVar(&opts.Transcript, "o", "", "Record all traffic to this file")
	fs.StringVar(&opts.TranscriptFormat, "o-format", "", "Transcript codec: json, cbor or proto")
	_ = fs.Parse(args)
	rest := fs.Args()
	if len(rest) > 0 {
		opts.Host = rest[0]
	}
	if len(rest) > 1 {
		opts.Port = rest[1]
	}
	return opts
}

// protocolName expands the one-letter protocol forms.
func protocolName(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "t":
		return "tcp"
	case "u":
		return "udp"
	}
	return s
}
