package main

import "flag"

// Options holds CLI options for the echo server.
type Options struct {
	ConfigPath string
	// Protocol is the first positional argument, validated by run
	Protocol string
	// Ports are the remaining positional arguments, unparsed
	Ports []string
}

// ParseFlags parses CLI flags from args and returns Options.
func ParseFlags(args []string) Options {
	fs := flag.NewFlagSet("echoplex-server", flag.ExitOnError)
	fs.Usage = func() {
		out := fs.Output()
		_, _ = out.Write([]byte("usage: echoplex-server [-config FILE] <tcp|udp> [port...]\n"))
		fs.PrintDefaults()
	}
	var opts Options
	fs.StringVar(&opts.ConfigPath, "config", "", "Path to YAML config file")
	_ = fs.Parse(args)
	if rest := fs.Args(); len(rest) > 0 {
		opts.Protocol = rest[0]
		opts.Ports = rest[1:]
	}
	return opts
}
