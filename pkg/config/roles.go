package config

import (
	"fmt"
	"strings"
	"time"
)

// ServerConfig tunes the echo server. Example YAML:
//
//	server:
//	  service_buffer: 10
//	  poll_timeout: 1ms
//	  peer_errors: drop
type ServerConfig struct {
	// ServiceBuffer is the per-read buffer of the stream service loop
	ServiceBuffer int `mapstructure:"service_buffer"`
	// DatagramBuffer is the receive buffer of the datagram loop
	DatagramBuffer int `mapstructure:"datagram_buffer"`
	// PollTimeout bounds each per-peer read in the stream service loop
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	// PeerErrors: fail (one peer error stops the port) or drop (remove the peer)
	PeerErrors string `mapstructure:"peer_errors"`
	// ReusePort sets SO_REUSEPORT on listening sockets
	ReusePort bool `mapstructure:"reuse_port"`
}

// ClientConfig tunes the interactive relay.
type ClientConfig struct {
	// Format: quoted, raw or hex
	Format     string `mapstructure:"format"`
	ReadBuffer int    `mapstructure:"read_buffer"`
	// ReadTimeout bounds each socket read so queued input is not starved; 0 blocks
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// Transcript is an optional file recording all traffic
	Transcript       string `mapstructure:"transcript"`
	TranscriptFormat string `mapstructure:"transcript_format"`
}

func (s *ServerConfig) validate() error {
	if s.DatagramBuffer <= 0 || s.DatagramBuffer > 65507 {
		s.DatagramBuffer = 65507
	}
	if s.ServiceBuffer <= 0 {
		s.ServiceBuffer = 10
	}
	if s.ServiceBuffer >= s.DatagramBuffer {
		return fmt.Errorf("server.service_buffer (%d) must be smaller than server.datagram_buffer (%d)", s.ServiceBuffer, s.DatagramBuffer)
	}
	if s.PollTimeout <= 0 {
		s.PollTimeout = time.Millisecond
	}
	s.PeerErrors = strings.ToLower(strings.TrimSpace(s.PeerErrors))
	switch s.PeerErrors {
	case "":
		s.PeerErrors = "fail"
	case "fail", "drop":
	default:
		return fmt.Errorf("invalid server.peer_errors: %q", s.PeerErrors)
	}
	return nil
}

func (c *ClientConfig) validate() error {
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	switch c.Format {
	case "":
		c.Format = "quoted"
	case "quoted", "raw", "hex":
	default:
		return fmt.Errorf("invalid client.format: %q", c.Format)
	}
	if c.ReadBuffer <= 0 {
		c.ReadBuffer = 4096
	}
	if c.ReadTimeout < 0 {
		c.ReadTimeout = 0
	}
	if c.TranscriptFormat == "" {
		c.TranscriptFormat = "json"
	}
	return nil
}
