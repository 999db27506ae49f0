package main

import (
	"bytes"
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	netstack "echoplex/pkg/core/netstack"
	"echoplex/pkg/transport"
)

// lockedBuffer is written by the relay goroutine and read by the test.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestParseFlags(t *testing.T) {
	opts := ParseFlags([]string{"-p", "u", "-format", "hex", "-o", "t.log", "-o-format", "cbor", "localhost", "7"})
	assert.Equal(t, "u", opts.Protocol)
	assert.Equal(t, "hex", opts.Format)
	assert.Equal(t, "t.log", opts.Transcript)
	assert.Equal(t, "cbor", opts.TranscriptFormat)
	assert.Equal(t, "localhost", opts.Host)
	assert.Equal(t, "7", opts.Port)

	assert.Equal(t, "tcp", ParseFlags([]string{"h", "1"}).Protocol)
}

func TestProtocolName(t *testing.T) {
	assert.Equal(t, "tcp", protocolName("T"))
	assert.Equal(t, "udp", protocolName(" u "))
	assert.Equal(t, "udp", protocolName("udp"))
	assert.Equal(t, "x", protocolName("x"))
}

func TestSessionRejectsBadArguments(t *testing.T) {
	chdir(t, t.TempDir())
	cases := []Options{
		{Protocol: "sctp", Host: "127.0.0.1", Port: "7"},
		{Protocol: "tcp", Host: "127.0.0.1", Port: "seven"},
		{Protocol: "tcp", Host: "127.0.0.1"},
		{Protocol: "tcp", Host: "no-such-host.invalid", Port: "7"},
		{Protocol: "tcp", Host: "127.0.0.1", Port: "7", Format: "yaml"},
	}
	for _, opts := range cases {
		var errOut bytes.Buffer
		code := session(context.Background(), opts, strings.NewReader(""), &bytes.Buffer{}, &errOut)
		assert.Equal(t, 1, code, "%+v", opts)
		assert.NotEmpty(t, errOut.String(), "%+v", opts)
	}
}

func TestSessionEchoesThroughServer(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("ECHOPLEX_CLIENT_READ_TIMEOUT", "10ms")
	t.Setenv("ECHOPLEX_LOG_LEVEL", "error")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := netstack.NewServer(netstack.Options{}, nil, nil)
	defer srv.Close()
	bindings, err := srv.Start(ctx, transport.ProtocolStream, []uint16{0})
	require.NoError(t, err)
	require.Len(t, bindings, 1)

	var out lockedBuffer
	opts := Options{Protocol: "t", Host: "127.0.0.1", Port: strconv.Itoa(int(bindings[0].Port()))}
	exit := make(chan int, 1)
	go func() {
		exit <- session(ctx, opts, strings.NewReader("hello\n"), &out, &bytes.Buffer{})
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"hello\n"`)
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case code := <-exit:
		assert.Equal(t, 0, code)
	case <-time.After(5 * time.Second):
		t.Fatal("session did not return after cancel")
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir from Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
