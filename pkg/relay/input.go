package relay

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"echoplex/pkg/core/handoff"
)

// ReadInput reads r one line at a time and pushes each line's chunks onto q.
// A trailing line without a newline is pushed at EOF. q is closed when
// ReadInput returns; the error is nil at EOF.
func ReadInput(r io.Reader, q *handoff.Queue[Chunk]) error {
	defer q.Close()
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		for _, c := range Split([]byte(line)) {
			q.Push(c)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}
	}
}
