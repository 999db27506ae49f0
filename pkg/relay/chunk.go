package relay

// ChunkSize is the capacity of one input chunk.
const ChunkSize = 150

// Chunk is a fixed-capacity piece of an input line. Only the first N bytes
// of Data are valid.
type Chunk struct {
	Data [ChunkSize]byte
	N    int
}

func (c *Chunk) Bytes() []byte { return c.Data[:c.N] }

// Split cuts line into chunks of at most ChunkSize bytes, in order. An empty
// line yields no chunks.
func Split(line []byte) []Chunk {
	out := make([]Chunk, 0, (len(line)+ChunkSize-1)/ChunkSize)
	for len(line) > 0 {
		var c Chunk
		c.N = copy(c.Data[:], line)
		out = append(out, c)
		line = line[c.N:]
	}
	return out
}
