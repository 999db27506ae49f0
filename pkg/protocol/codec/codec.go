// Package codec provides the serializers used for traffic transcripts.
package codec

import (
	"fmt"
	"strings"
)

// Codec marshals typed records. Implementations are deterministic.
type Codec interface {
	// Name is the short name used on the command line (json, cbor, proto)
	Name() string
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Registry maps short names and content types to codecs.
type Registry struct{ byKey map[string]Codec }

// NewRegistry returns a registry holding JSON, CBOR and Protobuf.
func NewRegistry() (*Registry, error) {
	r := &Registry{byKey: make(map[string]Codec)}
	r.Register(JSON())
	r.Register(Proto())
	c, err := CBOR()
	if err != nil {
		return nil, err
	}
	r.Register(c)
	return r, nil
}

// Register adds a codec under its name and content type.
func (r *Registry) Register(c Codec) {
	r.byKey[c.Name()] = c
	r.byKey[c.ContentType()] = c
}

// Lookup finds a codec by short name or content type, case-insensitively.
func (r *Registry) Lookup(key string) (Codec, error) {
	if c, ok := r.byKey[strings.ToLower(strings.TrimSpace(key))]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("unknown codec %q", key)
}
