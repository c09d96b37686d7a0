package codec

import (
	"fmt"
	"strings"
)

// Named returns a codec for V by format name along with the file extension
// conventionally used for it. Known names: json, cbor, msgpack, protobuf.
func Named[V any](name string) (Codec[V], string, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return JSON[V]{Indent: true}, ".json", nil
	case "cbor":
		c, err := NewCBOR[V](true)
		if err != nil {
			return nil, "", err
		}
		return c, ".cbor", nil
	case "msgpack":
		return Msgpack[V]{}, ".msgpack", nil
	case "protobuf", "proto":
		return NewProtoStruct[V](), ".pb", nil
	default:
		return nil, "", fmt.Errorf("codec: unknown format %q", name)
	}
}
