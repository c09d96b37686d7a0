package codec

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// ProtoStruct stores any JSON-shaped V as a google.protobuf.Struct, so sidecars
// can be read by protobuf tooling without a generated schema. V goes through
// its JSON form; fields must round-trip through encoding/json.
type ProtoStruct[V any] struct {
	pb Protobuf[*structpb.Struct]
}

func NewProtoStruct[V any]() ProtoStruct[V] {
	return ProtoStruct[V]{pb: NewProtobuf(func() *structpb.Struct { return &structpb.Struct{} })}
}

func (c ProtoStruct[V]) Encode(v V) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protostruct: value is not a JSON object: %w", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, err
	}
	return c.pb.Encode(s)
}

func (c ProtoStruct[V]) Decode(b []byte) (V, error) {
	var v V
	s, err := c.pb.Decode(b)
	if err != nil {
		return v, err
	}
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return v, err
	}
	err = json.Unmarshal(raw, &v)
	return v, err
}
