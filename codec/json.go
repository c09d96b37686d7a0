package codec

import "encoding/json"

// JSON encodes with encoding/json. Map keys are sorted, so output is stable
// for equal inputs.
type JSON[V any] struct {
	Indent bool
}

func (c JSON[V]) Encode(v V) ([]byte, error) {
	if c.Indent {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
