package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// JSON encodes payloads with encoding/json.
var JSON Codec = jsonCodec{}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json: encode %T: %w", v, err)
	}
	return data, nil
}

// Decode rejects unknown fields so a payload for the wrong type fails
// instead of silently decoding to a zero value.
func (c jsonCodec) Decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &DecodeError{Codec: c.Name(), Target: typeName(v), Size: len(data), Err: err}
	}
	if dec.More() {
		return &DecodeError{Codec: c.Name(), Target: typeName(v), Size: len(data), Err: errTrailingBytes}
	}
	return nil
}

func typeName(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return "nil"
	}
	if t.Kind() == reflect.Pointer {
		return t.Elem().String()
	}
	return t.String()
}
