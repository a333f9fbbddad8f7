package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"
)

// Binary is the default payload codec.
var Binary Codec = binaryCodec{}

var errTrailingBytes = errors.New("trailing bytes after value")

type binaryCodec struct{}

func (binaryCodec) Name() string { return "binary" }

// Encode writes []byte and string values verbatim and everything else with
// encoding/binary in little-endian order. Values must be fixed-size
// (integers, bools, arrays and structs of those).
func (binaryCodec) Encode(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("binary: cannot encode nil")
	case []byte:
		return append([]byte(nil), val...), nil
	case string:
		return []byte(val), nil
	case int:
		// int has no fixed size; treat as i64.
		v = int64(val)
	case uint:
		v = uint64(val)
	}

	if binary.Size(v) < 0 {
		return nil, fmt.Errorf("binary: %T is not a fixed-size value", v)
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		return nil, fmt.Errorf("binary: encode %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

// Decode is the inverse of Encode. The whole payload must be consumed.
func (c binaryCodec) Decode(data []byte, v any) error {
	switch dst := v.(type) {
	case *[]byte:
		*dst = append([]byte(nil), data...)
		return nil
	case *string:
		*dst = string(data)
		return nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("binary: decode target must be a non-nil pointer, got %T", v)
	}

	target := rv.Elem().Type().String()
	size := binary.Size(v)
	if size < 0 {
		return &DecodeError{Codec: c.Name(), Target: target, Size: len(data),
			Err: fmt.Errorf("%s is not a fixed-size value", target)}
	}
	if len(data) > size {
		return &DecodeError{Codec: c.Name(), Target: target, Size: len(data), Err: errTrailingBytes}
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, v); err != nil {
		return &DecodeError{Codec: c.Name(), Target: target, Size: len(data), Err: err}
	}
	return nil
}
