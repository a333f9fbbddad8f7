// Package codec defines how structured values become message payloads.
//
// Programs exchange raw bytes; the Codec decides how a Go value maps onto
// them. Two encodings ship here:
//
//   - Binary: little-endian fixed-width values, byte slices and strings
//     verbatim. An i32 reply of 1 is the four bytes 01 00 00 00.
//   - JSON: encoding/json, for structured payloads in tests and fixtures.
//
// Decoding is strict: trailing bytes and short buffers are errors. Decode
// failures are reported as *DecodeError so callers can tell them apart from
// host failures.
package codec

import (
	"errors"
	"fmt"
)

// Encoder turns a value into payload bytes.
type Encoder interface {
	Encode(v any) ([]byte, error)
}

// Decoder fills v (a non-nil pointer) from payload bytes.
type Decoder interface {
	Decode(data []byte, v any) error
}

// Codec is both halves of the payload contract.
type Codec interface {
	Encoder
	Decoder
	Name() string
}

// DecodeError reports a payload that does not parse into the target type.
type DecodeError struct {
	Codec  string // Codec name
	Target string // Go type of the destination
	Size   int    // Payload length in bytes
	Err    error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: cannot decode %d bytes into %s: %v", e.Codec, e.Size, e.Target, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError returns true if err is or wraps a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// ByName returns the codec registered under name ("binary" or "json").
func ByName(name string) (Codec, error) {
	switch name {
	case "", Binary.Name():
		return Binary, nil
	case JSON.Name():
		return JSON, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}
