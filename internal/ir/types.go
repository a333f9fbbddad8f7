package ir

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// IDSize is the width in bytes of MessageID and ActorID.
const IDSize = 32

// MessageID identifies a message, inbound or outgoing.
// The zero value means "no message" (e.g. ReplyTo of a non-reply).
type MessageID [IDSize]byte

// ActorID identifies the sender or destination of a message.
type ActorID [IDSize]byte

// String returns the 0x-prefixed hex form.
func (id MessageID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

// Short returns the first four bytes in hex, for log lines.
func (id MessageID) Short() string {
	return hex.EncodeToString(id[:4])
}

// IsZero reports whether id is the zero MessageID.
func (id MessageID) IsZero() bool {
	return id == MessageID{}
}

// Compare orders message ids bytewise. Returns -1, 0 or +1.
func (id MessageID) Compare(other MessageID) int {
	return bytes.Compare(id[:], other[:])
}

// MarshalText implements encoding.TextMarshaler.
func (id MessageID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *MessageID) UnmarshalText(text []byte) error {
	parsed, err := ParseMessageID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseMessageID parses the hex form produced by String.
func ParseMessageID(s string) (MessageID, error) {
	var id MessageID
	if err := decodeHexID(s, id[:]); err != nil {
		return MessageID{}, fmt.Errorf("parse message id: %w", err)
	}
	return id, nil
}

// ActorIDFromUint64 builds an ActorID with n little-endian in its first
// eight bytes. Fixtures refer to actors by small integers this way.
func ActorIDFromUint64(n uint64) ActorID {
	var id ActorID
	binary.LittleEndian.PutUint64(id[:8], n)
	return id
}

// Uint64 returns the little-endian value of the first eight bytes and
// whether the remaining bytes are zero (i.e. the id round-trips).
func (a ActorID) Uint64() (uint64, bool) {
	for _, b := range a[8:] {
		if b != 0 {
			return 0, false
		}
	}
	return binary.LittleEndian.Uint64(a[:8]), true
}

// String returns the decimal form for small ids and 0x-hex otherwise.
func (a ActorID) String() string {
	if n, ok := a.Uint64(); ok {
		return fmt.Sprintf("%d", n)
	}
	return "0x" + hex.EncodeToString(a[:])
}

// MarshalText implements encoding.TextMarshaler.
func (a ActorID) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
// Accepts a decimal integer or a 0x-prefixed 32-byte hex string.
func (a *ActorID) UnmarshalText(text []byte) error {
	parsed, err := ParseActorID(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseActorID accepts the forms produced by ActorID.String.
func ParseActorID(s string) (ActorID, error) {
	if strings.HasPrefix(s, "0x") {
		var id ActorID
		if err := decodeHexID(s, id[:]); err != nil {
			return ActorID{}, fmt.Errorf("parse actor id: %w", err)
		}
		return id, nil
	}
	var n uint64
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return ActorID{}, fmt.Errorf("parse actor id %q: %w", s, err)
	}
	return ActorIDFromUint64(n), nil
}

func decodeHexID(s string, dst []byte) error {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return err
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("expected %d bytes, got %d", len(dst), len(raw))
	}
	copy(dst, raw)
	return nil
}

// Message is a single message as seen by the host.
type Message struct {
	ID          MessageID `json:"id"`
	Source      ActorID   `json:"source"`
	Destination ActorID   `json:"destination"`
	Payload     []byte    `json:"payload"`
	GasLimit    uint64    `json:"gas_limit"`
	Value       uint64    `json:"value"`
	ReplyTo     MessageID `json:"reply_to"` // Zero unless this message is a reply
	Seq         int64     `json:"seq"`      // Logical clock at enqueue time
}

// IsReply reports whether the message answers an earlier message.
func (m Message) IsReply() bool {
	return !m.ReplyTo.IsZero()
}

// Allocation records one memory page owned by a program.
type Allocation struct {
	Page    uint32  `json:"page_num"`
	Program ActorID `json:"program_id"`
}
