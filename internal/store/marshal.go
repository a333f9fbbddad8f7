package store

import (
	"encoding/json"
	"fmt"

	"github.com/Zombieliu/gear/internal/ir"
)

// marshalMeta converts run metadata to canonical JSON TEXT for storage.
func marshalMeta(meta map[string]string) (string, error) {
	obj := make(map[string]any, len(meta))
	for k, v := range meta {
		obj[k] = v
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("marshal meta: %w", err)
	}
	return string(data), nil
}

// unmarshalMeta parses run metadata. Empty objects come back as nil.
func unmarshalMeta(data string) (map[string]string, error) {
	if data == "" || data == "{}" {
		return nil, nil
	}
	var meta map[string]string
	if err := json.Unmarshal([]byte(data), &meta); err != nil {
		return nil, fmt.Errorf("unmarshal meta: %w", err)
	}
	return meta, nil
}

func replyToText(id ir.MessageID) string {
	if id.IsZero() {
		return ""
	}
	return id.String()
}

// messageRow holds the text columns of a stored message before parsing.
type messageRow struct {
	id, source, destination, replyTo string
}

func (r messageRow) parse(m *ir.Message) error {
	var err error
	if m.ID, err = ir.ParseMessageID(r.id); err != nil {
		return fmt.Errorf("parse message id: %w", err)
	}
	if m.Source, err = ir.ParseActorID(r.source); err != nil {
		return fmt.Errorf("parse source: %w", err)
	}
	if m.Destination, err = ir.ParseActorID(r.destination); err != nil {
		return fmt.Errorf("parse destination: %w", err)
	}
	if r.replyTo != "" {
		if m.ReplyTo, err = ir.ParseMessageID(r.replyTo); err != nil {
			return fmt.Errorf("parse reply_to: %w", err)
		}
	}
	return nil
}
