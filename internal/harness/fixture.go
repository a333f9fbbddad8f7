package harness

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Zombieliu/gear/internal/codec"
	"github.com/Zombieliu/gear/internal/ir"
)

// Document is one fixture file: the programs to deploy and the fixtures
// to run against them. JSON documents are accepted as well since the
// YAML decoder reads JSON.
type Document struct {
	// Title names the document in reports.
	Title string `yaml:"title" json:"title"`

	// Programs are deployed afresh for every fixture.
	Programs []Program `yaml:"programs" json:"programs"`

	// Fixtures run in order, each on its own engine.
	Fixtures []Fixture `yaml:"fixtures" json:"fixtures"`
}

// Program deploys a named program at a numeric actor id.
type Program struct {
	ID      uint64 `yaml:"id" json:"id"`
	Program string `yaml:"program" json:"program"`

	// Pages is the number of memory pages allocated at deploy time.
	Pages uint32 `yaml:"pages,omitempty" json:"pages,omitempty"`

	// Target is the actor the program sends to. Zero keeps the
	// program's default.
	Target uint64 `yaml:"target,omitempty" json:"target,omitempty"`
}

// Fixture is a list of messages to inject plus what the run must produce.
type Fixture struct {
	Title    string    `yaml:"title" json:"title"`
	Messages []Message `yaml:"messages" json:"messages"`
	Expected Expected  `yaml:"expected" json:"expected"`
}

// Message is injected from outside before the engine starts.
type Message struct {
	Source      uint64  `yaml:"source" json:"source"`
	Destination uint64  `yaml:"destination" json:"destination"`
	Payload     Payload `yaml:"payload" json:"payload"`
	GasLimit    uint64  `yaml:"gas_limit,omitempty" json:"gas_limit,omitempty"`
	Value       uint64  `yaml:"value,omitempty" json:"value,omitempty"`
}

// Expected describes the final state of a fixture run.
type Expected struct {
	// Step limits the number of dispatches. Zero runs until idle.
	Step int `yaml:"step,omitempty" json:"step,omitempty"`

	// Messages must match the outgoing log in emission order.
	Messages []ExpectedMessage `yaml:"messages,omitempty" json:"messages,omitempty"`

	// Allocation must match the page map ordered by page.
	Allocation []ExpectedPage `yaml:"allocation,omitempty" json:"allocation,omitempty"`
}

// ExpectedMessage is one entry of the outgoing log.
type ExpectedMessage struct {
	Destination uint64  `yaml:"destination" json:"destination"`
	Payload     Payload `yaml:"payload" json:"payload"`
}

// ExpectedPage is one entry of the page map.
type ExpectedPage struct {
	Page    uint32 `yaml:"page_num" json:"page_num"`
	Program uint64 `yaml:"program_id" json:"program_id"`
}

// Payload kinds.
const (
	KindUTF8  = "utf8"
	KindI32   = "i32"
	KindI64   = "i64"
	KindU64   = "u64"
	KindBytes = "bytes"
)

// Payload is a typed literal that encodes to message bytes. Integers use
// the binary codec so fixtures line up with what programs reply.
type Payload struct {
	Kind  string `yaml:"kind" json:"kind" jsonschema:"enum=utf8,enum=i32,enum=i64,enum=u64,enum=bytes"`
	Value any    `yaml:"value" json:"value"`
}

// Bytes returns the wire form of p.
func (p Payload) Bytes() ([]byte, error) {
	switch p.Kind {
	case KindUTF8:
		s, ok := p.Value.(string)
		if !ok {
			return nil, fmt.Errorf("utf8 payload: value must be a string, got %T", p.Value)
		}
		return []byte(s), nil
	case KindI32:
		n, err := signed(p.Value, math.MinInt32, math.MaxInt32)
		if err != nil {
			return nil, fmt.Errorf("i32 payload: %w", err)
		}
		return codec.Binary.Encode(int32(n))
	case KindI64:
		n, err := signed(p.Value, math.MinInt64, math.MaxInt64)
		if err != nil {
			return nil, fmt.Errorf("i64 payload: %w", err)
		}
		return codec.Binary.Encode(n)
	case KindU64:
		n, err := unsigned(p.Value)
		if err != nil {
			return nil, fmt.Errorf("u64 payload: %w", err)
		}
		return codec.Binary.Encode(n)
	case KindBytes:
		s, ok := p.Value.(string)
		if !ok {
			return nil, fmt.Errorf("bytes payload: value must be a 0x-hex string, got %T", p.Value)
		}
		b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
		if err != nil {
			return nil, fmt.Errorf("bytes payload: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown payload kind %q", p.Kind)
	}
}

func signed(v any, lo, hi int64) (int64, error) {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int64:
		n = x
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("%d out of range", x)
		}
		n = int64(x)
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("%v is not an integer", x)
		}
		n = int64(x)
	case string:
		parsed, err := strconv.ParseInt(x, 0, 64)
		if err != nil {
			return 0, err
		}
		n = parsed
	default:
		return 0, fmt.Errorf("value must be an integer, got %T", v)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%d out of range", n)
	}
	return n, nil
}

func unsigned(v any) (uint64, error) {
	switch x := v.(type) {
	case int:
		if x < 0 {
			return 0, fmt.Errorf("%d is negative", x)
		}
		return uint64(x), nil
	case int64:
		if x < 0 {
			return 0, fmt.Errorf("%d is negative", x)
		}
		return uint64(x), nil
	case uint64:
		return x, nil
	case float64:
		if x < 0 || x != math.Trunc(x) {
			return 0, fmt.Errorf("%v is not an unsigned integer", x)
		}
		return uint64(x), nil
	case string:
		return strconv.ParseUint(x, 0, 64)
	default:
		return 0, fmt.Errorf("value must be an integer, got %T", v)
	}
}

// LoadDocument reads and checks a fixture document.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture document: %w", err)
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// ParseDocument decodes data, validates it against the document schema
// and checks the fields the schema cannot express.
func ParseDocument(data []byte) (*Document, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}

	var doc Document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty fixture document")
		}
		return nil, fmt.Errorf("parse fixture document: %w", err)
	}

	if err := validateDocument(&doc); err != nil {
		return nil, fmt.Errorf("invalid fixture document: %w", err)
	}
	return &doc, nil
}

func validateDocument(doc *Document) error {
	if doc.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(doc.Fixtures) == 0 {
		return fmt.Errorf("fixtures list is required and must be non-empty")
	}

	seen := make(map[uint64]bool, len(doc.Programs))
	for i, p := range doc.Programs {
		if seen[p.ID] {
			return fmt.Errorf("programs[%d]: id %d deployed twice", i, p.ID)
		}
		seen[p.ID] = true
	}

	for i, f := range doc.Fixtures {
		if f.Title == "" {
			return fmt.Errorf("fixtures[%d]: title is required", i)
		}
		if f.Expected.Step < 0 {
			return fmt.Errorf("fixtures[%d]: step must not be negative", i)
		}
		for j, m := range f.Messages {
			if _, err := m.Payload.Bytes(); err != nil {
				return fmt.Errorf("fixtures[%d].messages[%d]: %w", i, j, err)
			}
		}
		for j, m := range f.Expected.Messages {
			if _, err := m.Payload.Bytes(); err != nil {
				return fmt.Errorf("fixtures[%d].expected.messages[%d]: %w", i, j, err)
			}
		}
	}
	return nil
}

// expectations converts the expected section to engine types.
func (e Expected) expectations() ([]MessageExpectation, []ir.Allocation, error) {
	msgs := make([]MessageExpectation, 0, len(e.Messages))
	for i, m := range e.Messages {
		b, err := m.Payload.Bytes()
		if err != nil {
			return nil, nil, fmt.Errorf("expected.messages[%d]: %w", i, err)
		}
		msgs = append(msgs, MessageExpectation{
			Destination: ir.ActorIDFromUint64(m.Destination),
			Payload:     b,
		})
	}
	pages := make([]ir.Allocation, 0, len(e.Allocation))
	for _, a := range e.Allocation {
		pages = append(pages, ir.Allocation{Page: a.Page, Program: ir.ActorIDFromUint64(a.Program)})
	}
	return msgs, pages, nil
}

// Fixture returns the fixture called title.
func (d *Document) Fixture(title string) (*Fixture, bool) {
	for i := range d.Fixtures {
		if d.Fixtures[i].Title == title {
			return &d.Fixtures[i], true
		}
	}
	return nil, false
}
