package harness

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// SchemaSource returns the CUE schema fixture documents are checked against.
func SchemaSource() string {
	return schemaSource
}

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error
)

func documentSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile fixture schema: %w", err)
			return
		}
		schemaDef = v.LookupPath(cue.ParsePath("#Document"))
		if !schemaDef.Exists() {
			schemaErr = fmt.Errorf("fixture schema has no #Document definition")
		}
	})
	return schemaCtx, schemaDef, schemaErr
}

// SchemaError lists every violation CUE found in a document.
type SchemaError struct {
	Details string
	Err     error
}

func (e *SchemaError) Error() string {
	return "fixture document does not match schema:\n" + e.Details
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// ValidateSchema checks a YAML or JSON document against #Document.
func ValidateSchema(data []byte) error {
	ctx, def, err := documentSchema()
	if err != nil {
		return err
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse fixture document: %w", err)
	}
	if raw == nil {
		return fmt.Errorf("empty fixture document")
	}

	v := ctx.Encode(raw)
	if err := v.Err(); err != nil {
		return fmt.Errorf("encode fixture document: %w", err)
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return &SchemaError{Details: cueerrors.Details(err, nil), Err: err}
	}
	return nil
}
