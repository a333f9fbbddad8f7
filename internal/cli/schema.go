package cli

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/Zombieliu/gear/internal/harness"
)

// SchemaOptions holds flags for the schema command.
type SchemaOptions struct {
	*RootOptions
	CUE bool
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SchemaOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the fixture document schema",
		Long: `Print the JSON Schema of fixture documents, for editor support.

With --cue, print the CUE schema documents are validated against instead.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if opts.CUE {
				_, err := fmt.Fprint(w, harness.SchemaSource())
				return err
			}
			data, err := DocumentJSONSchema()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to build schema", err)
			}
			_, err = fmt.Fprintln(w, string(data))
			return err
		},
	}

	cmd.Flags().BoolVar(&opts.CUE, "cue", false, "print the CUE schema")
	return cmd
}

// DocumentJSONSchema reflects harness.Document into a JSON Schema.
func DocumentJSONSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
		FieldNameTag:   "yaml",
	}
	schema := reflector.Reflect(&harness.Document{})
	schema.Title = "gtest fixture document"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}
