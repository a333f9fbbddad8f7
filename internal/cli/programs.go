package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Zombieliu/gear/internal/programs"
)

// ProgramList is the output of the programs command.
type ProgramList struct {
	Programs []string `json:"programs"`
}

// WriteText implements textWriter.
func (l ProgramList) WriteText(w io.Writer) error {
	for _, name := range l.Programs {
		if _, err := fmt.Fprintln(w, name); err != nil {
			return err
		}
	}
	return nil
}

// NewProgramsCommand creates the programs command.
func NewProgramsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "programs",
		Short:         "List the programs fixture documents can deploy",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.formatter(cmd).Success(ProgramList{Programs: programs.Names()})
		},
	}
}
