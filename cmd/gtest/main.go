// Command gtest runs fixture documents against message programs.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Zombieliu/gear/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		code := cli.GetExitCode(err)
		if code != cli.ExitFailure {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(code)
	}
}
