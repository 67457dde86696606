// Command stagectl runs staged pipelines from scenario files and inspects
// recorded runs.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/stagerun/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(cli.GetExitCode(err))
}
