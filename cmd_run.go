package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"dynamix/vm"
)

// runCmd executes a script file in a fresh VM.
type runCmd struct{}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "Execute a dynamix script file" }
func (*runCmd) Usage() string {
	return `run <script>:
  Compile and execute the script.
`
}
func (*runCmd) SetFlags(f *flag.FlagSet) {}

func (*runCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "💥 file not provided\n")
		return subcommands.ExitUsageError
	}
	filename := args[0]

	data, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 failed to open file '%s': %v\n", filename, err)
		return subcommands.ExitFailure
	}

	machine := vm.New()
	defer machine.Free()

	if machine.RunCode(filename, string(data)) != vm.InterpretOk {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
