package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"dynamix/bytecode"
	"dynamix/compiler"
)

// disasmCmd compiles a script without running it and dumps the bytecode of
// the root function.
type disasmCmd struct{}

func (*disasmCmd) Name() string     { return "disasm" }
func (*disasmCmd) Synopsis() string { return "Compile a script and print its disassembly" }
func (*disasmCmd) Usage() string {
	return `disasm <script>:
  Compile the script and dump the bytecode of the root block.
`
}
func (*disasmCmd) SetFlags(f *flag.FlagSet) {}

func (*disasmCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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

	comp := compiler.New(filename, string(data))
	function, err := comp.Compile()
	if err != nil {
		fmt.Fprint(os.Stderr, err.Error())
		return subcommands.ExitFailure
	}

	bytecode.DisassembleBlock(os.Stdout, &function.Block, filename)
	return subcommands.ExitSuccess
}
