package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&replCmd{}, "")
	subcommands.Register(&runCmd{}, "")
	subcommands.Register(&disasmCmd{}, "")

	rewriteBareArgs()
	flag.Parse()

	os.Exit(int(subcommands.Execute(context.Background())))
}

// rewriteBareArgs keeps the plain invocation forms working: `dynamix`
// starts the REPL and `dynamix <script>` runs the file, without requiring
// the command names.
func rewriteBareArgs() {
	known := map[string]bool{
		"help": true, "flags": true, "commands": true,
		"repl": true, "run": true, "disasm": true,
	}

	args := os.Args[1:]
	switch {
	case len(args) == 0:
		os.Args = append(os.Args, "repl")
	case known[args[0]]:
		// explicit command, leave it alone
	case len(args) == 1:
		os.Args = []string{os.Args[0], "run", args[0]}
	default:
		fmt.Println("Usage: dynamix <script>")
		os.Exit(int(subcommands.ExitUsageError))
	}
}
