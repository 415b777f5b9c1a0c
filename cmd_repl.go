package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/subcommands"

	"dynamix/vm"
)

// replCmd implements the interactive session. One VM is reused for the
// whole session so globals persist across lines; compile and runtime
// errors print and the loop keeps going.
type replCmd struct{}

func (*replCmd) Name() string     { return "repl" }
func (*replCmd) Synopsis() string { return "Start an interactive dynamix session" }
func (*replCmd) Usage() string {
	return `repl:
  Read one line at a time and execute it.
`
}
func (*replCmd) SetFlags(f *flag.FlagSet) {}

func (*replCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	rl, err := readline.New(">> ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 failed to start repl: %v\n", err)
		return subcommands.ExitFailure
	}
	defer rl.Close()

	machine := vm.New()
	defer machine.Free()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return subcommands.ExitSuccess
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return subcommands.ExitSuccess
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "💥 %v\n", err)
			return subcommands.ExitFailure
		}

		if strings.TrimSpace(line) == "" {
			continue
		}

		machine.RunCode("stdin", line)
	}
}
