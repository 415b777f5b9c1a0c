package vm

import "github.com/caarlos0/env/v6"

// DebugConfig holds the runtime debug toggles. They are read from the
// environment so a build of the interpreter can be inspected without
// recompiling it.
type DebugConfig struct {
	// StackTrace dumps the value stack and the current instruction before
	// every dispatch.
	StackTrace bool `env:"DYNAMIX_DEBUG_STACK_TRACE"`

	// DisassembleCode dumps the compiled block before execution starts.
	DisassembleCode bool `env:"DYNAMIX_DEBUG_DISASSEMBLE_CODE"`
}

// LoadDebugConfig parses the debug toggles from the environment. Unset or
// malformed variables leave the zero config: everything off.
func LoadDebugConfig() DebugConfig {
	var cfg DebugConfig
	if err := env.Parse(&cfg); err != nil {
		return DebugConfig{}
	}
	return cfg
}
