// Package config loads the optional ember.yaml file that tunes the driver
// without recompiling it: operand-stack size, the REPL prompt string, and
// whether to trace execution by default. None of this affects language
// semantics - it only changes how cmd/ember wires up the VM it
// constructs.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kristofer/ember/pkg/vm"
)

// Config is the shape of ember.yaml. Every field has a sensible zero-value
// fallback, applied in Default, so a missing or empty file is never an
// error.
type Config struct {
	// StackSize overrides the VM's operand-stack capacity. The language
	// spec fixes this at 256 slots; raising it here is a debugging knob
	// for programs that legitimately need deep expression nesting, not a
	// language-level guarantee.
	StackSize int `yaml:"stack_size"`

	// REPLPrompt is printed before reading each REPL line.
	REPLPrompt string `yaml:"repl_prompt"`

	// TraceExecution turns on the VM's per-instruction trace by default,
	// equivalent to always passing --trace.
	TraceExecution bool `yaml:"trace_execution"`
}

// Default returns the configuration used when no ember.yaml is present.
func Default() Config {
	return Config{
		StackSize:      vm.StackSize,
		REPLPrompt:     "> ",
		TraceExecution: false,
	}
}

// Load reads and parses path, overlaying any fields it sets onto the
// default configuration. A missing file is not an error - it returns
// Default() unchanged, since ember.yaml is entirely optional.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	// unmarshal onto a copy so a YAML document that only sets one field
	// leaves the rest at their defaults
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), err
	}
	if cfg.StackSize <= 0 {
		cfg.StackSize = vm.StackSize
	}
	if cfg.REPLPrompt == "" {
		cfg.REPLPrompt = "> "
	}
	return cfg, nil
}

// NewVM constructs a VM sized per this configuration.
func (c Config) NewVM() *vm.VM {
	return vm.NewWithStackSize(c.StackSize)
}
