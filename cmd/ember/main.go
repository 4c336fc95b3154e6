// Command ember is the driver for the ember language: a single source
// file runs to completion and exits, zero arguments drop into a REPL.
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kristofer/ember/pkg/compiler"
	"github.com/kristofer/ember/pkg/config"
	"github.com/kristofer/ember/pkg/debug"
	"github.com/kristofer/ember/pkg/errs"
	"github.com/kristofer/ember/pkg/vm"
)

// Exit codes follow the sysexits.h convention the reference driver uses:
// 64 is usage error, 65 is a data/compile error, 70 is an internal/runtime
// fault, 74 is an I/O error.
const (
	exitOK         = 0
	exitUsage      = 64
	exitCompileErr = 65
	exitRuntimeErr = 70
	exitIOErr      = 74
)

var (
	traceExecution bool
	configPath     string
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(exitUsage)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ember [script]",
		Short: "ember is a bytecode-compiled scripting language",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			log := newLogger()
			sessionID := newSessionID()

			machine := cfg.NewVM()
			machine.TraceExecution = cfg.TraceExecution || traceExecution
			defer machine.Close()

			if len(args) == 0 {
				log.WithField("session", sessionID).Info("starting REPL")
				runREPL(machine, cfg.REPLPrompt, log.WithField("session", sessionID))
				return nil
			}

			log.WithFields(logrus.Fields{"session": sessionID, "path": args[0]}).Info("running script")
			os.Exit(runFile(machine, args[0]))
			return nil
		},
	}
	cmd.PersistentFlags().BoolVar(&traceExecution, "trace", false, "trace VM execution to stdout")
	cmd.PersistentFlags().StringVar(&configPath, "config", "ember.yaml", "path to an optional ember.yaml")
	return cmd
}

func loadConfig() config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", configPath, err)
		return config.Default()
	}
	return cfg
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stderr)
	return log
}

// newSessionID correlates every log line the driver emits for one
// invocation, whether that's a single file run or a whole REPL session -
// purely an operational aid, never observed by the language itself.
func newSessionID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return "unknown"
	}
	return id.String()
}

// runFile compiles and runs a single source file, returning the process
// exit code to use.
func runFile(machine *vm.VM, path string) int {
	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", &errs.IOError{Err: err})
		return exitIOErr
	}

	c, compileErr := compiler.Compile(string(source), machine)
	if compileErr != nil {
		fmt.Fprintln(os.Stderr, compileErr.Error())
		return exitCompileErr
	}

	if machine.TraceExecution {
		fmt.Fprint(os.Stderr, debug.DisassembleChunk(c, filepath.Base(path)))
	}

	if err := machine.Run(c); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return exitRuntimeErr
	}
	return exitOK
}

// runREPL reads one line at a time from stdin, compiling and running each
// line independently against the same VM - so a `var` declared on one
// line is visible on the next, but a syntax error on one line never
// poisons later ones.
func runREPL(machine *vm.VM, prompt string, log *logrus.Entry) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(prompt)
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := scanner.Text()
		if strings.TrimRight(line, "\n") == "exit" {
			log.Info("REPL session ended by user")
			return
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		c, compileErr := compiler.Compile(line, machine)
		if compileErr != nil {
			fmt.Fprintln(os.Stderr, compileErr.Error())
			continue
		}
		if machine.TraceExecution {
			fmt.Fprint(os.Stderr, debug.DisassembleChunk(c, "repl"))
		}
		if err := machine.Run(c); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
		}
	}
}
