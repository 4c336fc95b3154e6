// Package vm implements the bytecode virtual machine: a fetch-decode-
// dispatch loop over a Chunk's instruction stream, a fixed-size operand
// stack, a global-variable environment, and the process-wide string
// intern set and heap-object list.
//
// Architecture:
//
//	Source -> Lexer -> Compiler -> Chunk (+ interned strings) -> VM -> output
//
// A VM is the thing the reference design calls the "process-singleton":
// one value, constructed once by the driver, threaded into every Compile
// call (so constant strings share the intern table) and every Run call (so
// globals persist across REPL lines). There is no package-level mutable
// state here - everything shared lives on *VM, which is what makes the
// design notes' "remove hidden process-wide state" goal concrete.
package vm

import (
	"fmt"
	"strings"

	"github.com/kristofer/ember/pkg/chunk"
	"github.com/kristofer/ember/pkg/debug"
	"github.com/kristofer/ember/pkg/errs"
	"github.com/kristofer/ember/pkg/table"
	"github.com/kristofer/ember/pkg/value"
)

// StackSize is the reference VM's fixed operand-stack capacity, and New's
// default. The reference VM leaves overflow undefined; ember detects it
// and reports a RuntimeError instead (§9 Open Questions - Decision:
// detect rather than leave undefined).
const StackSize = 256

// VM holds every piece of state execution needs, plus the state that must
// persist across distinct Run calls: globals and the intern table survive
// from one REPL line (or compile+run) to the next; the stack, instruction
// pointer, and current chunk are reset at the start of every Run.
type VM struct {
	stack []value.Value
	sp    int

	chunk *chunk.Chunk
	ip    int

	globals *table.Table
	interns *table.Table
	objects *value.Obj // head of the intrusive heap-object list, newest first

	// TraceExecution, when set, makes Run disassemble each instruction to
	// stdout before executing it - a development aid wired to the
	// compiler's debug disassembler, not part of the language semantics.
	TraceExecution bool
}

// New constructs a VM with the default 256-slot stack, empty globals, and
// an empty intern table, ready to have chunks Run against it. Call Close
// exactly once when the VM is no longer needed.
func New() *VM {
	return NewWithStackSize(StackSize)
}

// NewWithStackSize is New but with an operand-stack capacity other than
// the default - the knob ember.yaml's stack_size setting exposes to the
// driver. A stackSize <= 0 falls back to StackSize.
func NewWithStackSize(stackSize int) *VM {
	if stackSize <= 0 {
		stackSize = StackSize
	}
	return &VM{
		stack:   make([]value.Value, stackSize),
		globals: table.New(),
		interns: table.New(),
	}
}

// Globals returns the VM's global-variable table. The compiler never needs
// this directly (globals are only touched by OpGetGlobal/OpSetGlobal/
// OpDefineGlobal at runtime) but tests inspect it.
func (vm *VM) Globals() *table.Table { return vm.globals }

// Interns returns the VM's string-intern table, shared by the compiler (for
// string-literal and identifier-name constants) and the VM itself (for
// concatenation results), per the spec's interning invariant: every live
// string object has exactly one entry in this table.
func (vm *VM) Interns() *table.Table { return vm.interns }

// InternString returns the canonical *value.Obj for s: an existing one if
// this exact byte sequence was interned before, otherwise a freshly
// allocated one that gets linked onto the object list and registered in
// the intern table. This is the single chokepoint that keeps "reference
// identity" and "byte equality" coincident for every string in the system,
// used by both the compiler (string literals, global names) and the VM's
// ADD handler (concatenation results).
func (vm *VM) InternString(s string) *value.Obj {
	hash := value.FNV1a32(s)
	if existing := vm.interns.FindString(s, hash); existing != nil {
		return existing
	}
	obj := value.NewString(s)
	obj.Next = vm.objects
	vm.objects = obj
	vm.interns.Set(obj, value.Nil)
	return obj
}

// Close tears down the VM singleton: every heap object becomes
// unreachable (the object list is dropped, the intern and globals tables
// are replaced by fresh empty ones) so Go's collector can reclaim them in
// bulk, mirroring free_vm's walk-and-release without needing a manual
// allocator. Close is idempotent but not meant to be called more than once
// on a VM still in use - this is shutdown, not a reset between Run calls.
func (vm *VM) Close() {
	vm.objects = nil
	vm.interns = table.New()
	vm.globals = table.New()
}

// Run executes c on the VM: resets the operand stack and instruction
// pointer, then fetch-decode-dispatches until OpReturn or a runtime error.
// Globals and interns are untouched by the reset, so they persist across
// however many times Run is called on this VM (the REPL's one-Compile-
// per-line, one-VM-for-the-session model depends on this).
func (vm *VM) Run(c *chunk.Chunk) error {
	vm.chunk = c
	vm.ip = 0
	vm.sp = 0

	for {
		if vm.TraceExecution {
			vm.traceInstruction()
		}

		op := chunk.Opcode(vm.readByte())
		switch op {
		case chunk.OpConstant:
			if err := vm.push(vm.readConstant()); err != nil {
				return err
			}

		case chunk.OpNil:
			if err := vm.push(value.Nil); err != nil {
				return err
			}
		case chunk.OpTrue:
			if err := vm.push(value.BoolVal(true)); err != nil {
				return err
			}
		case chunk.OpFalse:
			if err := vm.push(value.BoolVal(false)); err != nil {
				return err
			}

		case chunk.OpPop:
			if _, err := vm.pop(); err != nil {
				return err
			}

		case chunk.OpEqual:
			b, err := vm.pop()
			if err != nil {
				return err
			}
			a, err := vm.pop()
			if err != nil {
				return err
			}
			if err := vm.push(value.BoolVal(value.Equal(a, b))); err != nil {
				return err
			}

		case chunk.OpGreater:
			if err := vm.binaryCompare(func(a, b float64) bool { return a > b }); err != nil {
				return err
			}
		case chunk.OpLess:
			if err := vm.binaryCompare(func(a, b float64) bool { return a < b }); err != nil {
				return err
			}

		case chunk.OpAdd:
			if err := vm.add(); err != nil {
				return err
			}
		case chunk.OpSubtract:
			if err := vm.binaryArith(func(a, b float64) float64 { return a - b }); err != nil {
				return err
			}
		case chunk.OpMultiply:
			if err := vm.binaryArith(func(a, b float64) float64 { return a * b }); err != nil {
				return err
			}
		case chunk.OpDivide:
			if err := vm.binaryArith(func(a, b float64) float64 { return a / b }); err != nil {
				return err
			}

		case chunk.OpNot:
			v, err := vm.pop()
			if err != nil {
				return err
			}
			if err := vm.push(value.BoolVal(v.Falsey())); err != nil {
				return err
			}

		case chunk.OpNegate:
			if vm.sp == 0 {
				return vm.runtimeError("Stack underflow.")
			}
			top := vm.stack[vm.sp-1]
			if !top.IsNumber() {
				return vm.runtimeError("Operand must be a number.")
			}
			vm.stack[vm.sp-1] = value.NumberVal(-top.Number)

		case chunk.OpPrint:
			v, err := vm.pop()
			if err != nil {
				return err
			}
			fmt.Println(v.String())

		case chunk.OpDefineGlobal:
			name := vm.readConstant()
			v, err := vm.pop()
			if err != nil {
				return err
			}
			vm.globals.Set(name.Obj, v)

		case chunk.OpGetGlobal:
			name := vm.readConstant()
			v, ok := vm.globals.Get(name.Obj)
			if !ok {
				return vm.runtimeError(fmt.Sprintf("Undefined variable '%s'.", name.Obj.Str.Chars))
			}
			if err := vm.push(v); err != nil {
				return err
			}

		case chunk.OpSetGlobal:
			name := vm.readConstant()
			if vm.sp == 0 {
				return vm.runtimeError("Stack underflow.")
			}
			top := vm.stack[vm.sp-1]
			if vm.globals.Set(name.Obj, top) {
				// Set reports a brand new key: it was never defined, so
				// undo the insert and raise - assigning to an undefined
				// global is a runtime error, not an implicit declaration.
				vm.globals.Delete(name.Obj)
				return vm.runtimeError(fmt.Sprintf("Undefined variable '%s'.", name.Obj.Str.Chars))
			}

		case chunk.OpGetLocal:
			slot := vm.readByte()
			if err := vm.push(vm.stack[slot]); err != nil {
				return err
			}

		case chunk.OpSetLocal:
			slot := vm.readByte()
			if vm.sp == 0 {
				return vm.runtimeError("Stack underflow.")
			}
			vm.stack[slot] = vm.stack[vm.sp-1]

		case chunk.OpJump:
			offset := vm.readShort()
			vm.ip += int(offset)

		case chunk.OpJumpIfNotTruthy:
			offset := vm.readShort()
			if vm.sp == 0 {
				return vm.runtimeError("Stack underflow.")
			}
			if vm.stack[vm.sp-1].Falsey() {
				vm.ip += int(offset)
			}

		case chunk.OpLoop:
			offset := vm.readShort()
			vm.ip -= int(offset)

		case chunk.OpReturn:
			return nil

		default:
			return vm.runtimeError(fmt.Sprintf("Unknown opcode %d.", op))
		}
	}
}

func (vm *VM) readByte() byte {
	b := vm.chunk.Code[vm.ip]
	vm.ip++
	return b
}

func (vm *VM) readShort() uint16 {
	hi := vm.readByte()
	lo := vm.readByte()
	return uint16(hi)<<8 | uint16(lo)
}

func (vm *VM) readConstant() value.Value {
	return vm.chunk.Constants[vm.readByte()]
}

// push returns a non-nil error, rather than panicking, when the stack is
// already full - a deeply nested expression is the one way this
// function-free language can still overflow the 256-slot stack, and §9's
// decision is to report it as a RuntimeError instead of leaving it
// undefined or crashing the process.
func (vm *VM) push(v value.Value) error {
	if vm.sp >= len(vm.stack) {
		vm.sp = 0 // reset per §7: a runtime error resets the operand stack
		return vm.runtimeError("Stack overflow.")
	}
	vm.stack[vm.sp] = v
	vm.sp++
	return nil
}

func (vm *VM) pop() (value.Value, error) {
	if vm.sp <= 0 {
		return value.Nil, vm.runtimeError("Stack underflow.")
	}
	vm.sp--
	return vm.stack[vm.sp], nil
}

// peek returns the value `distance` slots down from the top without
// popping - distance 0 is the top.
func (vm *VM) peek(distance int) value.Value {
	return vm.stack[vm.sp-1-distance]
}

func (vm *VM) binaryArith(op func(a, b float64) float64) error {
	if vm.sp < 2 || !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError("Operands must be numbers.")
	}
	b, _ := vm.pop()
	a, _ := vm.pop()
	return vm.push(value.NumberVal(op(a.Number, b.Number)))
}

func (vm *VM) binaryCompare(op func(a, b float64) bool) error {
	if vm.sp < 2 || !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError("Operands must be numbers.")
	}
	b, _ := vm.pop()
	a, _ := vm.pop()
	return vm.push(value.BoolVal(op(a.Number, b.Number)))
}

// add implements OpAdd: string concatenation when both operands are
// strings, numeric addition when both are numbers, a runtime error
// otherwise - the one opcode in the dispatch table whose behavior depends
// on the operands' types rather than being uniformly numeric.
func (vm *VM) add() error {
	if vm.sp < 2 {
		return vm.runtimeError("Stack underflow.")
	}
	if vm.peek(0).IsString() && vm.peek(1).IsString() {
		b, _ := vm.pop()
		a, _ := vm.pop()
		concatenated := a.AsString() + b.AsString()
		return vm.push(value.ObjVal(vm.InternString(concatenated)))
	}
	if vm.peek(0).IsNumber() && vm.peek(1).IsNumber() {
		b, _ := vm.pop()
		a, _ := vm.pop()
		return vm.push(value.NumberVal(a.Number + b.Number))
	}
	return vm.runtimeError("Operands must be numbers or strings.")
}

// currentLine reports the source line the instruction just fetched (at
// vm.ip-1, since readByte already advanced past the opcode byte) came from,
// for runtime-error reporting.
func (vm *VM) currentLine() int {
	idx := vm.ip - 1
	if idx < 0 || idx >= len(vm.chunk.Lines) {
		return 0
	}
	return vm.chunk.Lines[idx]
}

func (vm *VM) runtimeError(message string) error {
	return errs.NewRuntimeError(message, vm.currentLine())
}

// traceInstruction prints the current stack contents and the instruction
// about to execute, mirroring the reference VM's DEBUG_TRACE_EXECUTION
// build flag. It is driven by the TraceExecution field rather than a
// compile-time switch, since Go has no preprocessor.
func (vm *VM) traceInstruction() {
	var b strings.Builder
	b.WriteString("          ")
	for i := 0; i < vm.sp; i++ {
		fmt.Fprintf(&b, "[ %s ]", vm.stack[i].String())
	}
	fmt.Println(b.String())
	fmt.Print(debug.DisassembleInstruction(vm.chunk, vm.ip))
}
