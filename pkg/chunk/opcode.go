// Package chunk defines the bytecode container the compiler emits into and
// the VM executes: a growable byte sequence of opcodes and operands, a
// parallel line-number table, and a constant pool.
//
// Instruction encoding is fixed-width per opcode rather than the compiler's
// pkg/bytecode {Op, Operand int} pair the teacher used for its
// message-passing bytecode: ember's opcodes take either no operand, a
// one-byte constant/slot index, or a two-byte big-endian jump offset,
// matching the reference VM's "one-byte opcode, byte-addressable operand"
// layout so the compiler's jump-patching math (§4.3) lines up exactly.
package chunk

// Opcode is a single bytecode instruction's operation.
type Opcode byte

const (
	// OpConstant pushes constants[operand] onto the stack.
	// Operand: one byte, index into the constant pool.
	OpConstant Opcode = iota

	// OpNil, OpTrue, OpFalse push their literal value. No operand.
	OpNil
	OpTrue
	OpFalse

	// OpPop discards the top of the stack. No operand.
	OpPop

	// OpEqual pops two values and pushes Bool(values equal).
	OpEqual
	// OpGreater pops two numbers and pushes Bool(a > b); runtime error on
	// non-numbers.
	OpGreater
	// OpLess is OpGreater's mirror.
	OpLess

	// OpAdd pops two values: concatenates if both are strings (interning
	// the result), adds if both are numbers, else runtime error.
	OpAdd
	// OpSubtract, OpMultiply, OpDivide are numeric-only; runtime error
	// otherwise.
	OpSubtract
	OpMultiply
	OpDivide

	// OpNot pushes Bool(is_falsey(pop())).
	OpNot
	// OpNegate numerically negates the top of the stack in place.
	OpNegate

	// OpPrint pops and prints the top of the stack with a trailing newline.
	OpPrint

	// OpDefineGlobal: operand is a constant-pool index of the variable's
	// interned name. Pops the top of the stack and binds it as a global.
	OpDefineGlobal
	// OpGetGlobal: operand is a name index; pushes the global's value or
	// raises a runtime error if undefined.
	OpGetGlobal
	// OpSetGlobal: operand is a name index; overwrites an existing global
	// with the (unpopped) top of stack, or raises a runtime error if the
	// global was never defined.
	OpSetGlobal

	// OpGetLocal: operand is a stack slot; pushes stack[slot].
	OpGetLocal
	// OpSetLocal: operand is a stack slot; stores the top of stack (without
	// popping - assignment is an expression) into stack[slot].
	OpSetLocal

	// OpJump: operand is a two-byte offset; ip += offset unconditionally.
	OpJump
	// OpJumpIfNotTruthy: operand is a two-byte offset; ip += offset if the
	// top of stack (left on the stack, not popped) is falsey.
	OpJumpIfNotTruthy
	// OpLoop: operand is a two-byte offset; ip -= offset (backward jump).
	OpLoop

	// OpReturn halts execution with success.
	OpReturn
)

// String renders an opcode's mnemonic, used by the debug disassembler.
func (op Opcode) String() string {
	switch op {
	case OpConstant:
		return "CONSTANT"
	case OpNil:
		return "NIL"
	case OpTrue:
		return "TRUE"
	case OpFalse:
		return "FALSE"
	case OpPop:
		return "POP"
	case OpEqual:
		return "EQUAL"
	case OpGreater:
		return "GREATER"
	case OpLess:
		return "LESS"
	case OpAdd:
		return "ADD"
	case OpSubtract:
		return "SUBTRACT"
	case OpMultiply:
		return "MULTIPLY"
	case OpDivide:
		return "DIVIDE"
	case OpNot:
		return "NOT"
	case OpNegate:
		return "NEGATE"
	case OpPrint:
		return "PRINT"
	case OpDefineGlobal:
		return "DEFINE_GLOBAL"
	case OpGetGlobal:
		return "GET_GLOBAL"
	case OpSetGlobal:
		return "SET_GLOBAL"
	case OpGetLocal:
		return "GET_LOCAL"
	case OpSetLocal:
		return "SET_LOCAL"
	case OpJump:
		return "JUMP"
	case OpJumpIfNotTruthy:
		return "JUMP_IF_NOT_TRUTHY"
	case OpLoop:
		return "LOOP"
	case OpReturn:
		return "RETURN"
	default:
		return "UNKNOWN"
	}
}
