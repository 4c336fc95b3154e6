package chunk

import "github.com/kristofer/ember/pkg/value"

// maxConstants bounds the constant pool: OpConstant's operand is a single
// byte, so an index must fit in 0-255.
const maxConstants = 256

// Chunk is a unit of compiled bytecode: a byte sequence of opcodes and
// operands, a parallel line table (lines[i] is the source line that
// produced code[i]), and the constant pool instructions index into.
//
// Invariant: len(Code) == len(Lines) at every observable moment - Write
// appends to both in lock-step, so there's no code path that grows one
// without the other.
type Chunk struct {
	Code      []byte
	Lines     []int
	Constants []value.Value
}

// New returns an empty Chunk ready for the compiler to emit into.
func New() *Chunk {
	return &Chunk{
		Code:      make([]byte, 0, 8),
		Lines:     make([]int, 0, 8),
		Constants: make([]value.Value, 0, 8),
	}
}

// Write appends one byte of code and its source line. Go's append already
// amortizes growth (doubling), which is what the reference chunk's manual
// "start at 8, double on overflow" grow_array does by hand.
func (c *Chunk) Write(b byte, line int) {
	c.Code = append(c.Code, b)
	c.Lines = append(c.Lines, line)
}

// WriteOp is Write for an Opcode, saving call sites a byte(...) cast.
func (c *Chunk) WriteOp(op Opcode, line int) {
	c.Write(byte(op), line)
}

// AddConstant appends v to the constant pool and returns its index. The
// compiler is responsible for rejecting an index at or beyond
// maxConstants - AddConstant itself doesn't fail, so that the caller can
// decide whether to report the overflow as a compile error with the
// offending token's line (AddConstant has no line to report from).
func (c *Chunk) AddConstant(v value.Value) int {
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// ConstantsFull reports whether one more AddConstant would make the pool
// unaddressable by a one-byte operand.
func (c *Chunk) ConstantsFull() bool {
	return len(c.Constants) >= maxConstants
}

// Count returns the number of bytes emitted so far - the offset the next
// Write will land at. Compiler jump-patching math is expressed in terms of
// this.
func (c *Chunk) Count() int {
	return len(c.Code)
}
