package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/ember/pkg/chunk"
	"github.com/kristofer/ember/pkg/value"
)

// buildChunk is a small helper for constructing a Chunk by hand, bypassing
// the compiler, so these tests exercise exactly the opcode semantics
// rather than anything about how the compiler lowers source to bytecode.
func buildChunk(ops ...byte) *chunk.Chunk {
	c := chunk.New()
	for _, b := range ops {
		c.Write(b, 1)
	}
	return c
}

func TestRunArithmetic(t *testing.T) {
	c := chunk.New()
	a := c.AddConstant(value.NumberVal(3))
	b := c.AddConstant(value.NumberVal(4))
	c.WriteOp(chunk.OpConstant, 1)
	c.Write(byte(a), 1)
	c.WriteOp(chunk.OpConstant, 1)
	c.Write(byte(b), 1)
	c.WriteOp(chunk.OpAdd, 1)
	c.WriteOp(chunk.OpReturn, 1)

	machine := New()
	require.NoError(t, machine.Run(c))
}

func TestRunStringConcatenationInterns(t *testing.T) {
	machine := New()
	c := chunk.New()
	hello := machine.InternString("hel")
	world := machine.InternString("lo")
	ia := c.AddConstant(value.ObjVal(hello))
	ib := c.AddConstant(value.ObjVal(world))
	c.WriteOp(chunk.OpConstant, 1)
	c.Write(byte(ia), 1)
	c.WriteOp(chunk.OpConstant, 1)
	c.Write(byte(ib), 1)
	c.WriteOp(chunk.OpAdd, 1)
	c.WriteOp(chunk.OpReturn, 1)

	require.NoError(t, machine.Run(c))

	again := machine.Interns().FindString("helo", value.FNV1a32("helo"))
	assert.NotNil(t, again)
}

func TestRunArithmeticOnNonNumberIsRuntimeError(t *testing.T) {
	machine := New()
	c := chunk.New()
	str := c.AddConstant(value.ObjVal(machine.InternString("x")))
	num := c.AddConstant(value.NumberVal(1))
	c.WriteOp(chunk.OpConstant, 1)
	c.Write(byte(str), 1)
	c.WriteOp(chunk.OpConstant, 1)
	c.Write(byte(num), 1)
	c.WriteOp(chunk.OpSubtract, 1)
	c.WriteOp(chunk.OpReturn, 1)

	err := machine.Run(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Operands must be numbers")
}

func TestRunUndefinedGlobalReadIsRuntimeError(t *testing.T) {
	machine := New()
	c := chunk.New()
	name := c.AddConstant(value.ObjVal(machine.InternString("nope")))
	c.WriteOp(chunk.OpGetGlobal, 1)
	c.Write(byte(name), 1)
	c.WriteOp(chunk.OpReturn, 1)

	err := machine.Run(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Undefined variable 'nope'")
}

func TestRunUndefinedGlobalAssignIsRuntimeErrorAndDoesNotDefine(t *testing.T) {
	machine := New()
	c := chunk.New()
	name := c.AddConstant(value.ObjVal(machine.InternString("nope")))
	one := c.AddConstant(value.NumberVal(1))
	c.WriteOp(chunk.OpConstant, 1)
	c.Write(byte(one), 1)
	c.WriteOp(chunk.OpSetGlobal, 1)
	c.Write(byte(name), 1)
	c.WriteOp(chunk.OpReturn, 1)

	err := machine.Run(c)
	require.Error(t, err)

	_, ok := machine.Globals().Get(machine.InternString("nope"))
	assert.False(t, ok)
}

func TestRunDefineThenGetGlobal(t *testing.T) {
	machine := New()
	c := chunk.New()
	name := c.AddConstant(value.ObjVal(machine.InternString("x")))
	val := c.AddConstant(value.NumberVal(42))
	c.WriteOp(chunk.OpConstant, 1)
	c.Write(byte(val), 1)
	c.WriteOp(chunk.OpDefineGlobal, 1)
	c.Write(byte(name), 1)
	c.WriteOp(chunk.OpGetGlobal, 1)
	c.Write(byte(name), 1)
	c.WriteOp(chunk.OpPop, 1)
	c.WriteOp(chunk.OpReturn, 1)

	require.NoError(t, machine.Run(c))

	v, ok := machine.Globals().Get(machine.InternString("x"))
	require.True(t, ok)
	assert.Equal(t, float64(42), v.Number)
}

func TestRunGlobalsPersistAcrossRunCalls(t *testing.T) {
	machine := New()

	define := chunk.New()
	name := define.AddConstant(value.ObjVal(machine.InternString("counter")))
	val := define.AddConstant(value.NumberVal(1))
	define.WriteOp(chunk.OpConstant, 1)
	define.Write(byte(val), 1)
	define.WriteOp(chunk.OpDefineGlobal, 1)
	define.Write(byte(name), 1)
	define.WriteOp(chunk.OpReturn, 1)
	require.NoError(t, machine.Run(define))

	read := chunk.New()
	name2 := read.AddConstant(value.ObjVal(machine.InternString("counter")))
	read.WriteOp(chunk.OpGetGlobal, 1)
	read.Write(byte(name2), 1)
	read.WriteOp(chunk.OpPop, 1)
	read.WriteOp(chunk.OpReturn, 1)
	require.NoError(t, machine.Run(read))
}

func TestRunJumpIfNotTruthySkipsOverFalseBranch(t *testing.T) {
	machine := New()
	c := chunk.New()
	c.WriteOp(chunk.OpFalse, 1)
	c.WriteOp(chunk.OpJumpIfNotTruthy, 1)
	c.Write(0, 1)
	c.Write(2, 1) // skip the next 2 bytes (the one-byte OpPop and OpNegate)
	c.WriteOp(chunk.OpPop, 1)
	c.WriteOp(chunk.OpNegate, 1) // would error if reached without an operand
	c.WriteOp(chunk.OpReturn, 1)

	// JUMP_IF_NOT_TRUTHY skips both OpPop and OpNegate, so the only thing
	// left is OpReturn and Run succeeds; had the jump not been taken, NEGATE
	// would run on an empty stack and error.
	err := machine.Run(c)
	require.NoError(t, err)
}

func TestRunStackOverflowIsDetected(t *testing.T) {
	machine := NewWithStackSize(2)
	c := chunk.New()
	idx := c.AddConstant(value.NumberVal(1))
	for i := 0; i < 5; i++ {
		c.WriteOp(chunk.OpConstant, 1)
		c.Write(byte(idx), 1)
	}
	c.WriteOp(chunk.OpReturn, 1)

	err := machine.Run(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Stack overflow")
}

func TestRunPopEmptyStackIsRuntimeError(t *testing.T) {
	machine := New()
	c := buildChunk(byte(chunk.OpPop), byte(chunk.OpReturn))
	err := machine.Run(c)
	require.Error(t, err)
}

func TestCloseDropsGlobalsAndInterns(t *testing.T) {
	machine := New()
	machine.InternString("x")
	machine.Close()
	assert.Equal(t, 0, machine.Interns().Count())
	assert.Equal(t, 0, machine.Globals().Count())
}

func TestInternStringDeduplicatesByBytes(t *testing.T) {
	machine := New()
	a := machine.InternString("same")
	b := machine.InternString("same")
	assert.Same(t, a, b)
}
