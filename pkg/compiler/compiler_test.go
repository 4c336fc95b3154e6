package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/ember/pkg/chunk"
	"github.com/kristofer/ember/pkg/vm"
)

func compile(t *testing.T, src string) *chunk.Chunk {
	t.Helper()
	c, err := Compile(src, vm.New())
	require.NoError(t, err)
	return c
}

func TestCompileNumberLiteralExpressionStatement(t *testing.T) {
	c := compile(t, "1;")
	assert.Equal(t, []byte{
		byte(chunk.OpConstant), 0,
		byte(chunk.OpPop),
		byte(chunk.OpReturn),
	}, c.Code)
	require.Len(t, c.Constants, 1)
	assert.Equal(t, "1", c.Constants[0].String())
}

func TestCompileNotEqualLowersToEqualThenNot(t *testing.T) {
	c := compile(t, "1 != 2;")
	assert.Equal(t, []byte{
		byte(chunk.OpConstant), 0,
		byte(chunk.OpConstant), 1,
		byte(chunk.OpEqual),
		byte(chunk.OpNot),
		byte(chunk.OpPop),
		byte(chunk.OpReturn),
	}, c.Code)
}

func TestCompileGreaterEqualLowersToLessThenNot(t *testing.T) {
	c := compile(t, "1 >= 2;")
	assert.Equal(t, []byte{
		byte(chunk.OpConstant), 0,
		byte(chunk.OpConstant), 1,
		byte(chunk.OpLess),
		byte(chunk.OpNot),
		byte(chunk.OpPop),
		byte(chunk.OpReturn),
	}, c.Code)
}

func TestCompileLessEqualLowersToGreaterThenNot(t *testing.T) {
	c := compile(t, "1 <= 2;")
	assert.Equal(t, []byte{
		byte(chunk.OpConstant), 0,
		byte(chunk.OpConstant), 1,
		byte(chunk.OpGreater),
		byte(chunk.OpNot),
		byte(chunk.OpPop),
		byte(chunk.OpReturn),
	}, c.Code)
}

func TestCompileGlobalVarDeclarationAndPrint(t *testing.T) {
	// constant pool order follows the reference compiler: the variable's
	// name is interned (and given a pool slot) before its initializer
	// expression is compiled, and every later reference to that name gets
	// its own fresh pool slot pointing at the same interned string object.
	c := compile(t, "var x = 10; print x;")
	assert.Equal(t, []byte{
		byte(chunk.OpConstant), 1, // 10
		byte(chunk.OpDefineGlobal), 0, // name "x" (pool slot 0)
		byte(chunk.OpGetGlobal), 2, // name "x" again (pool slot 2)
		byte(chunk.OpPrint),
		byte(chunk.OpReturn),
	}, c.Code)
}

func TestCompileLocalVariableUsesSlotOpcodesNotGlobal(t *testing.T) {
	c := compile(t, "{ var x = 1; x = 2; print x; }")
	assert.Contains(t, c.Code, byte(chunk.OpGetLocal))
	assert.NotContains(t, c.Code, byte(chunk.OpDefineGlobal))

	hasSetLocal := false
	for _, b := range c.Code {
		if b == byte(chunk.OpSetLocal) {
			hasSetLocal = true
		}
	}
	assert.True(t, hasSetLocal)
}

func TestCompileReadingLocalInOwnInitializerIsError(t *testing.T) {
	_, err := Compile("{ var x = x; }", vm.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "own initializer")
}

func TestCompileRedeclaringLocalInSameScopeIsError(t *testing.T) {
	_, err := Compile("{ var x = 1; var x = 2; }", vm.New())
	require.Error(t, err)
}

func TestCompileShadowingInNestedScopeIsFine(t *testing.T) {
	_, err := Compile("{ var x = 1; { var x = 2; } }", vm.New())
	require.NoError(t, err)
}

func TestCompileBreakOutsideLoopIsError(t *testing.T) {
	_, err := Compile("break;", vm.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "break")
}

func TestCompileMultipleBreaksInSameLoopAllPatched(t *testing.T) {
	// regression test: the reference compiler only remembered the most
	// recent break in a loop body and silently dropped earlier ones.
	c := compile(t, `
		while (true) {
			if (true) break;
			if (false) break;
		}
	`)
	jumpCount := 0
	for _, b := range c.Code {
		if b == byte(chunk.OpJump) {
			jumpCount++
		}
	}
	// two breaks + the if/else "skip else" jumps; just assert we compiled
	// without error and emitted more than one OpJump, proving both break
	// sites got their own placeholder rather than overwriting each other.
	assert.GreaterOrEqual(t, jumpCount, 2)
}

func TestCompileInvalidAssignmentTargetIsError(t *testing.T) {
	_, err := Compile("1 = 2;", vm.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid assignment target")
}

func TestCompileUndefinedExpressionIsError(t *testing.T) {
	_, err := Compile(");", vm.New())
	require.Error(t, err)
}

func TestCompileCollectsMultipleDiagnostics(t *testing.T) {
	_, err := Compile("1 = 2; 3 = 4;", vm.New())
	require.Error(t, err)
	ce, ok := err.(interface{ Error() string })
	require.True(t, ok)
	// the two statements fail independently (synchronize clears panic mode
	// at the first ';'), so both errors are reported, on separate lines
	assert.GreaterOrEqual(t, len(splitLines(ce.Error())), 2)
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}

func TestCompileStringLiteralIsInterned(t *testing.T) {
	machine := vm.New()
	c1, err := Compile(`"hello";`, machine)
	require.NoError(t, err)
	c2, err := Compile(`"hello";`, machine)
	require.NoError(t, err)
	assert.Same(t, c1.Constants[0].Obj, c2.Constants[0].Obj)
}

func TestCompileForLoopDesugarsWithoutError(t *testing.T) {
	_, err := Compile("for (var i = 0; i < 10; i = i + 1) print i;", vm.New())
	require.NoError(t, err)
}

func TestCompileAndOrShortCircuitEmitsJumps(t *testing.T) {
	c := compile(t, "true and false;")
	assert.Contains(t, c.Code, byte(chunk.OpJumpIfNotTruthy))

	c2 := compile(t, "true or false;")
	assert.Contains(t, c2.Code, byte(chunk.OpJumpIfNotTruthy))
	assert.Contains(t, c2.Code, byte(chunk.OpJump))
}
