// Package debug renders a Chunk's bytecode as human-readable text: one
// line per instruction, with the source line and (for instructions that
// carry one) the operand. It has no effect on execution - it exists for
// --trace output and for anyone staring at a REPL session trying to see
// what the compiler actually emitted.
package debug

import (
	"fmt"
	"strings"

	"github.com/alecthomas/repr"

	"github.com/kristofer/ember/pkg/chunk"
)

// DisassembleChunk writes every instruction in c, labeled with name, to a
// string - the batch form the driver prints under --trace before running a
// chunk, and that tests use to assert on a whole chunk's shape at once.
func DisassembleChunk(c *chunk.Chunk, name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", name)
	for offset := 0; offset < c.Count(); {
		line, next := disassembleInstructionAt(c, offset)
		b.WriteString(line)
		offset = next
	}
	return b.String()
}

// DisassembleInstruction renders the single instruction at offset, with a
// trailing newline, and is what the VM's execution tracer calls before
// every dispatch.
func DisassembleInstruction(c *chunk.Chunk, offset int) string {
	line, _ := disassembleInstructionAt(c, offset)
	return line
}

func disassembleInstructionAt(c *chunk.Chunk, offset int) (string, int) {
	var b strings.Builder
	fmt.Fprintf(&b, "%04d ", offset)
	if offset > 0 && c.Lines[offset] == c.Lines[offset-1] {
		b.WriteString("   | ")
	} else {
		fmt.Fprintf(&b, "%4d ", c.Lines[offset])
	}

	op := chunk.Opcode(c.Code[offset])
	switch op {
	case chunk.OpConstant, chunk.OpDefineGlobal, chunk.OpGetGlobal, chunk.OpSetGlobal:
		return constantInstruction(&b, op, c, offset)
	case chunk.OpGetLocal, chunk.OpSetLocal:
		return byteInstruction(&b, op, c, offset)
	case chunk.OpJump, chunk.OpJumpIfNotTruthy:
		return jumpInstruction(&b, op, 1, c, offset)
	case chunk.OpLoop:
		return jumpInstruction(&b, op, -1, c, offset)
	default:
		return simpleInstruction(&b, op, offset)
	}
}

func simpleInstruction(b *strings.Builder, op chunk.Opcode, offset int) (string, int) {
	fmt.Fprintf(b, "%-16s\n", op.String())
	return b.String(), offset + 1
}

func constantInstruction(b *strings.Builder, op chunk.Opcode, c *chunk.Chunk, offset int) (string, int) {
	constant := c.Code[offset+1]
	v := c.Constants[constant]
	fmt.Fprintf(b, "%-16s %4d '%s'\n", op.String(), constant, repr.String(v.String()))
	return b.String(), offset + 2
}

func byteInstruction(b *strings.Builder, op chunk.Opcode, c *chunk.Chunk, offset int) (string, int) {
	slot := c.Code[offset+1]
	fmt.Fprintf(b, "%-16s %4d\n", op.String(), slot)
	return b.String(), offset + 2
}

func jumpInstruction(b *strings.Builder, op chunk.Opcode, sign int, c *chunk.Chunk, offset int) (string, int) {
	jump := int(c.Code[offset+1])<<8 | int(c.Code[offset+2])
	target := offset + 3 + sign*jump
	fmt.Fprintf(b, "%-16s %4d -> %d\n", op.String(), offset, target)
	return b.String(), offset + 3
}
