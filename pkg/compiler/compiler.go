// Package compiler implements ember's single-pass compiler: a Pratt
// parser that emits bytecode directly into a *chunk.Chunk as it parses: no
// intermediate syntax tree, one token of lookahead.
//
// Compile takes the VM the resulting chunk will eventually run against,
// not because the compiler executes anything, but because every string
// constant (literals and variable names) has to come out of the same
// intern table the VM uses at runtime - that is how value.Equal and the
// GETGLOBAL/SETGLOBAL opcodes get away with comparing *value.Obj pointers
// instead of byte slices.
package compiler

import (
	"fmt"
	"strconv"

	"github.com/kristofer/ember/pkg/chunk"
	"github.com/kristofer/ember/pkg/errs"
	"github.com/kristofer/ember/pkg/lexer"
	"github.com/kristofer/ember/pkg/value"
	"github.com/kristofer/ember/pkg/vm"
)

// precedence orders binary operators from loosest to tightest binding; a
// parselet for infix position X only consumes a right operand parsed at
// X+1, which is what makes left-associative chains like `a - b - c` fall
// out of a flat table instead of a hand-written grammar rule per level.
type precedence int

const (
	precNone       precedence = iota
	precAssignment            // =
	precOr                    // or
	precAnd                   // and
	precEquality              // == !=
	precComparison            // < > <= >=
	precTerm                  // + -
	precFactor                // * /
	precUnary                 // ! -
	precCall                  // . ( ) - reserved, no call syntax exists yet
	precPrimary
)

type parseFn func(c *compiler, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

// maxLocals bounds the compiler's local-variable slots to what a one-byte
// stack-slot operand can address.
const maxLocals = 256

// local tracks one declared local variable's name and the scope depth it
// was declared at. depth == -1 marks "declared but not yet initialized" -
// the name is visible to resolveLocal (so shadowing works) but reading it
// is an error, which is what rejects `var x = x;`.
type local struct {
	name  string
	depth int
}

// compiler holds every piece of state a single compile pass needs: the
// lexer and its one-token lookahead, accumulated diagnostics, the chunk
// being built, the shared VM for interning, and the scope/locals/loop
// bookkeeping. Unlike the reference implementation there is no global
// `current *Compiler` - everything lives on this value, threaded through
// explicitly.
type compiler struct {
	lex *lexer.Lexer
	src string

	previous lexer.Token
	current  lexer.Token

	hadError    bool
	panicMode   bool
	diagnostics []string

	chunk   *chunk.Chunk
	machine *vm.VM

	locals     []local
	scopeDepth int

	// breakJumps holds one slice per currently nested loop; each break
	// statement inside that loop appends the offset of its placeholder
	// jump. endLoop patches every one of them to the loop's exit point,
	// rather than just the last one - the reference compiler only tracked
	// a single break per loop, silently losing all but the final `break;`
	// in a loop body.
	breakJumps [][]int
}

// Compile runs the full pipeline from source text to a finished Chunk:
// lexing, single-pass parsing, and bytecode emission all happen in this
// one call. machine is the VM the returned chunk will be handed to - every
// string constant and global name this compile produces is interned
// through it, so a later Run sees the exact same objects.
//
// On success the returned error is nil and the Chunk is ready to run. On
// failure every diagnostic collected across the whole pass (not just the
// first) comes back as an *errs.CompileError.
func Compile(source string, machine *vm.VM) (*chunk.Chunk, error) {
	c := &compiler{
		lex:     lexer.New(source),
		src:     source,
		chunk:   chunk.New(),
		machine: machine,
		locals:  make([]local, 0, maxLocals),
	}

	c.advance()
	for !c.match(lexer.TokenEOF) {
		c.declaration()
	}
	c.consume(lexer.TokenEOF, "Expect end of expression.")
	c.emitReturn()

	if c.hadError {
		return nil, &errs.CompileError{Diagnostics: c.diagnostics}
	}
	return c.chunk, nil
}

// --- token stream -----------------------------------------------------

func (c *compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.lex.ScanToken()
		if c.current.Kind != lexer.TokenError {
			break
		}
		c.errorAtCurrent(c.current.Message)
	}
}

func (c *compiler) check(kind lexer.TokenKind) bool {
	return c.current.Kind == kind
}

func (c *compiler) match(kind lexer.TokenKind) bool {
	if !c.check(kind) {
		return false
	}
	c.advance()
	return true
}

func (c *compiler) consume(kind lexer.TokenKind, message string) {
	if c.current.Kind == kind {
		c.advance()
		return
	}
	c.errorAtCurrent(message)
}

// --- error reporting ----------------------------------------------------

func (c *compiler) errorAtCurrent(message string) { c.errorAt(c.current, message) }
func (c *compiler) error(message string)          { c.errorAt(c.previous, message) }

// errorAt records one diagnostic, in panic mode, following the reference
// compiler's error-recovery shape exactly: the first error in a run of
// cascading ones is kept, the rest of that run is suppressed until
// synchronize() finds a statement boundary to resume at.
func (c *compiler) errorAt(tok lexer.Token, message string) {
	if c.panicMode {
		return
	}
	c.panicMode = true

	where := ""
	switch tok.Kind {
	case lexer.TokenEOF:
		where = " at end"
	case lexer.TokenError:
		// the lexer's own message already describes the problem
	default:
		where = fmt.Sprintf(" at '%s'", tok.Lexeme(c.src))
	}

	c.diagnostics = append(c.diagnostics, fmt.Sprintf("[line %d] Error%s: %s", tok.Line, where, message))
	c.hadError = true
}

// --- bytecode emission --------------------------------------------------

func (c *compiler) emitByte(b byte) { c.chunk.Write(b, c.previous.Line) }
func (c *compiler) emitOp(op chunk.Opcode) { c.chunk.WriteOp(op, c.previous.Line) }

func (c *compiler) emitBytes(op chunk.Opcode, b byte) {
	c.emitOp(op)
	c.emitByte(b)
}

func (c *compiler) emitReturn() { c.emitOp(chunk.OpReturn) }

func (c *compiler) makeConstant(v value.Value) byte {
	if c.chunk.ConstantsFull() {
		c.error("Too many constants in one chunk.")
		return 0
	}
	return byte(c.chunk.AddConstant(v))
}

func (c *compiler) emitConstant(v value.Value) {
	c.emitBytes(chunk.OpConstant, c.makeConstant(v))
}

// emitJump writes op followed by a two-byte placeholder offset and
// returns the offset of the placeholder's first byte, to be handed to
// patchJump once the jump target is known.
func (c *compiler) emitJump(op chunk.Opcode) int {
	c.emitOp(op)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return c.chunk.Count() - 2
}

// patchJump backfills the placeholder at offset with the distance from
// just past the placeholder to the current end of the chunk - i.e. where
// execution will actually land if the jump is taken.
func (c *compiler) patchJump(offset int) {
	jump := c.chunk.Count() - offset - 2
	if jump > 0xffff {
		c.error("Too much code to jump over.")
		return
	}
	c.chunk.Code[offset] = byte(jump >> 8)
	c.chunk.Code[offset+1] = byte(jump)
}

// emitLoop emits a backward OpLoop jump to loopStart.
func (c *compiler) emitLoop(loopStart int) {
	c.emitOp(chunk.OpLoop)
	offset := c.chunk.Count() - loopStart + 2
	if offset > 0xffff {
		c.error("Loop body too large.")
	}
	c.emitByte(byte(offset >> 8))
	c.emitByte(byte(offset))
}

// --- scopes and locals ---------------------------------------------------

func (c *compiler) beginScope() { c.scopeDepth++ }

func (c *compiler) endScope() {
	c.scopeDepth--
	for len(c.locals) > 0 && c.locals[len(c.locals)-1].depth > c.scopeDepth {
		c.emitOp(chunk.OpPop)
		c.locals = c.locals[:len(c.locals)-1]
	}
}

func (c *compiler) beginLoop() {
	c.breakJumps = append(c.breakJumps, nil)
}

// endLoop patches every break statement recorded for the loop now ending
// to jump here - the first point after the loop's exit-condition pop,
// matching where a natural loop exit lands.
func (c *compiler) endLoop() {
	top := len(c.breakJumps) - 1
	for _, offset := range c.breakJumps[top] {
		c.patchJump(offset)
	}
	c.breakJumps = c.breakJumps[:top]
}

func (c *compiler) inLoop() bool { return len(c.breakJumps) > 0 }

func (c *compiler) declareVariable() {
	if c.scopeDepth == 0 {
		return
	}
	name := c.previous.Lexeme(c.src)
	for i := len(c.locals) - 1; i >= 0; i-- {
		l := c.locals[i]
		if l.depth != -1 && l.depth < c.scopeDepth {
			break
		}
		if l.name == name {
			c.error("Already a variable with this name in this scope.")
		}
	}
	c.addLocal(name)
}

func (c *compiler) addLocal(name string) {
	if len(c.locals) == maxLocals {
		c.error("Too many local variables in function.")
		return
	}
	c.locals = append(c.locals, local{name: name, depth: -1})
}

func (c *compiler) markInitialized() {
	c.locals[len(c.locals)-1].depth = c.scopeDepth
}

func (c *compiler) resolveLocal(name string) int {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].name == name {
			if c.locals[i].depth == -1 {
				c.error("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

func (c *compiler) identifierConstant(name string) byte {
	return c.makeConstant(value.ObjVal(c.machine.InternString(name)))
}

func (c *compiler) parseVariable(errorMessage string) byte {
	c.consume(lexer.TokenIdentifier, errorMessage)
	c.declareVariable()
	if c.scopeDepth > 0 {
		return 0
	}
	return c.identifierConstant(c.previous.Lexeme(c.src))
}

func (c *compiler) defineVariable(global byte) {
	if c.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitBytes(chunk.OpDefineGlobal, global)
}

// --- Pratt parsing core ---------------------------------------------------

func (c *compiler) parsePrecedence(prec precedence) {
	c.advance()
	prefixRule := getRule(c.previous.Kind).prefix
	if prefixRule == nil {
		c.error("Expect expression.")
		return
	}

	canAssign := prec <= precAssignment
	prefixRule(c, canAssign)

	for prec <= getRule(c.current.Kind).precedence {
		c.advance()
		infixRule := getRule(c.previous.Kind).infix
		infixRule(c, canAssign)
	}

	if canAssign && c.match(lexer.TokenEqual) {
		c.error("Invalid assignment target.")
	}
}

func (c *compiler) expression() {
	c.parsePrecedence(precAssignment)
}

func getRule(kind lexer.TokenKind) parseRule {
	if rule, ok := rules[kind]; ok {
		return rule
	}
	return parseRule{nil, nil, precNone}
}

var rules map[lexer.TokenKind]parseRule

func init() {
	rules = map[lexer.TokenKind]parseRule{
		lexer.TokenLeftParen:    {grouping, nil, precNone},
		lexer.TokenMinus:        {unary, binary, precTerm},
		lexer.TokenPlus:         {nil, binary, precTerm},
		lexer.TokenSlash:        {nil, binary, precFactor},
		lexer.TokenStar:         {nil, binary, precFactor},
		lexer.TokenBang:         {unary, nil, precNone},
		lexer.TokenBangEqual:    {nil, binary, precEquality},
		lexer.TokenEqualEqual:   {nil, binary, precEquality},
		lexer.TokenGreater:      {nil, binary, precComparison},
		lexer.TokenGreaterEqual: {nil, binary, precComparison},
		lexer.TokenLess:         {nil, binary, precComparison},
		lexer.TokenLessEqual:    {nil, binary, precComparison},
		lexer.TokenIdentifier:   {variable, nil, precNone},
		lexer.TokenString:       {stringLiteral, nil, precNone},
		lexer.TokenNumber:       {number, nil, precNone},
		lexer.TokenAnd:          {nil, and_, precAnd},
		lexer.TokenOr:           {nil, or_, precOr},
		lexer.TokenFalse:        {literal, nil, precNone},
		lexer.TokenNil:          {literal, nil, precNone},
		lexer.TokenTrue:         {literal, nil, precNone},
	}
}

// --- prefix and infix parselets -------------------------------------------

func grouping(c *compiler, _ bool) {
	c.expression()
	c.consume(lexer.TokenRightParen, "Expect ')' after expression.")
}

func number(c *compiler, _ bool) {
	text := c.previous.Lexeme(c.src)
	n, err := strconv.ParseFloat(text, 64)
	if err != nil {
		c.error("Invalid number literal.")
		return
	}
	c.emitConstant(value.NumberVal(n))
}

func stringLiteral(c *compiler, _ bool) {
	lexeme := c.previous.Lexeme(c.src)
	// strip the surrounding quotes; the language has no escape sequences
	chars := lexeme[1 : len(lexeme)-1]
	obj := c.machine.InternString(chars)
	c.emitConstant(value.ObjVal(obj))
}

func literal(c *compiler, _ bool) {
	switch c.previous.Kind {
	case lexer.TokenFalse:
		c.emitOp(chunk.OpFalse)
	case lexer.TokenNil:
		c.emitOp(chunk.OpNil)
	case lexer.TokenTrue:
		c.emitOp(chunk.OpTrue)
	}
}

func unary(c *compiler, _ bool) {
	opKind := c.previous.Kind
	c.parsePrecedence(precUnary)
	switch opKind {
	case lexer.TokenBang:
		c.emitOp(chunk.OpNot)
	case lexer.TokenMinus:
		c.emitOp(chunk.OpNegate)
	}
}

func binary(c *compiler, _ bool) {
	opKind := c.previous.Kind
	rule := getRule(opKind)
	c.parsePrecedence(rule.precedence + 1)

	switch opKind {
	case lexer.TokenBangEqual:
		c.emitOp(chunk.OpEqual)
		c.emitOp(chunk.OpNot)
	case lexer.TokenEqualEqual:
		c.emitOp(chunk.OpEqual)
	case lexer.TokenGreater:
		c.emitOp(chunk.OpGreater)
	case lexer.TokenGreaterEqual:
		c.emitOp(chunk.OpLess)
		c.emitOp(chunk.OpNot)
	case lexer.TokenLess:
		c.emitOp(chunk.OpLess)
	case lexer.TokenLessEqual:
		c.emitOp(chunk.OpGreater)
		c.emitOp(chunk.OpNot)
	case lexer.TokenPlus:
		c.emitOp(chunk.OpAdd)
	case lexer.TokenMinus:
		c.emitOp(chunk.OpSubtract)
	case lexer.TokenStar:
		c.emitOp(chunk.OpMultiply)
	case lexer.TokenSlash:
		c.emitOp(chunk.OpDivide)
	}
}

func and_(c *compiler, _ bool) {
	endJump := c.emitJump(chunk.OpJumpIfNotTruthy)
	c.emitOp(chunk.OpPop)
	c.parsePrecedence(precAnd)
	c.patchJump(endJump)
}

func or_(c *compiler, _ bool) {
	elseJump := c.emitJump(chunk.OpJumpIfNotTruthy)
	endJump := c.emitJump(chunk.OpJump)
	c.patchJump(elseJump)
	c.emitOp(chunk.OpPop)
	c.parsePrecedence(precOr)
	c.patchJump(endJump)
}

func variable(c *compiler, canAssign bool) {
	namedVariable(c, c.previous.Lexeme(c.src), canAssign)
}

func namedVariable(c *compiler, name string, canAssign bool) {
	var getOp, setOp chunk.Opcode
	arg := c.resolveLocal(name)
	if arg != -1 {
		getOp, setOp = chunk.OpGetLocal, chunk.OpSetLocal
	} else {
		arg = int(c.identifierConstant(name))
		getOp, setOp = chunk.OpGetGlobal, chunk.OpSetGlobal
	}

	if canAssign && c.match(lexer.TokenEqual) {
		c.expression()
		c.emitBytes(setOp, byte(arg))
	} else {
		c.emitBytes(getOp, byte(arg))
	}
}

// --- statements and declarations -----------------------------------------

func (c *compiler) declaration() {
	if c.match(lexer.TokenVar) {
		c.varDeclaration()
	} else {
		c.statement()
	}

	if c.panicMode {
		c.synchronize()
	}
}

func (c *compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")

	if c.match(lexer.TokenEqual) {
		c.expression()
	} else {
		c.emitOp(chunk.OpNil)
	}
	c.consume(lexer.TokenSemicolon, "Expect ';' after variable declaration.")
	c.defineVariable(global)
}

// synchronize resets panic mode at the next likely statement boundary -
// the same keyword set as the reference compiler, including keywords
// ember doesn't currently implement a statement form for (class, fun,
// return): they're still valid places to resume, since a user writing one
// of them almost certainly intended a new statement.
func (c *compiler) synchronize() {
	c.panicMode = false

	for c.current.Kind != lexer.TokenEOF {
		if c.previous.Kind == lexer.TokenSemicolon {
			return
		}
		switch c.current.Kind {
		case lexer.TokenClass, lexer.TokenFun, lexer.TokenVar, lexer.TokenFor,
			lexer.TokenIf, lexer.TokenWhile, lexer.TokenPrint, lexer.TokenReturn:
			return
		}
		c.advance()
	}
}

func (c *compiler) statement() {
	switch {
	case c.match(lexer.TokenPrint):
		c.printStatement()
	case c.match(lexer.TokenLeftBrace):
		c.beginScope()
		c.block()
		c.endScope()
	case c.match(lexer.TokenIf):
		c.ifStatement()
	case c.match(lexer.TokenWhile):
		c.whileStatement()
	case c.match(lexer.TokenFor):
		c.forStatement()
	case c.match(lexer.TokenBreak):
		c.breakStatement()
	default:
		c.expressionStatement()
	}
}

func (c *compiler) block() {
	for !c.check(lexer.TokenRightBrace) && !c.check(lexer.TokenEOF) {
		c.declaration()
	}
	c.consume(lexer.TokenRightBrace, "Expect '}' after block.")
}

func (c *compiler) printStatement() {
	c.expression()
	c.consume(lexer.TokenSemicolon, "Expect ';' after value.")
	c.emitOp(chunk.OpPrint)
}

func (c *compiler) expressionStatement() {
	c.expression()
	c.consume(lexer.TokenSemicolon, "Expect ';' after expression.")
	c.emitOp(chunk.OpPop)
}

func (c *compiler) ifStatement() {
	c.consume(lexer.TokenLeftParen, "Expect '(' after 'if'.")
	c.expression()
	c.consume(lexer.TokenRightParen, "Expect ')' after condition.")

	thenJump := c.emitJump(chunk.OpJumpIfNotTruthy)
	c.emitOp(chunk.OpPop)
	c.statement()

	elseJump := c.emitJump(chunk.OpJump)
	c.patchJump(thenJump)
	c.emitOp(chunk.OpPop)

	if c.match(lexer.TokenElse) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *compiler) whileStatement() {
	c.beginLoop()
	loopStart := c.chunk.Count()
	c.consume(lexer.TokenLeftParen, "Expect '(' after 'while'.")
	c.expression()
	c.consume(lexer.TokenRightParen, "Expect ')' after condition.")

	exitJump := c.emitJump(chunk.OpJumpIfNotTruthy)
	c.emitOp(chunk.OpPop)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emitOp(chunk.OpPop)
	c.endLoop()
}

func (c *compiler) forStatement() {
	c.beginLoop()
	c.beginScope()
	c.consume(lexer.TokenLeftParen, "Expect '(' after 'for'.")

	switch {
	case c.match(lexer.TokenSemicolon):
		// no initializer
	case c.match(lexer.TokenVar):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := c.chunk.Count()
	exitJump := -1
	if !c.match(lexer.TokenSemicolon) {
		c.expression()
		c.consume(lexer.TokenSemicolon, "Expect ';'.")
		exitJump = c.emitJump(chunk.OpJumpIfNotTruthy)
		c.emitOp(chunk.OpPop)
	}

	if !c.match(lexer.TokenRightParen) {
		bodyJump := c.emitJump(chunk.OpJump)
		incrementStart := c.chunk.Count()
		c.expression()
		c.emitOp(chunk.OpPop)
		c.consume(lexer.TokenRightParen, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitOp(chunk.OpPop)
	}
	c.endLoop()
	c.endScope()
}

func (c *compiler) breakStatement() {
	c.consume(lexer.TokenSemicolon, "Expect ';' after 'break'.")
	if !c.inLoop() {
		c.error("'break' can only be used inside a loop.")
		return
	}
	offset := c.emitJump(chunk.OpJump)
	top := len(c.breakJumps) - 1
	c.breakJumps[top] = append(c.breakJumps[top], offset)
}
