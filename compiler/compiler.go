package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/udonscript/udon/lexer"
	"github.com/udonscript/udon/token"
	"github.com/udonscript/udon/value"
)

// Reserved is the set of builtin names the compiler itself emits calls to;
// a host must provide all of them for any compiled program to run
// correctly (spec.md §4.6).
var Reserved = []string{"array", "__object_literal", "keys", "len", "array_get"}

type parser struct {
	toks []token.Token
	pos  int

	prog *Program
	fc   *funcCompiler

	lambdaCount  int
	tempCount    int
	ternaryDepth int
}

// Compile lexes and compiles src into a Program, or returns the first
// *Error encountered (compilation stops at the first failure, per spec.md
// §7).
func Compile(src string) (prog *Program, err error) {
	defer func() {
		if r := recover(); r != nil {
			if ce, ok := r.(*Error); ok {
				err = ce
				return
			}
			panic(r)
		}
	}()

	lx := lexer.New(src)
	toks := lx.Tokens()

	p := &parser{
		toks: toks,
		prog: &Program{
			FuncIndex:     make(map[string]int),
			Globals:       value.NewGlobals(),
			EventHandlers: make(map[string][]int),
		},
	}

	init := newFuncCompiler("$init", nil)
	init.beginScope()
	p.fc = init
	p.prog.GlobalInit = init.fn

	for !p.check(token.EndOfFile) {
		p.topLevelDecl()
	}
	init.fn.Code = append(init.fn.Code, Instruction{Op: OpPushLiteral, Literal: value.None})
	init.fn.Code = append(init.fn.Code, Instruction{Op: OpReturn})
	init.endScope()
	p.prog.addFunction(init.fn)

	return p.prog, nil
}

// --- token helpers -----------------------------------------------------

func (p *parser) cur() token.Token { return p.toks[p.pos] }
func (p *parser) pos_() token.Pos  { return p.cur().Pos }

func (p *parser) advance() token.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) check(k token.Kind) bool { return p.cur().Kind == k }

func (p *parser) checkSymbol(s string) bool {
	return p.cur().Kind == token.Symbol && p.cur().Text == s
}

func (p *parser) checkKeyword(kw string) bool {
	return p.cur().Kind == token.Keyword && p.cur().Text == kw
}

func (p *parser) matchSymbol(s string) bool {
	if p.checkSymbol(s) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) matchKeyword(kw string) bool {
	if p.checkKeyword(kw) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expectSymbol(s string) token.Token {
	if !p.checkSymbol(s) {
		p.fail("expected %q, found %v", s, p.cur())
	}
	return p.advance()
}

func (p *parser) expectKeyword(kw string) token.Token {
	if !p.checkKeyword(kw) {
		p.fail("expected keyword %q, found %v", kw, p.cur())
	}
	return p.advance()
}

func (p *parser) expectIdentifier() string {
	if !p.check(token.Identifier) {
		p.fail("expected identifier, found %v", p.cur())
	}
	return p.advance().Text
}

// expectPropName accepts an Identifier, String, or Number token as a
// property key, using its literal text as the key.
func (p *parser) expectPropName() string {
	if !p.check(token.Identifier) && !p.check(token.String) && !p.check(token.Number) {
		p.fail("expected property name, found %v", p.cur())
	}
	return p.advance().Text
}

func (p *parser) fail(format string, args ...interface{}) {
	panic(errf(p.pos_(), format, args...))
}

func (p *parser) emitCur(ins Instruction) int {
	ins.Pos = p.pos_()
	p.fc.fn.Code = append(p.fc.fn.Code, ins)
	return len(p.fc.fn.Code) - 1
}

func (p *parser) patchJumpHere(idx int) {
	p.fc.fn.Code[idx].Target = len(p.fc.fn.Code)
}

// hiddenTemp declares a fresh local slot with a name that cannot collide
// with a user identifier, for compiler-internal bookkeeping (switch
// subjects, destructuring, foreach iteration state, compound-assignment
// receiver caching).
func (p *parser) hiddenTemp(tag string) int {
	p.tempCount++
	return p.fc.declare(fmt.Sprintf("$%s%d", tag, p.tempCount))
}

// --- top level -----------------------------------------------------------

func (p *parser) topLevelDecl() {
	if p.checkKeyword("function") {
		p.functionDecl(true)
		return
	}
	if p.checkKeyword("var") {
		p.varStatement()
		return
	}
	p.statement()
}

// functionDecl compiles `function name(params) {...}` or, for an event
// handler, `function on:EVENT(params) {...}`.
func (p *parser) functionDecl(topLevel bool) {
	p.expectKeyword("function")
	name := p.expectIdentifier()
	isEvent := false
	if p.checkSymbol(":") {
		p.advance()
		evName := p.expectIdentifier()
		name = "on:" + evName
		isEvent = true
	}

	idx := p.compileFunctionBody(name)

	if isEvent {
		p.prog.EventHandlers[name] = append(p.prog.EventHandlers[name], idx)
		return
	}

	if topLevel {
		// Register the function as a global holding its own closure, so it
		// is both directly callable by name and usable as a value.
		p.prog.Globals.Declare(name)
		slot, _ := p.prog.Globals.Slot(name)
		p.emitInto(p.prog.GlobalInit, Instruction{Op: OpMakeClosure, Name: name})
		p.emitInto(p.prog.GlobalInit, Instruction{Op: OpStoreGlobal, Target: slot, Name: name})
	}
}

func (p *parser) emitInto(fn *Function, ins Instruction) int {
	fn.Code = append(fn.Code, ins)
	return len(fn.Code) - 1
}

// compileFunctionBody parses `(params) { body }` for a function already
// named name, compiles it into a fresh Function, and returns its index in
// the program's function table.
func (p *parser) compileFunctionBody(name string) int {
	fc := newFuncCompiler(name, p.fc)
	prevFC := p.fc
	p.fc = fc

	fc.beginScope()
	p.expectSymbol("(")
	for !p.checkSymbol(")") {
		if p.checkSymbol("...") {
			p.advance()
			fc.fn.Variadic = p.expectIdentifier()
			fc.declare(fc.fn.Variadic)
			break
		}
		pname := p.expectIdentifier()
		fc.fn.Params = append(fc.fn.Params, pname)
		fc.declare(pname)
		if !p.matchSymbol(",") {
			break
		}
	}
	p.expectSymbol(")")

	p.block()

	// A fall-through exit (no explicit return reached) yields none.
	p.emitCur(Instruction{Op: OpPushLiteral, Literal: value.None})
	p.emitCur(Instruction{Op: OpReturn})

	fc.endScope()

	idx := p.prog.addFunction(fc.fn)
	p.fc = prevFC
	return idx
}

// block compiles `{ stmt* }` in a fresh scope, emitting ENTER_SCOPE/EXIT_SCOPE
// around it (spec.md §4.2).
func (p *parser) block() {
	p.expectSymbol("{")
	p.fc.beginScope()
	enterIdx := p.emitCur(Instruction{Op: OpEnterScope})
	for !p.checkSymbol("}") && !p.check(token.EndOfFile) {
		p.statement()
	}
	p.expectSymbol("}")
	n := p.fc.endScope()
	p.fc.fn.Code[enterIdx].N = n
	p.emitCur(Instruction{Op: OpExitScope, N: n})
}

// --- statements ------------------------------------------------------------

func (p *parser) statement() {
	switch {
	case p.checkSymbol("{"):
		p.block()
	case p.checkKeyword("var"):
		p.varStatement()
	case p.checkKeyword("if"):
		p.ifStatement()
	case p.checkKeyword("while"):
		p.whileStatement()
	case p.checkKeyword("for"):
		p.forStatement()
	case p.checkKeyword("foreach"):
		p.foreachStatement()
	case p.checkKeyword("switch"):
		p.switchStatement()
	case p.checkKeyword("return"):
		p.returnStatement()
	case p.checkKeyword("break"):
		p.breakStatement()
	case p.checkKeyword("continue"):
		p.continueStatement()
	case p.checkKeyword("function"):
		p.nestedFunctionDecl()
	default:
		p.exprStatement()
	}
}

// nestedFunctionDecl handles `function name(...) {...}` appearing inside a
// function body: it behaves like `var name = function(...) {...}`.
func (p *parser) nestedFunctionDecl() {
	p.expectKeyword("function")
	name := p.expectIdentifier()
	slot := p.fc.declare(name)
	idx := p.compileFunctionBody(name)
	p.emitCur(Instruction{Op: OpMakeClosure, Name: p.prog.Functions[idx].Name})
	p.emitCur(Instruction{Op: OpStoreLocal, Depth: 0, Slot: slot})
	p.emitCur(Instruction{Op: OpPop})
}

func (p *parser) atTopLevelInit() bool {
	return p.fc.enclosing == nil && p.fc.fn.Name == "$init"
}

func (p *parser) varStatement() {
	p.expectKeyword("var")
	names := []string{p.varTargetName()}
	for p.matchSymbol(",") {
		names = append(names, p.varTargetName())
	}

	if len(names) == 1 {
		if p.matchSymbol("=") {
			p.expression(true)
		} else {
			p.emitCur(Instruction{Op: OpPushLiteral, Literal: value.None})
		}
		p.declareAndStore(names[0])
		p.semicolon()
		return
	}

	p.expectSymbol("=")
	p.expression(true)
	p.destructureInto(names)
	p.semicolon()
}

func (p *parser) varTargetName() string {
	if p.check(token.Identifier) && p.cur().Text == "_" {
		p.advance()
		return "_"
	}
	return p.expectIdentifier()
}

// declareAndStore declares name as a new local (or, at the top level, a
// global) and stores the value currently on top of the stack into it.
func (p *parser) declareAndStore(name string) {
	if p.atTopLevelInit() {
		if _, exists := p.prog.Globals.Slot(name); exists {
			p.fail("redeclared global %q", name)
		}
		p.prog.Globals.Declare(name)
		slot, _ := p.prog.Globals.Slot(name)
		p.emitCur(Instruction{Op: OpStoreGlobal, Target: slot, Name: name})
		return
	}
	slot := p.fc.declare(name)
	p.emitCur(Instruction{Op: OpStoreLocal, Depth: 0, Slot: slot})
}

// destructureInto evaluates the RHS already on the stack once into a hidden
// temp, then binds targets[i] to index i of it as fresh locals/globals
// (spec.md §4.2 destructuring).
func (p *parser) destructureInto(targets []string) {
	tmp := p.hiddenTemp("destruct")
	p.emitCur(Instruction{Op: OpStoreLocal, Depth: 0, Slot: tmp})
	for i, name := range targets {
		if name == "_" {
			continue
		}
		p.emitCur(Instruction{Op: OpLoadLocal, Depth: 0, Slot: tmp})
		p.emitCur(Instruction{Op: OpPushLiteral, Literal: value.Int(int64(i))})
		p.emitCur(Instruction{Op: OpGetProp, Name: "[index]"})
		p.declareAndStore(name)
	}
}

func (p *parser) semicolon() {
	p.matchSymbol(";")
}

func (p *parser) ifStatement() {
	p.expectKeyword("if")
	p.expectSymbol("(")
	p.expression(true)
	p.expectSymbol(")")
	p.emitCur(Instruction{Op: OpToBool})
	jumpElse := p.emitCur(Instruction{Op: OpJumpIfFalse})
	p.statement()
	if p.matchKeyword("else") {
		jumpEnd := p.emitCur(Instruction{Op: OpJump})
		p.patchJumpHere(jumpElse)
		p.statement()
		p.patchJumpHere(jumpEnd)
	} else {
		p.patchJumpHere(jumpElse)
	}
}

func (p *parser) whileStatement() {
	p.expectKeyword("while")
	lc := p.fc.pushBreakable(true)
	condStart := len(p.fc.fn.Code)
	p.expectSymbol("(")
	p.expression(true)
	p.expectSymbol(")")
	p.emitCur(Instruction{Op: OpToBool})
	jumpEnd := p.emitCur(Instruction{Op: OpJumpIfFalse})
	p.statement()
	jumpBack := p.emitCur(Instruction{Op: OpJump})
	p.fc.fn.Code[jumpBack].Target = condStart
	p.patchJumpHere(jumpEnd)
	for _, j := range lc.breakJump {
		p.patchJumpHere(j)
	}
	for _, j := range lc.continueJump {
		p.fc.fn.Code[j].Target = condStart
	}
	p.fc.popBreakable()
}

// forStatement compiles `for (init; cond; step) body` with the standard
// C-family layout: init; L: if !cond goto END; body; step; goto L; END:
func (p *parser) forStatement() {
	p.expectKeyword("for")
	p.expectSymbol("(")
	p.fc.beginScope()

	if !p.checkSymbol(";") {
		if p.checkKeyword("var") {
			p.varStatement()
		} else {
			p.expression(true)
			p.emitCur(Instruction{Op: OpPop})
			p.expectSymbol(";")
		}
	} else {
		p.advance()
	}

	lc := p.fc.pushBreakable(true)
	condStart := len(p.fc.fn.Code)
	hasCond := !p.checkSymbol(";")
	var jumpEnd int
	if hasCond {
		p.expression(true)
		p.expectSymbol(";")
		p.emitCur(Instruction{Op: OpToBool})
		jumpEnd = p.emitCur(Instruction{Op: OpJumpIfFalse})
	} else {
		p.expectSymbol(";")
	}

	// The step clause's tokens are parsed now but must execute after the
	// body, so its code is compiled into a side function-local buffer and
	// spliced in after the body is emitted.
	stepStart := len(p.fc.fn.Code)
	hasStep := !p.checkSymbol(")")
	if hasStep {
		p.expression(true)
		p.emitCur(Instruction{Op: OpPop})
	}
	stepCode := make([]Instruction, len(p.fc.fn.Code)-stepStart)
	copy(stepCode, p.fc.fn.Code[stepStart:])
	p.fc.fn.Code = p.fc.fn.Code[:stepStart]
	p.expectSymbol(")")

	p.statement()

	continueTarget := len(p.fc.fn.Code)
	for _, in := range stepCode {
		p.fc.fn.Code = append(p.fc.fn.Code, in)
	}
	jumpBack := p.emitCur(Instruction{Op: OpJump})
	p.fc.fn.Code[jumpBack].Target = condStart

	if hasCond {
		p.patchJumpHere(jumpEnd)
	}
	for _, j := range lc.breakJump {
		p.patchJumpHere(j)
	}
	for _, j := range lc.continueJump {
		p.fc.fn.Code[j].Target = continueTarget
	}
	p.fc.popBreakable()
	p.fc.endScope()
}

func (p *parser) breakStatement() {
	p.expectKeyword("break")
	lc := p.fc.nearestBreakable()
	if lc == nil {
		p.fail("break outside loop or switch")
	}
	p.emitUnwindTo(lc.scopeDepth)
	j := p.emitCur(Instruction{Op: OpJump})
	lc.breakJump = append(lc.breakJump, j)
	p.semicolon()
}

func (p *parser) continueStatement() {
	p.expectKeyword("continue")
	lc := p.fc.nearestLoop()
	if lc == nil {
		p.fail("continue outside loop")
	}
	p.emitUnwindTo(lc.scopeDepth)
	j := p.emitCur(Instruction{Op: OpJump})
	lc.continueJump = append(lc.continueJump, j)
	p.semicolon()
}

// emitUnwindTo emits EXIT_SCOPE for every scope between the current depth
// and target (spec.md §4.2 break/continue semantics). The register lowering
// pass erases these to no-ops; they exist here purely so the stack-IR
// disassembly reflects the scopes being left.
func (p *parser) emitUnwindTo(target int) {
	for i := len(p.fc.scopes) - 1; i >= target; i-- {
		p.emitCur(Instruction{Op: OpExitScope, N: p.fc.nextSlot - p.fc.scopes[i].startSlot})
	}
}

func (p *parser) returnStatement() {
	p.expectKeyword("return")
	if p.checkSymbol(";") || p.checkSymbol("}") {
		p.fail("return requires an expression")
	}
	p.expression(true)
	p.emitCur(Instruction{Op: OpReturn})
	p.semicolon()
}

func (p *parser) exprStatement() {
	if targets, ok := p.tryDestructureAssignTargets(); ok {
		p.expectSymbol("=")
		p.expression(true)
		p.destructureAssignInto(targets)
		p.semicolon()
		return
	}
	p.expression(true)
	p.emitCur(Instruction{Op: OpPop})
	p.semicolon()
}

// tryDestructureAssignTargets speculatively parses `ident (, ident)+ =` and
// reports success only if at least two names were found and an unconsumed
// '=' follows (a single name falls through to ordinary assignment parsing,
// and any mismatch rewinds the cursor).
func (p *parser) tryDestructureAssignTargets() ([]string, bool) {
	save := p.pos
	if !p.check(token.Identifier) {
		return nil, false
	}
	var names []string
	names = append(names, p.advance().Text)
	for p.checkSymbol(",") {
		savedComma := p.pos
		p.advance()
		if !p.check(token.Identifier) {
			p.pos = savedComma
			break
		}
		names = append(names, p.advance().Text)
	}
	if len(names) < 2 || !p.checkSymbol("=") {
		p.pos = save
		return nil, false
	}
	return names, true
}

// destructureAssignInto assigns into already-declared names (global or
// local), unlike destructureInto which declares fresh locals.
func (p *parser) destructureAssignInto(targets []string) {
	tmp := p.hiddenTemp("destruct")
	p.emitCur(Instruction{Op: OpStoreLocal, Depth: 0, Slot: tmp})
	for i, name := range targets {
		if name == "_" {
			continue
		}
		p.emitCur(Instruction{Op: OpLoadLocal, Depth: 0, Slot: tmp})
		p.emitCur(Instruction{Op: OpPushLiteral, Literal: value.Int(int64(i))})
		p.emitCur(Instruction{Op: OpGetProp, Name: "[index]"})
		p.storeResolvedName(name)
	}
}

// storeResolvedName stores the value on top of the stack into the already
// declared variable name, as a local, enclosing-closure variable, or
// global.
func (p *parser) storeResolvedName(name string) {
	if depth, slot, ok := p.fc.resolve(name); ok {
		p.emitCur(Instruction{Op: OpStoreLocal, Depth: depth, Slot: slot})
		return
	}
	slot, ok := p.prog.Globals.Slot(name)
	if !ok {
		p.fail("undeclared variable %q", name)
	}
	p.emitCur(Instruction{Op: OpStoreGlobal, Target: slot, Name: name})
}

// --- switch ---------------------------------------------------------------

func (p *parser) switchStatement() {
	p.expectKeyword("switch")
	p.expectSymbol("(")
	p.expression(true)
	p.expectSymbol(")")
	p.fc.beginScope()
	subjSlot := p.hiddenTemp("switch")
	p.emitCur(Instruction{Op: OpStoreLocal, Depth: 0, Slot: subjSlot})

	lc := p.fc.pushBreakable(false)

	p.expectSymbol("{")
	nextCaseJump := -1
	for p.checkKeyword("case") || p.checkKeyword("default") {
		if nextCaseJump >= 0 {
			p.patchJumpHere(nextCaseJump)
			nextCaseJump = -1
		}
		if p.matchKeyword("case") {
			p.emitCur(Instruction{Op: OpLoadLocal, Depth: 0, Slot: subjSlot})
			p.expression(true)
			p.emitCur(Instruction{Op: OpEq})
			p.expectSymbol(":")
			nextCaseJump = p.emitCur(Instruction{Op: OpJumpIfFalse})
		} else {
			p.matchKeyword("default")
			p.expectSymbol(":")
		}
		for !p.checkKeyword("case") && !p.checkKeyword("default") && !p.checkSymbol("}") {
			p.statement()
		}
	}
	if nextCaseJump >= 0 {
		p.patchJumpHere(nextCaseJump)
	}
	p.expectSymbol("}")

	for _, j := range lc.breakJump {
		p.patchJumpHere(j)
	}
	p.fc.popBreakable()
	n := p.fc.endScope()
	p.emitCur(Instruction{Op: OpExitScope, N: n})
}

// --- foreach ----------------------------------------------------------------

func (p *parser) foreachStatement() {
	p.expectKeyword("foreach")
	p.expectSymbol("(")
	p.expectKeyword("var")
	kName := p.expectIdentifier()
	var vName string
	hasV := false
	if p.matchSymbol(",") {
		vName = p.expectIdentifier()
		hasV = true
	}
	p.expectKeyword("in")
	p.expression(true)
	p.expectSymbol(")")

	p.fc.beginScope()
	collSlot := p.hiddenTemp("coll")
	p.emitCur(Instruction{Op: OpStoreLocal, Depth: 0, Slot: collSlot})

	p.emitCur(Instruction{Op: OpLoadLocal, Depth: 0, Slot: collSlot})
	p.emitCur(Instruction{Op: OpCall, Name: "keys", Argc: 1, ArgNames: []string{""}})
	keysSlot := p.hiddenTemp("keys")
	p.emitCur(Instruction{Op: OpStoreLocal, Depth: 0, Slot: keysSlot})

	iSlot := p.hiddenTemp("i")
	p.emitCur(Instruction{Op: OpPushLiteral, Literal: value.Int(0)})
	p.emitCur(Instruction{Op: OpStoreLocal, Depth: 0, Slot: iSlot})

	lc := p.fc.pushBreakable(true)
	condStart := len(p.fc.fn.Code)
	p.emitCur(Instruction{Op: OpLoadLocal, Depth: 0, Slot: iSlot})
	p.emitCur(Instruction{Op: OpLoadLocal, Depth: 0, Slot: keysSlot})
	p.emitCur(Instruction{Op: OpCall, Name: "len", Argc: 1, ArgNames: []string{""}})
	p.emitCur(Instruction{Op: OpLt})
	p.emitCur(Instruction{Op: OpToBool})
	jumpEnd := p.emitCur(Instruction{Op: OpJumpIfFalse})

	p.fc.beginScope()
	enterIdx := p.emitCur(Instruction{Op: OpEnterScope})
	p.emitCur(Instruction{Op: OpLoadLocal, Depth: 0, Slot: keysSlot})
	p.emitCur(Instruction{Op: OpLoadLocal, Depth: 0, Slot: iSlot})
	p.emitCur(Instruction{Op: OpCall, Name: "array_get", Argc: 2, ArgNames: []string{"", ""}})
	kSlot := p.fc.declare(kName)
	p.emitCur(Instruction{Op: OpStoreLocal, Depth: 0, Slot: kSlot})

	if hasV {
		p.emitCur(Instruction{Op: OpLoadLocal, Depth: 0, Slot: collSlot})
		p.emitCur(Instruction{Op: OpLoadLocal, Depth: 0, Slot: kSlot})
		p.emitCur(Instruction{Op: OpCall, Name: "array_get", Argc: 2, ArgNames: []string{"", ""}})
		vSlot := p.fc.declare(vName)
		p.emitCur(Instruction{Op: OpStoreLocal, Depth: 0, Slot: vSlot})
	}

	p.statement()
	n := p.fc.endScope()
	p.fc.fn.Code[enterIdx].N = n
	p.emitCur(Instruction{Op: OpExitScope, N: n})

	continueTarget := len(p.fc.fn.Code)
	p.emitCur(Instruction{Op: OpLoadLocal, Depth: 0, Slot: iSlot})
	p.emitCur(Instruction{Op: OpPushLiteral, Literal: value.Int(1)})
	p.emitCur(Instruction{Op: OpAdd})
	p.emitCur(Instruction{Op: OpStoreLocal, Depth: 0, Slot: iSlot})
	jumpBack := p.emitCur(Instruction{Op: OpJump})
	p.fc.fn.Code[jumpBack].Target = condStart

	p.patchJumpHere(jumpEnd)
	for _, j := range lc.breakJump {
		p.patchJumpHere(j)
	}
	for _, j := range lc.continueJump {
		p.fc.fn.Code[j].Target = continueTarget
	}
	p.fc.popBreakable()

	n2 := p.fc.endScope()
	p.emitCur(Instruction{Op: OpExitScope, N: n2})
}

// --- expressions ------------------------------------------------------------

// expression parses a full expression. canAssign permits the outermost
// identifier/property/index target to be the left side of an assignment;
// every nested operand is parsed with canAssign=false, since assignment has
// the lowest precedence in the grammar.
func (p *parser) expression(canAssign bool) {
	p.ternary(canAssign)
}

func (p *parser) ternary(canAssign bool) {
	p.logicalOr(canAssign)
	if p.checkSymbol("?") {
		p.advance()
		p.ternaryDepth++
		p.emitCur(Instruction{Op: OpToBool})
		jf := p.emitCur(Instruction{Op: OpJumpIfFalse})
		p.ternary(false)
		jumpEnd := p.emitCur(Instruction{Op: OpJump})
		p.ternaryDepth--
		p.patchJumpHere(jf)
		p.expectSymbol(":")
		p.ternary(false)
		p.patchJumpHere(jumpEnd)
	}
}

func (p *parser) logicalOr(canAssign bool) {
	p.logicalAnd(canAssign)
	for p.checkSymbol("||") {
		p.advance()
		p.emitCur(Instruction{Op: OpToBool})
		jumpTrue := p.emitCur(Instruction{Op: OpJumpIfFalse})
		p.emitCur(Instruction{Op: OpPushLiteral, Literal: value.Bool(true)})
		jumpEnd := p.emitCur(Instruction{Op: OpJump})
		p.patchJumpHere(jumpTrue)
		p.logicalAnd(false)
		p.emitCur(Instruction{Op: OpToBool})
		p.patchJumpHere(jumpEnd)
	}
}

func (p *parser) logicalAnd(canAssign bool) {
	p.equality(canAssign)
	for p.checkSymbol("&&") {
		p.advance()
		p.emitCur(Instruction{Op: OpToBool})
		jumpFalse := p.emitCur(Instruction{Op: OpJumpIfFalse})
		p.equality(false)
		p.emitCur(Instruction{Op: OpToBool})
		jumpEnd := p.emitCur(Instruction{Op: OpJump})
		p.patchJumpHere(jumpFalse)
		p.emitCur(Instruction{Op: OpPushLiteral, Literal: value.Bool(false)})
		p.patchJumpHere(jumpEnd)
	}
}

func (p *parser) equality(canAssign bool) {
	p.comparison(canAssign)
	for p.checkSymbol("==") || p.checkSymbol("!=") {
		op := p.advance().Text
		p.comparison(false)
		if op == "==" {
			p.emitCur(Instruction{Op: OpEq})
		} else {
			p.emitCur(Instruction{Op: OpNe})
		}
	}
}

func (p *parser) comparison(canAssign bool) {
	p.additive(canAssign)
	for p.checkSymbol("<") || p.checkSymbol("<=") || p.checkSymbol(">") || p.checkSymbol(">=") {
		op := p.advance().Text
		p.additive(false)
		switch op {
		case "<":
			p.emitCur(Instruction{Op: OpLt})
		case "<=":
			p.emitCur(Instruction{Op: OpLe})
		case ">":
			p.emitCur(Instruction{Op: OpGt})
		case ">=":
			p.emitCur(Instruction{Op: OpGe})
		}
	}
}

func (p *parser) additive(canAssign bool) {
	p.multiplicative(canAssign)
	for p.checkSymbol("+") || p.checkSymbol("-") || p.checkSymbol("..") {
		op := p.advance().Text
		p.multiplicative(false)
		switch op {
		case "+":
			p.emitCur(Instruction{Op: OpAdd})
		case "-":
			p.emitCur(Instruction{Op: OpSub})
		case "..":
			p.emitCur(Instruction{Op: OpConcat})
		}
	}
}

func (p *parser) multiplicative(canAssign bool) {
	p.unary(canAssign)
	for p.checkSymbol("*") || p.checkSymbol("/") || p.checkSymbol("%") {
		op := p.advance().Text
		p.unary(false)
		switch op {
		case "*":
			p.emitCur(Instruction{Op: OpMul})
		case "/":
			p.emitCur(Instruction{Op: OpDiv})
		case "%":
			p.emitCur(Instruction{Op: OpMod})
		}
	}
}

func (p *parser) unary(canAssign bool) {
	switch {
	case p.checkSymbol("-"):
		p.advance()
		p.unary(false)
		p.emitCur(Instruction{Op: OpNeg})
	case p.checkSymbol("!"):
		p.advance()
		p.unary(false)
		p.emitCur(Instruction{Op: OpToBool})
		p.emitCur(Instruction{Op: OpNot})
	case p.checkSymbol("++"):
		p.advance()
		p.prefixIncDec(true)
	case p.checkSymbol("--"):
		p.advance()
		p.prefixIncDec(false)
	default:
		p.primary(canAssign)
	}
}

// prefixIncDec desugars `++x` / `--x` into `x = x + 1` / `x = x - 1`. Like
// the original udon grammar, increment/decrement only ever applies to a
// bare identifier, never to a property or index target.
func (p *parser) prefixIncDec(isInc bool) {
	name := p.expectIdentifier()
	p.incDecName(name, isInc)
}

// incDecName loads name, adds/subtracts 1, stores it back, and reloads the
// new value (both prefix and postfix forms always yield the new value).
func (p *parser) incDecName(name string, isInc bool) {
	p.loadName(name)
	p.emitCur(Instruction{Op: OpPushLiteral, Literal: value.Int(1)})
	if isInc {
		p.emitCur(Instruction{Op: OpAdd})
	} else {
		p.emitCur(Instruction{Op: OpSub})
	}
	p.storeResolvedName(name)
	p.loadName(name)
}

func (p *parser) primary(canAssign bool) {
	switch {
	case p.check(token.Number):
		p.numberLiteral()
	case p.check(token.String):
		lit := p.advance()
		p.emitCur(Instruction{Op: OpPushLiteral, Literal: value.String(lit.Text)})
	case p.check(token.Template):
		t := p.advance()
		p.emitCur(Instruction{Op: OpPushLiteral, Literal: value.String(t.Body)})
		p.emitCur(Instruction{Op: OpCall, Name: t.Name, Argc: 1, ArgNames: []string{""}})
	case p.checkKeyword("true"):
		p.advance()
		p.emitCur(Instruction{Op: OpPushLiteral, Literal: value.Bool(true)})
	case p.checkKeyword("false"):
		p.advance()
		p.emitCur(Instruction{Op: OpPushLiteral, Literal: value.Bool(false)})
	case p.checkKeyword("none"):
		p.advance()
		p.emitCur(Instruction{Op: OpPushLiteral, Literal: value.None})
	case p.checkKeyword("function"):
		p.lambdaExpr()
	case p.checkSymbol("("):
		p.advance()
		p.expression(true)
		p.expectSymbol(")")
		p.trailer(false)
		return
	case p.checkSymbol("["):
		p.arrayLiteral()
	case p.checkSymbol("{"):
		p.objectLiteral()
	case p.check(token.Identifier):
		p.identifierExpr(canAssign)
		return
	default:
		p.fail("unexpected token %v", p.cur())
	}
	p.trailer(false)
}

func (p *parser) numberLiteral() {
	t := p.advance()
	if strings.ContainsAny(t.Text, ".eE") {
		f, err := strconv.ParseFloat(t.Text, 64)
		if err != nil {
			p.fail("malformed number %q", t.Text)
		}
		p.emitCur(Instruction{Op: OpPushLiteral, Literal: value.Float(f)})
		return
	}
	n, err := strconv.ParseInt(t.Text, 10, 64)
	if err != nil {
		p.fail("malformed number %q", t.Text)
	}
	p.emitCur(Instruction{Op: OpPushLiteral, Literal: value.Int(n)})
}

// identifierExpr resolves a bare name reference and, when canAssign, may
// consume a following assignment operator and fully compile the
// assignment; otherwise it loads the value and continues into any postfix
// accessor chain.
func (p *parser) identifierExpr(canAssign bool) {
	name := p.advance().Text

	if canAssign && p.atAssignOp() {
		op := p.advance().Text
		if op == "=" {
			p.expression(true)
			p.storeResolvedName(name)
			p.loadName(name)
			return
		}
		p.compoundAssignName(name, op)
		return
	}

	// A bare identifier immediately followed by '(' is a call: a resolved
	// variable is called dynamically (callee value already on the stack);
	// an unresolved name falls through to a static call-by-name, which is
	// how host builtins are invoked.
	if p.checkSymbol("(") {
		if depth, slot, ok := p.fc.resolve(name); ok {
			p.emitCur(Instruction{Op: OpLoadLocal, Depth: depth, Slot: slot})
			argc, argNames := p.parseArgList(false)
			p.emitCur(Instruction{Op: OpCall, Name: "", Argc: argc, ArgNames: argNames})
		} else if slot, ok := p.prog.Globals.Slot(name); ok {
			p.emitCur(Instruction{Op: OpLoadGlobal, Target: slot, Name: name})
			argc, argNames := p.parseArgList(false)
			p.emitCur(Instruction{Op: OpCall, Name: "", Argc: argc, ArgNames: argNames})
		} else {
			argc, argNames := p.parseArgList(true)
			p.emitCur(Instruction{Op: OpCall, Name: name, Argc: argc, ArgNames: argNames})
		}
		p.trailer(false)
		return
	}

	if p.checkSymbol("++") {
		p.advance()
		p.incDecName(name, true)
	} else if p.checkSymbol("--") {
		p.advance()
		p.incDecName(name, false)
	} else {
		p.loadName(name)
	}
	p.trailer(canAssign)
}

func (p *parser) loadName(name string) {
	if depth, slot, ok := p.fc.resolve(name); ok {
		p.emitCur(Instruction{Op: OpLoadLocal, Depth: depth, Slot: slot})
		return
	}
	if slot, ok := p.prog.Globals.Slot(name); ok {
		p.emitCur(Instruction{Op: OpLoadGlobal, Target: slot, Name: name})
		return
	}
	p.fail("undeclared variable %q", name)
}

func (p *parser) atAssignOp() bool {
	for _, s := range []string{"=", "+=", "-=", "*=", "/="} {
		if p.checkSymbol(s) {
			return true
		}
	}
	return false
}

// compoundAssignName compiles `name op= rhs`.
func (p *parser) compoundAssignName(name, op string) {
	p.loadName(name)
	p.expression(true)
	p.emitBinopForCompound(op)
	p.storeResolvedName(name)
	p.loadName(name)
}

func (p *parser) emitBinopForCompound(op string) {
	switch op {
	case "+=":
		p.emitCur(Instruction{Op: OpAdd})
	case "-=":
		p.emitCur(Instruction{Op: OpSub})
	case "*=":
		p.emitCur(Instruction{Op: OpMul})
	case "/=":
		p.emitCur(Instruction{Op: OpDiv})
	}
}

// trailer parses postfix accessors: call `(...)`, method-call sugar
// `.name(...)`, key access `:name` (possibly ending in an assignment), and
// bracket index `[expr]` (likewise).
func (p *parser) trailer(canAssign bool) {
	for {
		switch {
		case p.checkSymbol("("):
			// Dynamic call: the callable is already on the stack from
			// whatever postfix result preceded this '('. Named arguments
			// are not recognized here (only static calls support them);
			// an `ident=value` pair is just parsed as an expression,
			// which itself would compile as an assignment.
			argc, argNames := p.parseArgList(false)
			p.emitCur(Instruction{Op: OpCall, Name: "", Argc: argc, ArgNames: argNames})
		case p.checkSymbol("."):
			p.advance()
			method := p.expectIdentifier()
			// Member-call sugar: `.name(args)` is a static call to `name`
			// with the receiver, already on the stack, as argument 0.
			argc, argNames := p.parseArgList(true)
			p.emitCur(Instruction{Op: OpCall, Name: method, Argc: argc + 1, ArgNames: append([]string{""}, argNames...)})
		case p.checkSymbol(":"):
			if p.ternaryDepth > 0 {
				return
			}
			p.advance()
			prop := p.expectPropName()
			if canAssign && p.atAssignOp() {
				op := p.advance().Text
				if op == "=" {
					p.assignPropSimple(prop)
				} else {
					p.compoundAssignProp(prop, op)
				}
				return
			}
			p.emitCur(Instruction{Op: OpGetProp, Name: prop})
		case p.checkSymbol("["):
			p.advance()
			p.expression(true)
			p.expectSymbol("]")
			if canAssign && p.atAssignOp() {
				op := p.advance().Text
				if op == "=" {
					p.assignIndexSimple()
				} else {
					p.compoundAssignIndex(op)
				}
				return
			}
			p.emitCur(Instruction{Op: OpGetProp, Name: "[index]"})
		default:
			return
		}
	}
}

// assignPropSimple compiles `obj:prop = rhs`. The object is already on the
// stack from the code emitted for the base expression; STORE_PROP consumes
// [object, value] (value on top).
func (p *parser) assignPropSimple(prop string) {
	p.expression(true)
	tmpVal := p.hiddenTemp("val")
	p.emitCur(Instruction{Op: OpStoreLocal, Depth: 0, Slot: tmpVal})
	p.emitCur(Instruction{Op: OpLoadLocal, Depth: 0, Slot: tmpVal})
	p.emitCur(Instruction{Op: OpStoreProp, Name: prop})

	p.emitCur(Instruction{Op: OpLoadLocal, Depth: 0, Slot: tmpVal})
}

// compoundAssignProp compiles `obj:prop op= rhs`. The receiver is cached in
// a hidden local so it can be read once (for the current value) and loaded
// again (for the store) without re-evaluating the receiver expression.
func (p *parser) compoundAssignProp(prop, op string) {
	objSlot := p.hiddenTemp("recv")
	p.emitCur(Instruction{Op: OpStoreLocal, Depth: 0, Slot: objSlot}) // consumes the object already on the stack

	p.emitCur(Instruction{Op: OpLoadLocal, Depth: 0, Slot: objSlot})
	p.emitCur(Instruction{Op: OpGetProp, Name: prop})
	p.expression(true)
	p.emitBinopForCompound(op)

	tmpVal := p.hiddenTemp("val")
	p.emitCur(Instruction{Op: OpStoreLocal, Depth: 0, Slot: tmpVal})

	p.emitCur(Instruction{Op: OpLoadLocal, Depth: 0, Slot: objSlot})
	p.emitCur(Instruction{Op: OpLoadLocal, Depth: 0, Slot: tmpVal})
	p.emitCur(Instruction{Op: OpStoreProp, Name: prop})

	p.emitCur(Instruction{Op: OpLoadLocal, Depth: 0, Slot: tmpVal})
}

// assignIndexSimple compiles `obj[idx] = rhs`. Object and index are already
// on the stack (object, then index); STORE_PROP "[index]" consumes
// [object, index, value] with value on top, per spec.md §4.2.
func (p *parser) assignIndexSimple() {
	p.expression(true)
	tmpVal := p.hiddenTemp("val")
	p.emitCur(Instruction{Op: OpStoreLocal, Depth: 0, Slot: tmpVal})
	p.emitCur(Instruction{Op: OpLoadLocal, Depth: 0, Slot: tmpVal})
	p.emitCur(Instruction{Op: OpStoreProp, Name: "[index]"})

	p.emitCur(Instruction{Op: OpLoadLocal, Depth: 0, Slot: tmpVal})
}

// compoundAssignIndex compiles `obj[idx] op= rhs`, caching both receiver and
// index in hidden locals for the same reason as compoundAssignProp.
func (p *parser) compoundAssignIndex(op string) {
	idxSlot := p.hiddenTemp("idx")
	objSlot := p.hiddenTemp("recv")
	p.emitCur(Instruction{Op: OpStoreLocal, Depth: 0, Slot: idxSlot})
	p.emitCur(Instruction{Op: OpStoreLocal, Depth: 0, Slot: objSlot})

	p.emitCur(Instruction{Op: OpLoadLocal, Depth: 0, Slot: objSlot})
	p.emitCur(Instruction{Op: OpLoadLocal, Depth: 0, Slot: idxSlot})
	p.emitCur(Instruction{Op: OpGetProp, Name: "[index]"})
	p.expression(true)
	p.emitBinopForCompound(op)

	tmpVal := p.hiddenTemp("val")
	p.emitCur(Instruction{Op: OpStoreLocal, Depth: 0, Slot: tmpVal})

	p.emitCur(Instruction{Op: OpLoadLocal, Depth: 0, Slot: objSlot})
	p.emitCur(Instruction{Op: OpLoadLocal, Depth: 0, Slot: idxSlot})
	p.emitCur(Instruction{Op: OpLoadLocal, Depth: 0, Slot: tmpVal})
	p.emitCur(Instruction{Op: OpStoreProp, Name: "[index]"})

	p.emitCur(Instruction{Op: OpLoadLocal, Depth: 0, Slot: tmpVal})
}

// parseArgList parses `(args)`, where each arg is either a positional
// expression or, when allowNamed is true, an `ident=expr` keyword argument.
// Keyword arguments are only recognized for static (by-name) calls; dynamic
// calls parse every argument positionally.
func (p *parser) parseArgList(allowNamed bool) (int, []string) {
	p.expectSymbol("(")
	var argNames []string
	argc := 0
	for !p.checkSymbol(")") {
		if allowNamed && p.check(token.Identifier) && p.peekIsAssignEq() {
			argName := p.advance().Text
			p.advance() // '='
			p.expression(true)
			argNames = append(argNames, argName)
		} else {
			p.expression(true)
			argNames = append(argNames, "")
		}
		argc++
		if !p.matchSymbol(",") {
			break
		}
	}
	p.expectSymbol(")")
	return argc, argNames
}

func (p *parser) peekIsAssignEq() bool {
	save := p.pos
	defer func() { p.pos = save }()
	p.advance()
	return p.checkSymbol("=")
}

func (p *parser) lambdaExpr() {
	p.advance() // 'function'
	p.lambdaCount++
	name := fmt.Sprintf("__lambda_%d", p.lambdaCount)
	p.compileFunctionBody(name)
	p.emitCur(Instruction{Op: OpMakeClosure, Name: name})
}

func (p *parser) arrayLiteral() {
	p.expectSymbol("[")
	count := 0
	for !p.checkSymbol("]") {
		p.expression(true)
		count++
		if !p.matchSymbol(",") {
			break
		}
	}
	p.expectSymbol("]")
	p.emitCur(Instruction{Op: OpCall, Name: "array", Argc: count, ArgNames: make([]string, count)})
}

// objectLiteral compiles `{ key: expr, ... }`. A key may be an identifier,
// string, or number token.
func (p *parser) objectLiteral() {
	p.expectSymbol("{")
	var keys []string
	for !p.checkSymbol("}") {
		key := p.expectPropName()
		p.expectSymbol(":")
		p.expression(true)
		keys = append(keys, key)
		if !p.matchSymbol(",") {
			break
		}
	}
	p.expectSymbol("}")
	for _, k := range keys {
		p.emitCur(Instruction{Op: OpPushLiteral, Literal: value.String(k)})
	}
	p.emitCur(Instruction{Op: OpPushLiteral, Literal: value.Int(int64(len(keys)))})
	argc := len(keys)*2 + 1
	p.emitCur(Instruction{Op: OpCall, Name: "__object_literal", Argc: argc, ArgNames: make([]string, argc)})
}
