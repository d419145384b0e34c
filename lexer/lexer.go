// Package lexer turns udon source text into a token stream.
//
// A Lexer is single-use: construct one with New, then call Tokens to drain
// the whole source, or Next to pull tokens one at a time. It holds no
// package-level state, so multiple Lexers (e.g. one per imported module) can
// run concurrently without interference.
package lexer

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/udonscript/udon/token"
)

// Comment records one comment's text and starting position, for tooling that
// wants to recover documentation (the core compiler ignores these).
type Comment struct {
	Pos  token.Pos
	Text string
}

// Lexer scans a single source string into tokens.
type Lexer struct {
	src  string
	pos  int // byte offset
	line int
	col  int

	comments []Comment
}

// New returns a Lexer over src.
func New(src string) *Lexer {
	return &Lexer{src: src, line: 1, col: 1}
}

// Comments returns the comments collected so far. Call after Tokens to get
// the full set.
func (l *Lexer) Comments() []Comment { return l.comments }

// Tokens drains the lexer, returning every token including a trailing
// EndOfFile token.
func (l *Lexer) Tokens() []token.Token {
	var toks []token.Token
	for {
		t := l.Next()
		toks = append(toks, t)
		if t.Kind == token.EndOfFile {
			return toks
		}
	}
}

func (l *Lexer) peekByte() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekByteAt(off int) byte {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *Lexer) advance() byte {
	b := l.src[l.pos]
	l.pos++
	if b == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return b
}

func (l *Lexer) at(p int) token.Pos { return token.Pos{Line: l.line, Col: l.col} }

func (l *Lexer) skipSpaceAndComments() {
	for l.pos < len(l.src) {
		c := l.peekByte()
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.advance()
		case c == '#' && l.col == 1:
			l.scanLineComment()
		case c == '/' && l.peekByteAt(1) == '/':
			l.scanLineComment()
		case c == '/' && l.peekByteAt(1) == '*':
			l.scanBlockComment()
		default:
			return
		}
	}
}

func (l *Lexer) scanLineComment() {
	start := l.at(l.pos)
	startOff := l.pos
	for l.pos < len(l.src) && l.peekByte() != '\n' {
		l.advance()
	}
	l.comments = append(l.comments, Comment{Pos: start, Text: l.src[startOff:l.pos]})
}

func (l *Lexer) scanBlockComment() {
	start := l.at(l.pos)
	startOff := l.pos
	l.advance() // '/'
	l.advance() // '*'
	for l.pos < len(l.src) {
		if l.peekByte() == '*' && l.peekByteAt(1) == '/' {
			l.advance()
			l.advance()
			break
		}
		l.advance()
	}
	l.comments = append(l.comments, Comment{Pos: start, Text: l.src[startOff:l.pos]})
}

// Next returns the next token, or an EndOfFile token once the source is
// exhausted.
func (l *Lexer) Next() token.Token {
	l.skipSpaceAndComments()
	pos := l.at(l.pos)

	if l.pos >= len(l.src) {
		return token.Token{Kind: token.EndOfFile, Pos: pos}
	}

	c := l.peekByte()

	switch {
	case c == '$':
		return l.scanTemplate(pos)
	case c == '"' || c == '\'':
		return l.scanString(pos, c)
	case isDigit(c):
		return l.scanNumber(pos)
	case isIdentStart(c):
		return l.scanIdentOrKeyword(pos)
	default:
		if sym, ok := l.scanSymbol(); ok {
			return token.Token{Kind: token.Symbol, Text: sym, Pos: pos}
		}
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		for i := 0; i < size; i++ {
			l.advance()
		}
		return token.Token{Kind: token.Unknown, Text: string(r), Pos: pos}
	}
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isIdentStart(b byte) bool {
	return b == '_' || unicode.IsLetter(rune(b))
}

func isIdentPart(b byte) bool {
	return b == '_' || isDigit(b) || unicode.IsLetter(rune(b))
}

func (l *Lexer) scanIdentOrKeyword(pos token.Pos) token.Token {
	start := l.pos
	for l.pos < len(l.src) && isIdentPart(l.peekByte()) {
		l.advance()
	}
	text := l.src[start:l.pos]
	if token.IsKeyword(strings.ToLower(text)) {
		return token.Token{Kind: token.Keyword, Text: strings.ToLower(text), Pos: pos}
	}
	return token.Token{Kind: token.Identifier, Text: text, Pos: pos}
}

// scanNumber reads a run of digits with at most one internal '.' and an
// optional exponent suffix; whether it denotes a Float is decided later by
// the compiler (spec: "An e/E in the token text promotes to float during
// parsing").
func (l *Lexer) scanNumber(pos token.Pos) token.Token {
	start := l.pos
	sawDot := false
	for l.pos < len(l.src) {
		c := l.peekByte()
		if isDigit(c) {
			l.advance()
			continue
		}
		if c == '.' && !sawDot && isDigit(l.peekByteAt(1)) {
			sawDot = true
			l.advance()
			continue
		}
		if (c == 'e' || c == 'E') && (isDigit(l.peekByteAt(1)) || ((l.peekByteAt(1) == '+' || l.peekByteAt(1) == '-') && isDigit(l.peekByteAt(2)))) {
			l.advance()
			if l.peekByte() == '+' || l.peekByte() == '-' {
				l.advance()
			}
			for l.pos < len(l.src) && isDigit(l.peekByte()) {
				l.advance()
			}
			continue
		}
		break
	}
	return token.Token{Kind: token.Number, Text: l.src[start:l.pos], Pos: pos}
}

var escapes = map[byte]byte{
	'n': '\n', 'r': '\r', 't': '\t', '0': 0, 'b': '\b', 'f': '\f',
	'\\': '\\', '"': '"', '\'': '\'',
}

func (l *Lexer) scanString(pos token.Pos, quote byte) token.Token {
	l.advance() // opening quote
	var sb strings.Builder
	for l.pos < len(l.src) {
		c := l.peekByte()
		if c == quote {
			l.advance()
			return token.Token{Kind: token.String, Text: sb.String(), Pos: pos}
		}
		if c == '\\' {
			l.advance()
			if l.pos >= len(l.src) {
				break
			}
			esc := l.advance()
			if mapped, ok := escapes[esc]; ok {
				sb.WriteByte(mapped)
			} else {
				sb.WriteByte(esc)
			}
			continue
		}
		sb.WriteByte(l.advance())
	}
	// Unterminated string: report what we have as Unknown so the compiler
	// can raise a lexical error at the call site.
	return token.Token{Kind: token.Unknown, Text: sb.String(), Pos: pos}
}

// scanSymbol greedily matches the longest entry of token.Symbols at the
// current position.
func (l *Lexer) scanSymbol() (string, bool) {
	candidates := make([]string, len(token.Symbols))
	copy(candidates, token.Symbols)
	sort.Slice(candidates, func(i, j int) bool { return len(candidates[i]) > len(candidates[j]) })
	for _, sym := range candidates {
		if strings.HasPrefix(l.src[l.pos:], sym) {
			for i := 0; i < len(sym); i++ {
				l.advance()
			}
			return sym, true
		}
	}
	return "", false
}

// scanTemplate reads a `$NAME<body>`-shaped token. The body is delimited by
// one of the bracket pairs in token.BracketPairs; strings inside the body are
// skipped when tracking bracket depth so a quoted delimiter character
// doesn't prematurely close the template.
func (l *Lexer) scanTemplate(pos token.Pos) token.Token {
	l.advance() // '$'
	nameStart := l.pos
	for l.pos < len(l.src) && isIdentPart(l.peekByte()) {
		l.advance()
	}
	name := l.src[nameStart:l.pos]
	if name == "" {
		return token.Token{Kind: token.Unknown, Text: "$", Pos: pos}
	}

	open := l.peekByte()
	closeCh, ok := token.BracketPairs[open]
	if !ok {
		return token.Token{Kind: token.Unknown, Name: name, Pos: pos}
	}
	l.advance() // opening bracket
	bodyStart := l.pos
	depth := 1
	for l.pos < len(l.src) && depth > 0 {
		c := l.peekByte()
		switch {
		case c == '"' || c == '\'':
			l.skipQuoted(c)
		case c == open && open != closeCh:
			depth++
			l.advance()
		case c == closeCh:
			depth--
			if depth == 0 {
				break
			}
			l.advance()
		default:
			l.advance()
		}
		if depth == 0 {
			break
		}
	}
	if depth != 0 {
		return token.Token{Kind: token.Unknown, Name: name, Pos: pos}
	}
	body := l.src[bodyStart:l.pos]
	l.advance() // closing bracket
	return token.Token{Kind: token.Template, Name: name, Body: body, Pos: pos}
}

func (l *Lexer) skipQuoted(quote byte) {
	l.advance()
	for l.pos < len(l.src) {
		c := l.peekByte()
		if c == '\\' {
			l.advance()
			if l.pos < len(l.src) {
				l.advance()
			}
			continue
		}
		if c == quote {
			l.advance()
			return
		}
		l.advance()
	}
}
