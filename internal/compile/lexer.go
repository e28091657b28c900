package compile

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Position is a 1-based location in a template.
type Position struct {
	File   string
	Line   int
	Column int
}

func (p Position) String() string {
	if p.File != "" {
		return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

type segmentKind int

const (
	segmentText segmentKind = iota
	segmentExpr
)

// segment is literal SQL or the source of one {{ expr }}.
type segment struct {
	kind  segmentKind
	value string
	pos   Position
}

// lexer splits a template into text and expression segments.
type lexer struct {
	input string
	file  string
	pos   int
	line  int
	col   int

	startLine int
	startCol  int
}

func newLexer(input, file string) *lexer {
	return &lexer{input: input, file: file, line: 1, col: 1}
}

func (l *lexer) segments() ([]segment, error) {
	var out []segment
	for l.pos < len(l.input) {
		var (
			seg segment
			err error
		)
		if l.match("{{") {
			seg, err = l.scanExpr()
		} else {
			seg = l.scanText()
		}
		if err != nil {
			return nil, err
		}
		out = append(out, seg)
	}
	return out, nil
}

func (l *lexer) scanText() segment {
	l.mark()
	start := l.pos
	for l.pos < len(l.input) && !l.match("{{") {
		l.advance()
	}
	return segment{kind: segmentText, value: l.input[start:l.pos], pos: l.start()}
}

func (l *lexer) scanExpr() (segment, error) {
	l.mark()
	l.pos += 2
	l.col += 2

	exprStart := l.pos
	depth := 0 // nested braces of dict literals
	for l.pos < len(l.input) {
		if depth == 0 && l.match("}}") {
			expr := strings.TrimSpace(l.input[exprStart:l.pos])
			l.pos += 2
			l.col += 2
			if expr == "" {
				return segment{}, &TemplateError{Pos: l.start(), Message: "empty expression"}
			}
			return segment{kind: segmentExpr, value: expr, pos: l.start()}, nil
		}
		switch l.peek() {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		}
		l.advance()
	}
	return segment{}, &TemplateError{Pos: l.start(), Message: "unclosed expression: missing '}}'"}
}

func (l *lexer) peek() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	return r
}

func (l *lexer) advance() {
	if l.pos >= len(l.input) {
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.pos:])
	l.pos += size
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
}

func (l *lexer) match(s string) bool {
	return strings.HasPrefix(l.input[l.pos:], s)
}

func (l *lexer) mark() {
	l.startLine, l.startCol = l.line, l.col
}

func (l *lexer) start() Position {
	return Position{File: l.file, Line: l.startLine, Column: l.startCol}
}

// TemplateError reports a malformed template or a failed expression.
type TemplateError struct {
	Pos     Position
	Expr    string
	Message string
}

func (e *TemplateError) Error() string {
	if e.Expr != "" {
		return fmt.Sprintf("%s: error evaluating %q: %s", e.Pos, e.Expr, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}
