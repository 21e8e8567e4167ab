package parser

import (
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokWord tokenKind = iota
	tokQuoted
	tokString
	tokNumber
	tokPunct
)

// token text is unquoted for quoted identifiers and string literals.
// pos is the byte offset of the token in the source.
type token struct {
	kind  tokenKind
	text  string
	depth int
	pos   int
}

func (t token) is(kw string) bool {
	return t.kind == tokWord && strings.EqualFold(t.text, kw)
}

func (t token) punct(p string) bool {
	return t.kind == tokPunct && t.text == p
}

func (t token) ident() bool {
	return t.kind == tokWord || t.kind == tokQuoted
}

// lexer splits a statement into tokens and collects block comments.
// Parenthesis depth is recorded on every token.
type lexer struct {
	src      string
	pos      int
	start    int
	depth    int
	tokens   []token
	comments []string
}

func tokenize(sql string) ([]token, []string) {
	l := &lexer{src: sql}
	l.run()
	return l.tokens, l.comments
}

func (l *lexer) run() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		l.start = l.pos
		switch {
		case unicode.IsSpace(rune(c)):
			l.pos++
		case c == '-' && l.peek(1) == '-':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		case c == '/' && l.peek(1) == '*':
			end := strings.Index(l.src[l.pos+2:], "*/")
			if end < 0 {
				l.comments = append(l.comments, l.src[l.pos+2:])
				l.pos = len(l.src)
				continue
			}
			l.comments = append(l.comments, l.src[l.pos+2:l.pos+2+end])
			l.pos += end + 4
		case c == '\'':
			l.emit(tokString, l.quoted('\''))
		case c == '"' || c == '`':
			l.emit(tokQuoted, l.quoted(c))
		case c == '_' || unicode.IsLetter(rune(c)):
			start := l.pos
			for l.pos < len(l.src) && isIdentChar(l.src[l.pos]) {
				l.pos++
			}
			l.emit(tokWord, l.src[start:l.pos])
		case c >= '0' && c <= '9':
			start := l.pos
			for l.pos < len(l.src) && (l.src[l.pos] >= '0' && l.src[l.pos] <= '9' || l.src[l.pos] == '.') {
				l.pos++
			}
			l.emit(tokNumber, l.src[start:l.pos])
		case c == '(':
			l.emit(tokPunct, "(")
			l.pos++
			l.depth++
		case c == ')':
			if l.depth > 0 {
				l.depth--
			}
			l.emit(tokPunct, ")")
			l.pos++
		default:
			l.emit(tokPunct, string(c))
			l.pos++
		}
	}
}

func (l *lexer) peek(off int) byte {
	if l.pos+off < len(l.src) {
		return l.src[l.pos+off]
	}
	return 0
}

func (l *lexer) emit(kind tokenKind, text string) {
	l.tokens = append(l.tokens, token{kind: kind, text: text, depth: l.depth, pos: l.start})
}

// quoted consumes a literal delimited by q. A doubled delimiter escapes it.
func (l *lexer) quoted(q byte) string {
	var sb strings.Builder
	l.pos++
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == q {
			if l.peek(1) == q {
				sb.WriteByte(q)
				l.pos += 2
				continue
			}
			l.pos++
			return sb.String()
		}
		sb.WriteByte(c)
		l.pos++
	}
	return sb.String()
}

func isIdentChar(c byte) bool {
	return c == '_' || c == '$' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}
