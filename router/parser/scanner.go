package parser

import (
	"strings"

	"github.com/pg-sharding/dsproxy/pkg/models/datanode"
)

type scanner struct {
	toks []token
	i    int
}

func newScanner(toks []token) *scanner {
	for len(toks) > 0 && toks[len(toks)-1].punct(";") {
		toks = toks[:len(toks)-1]
	}
	return &scanner{toks: toks}
}

func (s *scanner) eof() bool {
	return s.i >= len(s.toks)
}

func (s *scanner) peek() token {
	if s.eof() {
		return token{kind: tokPunct, pos: -1}
	}
	return s.toks[s.i]
}

func (s *scanner) next() token {
	t := s.peek()
	if !s.eof() {
		s.i++
	}
	return t
}

// accept consumes the keyword sequence if every keyword matches.
func (s *scanner) accept(kws ...string) bool {
	if s.i+len(kws) > len(s.toks) {
		return false
	}
	for j, kw := range kws {
		if !s.toks[s.i+j].is(kw) {
			return false
		}
	}
	s.i += len(kws)
	return true
}

// acceptAny consumes one token if it is any of kws.
func (s *scanner) acceptAny(kws ...string) bool {
	for _, kw := range kws {
		if s.accept(kw) {
			return true
		}
	}
	return false
}

func (s *scanner) acceptPunct(p string) bool {
	if s.peek().punct(p) {
		s.i++
		return true
	}
	return false
}

func (s *scanner) ident() (string, bool) {
	t := s.peek()
	if !t.ident() {
		return "", false
	}
	s.i++
	return t.text, true
}

// qualifiedName reads [schema.]name.
func (s *scanner) qualifiedName() (datanode.QualifiedTable, bool) {
	first, ok := s.ident()
	if !ok {
		return datanode.QualifiedTable{}, false
	}
	if !s.acceptPunct(".") {
		return datanode.NewQualifiedTable("", first), true
	}
	second, ok := s.ident()
	if !ok {
		return datanode.QualifiedTable{}, false
	}
	return datanode.NewQualifiedTable(first, second), true
}

// nameList reads a comma separated list of qualified names.
func (s *scanner) nameList() []datanode.QualifiedTable {
	var ret []datanode.QualifiedTable
	for {
		s.accept("ONLY")
		qt, ok := s.qualifiedName()
		if !ok {
			return ret
		}
		ret = append(ret, qt)
		if !s.acceptPunct(",") {
			return ret
		}
	}
}

// skipTo advances to the first top-level occurrence of kw. The keyword is
// consumed.
func (s *scanner) skipTo(kw string) bool {
	for !s.eof() {
		t := s.next()
		if t.depth == 0 && t.is(kw) {
			return true
		}
	}
	return false
}

// lastIdent returns the last identifier of the statement.
func (s *scanner) lastIdent() string {
	for j := len(s.toks) - 1; j >= s.i; j-- {
		if s.toks[j].ident() {
			return s.toks[j].text
		}
	}
	return ""
}

// tail returns the source text from the current token on.
func (s *scanner) tail(src string) string {
	if s.eof() {
		return ""
	}
	return strings.TrimRight(strings.TrimSpace(src[s.peek().pos:]), "; \t\n")
}
