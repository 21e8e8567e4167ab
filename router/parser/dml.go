package parser

import (
	"strings"

	"github.com/pg-sharding/dsproxy/pkg/dslog"
	"github.com/pg-sharding/dsproxy/pkg/models/datanode"
	"github.com/pg-sharding/dsproxy/pkg/stmt"
	"github.com/pg-sharding/lyx/lyx"
)

// words that end a relation or target entry instead of naming its alias
var reserved = map[string]struct{}{
	"WHERE": {}, "JOIN": {}, "INNER": {}, "LEFT": {}, "RIGHT": {}, "FULL": {},
	"CROSS": {}, "NATURAL": {}, "ON": {}, "USING": {}, "GROUP": {}, "ORDER": {},
	"HAVING": {}, "LIMIT": {}, "OFFSET": {}, "FETCH": {}, "FOR": {}, "UNION": {},
	"EXCEPT": {}, "INTERSECT": {}, "WINDOW": {}, "FROM": {}, "SET": {},
	"VALUES": {}, "RETURNING": {}, "LATERAL": {},
}

func isReserved(t token) bool {
	if t.kind != tokWord {
		return false
	}
	_, ok := reserved[strings.ToUpper(t.text)]
	return ok
}

func parseDML(query string, s *scanner) *stmt.Statement {
	node, err := lyx.Parse(query)
	if err != nil {
		dslog.Zero.Debug().Err(err).Str("query", query).Msg("lyx rejected statement, classifying by keywords")
		return scanDML(s)
	}

	w := newTableWalker()
	st := &stmt.Statement{}

	switch q := node.(type) {
	case *lyx.Select:
		st.Kind = stmt.Query
		w.walk(q)
		st.Federation = federatedShape(s, q)
	case *lyx.ValueClause:
		st.Kind = stmt.Query
	case *lyx.Insert:
		st.Kind = stmt.Insert
		for _, cte := range q.WithClause {
			w.cte(cte.Name)
			w.walk(cte.SubQuery)
		}
		w.walk(q.TableRef)
		w.walk(q.SubSelect)
	case *lyx.Update:
		st.Kind = stmt.Update
		for _, cte := range q.WithClause {
			w.cte(cte.Name)
			w.walk(cte.SubQuery)
		}
		w.walk(q.TableRef)
		w.walk(q.Where)
	case *lyx.Delete:
		st.Kind = stmt.Delete
		for _, cte := range q.WithClause {
			w.cte(cte.Name)
			w.walk(cte.SubQuery)
		}
		w.walk(q.TableRef)
		w.walk(q.Where)
	default:
		return scanDML(s)
	}

	st.Tables = w.tables
	return st
}

// tableWalker collects the relations a statement reads or writes. Common
// table expression names are not relations.
type tableWalker struct {
	tables []datanode.QualifiedTable
	seen   map[string]struct{}
	ctes   map[string]struct{}
}

func newTableWalker() *tableWalker {
	return &tableWalker{
		seen: map[string]struct{}{},
		ctes: map[string]struct{}{},
	}
}

func (w *tableWalker) cte(name string) {
	w.ctes[strings.ToLower(name)] = struct{}{}
}

func (w *tableWalker) add(qt datanode.QualifiedTable) {
	if qt.SchemaName == "" {
		if _, ok := w.ctes[strings.ToLower(qt.TableName)]; ok {
			return
		}
	}
	if _, ok := w.seen[qt.Key()]; ok {
		return
	}
	w.seen[qt.Key()] = struct{}{}
	w.tables = append(w.tables, qt)
}

func (w *tableWalker) walk(n any) {
	switch q := n.(type) {
	case *lyx.RangeVar:
		if q != nil {
			w.add(datanode.NewQualifiedTable(q.SchemaName, q.RelationName))
		}
	case *lyx.JoinExpr:
		if q != nil {
			w.walk(q.Larg)
			w.walk(q.Rarg)
		}
	case *lyx.SubSelect:
		if q != nil {
			w.walk(q.Arg)
		}
	case *lyx.Select:
		if q == nil {
			return
		}
		for _, cte := range q.WithClause {
			w.cte(cte.Name)
			w.walk(cte.SubQuery)
		}
		for _, f := range q.FromClause {
			w.walk(f)
		}
		for _, t := range q.TargetList {
			w.walk(t)
		}
		w.walk(q.Where)
		w.walk(q.LArg)
		w.walk(q.RArg)
	case *lyx.ResTarget:
		if q != nil {
			w.walk(q.Value)
		}
	case *lyx.AExprOp:
		if q != nil {
			w.walk(q.Left)
			w.walk(q.Right)
		}
	case *lyx.AExprIn:
		if q != nil {
			w.walk(q.Expr)
			w.walk(q.SubLink)
		}
	case *lyx.SubLink:
		if q != nil {
			w.walk(q.SubSelect)
		}
	case *lyx.AExprNot:
		if q != nil {
			w.walk(q.Arg)
		}
	case *lyx.FuncApplication:
		if q != nil {
			for _, a := range q.Args {
				w.walk(a)
			}
		}
	}
}

// scanDML classifies data manipulation by keywords when the grammar does
// not cover the statement.
func scanDML(s *scanner) *stmt.Statement {
	st := &stmt.Statement{}
	w := newTableWalker()

	for !s.eof() && s.peek().punct("(") {
		s.next()
	}
	if s.accept("WITH") {
		s.accept("RECURSIVE")
		for !s.eof() {
			name, ok := s.ident()
			if ok && s.peek().is("AS") {
				w.cte(name)
			}
			if !s.skipTo("AS") {
				break
			}
			s.skipBalanced()
			if !s.acceptPunct(",") {
				break
			}
		}
	}
	return scanDMLBody(s, st, w)
}

func scanDMLBody(s *scanner, st *stmt.Statement, w *tableWalker) *stmt.Statement {
	switch {
	case s.acceptAny("INSERT", "REPLACE"):
		st.Kind = stmt.Insert
		if s.skipTo("INTO") {
			if qt, ok := s.qualifiedName(); ok {
				w.add(qt)
			}
		}
	case s.accept("UPDATE"):
		st.Kind = stmt.Update
		for s.acceptAny("LOW_PRIORITY", "IGNORE", "ONLY") {
		}
		for _, qt := range s.fromList() {
			w.add(qt)
		}
	case s.accept("DELETE"):
		st.Kind = stmt.Delete
		if s.skipTo("FROM") {
			s.accept("ONLY")
			for _, qt := range s.fromList() {
				w.add(qt)
			}
		}
	case s.acceptAny("SELECT", "VALUES", "TABLE"):
		st.Kind = stmt.Query
	default:
		return st
	}

	for !s.eof() {
		t := s.next()
		if t.is("FROM") || t.is("JOIN") {
			s.accept("ONLY")
			for _, qt := range s.fromList() {
				w.add(qt)
			}
		}
	}
	st.Tables = w.tables
	return st
}

// skipBalanced consumes a parenthesized group.
func (s *scanner) skipBalanced() {
	if !s.peek().punct("(") {
		return
	}
	depth := s.peek().depth
	s.next()
	for !s.eof() {
		t := s.next()
		if t.punct(")") && t.depth == depth {
			return
		}
	}
}

// fromList reads relation [[AS] alias] entries separated by commas.
func (s *scanner) fromList() []datanode.QualifiedTable {
	var ret []datanode.QualifiedTable
	for _, rel := range s.relationList() {
		ret = append(ret, rel.Table)
	}
	return ret
}

func (s *scanner) relationList() []stmt.Relation {
	var ret []stmt.Relation
	for {
		qt, ok := s.qualifiedName()
		if !ok {
			return ret
		}
		rel := stmt.Relation{Table: qt}
		if alias, ok := s.alias(); ok {
			rel.Alias = alias
		}
		ret = append(ret, rel)
		if !s.acceptPunct(",") {
			return ret
		}
	}
}

func (s *scanner) alias() (string, bool) {
	if s.accept("AS") {
		return s.ident()
	}
	if t := s.peek(); t.ident() && !isReserved(t) {
		s.next()
		return t.text, true
	}
	return "", false
}

func (s *scanner) columnRef() (stmt.ColumnRef, bool) {
	first, ok := s.ident()
	if !ok {
		return stmt.ColumnRef{}, false
	}
	if !s.acceptPunct(".") {
		return stmt.ColumnRef{Column: first}, true
	}
	second, ok := s.ident()
	if !ok {
		return stmt.ColumnRef{}, false
	}
	return stmt.ColumnRef{Relation: first, Column: second}, true
}
