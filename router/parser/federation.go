package parser

import (
	"strings"

	"github.com/pg-sharding/dsproxy/pkg/stmt"
	"github.com/pg-sharding/lyx/lyx"
)

// federatedShape describes a select over a comma separated list of plain
// relations, the only shape evaluated in process. Returns nil for
// anything else, which is then pushed down as is.
func federatedShape(s *scanner, sel *lyx.Select) *stmt.FederatedQuery {
	if sel.LArg != nil || sel.RArg != nil || len(sel.WithClause) != 0 || len(sel.FromClause) < 2 {
		return nil
	}
	for _, f := range sel.FromClause {
		if _, ok := f.(*lyx.RangeVar); !ok {
			return nil
		}
	}

	ts := &scanner{toks: s.toks, i: s.i}
	if !ts.accept("SELECT") || ts.peek().is("DISTINCT") || ts.peek().is("ALL") {
		return nil
	}

	q := &stmt.FederatedQuery{}

	targets, ok := ts.targetList()
	if !ok || !ts.accept("FROM") {
		return nil
	}
	q.Targets = targets

	q.Relations = ts.relationList()
	if len(q.Relations) != len(sel.FromClause) {
		return nil
	}

	if ts.peek().is("WHERE") {
		ts.next()
		for !ts.eof() && !endsWhere(ts.peek()) {
			ts.next()
		}
		if _, empty := sel.Where.(*lyx.AExprEmpty); !empty && sel.Where != nil {
			q.Where = sel.Where
			q.Joins = joinConds(sel.Where, nil)
		}
	}

	if ts.accept("ORDER", "BY") {
		orderBy, ok := ts.sortKeys()
		if !ok {
			return nil
		}
		q.OrderBy = orderBy
	}

	if !ts.eof() {
		/* grouping, limits, locking clauses */
		return nil
	}
	return q
}

func endsWhere(t token) bool {
	if t.depth != 0 || t.kind != tokWord {
		return false
	}
	switch strings.ToUpper(t.text) {
	case "ORDER", "GROUP", "HAVING", "LIMIT", "OFFSET", "FETCH", "FOR", "UNION", "EXCEPT", "INTERSECT", "WINDOW":
		return true
	}
	return false
}

// targetList returns nil targets for a bare star.
func (s *scanner) targetList() ([]stmt.Target, bool) {
	if s.acceptPunct("*") {
		return nil, s.peek().is("FROM")
	}
	var ret []stmt.Target
	for {
		ref, ok := s.columnRef()
		if !ok {
			return nil, false
		}
		t := stmt.Target{Column: ref}
		if alias, ok := s.alias(); ok {
			t.Alias = alias
		}
		ret = append(ret, t)
		if !s.acceptPunct(",") {
			return ret, true
		}
	}
}

func (s *scanner) sortKeys() ([]stmt.SortKey, bool) {
	var ret []stmt.SortKey
	for {
		ref, ok := s.columnRef()
		if !ok {
			return nil, false
		}
		key := stmt.SortKey{Column: ref}
		if s.accept("DESC") {
			key.Desc = true
		} else {
			s.accept("ASC")
		}
		ret = append(ret, key)
		if !s.acceptPunct(",") {
			return ret, true
		}
	}
}

// joinConds collects equalities between columns of two different relations
// from the top-level conjunction.
func joinConds(n lyx.Node, acc []stmt.JoinCond) []stmt.JoinCond {
	op, ok := n.(*lyx.AExprOp)
	if !ok || op == nil {
		return acc
	}
	switch strings.ToLower(op.Op) {
	case "and":
		acc = joinConds(op.Left, acc)
		return joinConds(op.Right, acc)
	case "=":
		l, lok := op.Left.(*lyx.ColumnRef)
		r, rok := op.Right.(*lyx.ColumnRef)
		if !lok || !rok || l.TableAlias == "" || r.TableAlias == "" || strings.EqualFold(l.TableAlias, r.TableAlias) {
			return acc
		}
		return append(acc, stmt.JoinCond{
			Left:  stmt.ColumnRef{Relation: l.TableAlias, Column: l.ColName},
			Right: stmt.ColumnRef{Relation: r.TableAlias, Column: r.ColName},
		})
	}
	return acc
}
