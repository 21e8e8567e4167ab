package parser

import (
	"strings"

	"github.com/pg-sharding/dsproxy/pkg/dslog"
	"github.com/pg-sharding/dsproxy/pkg/models/datanode"
	"github.com/pg-sharding/dsproxy/pkg/stmt"
	"github.com/pg-sharding/lyx/lyx"
)

// QParser classifies statements. Data manipulation and CREATE TABLE go
// through the lyx grammar; everything else, and statements lyx rejects, is
// recognized by keywords.
type QParser struct{}

func NewQParser() *QParser {
	return &QParser{}
}

// Parse never fails on unknown syntax: such statements get an empty kind
// and are sent to a single data source as is.
func (qp *QParser) Parse(query string) (*stmt.Statement, error) {
	toks, comments := tokenize(query)

	st := classify(query, newScanner(toks))
	for _, comm := range comments {
		opts, err := ParseComment(strings.TrimSpace(comm))
		if err != nil {
			continue
		}
		if ds, ok := opts[CommentDataSource]; ok {
			st.DataSourceHint = ds
		}
	}

	dslog.Zero.Debug().
		Str("query", query).
		Str("kind", st.Kind.String()).
		Int("tables", len(st.Tables)).
		Msg("parsed statement")
	return st, nil
}

func classify(query string, s *scanner) *stmt.Statement {
	if s.eof() {
		return &stmt.Statement{}
	}

	head := s.peek()
	if head.punct("(") {
		return parseDML(query, s)
	}
	if head.kind != tokWord {
		return &stmt.Statement{}
	}

	switch strings.ToUpper(head.text) {
	case "BEGIN", "START":
		return &stmt.Statement{Kind: stmt.Begin}
	case "COMMIT", "END":
		return &stmt.Statement{Kind: stmt.Commit}
	case "ROLLBACK", "ABORT":
		s.next()
		s.acceptAny("WORK", "TRANSACTION")
		if s.accept("TO") {
			s.accept("SAVEPOINT")
			name, _ := s.ident()
			return &stmt.Statement{Kind: stmt.Rollback | stmt.Savepoint, SavepointName: name}
		}
		return &stmt.Statement{Kind: stmt.Rollback}
	case "SAVEPOINT":
		s.next()
		name, _ := s.ident()
		return &stmt.Statement{Kind: stmt.Savepoint, SavepointName: name}
	case "RELEASE":
		s.next()
		s.accept("SAVEPOINT")
		name, _ := s.ident()
		return &stmt.Statement{Kind: stmt.Commit | stmt.Savepoint, SavepointName: name}
	case "SET":
		s.next()
		return parseSet(query, s)
	case "RESET":
		return &stmt.Statement{Kind: stmt.Set}
	case "SHOW":
		return &stmt.Statement{Kind: stmt.Show}
	case "DECLARE":
		s.next()
		return parseDeclare(query, s)
	case "FETCH":
		return &stmt.Statement{Kind: stmt.Query | stmt.CursorFetch, CursorName: s.lastIdent()}
	case "MOVE":
		return &stmt.Statement{Kind: stmt.CursorMove, CursorName: s.lastIdent()}
	case "CLOSE":
		s.next()
		if s.accept("ALL") {
			return &stmt.Statement{Kind: stmt.CursorCloseAll}
		}
		name, _ := s.ident()
		return &stmt.Statement{Kind: stmt.CursorClose, CursorName: name}
	case "CREATE":
		s.next()
		return parseCreate(query, s)
	case "DROP":
		s.next()
		return parseDrop(s)
	case "ALTER":
		s.next()
		return parseAlter(s)
	case "TRUNCATE":
		s.next()
		s.accept("TABLE")
		return &stmt.Statement{Kind: stmt.DDL | stmt.Truncate, Tables: s.nameList()}
	case "SELECT", "WITH", "VALUES", "TABLE", "INSERT", "UPDATE", "DELETE", "REPLACE":
		return parseDML(query, s)
	}
	return &stmt.Statement{}
}

func parseSet(query string, s *scanner) *stmt.Statement {
	st := &stmt.Statement{Kind: stmt.Set}
	if s.accept("TRANSACTION") || s.accept("SESSION", "CHARACTERISTICS") || s.accept("CONSTRAINTS") {
		return st
	}
	s.acceptAny("SESSION", "LOCAL", "GLOBAL")
	if s.accept("TIME", "ZONE") {
		st.Variable = &stmt.Variable{Name: "timezone", Value: s.tail(query)}
		return st
	}
	for s.acceptPunct("@") {
	}

	var name []string
	for {
		part, ok := s.ident()
		if !ok {
			break
		}
		name = append(name, part)
		if !s.acceptPunct(".") {
			break
		}
	}
	if len(name) == 0 {
		return st
	}
	if strings.EqualFold(name[0], "session") && len(name) > 1 {
		name = name[1:]
	}

	if !s.accept("TO") {
		s.acceptPunct(":")
		s.acceptPunct("=")
	}
	st.Variable = &stmt.Variable{
		Name:  strings.Join(name, "."),
		Value: s.tail(query),
	}
	return st
}

// parseDeclare handles DECLARE name [options] CURSOR [options] FOR query.
func parseDeclare(query string, s *scanner) *stmt.Statement {
	name, _ := s.ident()
	st := &stmt.Statement{Kind: stmt.CursorDeclare, CursorName: name}
	if !s.skipTo("FOR") || s.eof() {
		return st
	}
	inner := query[s.peek().pos:]
	toks, _ := tokenize(inner)
	st.Tables = parseDML(inner, newScanner(toks)).Tables
	return st
}

func parseCreate(query string, s *scanner) *stmt.Statement {
	s.accept("OR", "REPLACE")
	for s.acceptAny("TEMP", "TEMPORARY", "UNLOGGED", "GLOBAL", "LOCAL", "UNIQUE") {
	}

	switch {
	case s.accept("SCHEMA"):
		st := &stmt.Statement{Kind: stmt.DDL | stmt.SchemaDDL}
		st.IfNotExists = s.accept("IF", "NOT", "EXISTS")
		if name, ok := s.ident(); ok {
			st.Schemas = []string{name}
		}
		return st
	case s.accept("TABLE"):
		st := &stmt.Statement{Kind: stmt.DDL | stmt.CreateTable}
		st.IfNotExists = s.accept("IF", "NOT", "EXISTS")
		if qt, ok := createTableLyx(query); ok {
			st.Tables = []datanode.QualifiedTable{qt}
		} else if qt, ok := s.qualifiedName(); ok {
			st.Tables = []datanode.QualifiedTable{qt}
		}
		return st
	case s.accept("INDEX"):
		st := &stmt.Statement{Kind: stmt.DDL}
		if s.skipTo("ON") {
			st.Tables = s.nameList()
		}
		return st
	}
	return &stmt.Statement{Kind: stmt.DDL}
}

func createTableLyx(query string) (datanode.QualifiedTable, bool) {
	node, err := lyx.Parse(query)
	if err != nil {
		return datanode.QualifiedTable{}, false
	}
	ct, ok := node.(*lyx.CreateTable)
	if !ok {
		return datanode.QualifiedTable{}, false
	}
	rv, ok := ct.TableRv.(*lyx.RangeVar)
	if !ok {
		return datanode.QualifiedTable{}, false
	}
	return datanode.NewQualifiedTable(rv.SchemaName, rv.RelationName), true
}

func parseDrop(s *scanner) *stmt.Statement {
	switch {
	case s.accept("TABLE"):
		s.accept("IF", "EXISTS")
		return &stmt.Statement{Kind: stmt.DDL | stmt.DropTable, Tables: s.nameList()}
	case s.accept("SCHEMA"):
		s.accept("IF", "EXISTS")
		st := &stmt.Statement{Kind: stmt.DDL | stmt.SchemaDDL}
		for {
			name, ok := s.ident()
			if !ok {
				break
			}
			st.Schemas = append(st.Schemas, name)
			if !s.acceptPunct(",") {
				break
			}
		}
		return st
	}
	return &stmt.Statement{Kind: stmt.DDL}
}

func parseAlter(s *scanner) *stmt.Statement {
	switch {
	case s.accept("TABLE"):
		s.accept("IF", "EXISTS")
		s.accept("ONLY")
		st := &stmt.Statement{Kind: stmt.DDL}
		if qt, ok := s.qualifiedName(); ok {
			st.Tables = []datanode.QualifiedTable{qt}
		}
		return st
	case s.accept("SCHEMA"):
		st := &stmt.Statement{Kind: stmt.DDL | stmt.SchemaDDL}
		if name, ok := s.ident(); ok {
			st.Schemas = []string{name}
		}
		return st
	}
	return &stmt.Statement{Kind: stmt.DDL}
}
