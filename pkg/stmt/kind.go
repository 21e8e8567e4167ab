package stmt

import "strings"

// Kind is a set of capability tags attached to a parsed statement.
type Kind uint32

const (
	Query Kind = 1 << iota
	Insert
	Update
	Delete
	DDL
	CreateTable
	DropTable
	SchemaDDL
	Truncate
	CursorDeclare
	CursorFetch
	CursorMove
	CursorClose
	CursorCloseAll
	Set
	Begin
	Commit
	Rollback
	Savepoint
	Show
)

const (
	WriteDML      = Insert | Update | Delete
	CursorControl = CursorDeclare | CursorFetch | CursorMove | CursorClose | CursorCloseAll
	TCL           = Begin | Commit | Rollback | Savepoint
)

var kindNames = []struct {
	k    Kind
	name string
}{
	{Query, "QUERY"},
	{Insert, "INSERT"},
	{Update, "UPDATE"},
	{Delete, "DELETE"},
	{DDL, "DDL"},
	{CreateTable, "CREATE_TABLE"},
	{DropTable, "DROP_TABLE"},
	{SchemaDDL, "SCHEMA_DDL"},
	{Truncate, "TRUNCATE"},
	{CursorDeclare, "DECLARE"},
	{CursorFetch, "FETCH"},
	{CursorMove, "MOVE"},
	{CursorClose, "CLOSE"},
	{CursorCloseAll, "CLOSE_ALL"},
	{Set, "SET"},
	{Begin, "BEGIN"},
	{Commit, "COMMIT"},
	{Rollback, "ROLLBACK"},
	{Savepoint, "SAVEPOINT"},
	{Show, "SHOW"},
}

// Has reports whether all tags of f are set.
func (k Kind) Has(f Kind) bool {
	return f != 0 && k&f == f
}

// Any reports whether at least one tag of f is set.
func (k Kind) Any(f Kind) bool {
	return k&f != 0
}

func (k Kind) String() string {
	if k == 0 {
		return "UNKNOWN"
	}
	var parts []string
	for _, kn := range kindNames {
		if k&kn.k != 0 {
			parts = append(parts, kn.name)
		}
	}
	return strings.Join(parts, "|")
}
