package engine

import (
	"strconv"
	"strings"

	"github.com/pg-sharding/dsproxy/pkg/models/dserror"
	"github.com/pg-sharding/dsproxy/pkg/stmt"
	"github.com/pg-sharding/dsproxy/pkg/tupleslot"
	"github.com/pg-sharding/lyx/lyx"
)

// ColumnsMap maps lowercased "relation.column" names of tts to offsets, and
// bare column names too when they are unambiguous.
func ColumnsMap(tts *tupleslot.TupleTableSlot) map[string]int {
	m := make(map[string]int, len(tts.Desc)*2)
	bare := map[string]int{}
	for i, d := range tts.Desc {
		name := strings.ToLower(string(d.Name))
		if _, ok := m[name]; !ok {
			m[name] = i
		}
		if dot := strings.LastIndexByte(name, '.'); dot != -1 {
			col := name[dot+1:]
			if _, ok := bare[col]; ok {
				bare[col] = -1
			} else {
				bare[col] = i
			}
		}
	}
	for col, i := range bare {
		if _, ok := m[col]; !ok && i != -1 {
			m[col] = i
		}
	}
	return m
}

func columnKey(relation, column string) string {
	if relation == "" {
		return strings.ToLower(column)
	}
	return strings.ToLower(relation + "." + column)
}

// ColumnOffset resolves a column reference against a ColumnsMap.
func ColumnOffset(nameToIndex map[string]int, ref stmt.ColumnRef) (int, error) {
	if i, ok := nameToIndex[columnKey(ref.Relation, ref.Column)]; ok {
		return i, nil
	}
	return -1, dserror.Newf(dserror.DS_ROUTING_ERROR, "column %s does not exist or is ambiguous", ref.String())
}

func operand(row [][]byte, nameToIndex map[string]int, node lyx.Node) ([]byte, error) {
	switch v := node.(type) {
	case *lyx.ColumnRef:
		i, err := ColumnOffset(nameToIndex, stmt.ColumnRef{Relation: v.TableAlias, Column: v.ColName})
		if err != nil {
			return nil, err
		}
		return row[i], nil
	case *lyx.AExprSConst:
		return []byte(v.Value), nil
	case *lyx.AExprIConst:
		return []byte(strconv.Itoa(v.Value)), nil
	default:
		return nil, dserror.Newf(dserror.DS_NOT_IMPLEMENTED, "unsupported operand %T", node)
	}
}

// MatchRow checks if a row matches a given condition in a WHERE clause.
//
// Parameters:
// - row ([][]byte): The row of data to be checked.
// - nameToIndex (map[string]int): A map that maps column names to their respective indices in the row.
// - condition (lyx.Node): The condition to be checked against the row.
//
// Returns:
// - bool: True if the row matches the condition, false otherwise.
// - error: An error if there was a problem evaluating the condition.
func MatchRow(row [][]byte, nameToIndex map[string]int, condition lyx.Node) (bool, error) {
	if condition == nil {
		return true, nil
	}
	switch where := condition.(type) {
	case *lyx.AExprEmpty:
		return true, nil
	case *lyx.AExprOp:
		switch op := strings.ToLower(where.Op); op {
		case "and":
			left, err := MatchRow(row, nameToIndex, where.Left)
			if err != nil {
				return true, err
			}
			if !left {
				return false, nil
			}
			return MatchRow(row, nameToIndex, where.Right)
		case "or":
			left, err := MatchRow(row, nameToIndex, where.Left)
			if err != nil {
				return true, err
			}
			if left {
				return true, nil
			}
			return MatchRow(row, nameToIndex, where.Right)
		case "=", "<>", "!=", "<", "<=", ">", ">=":
			l, err := operand(row, nameToIndex, where.Left)
			if err != nil {
				return true, err
			}
			r, err := operand(row, nameToIndex, where.Right)
			if err != nil {
				return true, err
			}
			/* NULL never matches */
			if l == nil || r == nil {
				return false, nil
			}
			c := compareValues(l, r)
			switch op {
			case "=":
				return c == 0, nil
			case "<>", "!=":
				return c != 0, nil
			case "<":
				return c < 0, nil
			case "<=":
				return c <= 0, nil
			case ">":
				return c > 0, nil
			default:
				return c >= 0, nil
			}
		default:
			return true, dserror.Newf(dserror.DS_NOT_IMPLEMENTED, "not supported logic operation: %s", where.Op)
		}

	default:
		return false, nil
	}
}

func FilterRows(tts *tupleslot.TupleTableSlot, where lyx.Node) (*tupleslot.TupleTableSlot, error) {

	var filtRows [][][]byte

	nameToIndex := ColumnsMap(tts)
	for _, row := range tts.Raw {

		match, err := MatchRow(row, nameToIndex, where)
		if err != nil {
			return nil, err
		}
		if !match {
			continue
		}

		filtRows = append(filtRows, row)
	}

	tts.Raw = filtRows
	return tts, nil
}
