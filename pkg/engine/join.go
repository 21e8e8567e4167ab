package engine

import (
	"strings"

	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/pg-sharding/dsproxy/pkg/models/dserror"
	"github.com/pg-sharding/dsproxy/pkg/stmt"
	"github.com/pg-sharding/dsproxy/pkg/tupleslot"
)

type joinKey struct {
	left, right int
}

func resolveJoinKeys(l, r *tupleslot.TupleTableSlot, conds []stmt.JoinCond) ([]joinKey, error) {
	lm, rm := ColumnsMap(l), ColumnsMap(r)
	keys := make([]joinKey, 0, len(conds))
	for _, c := range conds {
		li, lerr := ColumnOffset(lm, c.Left)
		ri, rerr := ColumnOffset(rm, c.Right)
		if lerr != nil || rerr != nil {
			/* condition written the other way round */
			li, lerr = ColumnOffset(lm, c.Right)
			ri, rerr = ColumnOffset(rm, c.Left)
		}
		if lerr != nil {
			return nil, lerr
		}
		if rerr != nil {
			return nil, rerr
		}
		keys = append(keys, joinKey{left: li, right: ri})
	}
	return keys, nil
}

func hashKey(row [][]byte, offs []int) (string, bool) {
	var sb strings.Builder
	for _, off := range offs {
		if row[off] == nil {
			return "", false
		}
		sb.WriteString(string(row[off]))
		sb.WriteByte(0)
	}
	return sb.String(), true
}

// HashJoin is an inner equi-join of l and r. Without conditions it is the
// cross product. Output rows follow the order of l, then r.
func HashJoin(l, r *tupleslot.TupleTableSlot, conds []stmt.JoinCond) (*tupleslot.TupleTableSlot, error) {
	keys, err := resolveJoinKeys(l, r, conds)
	if err != nil {
		return nil, err
	}

	res := &tupleslot.TupleTableSlot{
		Desc: append(append([]pgproto3.FieldDescription{}, l.Desc...), r.Desc...),
	}

	lOffs := make([]int, 0, len(keys))
	rOffs := make([]int, 0, len(keys))
	for _, k := range keys {
		lOffs = append(lOffs, k.left)
		rOffs = append(rOffs, k.right)
	}

	buckets := map[string][][][]byte{}
	for _, row := range r.Raw {
		if key, ok := hashKey(row, rOffs); ok {
			buckets[key] = append(buckets[key], row)
		}
	}

	for _, lrow := range l.Raw {
		key, ok := hashKey(lrow, lOffs)
		if !ok {
			continue
		}
		for _, rrow := range buckets[key] {
			joined := make([][]byte, 0, len(lrow)+len(rrow))
			joined = append(joined, lrow...)
			joined = append(joined, rrow...)
			res.Raw = append(res.Raw, joined)
		}
	}
	return res, nil
}

// Project narrows tts to targets. No targets keeps every column.
// Output columns are named by alias, else by bare column name.
func Project(tts *tupleslot.TupleTableSlot, targets []stmt.Target) (*tupleslot.TupleTableSlot, error) {
	var offs []int
	var desc []pgproto3.FieldDescription

	if len(targets) == 0 {
		for i, d := range tts.Desc {
			offs = append(offs, i)
			name := string(d.Name)
			if dot := strings.LastIndexByte(name, '.'); dot != -1 {
				name = name[dot+1:]
			}
			d.Name = []byte(name)
			desc = append(desc, d)
		}
	} else {
		m := ColumnsMap(tts)
		for _, t := range targets {
			off, err := ColumnOffset(m, t.Column)
			if err != nil {
				return nil, err
			}
			d := tts.Desc[off]
			d.Name = []byte(t.Column.Column)
			if t.Alias != "" {
				d.Name = []byte(t.Alias)
			}
			offs = append(offs, off)
			desc = append(desc, d)
		}
	}
	if len(desc) == 0 {
		return nil, dserror.New(dserror.DS_ROUTING_ERROR, "empty projection")
	}

	res := &tupleslot.TupleTableSlot{Desc: desc}
	for _, row := range tts.Raw {
		out := make([][]byte, 0, len(offs))
		for _, off := range offs {
			out = append(out, row[off])
		}
		res.Raw = append(res.Raw, out)
	}
	return res, nil
}

// SplitJoinConds separates conditions that connect l with r from the rest.
func SplitJoinConds(l, r *tupleslot.TupleTableSlot, conds []stmt.JoinCond) (applicable, rest []stmt.JoinCond) {
	lm, rm := ColumnsMap(l), ColumnsMap(r)
	in := func(m map[string]int, ref stmt.ColumnRef) bool {
		_, err := ColumnOffset(m, ref)
		return err == nil
	}
	for _, c := range conds {
		if (in(lm, c.Left) && in(rm, c.Right)) || (in(lm, c.Right) && in(rm, c.Left)) {
			applicable = append(applicable, c)
		} else {
			rest = append(rest, c)
		}
	}
	return applicable, rest
}
