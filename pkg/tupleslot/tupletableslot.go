package tupleslot

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgproto3"
)

// TupleTableSlot is a fully materialized row set in text format.
type TupleTableSlot struct {
	Desc []pgproto3.FieldDescription

	Raw [][][]byte
}

func (tts *TupleTableSlot) WriteDataRow(msgs ...string) {
	vals := make([][]byte, 0, len(msgs))
	for _, msg := range msgs {
		vals = append(vals, []byte(msg))
	}
	tts.Raw = append(tts.Raw, vals)
}

func (tts *TupleTableSlot) ColumnNames() []string {
	names := make([]string, 0, len(tts.Desc))
	for _, d := range tts.Desc {
		names = append(names, string(d.Name))
	}
	return names
}

// GetColumnsMap maps column name to its offset. On duplicate names the first wins.
func (tts *TupleTableSlot) GetColumnsMap() map[string]int {
	m := make(map[string]int, len(tts.Desc))
	for i, d := range tts.Desc {
		if _, ok := m[string(d.Name)]; !ok {
			m[string(d.Name)] = i
		}
	}
	return m
}

func (tts *TupleTableSlot) ColNameOffset(name string) (int, error) {
	for i, d := range tts.Desc {
		if string(d.Name) == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("column \"%s\" does not exist", name)
}
