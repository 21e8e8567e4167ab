package engine

import (
	"sort"

	"github.com/pg-sharding/dsproxy/pkg/stmt"
	"github.com/pg-sharding/dsproxy/pkg/tupleslot"
)

// ProcessOrderBy sorts tts in place. Rows equal on every key keep their order.
func ProcessOrderBy(tts *tupleslot.TupleTableSlot, order []stmt.SortKey) error {
	if len(order) == 0 {
		return nil
	}
	colOrder := ColumnsMap(tts)

	keys := make([]SortKey, 0, len(order))
	for _, o := range order {
		off, err := ColumnOffset(colOrder, o.Column)
		if err != nil {
			return err
		}
		op, err := SearchSysCacheOperator(tts.Desc[off].DataTypeOID)
		if err != nil {
			return err
		}
		dir := ASC
		if o.Desc {
			dir = DESC
		}
		keys = append(keys, SortKey{ColIndex: off, Order: dir, Op: op})
	}

	sort.Stable(SortableWithContext{
		Data: tts.Raw,
		Keys: keys,
	})
	return nil
}
