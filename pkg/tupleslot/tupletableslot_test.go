package tupleslot_test

import (
	"testing"

	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/pg-sharding/dsproxy/pkg/tupleslot"
	"github.com/stretchr/testify/assert"
)

func TestTupleTableSlot(t *testing.T) {
	assert := assert.New(t)

	tts := &tupleslot.TupleTableSlot{
		Desc: []pgproto3.FieldDescription{
			{Name: []byte("o.id")},
			{Name: []byte("o.user_id")},
			{Name: []byte("o.id")},
		},
	}
	tts.WriteDataRow("1", "10", "x")

	assert.Equal([]string{"o.id", "o.user_id", "o.id"}, tts.ColumnNames())
	assert.Equal(map[string]int{"o.id": 0, "o.user_id": 1}, tts.GetColumnsMap())

	off, err := tts.ColNameOffset("o.user_id")
	assert.NoError(err)
	assert.Equal(1, off)

	_, err = tts.ColNameOffset("missing")
	assert.Error(err)

	assert.Equal([][][]byte{{[]byte("1"), []byte("10"), []byte("x")}}, tts.Raw)
}
