package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pg-sharding/dsproxy/pkg/engine"
	"github.com/pg-sharding/dsproxy/router/route"
	"github.com/stretchr/testify/assert"
)

func TestPrintSlot(t *testing.T) {
	assert := assert.New(t)

	tts := engine.ExecutionUnitsVirtualRelationScan([]route.ExecutionUnit{
		{DataSourceName: "ds_0", SQL: "SELECT * FROM t_order_0"},
		{DataSourceName: "ds_1", SQL: "SELECT * FROM t_order_1"},
	})

	var buf bytes.Buffer
	assert.NoError(printSlot(&buf, tts))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(lines, 4)
	assert.Contains(lines[0], "data source")
	assert.Contains(lines[1], "SELECT * FROM t_order_0")
	assert.Equal("(2 rows)", lines[3])
}

func TestFormatCell(t *testing.T) {
	assert := assert.New(t)

	for _, tcase := range []struct {
		in  any
		exp string
	}{
		{in: nil, exp: "NULL"},
		{in: []byte("abc"), exp: "abc"},
		{in: int64(42), exp: "42"},
		{in: "x", exp: "x"},
	} {
		assert.Equal(tcase.exp, formatCell(tcase.in))
	}
}
