package catalog_test

import (
	"testing"

	"github.com/pg-sharding/dsproxy/pkg/catalog"
	"github.com/stretchr/testify/assert"
)

func TestTypeOID(t *testing.T) {
	assert := assert.New(t)

	type tcase struct {
		typeName string
		exp      uint32
		numeric  bool
	}

	for _, tt := range []tcase{
		{typeName: "int8", exp: catalog.INTOID, numeric: true},
		{typeName: "INT4", exp: catalog.INT4OID, numeric: true},
		{typeName: "DECIMAL", exp: catalog.NUMERICOID, numeric: true},
		{typeName: "varchar", exp: catalog.TEXTOID},
		{typeName: "", exp: catalog.TEXTOID},
		{typeName: "bool", exp: catalog.BOOLOID},
	} {
		assert.Equal(tt.exp, catalog.TypeOID(tt.typeName), tt.typeName)
		assert.Equal(tt.numeric, catalog.IsNumeric(catalog.TypeOID(tt.typeName)), tt.typeName)
	}
}
