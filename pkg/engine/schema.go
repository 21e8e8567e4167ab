package engine

import (
	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/pg-sharding/dsproxy/pkg/catalog"
)

// fixed-width types; everything else is variable length
var typeSizes = map[uint32]int16{
	catalog.INTOID:    8,
	catalog.INT4OID:   4,
	catalog.DOUBLEOID: 8,
	catalog.BOOLOID:   1,
}

func fieldDesc(name string, oid uint32) pgproto3.FieldDescription {
	size, ok := typeSizes[oid]
	if !ok {
		size = -1
	}
	return pgproto3.FieldDescription{
		Name:         []byte(name),
		DataTypeOID:  oid,
		DataTypeSize: size,
		TypeModifier: -1,
	}
}

// TextOidFD describes a text column named name.
func TextOidFD(name string) pgproto3.FieldDescription {
	return fieldDesc(name, catalog.TEXTOID)
}

// FloatOidFD describes a float8 column named name.
func FloatOidFD(name string) pgproto3.FieldDescription {
	return fieldDesc(name, catalog.DOUBLEOID)
}

// IntOidFD describes an int8 column named name.
func IntOidFD(name string) pgproto3.FieldDescription {
	return fieldDesc(name, catalog.INTOID)
}

// ColumnFD describes a column of a physical result set by its driver type name.
// Numeric columns are carried as float8 so that sorting compares them as numbers.
func ColumnFD(name, typeName string) pgproto3.FieldDescription {
	switch oid := catalog.TypeOID(typeName); oid {
	case catalog.NUMERICOID:
		return FloatOidFD(name)
	default:
		return fieldDesc(name, oid)
	}
}
