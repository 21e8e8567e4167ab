package catalog

import "strings"

/* PostgreSQL catalog const */

// TEXTOID https://github.com/postgres/postgres/blob/master/src/include/catalog/pg_type.dat#L81 /* #no-spell-check-line */
const TEXTOID = 25 /* #no-spell-check-line */

// DOUBLEOID https://github.com/postgres/postgres/blob/master/src/include/catalog/pg_type.dat#L223 /* #no-spell-check-line */
const DOUBLEOID = 701 /* #no-spell-check-line */

// INTOID https://github.com/postgres/postgres/blob/master/src/include/catalog/pg_type.dat#L55 /* #no-spell-check-line */
const INTOID = 20 /* #no-spell-check-line */

// INT4OID https://github.com/postgres/postgres/blob/master/src/include/catalog/pg_type.dat#L62 /* #no-spell-check-line */
const INT4OID = 23 /* #no-spell-check-line */

// NUMERICOID https://github.com/postgres/postgres/blob/master/src/include/catalog/pg_type.dat#L365 /* #no-spell-check-line */
const NUMERICOID = 1700 /* #no-spell-check-line */

// BOOLOID https://github.com/postgres/postgres/blob/master/src/include/catalog/pg_type.dat#L35 /* #no-spell-check-line */
const BOOLOID = 16 /* #no-spell-check-line */

// TypeOID maps a driver type name to its catalog oid. Unknown types are text.
func TypeOID(typeName string) uint32 {
	switch strings.ToUpper(typeName) {
	case "INT8", "BIGINT", "INT", "INTEGER":
		return INTOID
	case "INT4", "INT2", "SMALLINT", "MEDIUMINT", "TINYINT":
		return INT4OID
	case "FLOAT8", "FLOAT4", "DOUBLE", "FLOAT", "REAL":
		return DOUBLEOID
	case "NUMERIC", "DECIMAL":
		return NUMERICOID
	case "BOOL", "BOOLEAN":
		return BOOLOID
	}
	return TEXTOID
}

// IsNumeric reports whether values of oid compare as numbers.
func IsNumeric(oid uint32) bool {
	switch oid {
	case INTOID, INT4OID, DOUBLEOID, NUMERICOID:
		return true
	}
	return false
}
