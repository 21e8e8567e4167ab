package engine

import (
	"github.com/pg-sharding/dsproxy/pkg/catalog"
	"github.com/pg-sharding/dsproxy/pkg/models/dserror"
)

var s_operators = map[uint32]Operator{
	catalog.TEXTOID:    &TEXTOperator{},
	catalog.BOOLOID:    &TEXTOperator{},
	catalog.INTOID:     &NUMERICOperator{},
	catalog.INT4OID:    &NUMERICOperator{},
	catalog.DOUBLEOID:  &NUMERICOperator{},
	catalog.NUMERICOID: &NUMERICOperator{},
}

func SearchSysCacheOperator(oid uint32) (Operator, error) {
	if op, ok := s_operators[oid]; ok {
		return op, nil
	}
	return nil, dserror.New(dserror.DS_NOT_IMPLEMENTED, "operator not supported")
}
