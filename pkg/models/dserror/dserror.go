package dserror

import (
	"errors"
	"fmt"
)

const (
	DS_UNEXPECTED            = "DSU"
	DS_TABLE_EXISTS          = "DST"
	DS_CONNECTION_ERROR      = "DSO"
	DS_UNSUPPORTED_IN_TX     = "DSX"
	DS_EMPTY_STORAGE_UNIT    = "DSE"
	DS_INCOMPLETE_RULE       = "DSR"
	DS_CURSOR_NOT_FOUND      = "DSC"
	DS_BACKEND_ERROR         = "DSB"
	DS_NO_DATASOURCE         = "DSD"
	DS_ROUTING_ERROR         = "DSG"
	DS_METADATA_CORRUPTION   = "DSM"
	DS_NOT_IMPLEMENTED       = "DSN"
	DS_INVALID_CONFIGURATION = "DSI"
)

var existingErrorCodeMap = map[string]string{
	DS_UNEXPECTED:            "Unexpected error",
	DS_TABLE_EXISTS:          "TableAlreadyExists",
	DS_CONNECTION_ERROR:      "ConnectionAcquisition",
	DS_UNSUPPORTED_IN_TX:     "UnsupportedOperationInTransaction",
	DS_EMPTY_STORAGE_UNIT:    "EmptyStorageUnit",
	DS_INCOMPLETE_RULE:       "IncompleteRule",
	DS_CURSOR_NOT_FOUND:      "CursorNotFound",
	DS_BACKEND_ERROR:         "BackendDatabase",
	DS_NO_DATASOURCE:         "failed to match any data source",
	DS_ROUTING_ERROR:         "Routing error",
	DS_METADATA_CORRUPTION:   "Metadata corruption",
	DS_NOT_IMPLEMENTED:       "Not implemented",
	DS_INVALID_CONFIGURATION: "Invalid configuration",
}

func GetMessageByCode(errorCode string) string {
	rep, ok := existingErrorCodeMap[errorCode]
	if ok {
		return rep
	}
	return "Unexpected error"
}

var _ error = &DsError{}

// DsError is an error tagged with a stable code. Cause keeps the
// underlying driver or system error, if any.
type DsError struct {
	Err   error
	Cause error

	ErrorCode string
}

func New(errorCode string, msg string) *DsError {
	return &DsError{
		Err:       errors.New(msg),
		ErrorCode: errorCode,
	}
}

func Newf(errorCode string, format string, a ...any) *DsError {
	return &DsError{
		Err:       fmt.Errorf(format, a...),
		ErrorCode: errorCode,
	}
}

func NewByCode(errorCode string) *DsError {
	return New(errorCode, GetMessageByCode(errorCode))
}

// Wrap tags cause with errorCode, keeping it reachable through errors.Unwrap.
func Wrap(errorCode string, cause error, format string, a ...any) *DsError {
	return &DsError{
		Err:       fmt.Errorf(format, a...),
		Cause:     cause,
		ErrorCode: errorCode,
	}
}

func (er *DsError) Error() string {
	if er.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", GetMessageByCode(er.ErrorCode), er.Err, er.Cause)
	}
	return fmt.Sprintf("%s: %s", GetMessageByCode(er.ErrorCode), er.Err)
}

func (er *DsError) Unwrap() error {
	return er.Cause
}

// IsCode reports whether err or anything it wraps is a DsError with code.
func IsCode(err error, code string) bool {
	var de *DsError
	if errors.As(err, &de) {
		if de.ErrorCode == code {
			return true
		}
		if de.Cause != nil {
			return IsCode(de.Cause, code)
		}
	}
	return false
}

// Code returns the code of the outermost DsError in err, or DS_UNEXPECTED.
func Code(err error) string {
	var de *DsError
	if errors.As(err, &de) {
		return de.ErrorCode
	}
	return DS_UNEXPECTED
}

func TableAlreadyExists(table string) *DsError {
	return Newf(DS_TABLE_EXISTS, "table \"%s\" already exists", table)
}

func ConnectionAcquisition(dataSource string, cause error) *DsError {
	return Wrap(DS_CONNECTION_ERROR, cause, "failed to acquire connection to data source \"%s\"", dataSource)
}

func UnsupportedInTransaction(operation string) *DsError {
	return Newf(DS_UNSUPPORTED_IN_TX, "%s is not supported inside the current transaction", operation)
}

func EmptyStorageUnit(database string) *DsError {
	return Newf(DS_EMPTY_STORAGE_UNIT, "database \"%s\" has no storage unit", database)
}

func IncompleteRule(database string) *DsError {
	return Newf(DS_INCOMPLETE_RULE, "rule configuration of database \"%s\" is incomplete", database)
}

func CursorNotFound(cursor string) *DsError {
	return Newf(DS_CURSOR_NOT_FOUND, "cursor \"%s\" does not exist", cursor)
}

func BackendDatabase(dataSource string, cause error) *DsError {
	return Wrap(DS_BACKEND_ERROR, cause, "data source \"%s\"", dataSource)
}
