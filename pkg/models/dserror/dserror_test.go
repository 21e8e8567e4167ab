package dserror_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/pg-sharding/dsproxy/pkg/models/dserror"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	assert := assert.New(t)

	err := dserror.TableAlreadyExists("t_order")
	assert.Equal("TableAlreadyExists: table \"t_order\" already exists", err.Error())

	assert.Equal("Unexpected error", dserror.GetMessageByCode("bogus"))
}

func TestIsCodeThroughWrapping(t *testing.T) {
	assert := assert.New(t)

	cause := errors.New("dial tcp: connection refused")
	err := fmt.Errorf("statement failed: %w", dserror.ConnectionAcquisition("ds_0", cause))

	assert.True(dserror.IsCode(err, dserror.DS_CONNECTION_ERROR))
	assert.False(dserror.IsCode(err, dserror.DS_TABLE_EXISTS))
	assert.ErrorIs(err, cause)
}

func TestIsCodeNested(t *testing.T) {
	assert := assert.New(t)

	inner := dserror.CursorNotFound("c1")
	outer := dserror.Wrap(dserror.DS_BACKEND_ERROR, inner, "rollback")

	assert.True(dserror.IsCode(outer, dserror.DS_CURSOR_NOT_FOUND))
	assert.True(dserror.IsCode(outer, dserror.DS_BACKEND_ERROR))
	assert.False(dserror.IsCode(errors.New("plain"), dserror.DS_BACKEND_ERROR))
}
