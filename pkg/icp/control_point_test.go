package icp_test

import (
	"errors"
	"testing"

	"github.com/pg-sharding/dsproxy/pkg/icp"
	"github.com/stretchr/testify/assert"
)

func TestControlPoint(t *testing.T) {
	assert := assert.New(t)

	assert.NoError(icp.CheckControlPoint(icp.TwoPhaseDecisionCP))
	assert.Error(icp.DefineICP("unknown"))

	assert.NoError(icp.DefineICP(icp.TwoPhaseDecisionCP))
	err := icp.CheckControlPoint(icp.TwoPhaseDecisionCP)
	assert.True(errors.Is(err, icp.ErrControlPoint))

	icp.ResetICP(icp.TwoPhaseDecisionCP)
	assert.NoError(icp.CheckControlPoint(icp.TwoPhaseDecisionCP))
}
