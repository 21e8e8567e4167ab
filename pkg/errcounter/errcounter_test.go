package errcounter_test

import (
	"testing"

	"github.com/pg-sharding/dsproxy/pkg/errcounter"
	"github.com/stretchr/testify/assert"
)

func TestErrCounter(t *testing.T) {
	assert := assert.New(t)

	c := errcounter.New()
	c.ReportError("DSB")
	c.ReportError("DSB")
	c.ReportError("DSC")

	counts := c.ErrorCounts()
	assert.Equal(map[string]uint64{"DSB": 2, "DSC": 1}, counts)

	counts["DSB"] = 100
	assert.Equal(uint64(2), c.ErrorCounts()["DSB"])
}
