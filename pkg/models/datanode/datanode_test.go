package datanode_test

import (
	"testing"

	"github.com/pg-sharding/dsproxy/pkg/models/datanode"
	"github.com/stretchr/testify/assert"
)

func TestParseDataNode(t *testing.T) {
	assert := assert.New(t)

	type tcase struct {
		in      string
		exp     datanode.DataNode
		wantErr bool
	}

	for _, tt := range []tcase{
		{in: "ds_0.t_order", exp: datanode.NewDataNode("ds_0", "", "t_order")},
		{in: "ds_1.public.t_order", exp: datanode.NewDataNode("ds_1", "public", "t_order")},
		{in: "t_order", wantErr: true},
		{in: "a.b.c.d", wantErr: true},
	} {
		act, err := datanode.ParseDataNode(tt.in)
		if tt.wantErr {
			assert.Error(err, tt.in)
			continue
		}
		assert.NoError(err, tt.in)
		assert.Equal(tt.exp, act, tt.in)
	}
}

func TestQualifiedTableCaseInsensitive(t *testing.T) {
	assert := assert.New(t)

	a := datanode.NewQualifiedTable("Public", "T_Order")
	b := datanode.NewQualifiedTable("public", "t_order")

	assert.True(a.Equal(b))
	assert.Equal(a.Key(), b.Key())
	assert.Equal("Public.T_Order", a.String())
	assert.Equal("t_order", datanode.NewQualifiedTable("", "t_order").String())
}
