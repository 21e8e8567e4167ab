package qdb

import "strings"

// DataNode is the stored form of one physical table location.
type DataNode struct {
	DataSource string `json:"data_source"`
	Schema     string `json:"schema,omitempty"`
	Table      string `json:"table"`
}

// LogicalTable lists every data node backing one logical table.
type LogicalTable struct {
	Schema    string      `json:"schema,omitempty"`
	Name      string      `json:"name"`
	DataNodes []*DataNode `json:"data_nodes"`
}

func TableKey(schema, name string) string {
	return strings.ToLower(schema) + "." + strings.ToLower(name)
}

func (t *LogicalTable) Key() string {
	return TableKey(t.Schema, t.Name)
}

func (t *LogicalTable) HasNode(n *DataNode) bool {
	for _, cur := range t.DataNodes {
		if strings.EqualFold(cur.DataSource, n.DataSource) &&
			strings.EqualFold(cur.Schema, n.Schema) &&
			strings.EqualFold(cur.Table, n.Table) {
			return true
		}
	}
	return false
}

func (t *LogicalTable) clone() *LogicalTable {
	cp := &LogicalTable{
		Schema:    t.Schema,
		Name:      t.Name,
		DataNodes: make([]*DataNode, 0, len(t.DataNodes)),
	}
	for _, n := range t.DataNodes {
		nn := *n
		cp.DataNodes = append(cp.DataNodes, &nn)
	}
	return cp
}

// NodeRegistration attaches one data node to a logical table.
type NodeRegistration struct {
	Schema string
	Table  string
	Node   *DataNode
}
