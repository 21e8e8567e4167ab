package datanode

import (
	"fmt"
	"strings"
)

// QualifiedTable identifies a logical table. Names compare case-insensitively.
type QualifiedTable struct {
	SchemaName string `json:"schema_name"`
	TableName  string `json:"table_name"`
}

func NewQualifiedTable(schema, table string) QualifiedTable {
	return QualifiedTable{SchemaName: schema, TableName: table}
}

// Key is the normalized identity used for lookups.
func (q QualifiedTable) Key() string {
	return strings.ToLower(q.SchemaName) + "." + strings.ToLower(q.TableName)
}

func (q QualifiedTable) String() string {
	if q.SchemaName == "" {
		return q.TableName
	}
	return q.SchemaName + "." + q.TableName
}

func (q QualifiedTable) Equal(o QualifiedTable) bool {
	return strings.EqualFold(q.SchemaName, o.SchemaName) && strings.EqualFold(q.TableName, o.TableName)
}

// DataNode is the physical location backing a logical table.
type DataNode struct {
	DataSourceName string `json:"data_source"`
	SchemaName     string `json:"schema_name"`
	TableName      string `json:"table_name"`
}

func NewDataNode(dataSource, schema, table string) DataNode {
	return DataNode{
		DataSourceName: dataSource,
		SchemaName:     schema,
		TableName:      table,
	}
}

// ParseDataNode accepts "ds.table" and "ds.schema.table".
func ParseDataNode(s string) (DataNode, error) {
	parts := strings.Split(s, ".")
	switch len(parts) {
	case 2:
		return NewDataNode(parts[0], "", parts[1]), nil
	case 3:
		return NewDataNode(parts[0], parts[1], parts[2]), nil
	default:
		return DataNode{}, fmt.Errorf("invalid data node format \"%s\", expected ds.table or ds.schema.table", s)
	}
}

func (d DataNode) Table() QualifiedTable {
	return QualifiedTable{SchemaName: d.SchemaName, TableName: d.TableName}
}

// Key identifies the node inside one logical table entry.
func (d DataNode) Key() string {
	return strings.ToLower(d.DataSourceName) + "." + d.Table().Key()
}

func (d DataNode) String() string {
	if d.SchemaName == "" {
		return d.DataSourceName + "." + d.TableName
	}
	return d.DataSourceName + "." + d.SchemaName + "." + d.TableName
}
