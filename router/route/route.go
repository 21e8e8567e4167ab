package route

import (
	"fmt"
	"strings"

	"github.com/pg-sharding/dsproxy/pkg/models/datanode"
)

// RouteMapper pairs a logical name with its physical counterpart.
type RouteMapper struct {
	LogicName  string
	ActualName string
}

// RouteUnit is everything one statement touches on one data source.
type RouteUnit struct {
	DataSourceMapper RouteMapper
	TableMappers     []RouteMapper
}

func (u *RouteUnit) addTable(m RouteMapper) {
	for _, cur := range u.TableMappers {
		if strings.EqualFold(cur.LogicName, m.LogicName) && strings.EqualFold(cur.ActualName, m.ActualName) {
			return
		}
	}
	u.TableMappers = append(u.TableMappers, m)
}

// ActualTableName translates a logical table name for this unit.
func (u *RouteUnit) ActualTableName(logic string) (string, bool) {
	for _, m := range u.TableMappers {
		if strings.EqualFold(m.LogicName, logic) {
			return m.ActualName, true
		}
	}
	return "", false
}

// Combinations splits the unit so that every result maps each logical table
// to exactly one actual table. A logical table with several actual tables on
// this data source yields one unit per actual table, in mapper order.
func (u *RouteUnit) Combinations() []*RouteUnit {
	var logic []string
	actual := map[string][]RouteMapper{}
	for _, m := range u.TableMappers {
		key := strings.ToLower(m.LogicName)
		if _, ok := actual[key]; !ok {
			logic = append(logic, key)
		}
		actual[key] = append(actual[key], m)
	}

	ret := []*RouteUnit{{DataSourceMapper: u.DataSourceMapper}}
	for _, key := range logic {
		choices := actual[key]
		next := make([]*RouteUnit, 0, len(ret)*len(choices))
		for _, cur := range ret {
			for _, m := range choices {
				next = append(next, &RouteUnit{
					DataSourceMapper: u.DataSourceMapper,
					TableMappers:     append(append([]RouteMapper{}, cur.TableMappers...), m),
				})
			}
		}
		ret = next
	}
	return ret
}

func (u *RouteUnit) String() string {
	tables := make([]string, 0, len(u.TableMappers))
	for _, m := range u.TableMappers {
		tables = append(tables, m.LogicName+"->"+m.ActualName)
	}
	return fmt.Sprintf("%s[%s]", u.DataSourceMapper.ActualName, strings.Join(tables, ","))
}

// RouteContext is the routing plan of one statement. Units are unique per
// actual data source and kept in first-seen order.
type RouteContext struct {
	units []*RouteUnit

	// data nodes registered in the cache while resolving this plan
	registered []datanode.DataNode
}

func NewRouteContext() *RouteContext {
	return &RouteContext{}
}

func (rc *RouteContext) Units() []*RouteUnit {
	return rc.units
}

func (rc *RouteContext) Size() int {
	return len(rc.units)
}

func (rc *RouteContext) IsEmpty() bool {
	return len(rc.units) == 0
}

func (rc *RouteContext) unit(dataSource string) *RouteUnit {
	for _, u := range rc.units {
		if strings.EqualFold(u.DataSourceMapper.ActualName, dataSource) {
			return u
		}
	}
	return nil
}

// AddDataSource ensures a unit for dataSource exists and returns it.
func (rc *RouteContext) AddDataSource(dataSource string) *RouteUnit {
	if u := rc.unit(dataSource); u != nil {
		return u
	}
	u := &RouteUnit{
		DataSourceMapper: RouteMapper{LogicName: dataSource, ActualName: dataSource},
	}
	rc.units = append(rc.units, u)
	return u
}

// AddTable routes a logical table to a data node, merging into the unit of
// its data source.
func (rc *RouteContext) AddTable(logic string, dn datanode.DataNode) {
	rc.AddDataSource(dn.DataSourceName).addTable(RouteMapper{LogicName: logic, ActualName: dn.TableName})
}

// Merge appends other's units, folding units of the same data source together.
func (rc *RouteContext) Merge(other *RouteContext) {
	if other == nil {
		return
	}
	for _, ou := range other.units {
		u := rc.AddDataSource(ou.DataSourceMapper.ActualName)
		for _, m := range ou.TableMappers {
			u.addTable(m)
		}
	}
	rc.registered = append(rc.registered, other.registered...)
}

func (rc *RouteContext) DataSourceNames() []string {
	ret := make([]string, 0, len(rc.units))
	for _, u := range rc.units {
		ret = append(ret, u.DataSourceMapper.ActualName)
	}
	return ret
}

func (rc *RouteContext) RecordRegistered(dn datanode.DataNode) {
	rc.registered = append(rc.registered, dn)
}

// Registered returns data nodes newly added to the registry cache while resolving.
func (rc *RouteContext) Registered() []datanode.DataNode {
	return rc.registered
}

func (rc *RouteContext) String() string {
	parts := make([]string, 0, len(rc.units))
	for _, u := range rc.units {
		parts = append(parts, u.String())
	}
	return strings.Join(parts, " ")
}

// ExecutionUnit is one physical statement.
type ExecutionUnit struct {
	DataSourceName string
	SQL            string
	Params         []any
}

var errNoRow = fmt.Errorf("no current row")
