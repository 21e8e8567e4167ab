package parser

import (
	"sync"

	"github.com/pg-sharding/dsproxy/pkg/stmt"
)

// SharedParser is shared across all sessions and caches parse results by
// query text. Cached statements must not be modified by callers.
type SharedParser struct {
	parseCache sync.Map
	underlying Parser
}

func (shp *SharedParser) Parse(query string) (*stmt.Statement, error) {
	if st, ok := shp.parseCache.Load(query); ok {
		return st.(*stmt.Statement), nil
	}

	st, err := shp.underlying.Parse(query)
	if err == nil {
		shp.parseCache.Store(query, st)
	}
	return st, err
}

func NewSharedParser() *SharedParser {
	return &SharedParser{
		underlying: NewQParser(),
	}
}
