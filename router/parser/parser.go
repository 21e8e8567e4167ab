package parser

import "github.com/pg-sharding/dsproxy/pkg/stmt"

// Parser turns SQL text into a tagged statement.
type Parser interface {
	Parse(query string) (*stmt.Statement, error)
}

var (
	_ Parser = &QParser{}
	_ Parser = &SharedParser{}
)
