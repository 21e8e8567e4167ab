package rewrite

import (
	"strings"

	"github.com/pg-sharding/dsproxy/pkg/dslog"
	"github.com/pg-sharding/dsproxy/router/route"
)

// Rewrite produces one execution unit per actual table combination of every
// route unit, in plan order.
func Rewrite(rc *route.RouteContext, sql string, params []any) []route.ExecutionUnit {
	units := make([]route.ExecutionUnit, 0, rc.Size())
	for _, ru := range rc.Units() {
		for _, cu := range ru.Combinations() {
			units = append(units, route.ExecutionUnit{
				DataSourceName: cu.DataSourceMapper.ActualName,
				SQL:            RewriteTables(sql, cu),
				Params:         params,
			})
		}
	}
	dslog.Zero.Debug().
		Int("units", len(units)).
		Str("query", sql).
		Msg("rewrote statement into execution units")
	return units
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c >= 0x80
}

// RewriteTables replaces logical table identifiers with the actual names of
// the unit. String literals and comments are left untouched.
func RewriteTables(sql string, ru *route.RouteUnit) string {
	if !needsRewrite(ru) {
		return sql
	}

	var sb strings.Builder
	sb.Grow(len(sql))

	for i := 0; i < len(sql); {
		c := sql[i]
		switch {
		case c == '\'':
			j := skipQuoted(sql, i, '\'')
			sb.WriteString(sql[i:j])
			i = j
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			j := strings.IndexByte(sql[i:], '\n')
			if j == -1 {
				j = len(sql) - i
			}
			sb.WriteString(sql[i : i+j])
			i += j
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			j := strings.Index(sql[i+2:], "*/")
			end := len(sql)
			if j != -1 {
				end = i + 2 + j + 2
			}
			sb.WriteString(sql[i:end])
			i = end
		case c == '"' || c == '`':
			j := skipQuoted(sql, i, c)
			ident := sql[i+1 : max(i+1, j-1)]
			if actual, ok := ru.ActualTableName(ident); ok {
				sb.WriteByte(c)
				sb.WriteString(actual)
				sb.WriteByte(c)
			} else {
				sb.WriteString(sql[i:j])
			}
			i = j
		case isIdentByte(c):
			j := i
			for j < len(sql) && isIdentByte(sql[j]) {
				j++
			}
			word := sql[i:j]
			if actual, ok := ru.ActualTableName(word); ok {
				sb.WriteString(actual)
			} else {
				sb.WriteString(word)
			}
			i = j
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String()
}

// skipQuoted returns the offset right after the quoted token starting at i.
// A doubled quote character is an escaped quote.
func skipQuoted(sql string, i int, q byte) int {
	j := i + 1
	for j < len(sql) {
		if sql[j] == q {
			if j+1 < len(sql) && sql[j+1] == q {
				j += 2
				continue
			}
			return j + 1
		}
		j++
	}
	return len(sql)
}

func needsRewrite(ru *route.RouteUnit) bool {
	for _, m := range ru.TableMappers {
		if !strings.EqualFold(m.LogicName, m.ActualName) {
			return true
		}
	}
	return false
}
