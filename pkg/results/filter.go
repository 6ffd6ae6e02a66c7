// Package results filters, orders and projects resolved records
package results

import (
	"github.com/pay-theory/ecsbridge/pkg/core"
	"github.com/pay-theory/ecsbridge/pkg/fields"
	"github.com/pay-theory/ecsbridge/pkg/query"
)

// Lookup resolves field on record. A key present verbatim wins (projected or joined fields),
// otherwise the aliased path is extracted. The second result is false when the field is
// neither present nor a nested path.
func Lookup(record core.Record, field string, aliases *fields.AliasRegistry) (any, bool) {
	if v, ok := record[field]; ok {
		return v, true
	}

	resolved := aliases.Resolve(field)
	if v, ok := record[resolved]; ok {
		return v, true
	}
	if !fields.IsNested(resolved) {
		return nil, false
	}

	p, err := fields.ParsePath(resolved)
	if err != nil {
		return nil, false
	}
	return p.Extract(record), true
}

// Filter keeps the records satisfying every scalar clause of q. A clause whose key the record
// does not carry does not apply. List clauses are identifier lists and never filter.
func Filter(records []core.Record, q *query.Query, aliases *fields.AliasRegistry) []core.Record {
	clauses := q.Filter(func(c query.Clause) bool { return !c.IsList }).Clauses
	if len(clauses) == 0 {
		return records
	}

	out := make([]core.Record, 0, len(records))
	for _, record := range records {
		if matchesAll(record, clauses, aliases) {
			out = append(out, record)
		}
	}
	return out
}

func matchesAll(record core.Record, clauses []query.Clause, aliases *fields.AliasRegistry) bool {
	for _, c := range clauses {
		v, ok := Lookup(record, c.Key, aliases)
		if !ok {
			continue
		}
		if !matches(v, c.Value) {
			return false
		}
	}
	return true
}

// matches compares the stringified value; lists match when any element does
func matches(v any, want string) bool {
	switch val := v.(type) {
	case nil:
		return false
	case []any:
		for _, elem := range val {
			if matches(elem, want) {
				return true
			}
		}
		return false
	default:
		return Stringify(val) == want
	}
}
