// Package query translates filter expressions into typed clause lists
package query

import (
	"regexp"
	"strings"

	"github.com/pay-theory/ecsbridge/pkg/errors"
)

// Operator is a clause comparison operator. Only equality is supported.
type Operator string

// OpEquals is the equality operator
const OpEquals Operator = "="

// Clause is one key/value condition of a query
type Clause struct {
	Key      string
	Operator Operator
	Value    string
	List     []string
	IsList   bool
}

// String renders the clause in its external k=v or k=[a,b] form
func (c Clause) String() string {
	if c.IsList {
		return c.Key + "=[" + strings.Join(c.List, ",") + "]"
	}
	return c.Key + "=" + c.Value
}

// Query is an ordered list of conjunctive clauses
type Query struct {
	Clauses []Clause
}

var parameterPattern = regexp.MustCompile(`<%=\s*parameter\[\s*"(.*?)"\s*\]\s*%>`)

// Substitute replaces <%= parameter["name"] %> placeholders with their values
func Substitute(expr string, params map[string]string) (string, error) {
	var missing string
	out := parameterPattern.ReplaceAllStringFunc(expr, func(match string) string {
		name := parameterPattern.FindStringSubmatch(match)[1]
		value, ok := params[name]
		if !ok && missing == "" {
			missing = name
		}
		return value
	})
	if missing != "" {
		return "", errors.Query("translate", "parameter %q is referenced but was not provided", missing)
	}
	return out, nil
}

// Translate substitutes parameters into expr and parses the result
func Translate(expr string, params map[string]string) (*Query, error) {
	substituted, err := Substitute(expr, params)
	if err != nil {
		return nil, err
	}
	return Parse(substituted)
}

// Parse parses a `key=value&key=[a,b]` expression. An empty expression yields an empty query.
func Parse(expr string) (*Query, error) {
	q := &Query{}
	if strings.TrimSpace(expr) == "" {
		return q, nil
	}

	for i, part := range strings.Split(expr, "&") {
		if strings.TrimSpace(part) == "" {
			return nil, errors.Query("parse", "empty clause at position %d in %q", i+1, expr)
		}

		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, errors.Query("parse", "clause %q is missing '='", part)
		}

		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			return nil, errors.Query("parse", "clause %q has an empty key", part)
		}

		clause, err := newClause(key, value)
		if err != nil {
			return nil, err
		}
		q.Clauses = append(q.Clauses, clause)
	}

	return q, nil
}

// MustParse parses expr and panics on error. Intended for tests and constant queries.
func MustParse(expr string) *Query {
	q, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return q
}

func newClause(key, value string) (Clause, error) {
	opens := strings.HasPrefix(value, "[")
	closes := strings.HasSuffix(value, "]")

	switch {
	case opens && closes:
		return Clause{Key: key, Operator: OpEquals, List: splitList(value[1 : len(value)-1]), IsList: true}, nil
	case opens:
		return Clause{}, errors.Query("parse", "list value for %q is missing a closing ']'", key)
	default:
		return Clause{Key: key, Operator: OpEquals, Value: value}, nil
	}
}

func splitList(inner string) []string {
	if strings.TrimSpace(inner) == "" {
		return []string{}
	}
	parts := strings.Split(inner, ",")
	list := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			list = append(list, p)
		}
	}
	return list
}

// String renders the query in its external form, clauses in order
func (q *Query) String() string {
	if q == nil {
		return ""
	}
	parts := make([]string, len(q.Clauses))
	for i, c := range q.Clauses {
		parts[i] = c.String()
	}
	return strings.Join(parts, "&")
}

// Clone returns a deep copy of the query
func (q *Query) Clone() *Query {
	if q == nil {
		return &Query{}
	}
	out := &Query{Clauses: make([]Clause, len(q.Clauses))}
	for i, c := range q.Clauses {
		if c.List != nil {
			c.List = append([]string(nil), c.List...)
		}
		out.Clauses[i] = c
	}
	return out
}

// Len returns the number of clauses
func (q *Query) Len() int {
	if q == nil {
		return 0
	}
	return len(q.Clauses)
}

// Get returns the first clause with the given key
func (q *Query) Get(key string) (Clause, bool) {
	if q == nil {
		return Clause{}, false
	}
	for _, c := range q.Clauses {
		if c.Key == key {
			return c, true
		}
	}
	return Clause{}, false
}

// Value returns the scalar value of the first clause with the given key, or ""
func (q *Query) Value(key string) string {
	c, ok := q.Get(key)
	if !ok || c.IsList {
		return ""
	}
	return c.Value
}

// List returns the list value of the first clause with the given key
func (q *Query) List(key string) ([]string, bool) {
	c, ok := q.Get(key)
	if !ok || !c.IsList {
		return nil, false
	}
	return c.List, true
}

// Set replaces the first clause with key, or appends a new one
func (q *Query) Set(key, value string) *Query {
	return q.put(Clause{Key: key, Operator: OpEquals, Value: value})
}

// SetList replaces the first clause with key by a list clause, or appends a new one
func (q *Query) SetList(key string, values []string) *Query {
	return q.put(Clause{Key: key, Operator: OpEquals, List: append([]string{}, values...), IsList: true})
}

func (q *Query) put(clause Clause) *Query {
	for i, c := range q.Clauses {
		if c.Key == clause.Key {
			q.Clauses[i] = clause
			return q
		}
	}
	q.Clauses = append(q.Clauses, clause)
	return q
}

// Filter returns a new query holding the clauses for which keep returns true
func (q *Query) Filter(keep func(Clause) bool) *Query {
	out := &Query{}
	if q == nil {
		return out
	}
	for _, c := range q.Clone().Clauses {
		if keep(c) {
			out.Clauses = append(out.Clauses, c)
		}
	}
	return out
}

// Has reports whether the query holds a clause with the given key
func (q *Query) Has(key string) bool {
	_, ok := q.Get(key)
	return ok
}

// Without returns a new query without any clause keyed by one of keys
func (q *Query) Without(keys ...string) *Query {
	drop := make(map[string]bool, len(keys))
	for _, k := range keys {
		drop[k] = true
	}
	return q.Filter(func(c Clause) bool { return !drop[c.Key] })
}
