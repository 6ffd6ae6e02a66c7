package query

import "github.com/pay-theory/ecsbridge/pkg/naming"

// RewriteIdentifierShortcut rewrites a single identifier clause (<key>Arn=X, arn=X or Arn=X)
// into the explicit list form <key>Arns=[X] so single-record retrieval and bulk search share
// one code path. The query is modified in place and returned.
func RewriteIdentifierShortcut(q *Query, key string) *Query {
	if q == nil {
		return &Query{}
	}

	single := naming.ArnField(key)
	for i, c := range q.Clauses {
		if c.Key != single && c.Key != "arn" && c.Key != "Arn" {
			continue
		}

		values := c.List
		if !c.IsList {
			values = []string{c.Value}
		}
		q.Clauses[i] = Clause{
			Key:      naming.ArnListField(key),
			Operator: OpEquals,
			List:     append([]string{}, values...),
			IsList:   true,
		}
		break
	}
	return q
}

// ExplicitIdentifiers returns the identifiers of an explicit <key>Arns=[...] clause
func ExplicitIdentifiers(q *Query, key string) ([]string, bool) {
	return q.List(naming.ArnListField(key))
}
