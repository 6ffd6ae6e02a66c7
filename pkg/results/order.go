package results

import (
	"regexp"
	"sort"
	"strings"

	"github.com/pay-theory/ecsbridge/pkg/core"
	"github.com/pay-theory/ecsbridge/pkg/errors"
	"github.com/pay-theory/ecsbridge/pkg/fields"
)

// SortKey is one field of an ordering
type SortKey struct {
	Field      string
	Descending bool
}

var orderFieldPattern = regexp.MustCompile(`^<%=\s*field\["(.*)"\]\s*%>$`)

// ParseOrder parses an order specification. Items are separated by commas and take the form
// field[:ASC|:DESC] where field is either a plain name or <%=field["name"]%>.
func ParseOrder(order string) ([]SortKey, error) {
	if strings.TrimSpace(order) == "" {
		return nil, nil
	}

	var keys []SortKey
	for _, item := range strings.Split(order, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		field, direction := item, "ASC"
		if i := strings.LastIndex(item, ":"); i >= 0 && !strings.HasSuffix(item, "%>") {
			field, direction = strings.TrimSpace(item[:i]), strings.TrimSpace(item[i+1:])
		}
		if m := orderFieldPattern.FindStringSubmatch(field); m != nil {
			field = m[1]
		}
		if field == "" {
			return nil, errors.Query("order", "order item %q has no field", item)
		}

		switch strings.ToUpper(direction) {
		case "ASC":
			keys = append(keys, SortKey{Field: field})
		case "DESC":
			keys = append(keys, SortKey{Field: field, Descending: true})
		default:
			return nil, errors.Query("order", "invalid sort direction %q for field %q", direction, field)
		}
	}
	return keys, nil
}

// DefaultOrder sorts ascending by every field, left to right
func DefaultOrder(fieldNames []string) []SortKey {
	keys := make([]SortKey, len(fieldNames))
	for i, f := range fieldNames {
		keys[i] = SortKey{Field: f}
	}
	return keys
}

// Sort orders records in place by keys. The sort is stable.
func Sort(records []core.Record, keys []SortKey, aliases *fields.AliasRegistry) {
	if len(keys) == 0 || len(records) < 2 {
		return
	}

	sort.SliceStable(records, func(i, j int) bool {
		for _, key := range keys {
			a, _ := Lookup(records[i], key.Field, aliases)
			b, _ := Lookup(records[j], key.Field, aliases)
			result := CompareValues(a, b)
			if result == 0 {
				continue
			}
			if key.Descending {
				return result > 0
			}
			return result < 0
		}
		return false
	})
}
