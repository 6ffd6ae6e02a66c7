// Package fields resolves bracketed field paths, field aliases and complex (joined) fields
package fields

import (
	"fmt"
	"strings"

	"github.com/pay-theory/ecsbridge/pkg/errors"
)

// Path is a parsed field path of the form base[sub1][sub2]...
type Path struct {
	Base      string
	Subfields []string
}

// IsNested reports whether field uses the bracketed sub-field syntax
func IsNested(field string) bool {
	return strings.Contains(field, "[")
}

// ParsePath parses a field path. Fields without brackets parse to a Path with no subfields.
func ParsePath(field string) (Path, error) {
	open := strings.Index(field, "[")
	if open < 0 {
		if strings.Contains(field, "]") {
			return Path{}, malformed(field, "unexpected ']'")
		}
		return Path{Base: field}, nil
	}

	p := Path{Base: field[:open]}
	if p.Base == "" {
		return Path{}, malformed(field, "missing base field before '['")
	}

	rest := field[open:]
	for rest != "" {
		if rest[0] != '[' {
			return Path{}, malformed(field, fmt.Sprintf("unexpected %q after ']'", rest))
		}
		end := strings.Index(rest, "]")
		if end < 0 {
			return Path{}, malformed(field, "missing closing ']'")
		}
		sub := rest[1:end]
		if sub == "" {
			return Path{}, malformed(field, "empty sub-field '[]'")
		}
		if strings.Contains(sub, "[") {
			return Path{}, malformed(field, "nested '[' inside sub-field")
		}
		p.Subfields = append(p.Subfields, sub)
		rest = rest[end+1:]
	}

	return p, nil
}

func malformed(field, detail string) error {
	return errors.Validation("field", "malformed field path %q: %s", field, detail)
}

// String renders the path back into its bracketed form
func (p Path) String() string {
	var b strings.Builder
	b.WriteString(p.Base)
	for _, sub := range p.Subfields {
		b.WriteString("[")
		b.WriteString(sub)
		b.WriteString("]")
	}
	return b.String()
}

// Values walks the path over record and returns every surviving value in encounter order.
// Nil values are discarded.
func (p Path) Values(record map[string]any) []any {
	values := []any{record[p.Base]}
	for _, sub := range p.Subfields {
		values = SubfieldValues(sub, values)
	}
	return compact(values)
}

// Extract walks the path over record and collapses the result: no values yields nil, one value
// yields that value, more than one yields a list in encounter order.
func (p Path) Extract(record map[string]any) any {
	if len(p.Subfields) == 0 {
		return record[p.Base]
	}
	return Collapse(p.Values(record))
}

// Extract parses field and extracts it from record
func Extract(record map[string]any, field string) (any, error) {
	p, err := ParsePath(field)
	if err != nil {
		return nil, err
	}
	return p.Extract(record), nil
}

// SubfieldValues projects subfield out of each value:
//   - maps yield their subfield entry;
//   - lists of name/value objects yield the value of every element whose name equals subfield;
//   - lists of other objects are projected element by element;
//   - scalars yield nothing.
func SubfieldValues(subfield string, values []any) []any {
	var out []any
	for _, value := range values {
		switch v := value.(type) {
		case map[string]any:
			out = append(out, v[subfield])
		case []any:
			var objects []any
			for _, elem := range v {
				obj, ok := elem.(map[string]any)
				if !ok {
					continue
				}
				if isNameValue(obj) {
					if fmt.Sprint(obj["name"]) == subfield {
						out = append(out, obj["value"])
					}
					continue
				}
				objects = append(objects, obj)
			}
			if len(objects) > 0 {
				out = append(out, SubfieldValues(subfield, objects)...)
			}
		}
	}
	return out
}

func isNameValue(obj map[string]any) bool {
	_, hasName := obj["name"]
	_, hasValue := obj["value"]
	return hasName && hasValue
}

// Collapse reduces extracted values: empty -> nil, one -> scalar, many -> list
func Collapse(values []any) any {
	values = compact(values)
	switch len(values) {
	case 0:
		return nil
	case 1:
		return values[0]
	default:
		return values
	}
}

func compact(values []any) []any {
	out := values[:0:0]
	for _, v := range values {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}
