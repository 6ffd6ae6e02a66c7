package validation

import (
	"fmt"
	"strings"
	"unicode"
)

// FieldError represents a field or query key validation error
type FieldError struct {
	Type   string
	Field  string
	Detail string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field validation failed [%s]: %q - %s", e.Type, e.Field, e.Detail)
}

// Field validation constants
const (
	MaxFieldNameLength = 1024
	MaxNestedDepth     = 32
	MaxPageSize        = 100 // ECS maxResults ceiling
)

// ValidateFieldName validates a requested field or filter key. Bracket syntax is validated
// separately by the field path parser.
func ValidateFieldName(field string) error {
	if strings.TrimSpace(field) == "" {
		return &FieldError{
			Type:   "InvalidField",
			Field:  field,
			Detail: "field name cannot be empty",
		}
	}

	if len(field) > MaxFieldNameLength {
		return &FieldError{
			Type:   "InvalidField",
			Field:  field,
			Detail: fmt.Sprintf("field name exceeds maximum length of %d characters", MaxFieldNameLength),
		}
	}

	for _, r := range field {
		if unicode.IsControl(r) {
			return &FieldError{
				Type:   "InvalidField",
				Field:  field,
				Detail: "field name contains control characters",
			}
		}
	}

	depth := strings.Count(field, "[") + strings.Count(field, ".")
	if depth > MaxNestedDepth {
		return &FieldError{
			Type:   "InvalidField",
			Field:  field,
			Detail: fmt.Sprintf("nested field depth exceeds maximum of %d", MaxNestedDepth),
		}
	}

	return nil
}

// ValidateFields validates every field in the list and rejects duplicates
func ValidateFields(fields []string) error {
	seen := make(map[string]bool, len(fields))
	for _, field := range fields {
		if err := ValidateFieldName(field); err != nil {
			return err
		}
		if seen[field] {
			return &FieldError{
				Type:   "DuplicateField",
				Field:  field,
				Detail: "field requested more than once",
			}
		}
		seen[field] = true
	}
	return nil
}

// ValidatePageSize validates the pageSize metadata value
func ValidatePageSize(size int) error {
	if size < 0 {
		return &FieldError{
			Type:   "InvalidPageSize",
			Field:  "pageSize",
			Detail: "page size cannot be negative",
		}
	}
	if size > MaxPageSize {
		return &FieldError{
			Type:   "InvalidPageSize",
			Field:  "pageSize",
			Detail: fmt.Sprintf("page size exceeds maximum of %d", MaxPageSize),
		}
	}
	return nil
}
