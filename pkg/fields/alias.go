package fields

import (
	"regexp"
	"sync"
)

// Alias rewrites a requested field name to its true underlying path
type Alias struct {
	// Pattern must match the whole field name
	Pattern *regexp.Regexp
	// Template is expanded with the pattern's submatches ($1, ${name})
	Template string
}

// AliasRegistry holds field aliases, applied in registration order. The first matching alias wins.
type AliasRegistry struct {
	mu      sync.RWMutex
	aliases []Alias
}

// NewAliasRegistry creates an empty alias registry
func NewAliasRegistry() *AliasRegistry {
	return &AliasRegistry{}
}

// DefaultAliases returns the ECS alias table: task environment variables are addressed as
// environment[NAME] but live under overrides.containerOverrides.environment.
func DefaultAliases() *AliasRegistry {
	r := NewAliasRegistry()
	r.MustRegister(`^environment(\[.*\])$`, `overrides[containerOverrides][environment]$1`)
	return r
}

// Register compiles pattern and adds an alias
func (r *AliasRegistry) Register(pattern, template string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases = append(r.aliases, Alias{Pattern: re, Template: template})
	return nil
}

// MustRegister is like Register but panics on an invalid pattern
func (r *AliasRegistry) MustRegister(pattern, template string) {
	if err := r.Register(pattern, template); err != nil {
		panic(err)
	}
}

// Resolve returns the underlying path of field, or field itself when no alias applies
func (r *AliasRegistry) Resolve(field string) string {
	if r == nil {
		return field
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, alias := range r.aliases {
		match := alias.Pattern.FindStringSubmatchIndex(field)
		if match == nil || match[0] != 0 || match[1] != len(field) {
			continue
		}
		return string(alias.Pattern.ExpandString(nil, alias.Template, field, match))
	}
	return field
}

// ResolveAll resolves every field, preserving order
func (r *AliasRegistry) ResolveAll(fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = r.Resolve(f)
	}
	return out
}
