package fields

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pay-theory/ecsbridge/pkg/errors"
	"github.com/pay-theory/ecsbridge/pkg/naming"
)

// InstancesStructure is the structure served by the EC2 instance bridge
const InstancesStructure = "Instances"

// SplitJoin splits a complex field into its join key and foreign sub-field. Only a '.' that
// appears before the first '[' separates them: instance.privateIpAddress -> (instance,
// privateIpAddress), environment[a.b] is not a complex field.
func SplitJoin(field string) (key, subfield string, ok bool) {
	head := field
	if i := strings.Index(field, "["); i >= 0 {
		head = field[:i]
	}
	dot := strings.Index(head, ".")
	if dot <= 0 || dot == len(field)-1 {
		return "", "", false
	}
	return field[:dot], field[dot+1:], true
}

// IsComplex reports whether field addresses a value on another structure
func IsComplex(field string) bool {
	_, _, ok := SplitJoin(field)
	return ok
}

// JoinSpec describes how to resolve the fields of one join key
type JoinSpec struct {
	// Key is the field prefix, e.g. instance
	Key string
	// SourceField holds the foreign identifier on the records being augmented
	SourceField string
	// ForeignField holds the identifier on the foreign records
	ForeignField string
	// Structure is the foreign structure searched for the foreign records
	Structure string
	// BuildQuery renders the secondary search query for the given identifiers
	BuildQuery func(ids []string, cluster string) string
}

// JoinRegistry maps join keys to their resolution strategy
type JoinRegistry struct {
	mu    sync.RWMutex
	specs map[string]JoinSpec
}

// NewJoinRegistry creates an empty join registry
func NewJoinRegistry() *JoinRegistry {
	return &JoinRegistry{specs: make(map[string]JoinSpec)}
}

// DefaultJoins returns the registry holding the instance join: ECS container instances
// reference EC2 instances through ec2InstanceId.
func DefaultJoins() *JoinRegistry {
	r := NewJoinRegistry()
	r.Register(JoinSpec{
		Key:          "instance",
		SourceField:  "ec2InstanceId",
		ForeignField: "instanceId",
		Structure:    InstancesStructure,
		BuildQuery:   InstanceQuery,
	})
	return r
}

// Register adds or replaces a join spec
func (r *JoinRegistry) Register(spec JoinSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[spec.Key] = spec
}

// Resolve returns the spec for key. Keys that are not registered resolve to a structure
// relation when <Key>s is a known structure (cluster -> Clusters through clusterArn).
func (r *JoinRegistry) Resolve(key string, isStructure func(string) bool) (JoinSpec, error) {
	r.mu.RLock()
	spec, ok := r.specs[key]
	r.mu.RUnlock()
	if ok {
		return spec, nil
	}

	structure := naming.StructureName(key)
	if isStructure != nil && isStructure(structure) {
		return StructureJoin(key, structure), nil
	}

	return JoinSpec{}, errors.Validation("join", "unsupported complex field prefix %q", key)
}

// StructureJoin builds the spec joining on <key>Arn against another ECS structure
func StructureJoin(key, structure string) JoinSpec {
	arnField := naming.ArnField(key)
	return JoinSpec{
		Key:          key,
		SourceField:  arnField,
		ForeignField: arnField,
		Structure:    structure,
		BuildQuery: func(ids []string, cluster string) string {
			q := naming.ArnListField(key) + "=[" + strings.Join(ids, ",") + "]"
			if cluster != "" {
				q += "&cluster=" + cluster
			}
			return q
		},
	}
}

// InstanceQuery renders the 1-indexed InstanceId.N parameters expected by the instance bridge
func InstanceQuery(ids []string, _ string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("InstanceId.%d=%s", i+1, id)
	}
	return strings.Join(parts, "&")
}

// Group collects the sub-fields requested for every join key, in first-seen order
type Group struct {
	Keys      []string
	Subfields map[string][]string
}

// GroupComplexFields groups the complex fields among the given names by join key.
// Duplicate sub-fields are collapsed.
func GroupComplexFields(names ...[]string) *Group {
	g := &Group{Subfields: make(map[string][]string)}
	seen := make(map[string]bool)
	for _, list := range names {
		for _, name := range list {
			key, sub, ok := SplitJoin(name)
			if !ok || seen[name] {
				continue
			}
			seen[name] = true
			if _, exists := g.Subfields[key]; !exists {
				g.Keys = append(g.Keys, key)
			}
			g.Subfields[key] = append(g.Subfields[key], sub)
		}
	}
	return g
}

// Empty reports whether no complex fields were found
func (g *Group) Empty() bool {
	return g == nil || len(g.Keys) == 0
}
