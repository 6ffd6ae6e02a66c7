// Package model provides the registry of structures (entity kinds) the bridge can query
package model

import (
	"sort"
	"sync"

	"github.com/pay-theory/ecsbridge/pkg/naming"
)

// Structure names of the supported entity kinds
const (
	Clusters           = "Clusters"
	ContainerInstances = "ContainerInstances"
	Tasks              = "Tasks"
	TaskDefinitions    = "TaskDefinitions"
)

// Kind holds the remote naming metadata of one entity kind
type Kind struct {
	// Structure is the public structure name, e.g. ContainerInstances
	Structure string

	// Key is the record key identifier, e.g. containerInstance
	Key string

	// ListParameters are the request members the List action understands. Clauses on any other
	// key are evaluated client side only.
	ListParameters []string

	// ClusterScoped kinds carry the query's cluster clause onto every Describe call
	ClusterScoped bool

	// DescribePerIdentifier kinds are described one identifier at a time with the singular
	// Describe action because their List and Describe actions are not symmetric
	DescribePerIdentifier bool
}

// ListAction returns the List action name, e.g. ListTasks
func (k *Kind) ListAction() string {
	return "List" + k.Structure
}

// DescribeAction returns the Describe action name. Per-identifier kinds use the singular form.
func (k *Kind) DescribeAction() string {
	if k.DescribePerIdentifier {
		return "Describe" + k.Structure[:len(k.Structure)-1]
	}
	return "Describe" + k.Structure
}

// ListResultField is the List response member holding identifiers, e.g. taskArns
func (k *Kind) ListResultField() string {
	return naming.ArnListField(k.Key)
}

// DescribeParameter is the Describe request member holding identifiers: tasks, or
// taskDefinition for per-identifier kinds
func (k *Kind) DescribeParameter() string {
	if k.DescribePerIdentifier {
		return k.Key
	}
	return k.Key + "s"
}

// DescribeResultField is the Describe response member holding the described objects
func (k *Kind) DescribeResultField() string {
	return k.DescribeParameter()
}

// IdentifierField is the record field holding the kind's own identifier, e.g. taskArn
func (k *Kind) IdentifierField() string {
	return naming.ArnField(k.Key)
}

// ExplicitListField is the query key naming an explicit identifier list, e.g. taskArns
func (k *Kind) ExplicitListField() string {
	return naming.ArnListField(k.Key)
}

// IsListParameter reports whether key is sent to the List action
func (k *Kind) IsListParameter(key string) bool {
	for _, p := range k.ListParameters {
		if p == key {
			return true
		}
	}
	return false
}

// Registry manages the structures a bridge accepts
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]*Kind
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]*Kind)}
}

// DefaultRegistry returns a registry holding the four ECS structures
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, k := range defaultKinds() {
		r.Register(k)
	}
	return r
}

// Register adds or replaces a kind. The key identifier is derived from the structure when empty.
func (r *Registry) Register(kind *Kind) {
	if kind.Key == "" {
		kind.Key = naming.KeyIdentifier(kind.Structure)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[kind.Structure] = kind
}

// Get retrieves a kind by structure name. Names are case-sensitive.
func (r *Registry) Get(structure string) (*Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kind, ok := r.kinds[structure]
	return kind, ok
}

// Structures returns the registered structure names in sorted order
func (r *Registry) Structures() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func defaultKinds() []*Kind {
	return []*Kind{
		{
			Structure: Clusters,
		},
		{
			Structure:      ContainerInstances,
			ListParameters: []string{"cluster", "filter", "status"},
			ClusterScoped:  true,
		},
		{
			Structure: Tasks,
			ListParameters: []string{
				"cluster", "containerInstance", "family", "startedBy",
				"serviceName", "desiredStatus", "launchType",
			},
			ClusterScoped: true,
		},
		{
			Structure:             TaskDefinitions,
			ListParameters:        []string{"familyPrefix", "status", "sort"},
			DescribePerIdentifier: true,
		},
	}
}
