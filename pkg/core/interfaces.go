// Package core defines the core interfaces and types for ecsbridge
package core

import (
	"context"
	"sort"
)

// Bridge represents the inbound surface of a structure-oriented bridge
type Bridge interface {
	// Count returns the number of records matching the request
	Count(ctx context.Context, req Request) (int, error)

	// Retrieve returns the single record matching the request, or nil when nothing matched
	Retrieve(ctx context.Context, req Request) (Record, error)

	// Search returns every record matching the request
	Search(ctx context.Context, req Request) (*RecordList, error)
}

// Searcher is the part of a bridge used for secondary (join) lookups
type Searcher interface {
	Search(ctx context.Context, req Request) (*RecordList, error)
}

// SearcherFunc adapts a function to the Searcher interface
type SearcherFunc func(ctx context.Context, req Request) (*RecordList, error)

// Search calls f(ctx, req)
func (f SearcherFunc) Search(ctx context.Context, req Request) (*RecordList, error) {
	return f(ctx, req)
}

// Request is a structure query as submitted by the host
type Request struct {
	Structure  string            `json:"structure"`
	Query      string            `json:"query,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
	Fields     []string          `json:"fields,omitempty"`
	Metadata   RequestMetadata   `json:"metadata,omitempty"`
}

// RequestMetadata carries paging and ordering hints
type RequestMetadata struct {
	// PageSize limits the search to the first remote page of this size. Zero means unlimited.
	PageSize int `json:"pageSize,omitempty"`

	// PageToken resumes a previous search from an opaque continuation token
	PageToken string `json:"pageToken,omitempty"`

	// Order is a comma separated list of field:ASC|DESC pairs
	Order string `json:"order,omitempty"`
}

// Record maps field names to values. Values are scalars, nested maps or lists.
type Record map[string]any

// Value returns the value stored under field, or nil
func (r Record) Value(field string) any {
	if r == nil {
		return nil
	}
	return r[field]
}

// Keys returns the record's field names in sorted order
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RecordList is the result of a search
type RecordList struct {
	Fields   []string     `json:"fields"`
	Records  []Record     `json:"records"`
	Metadata ListMetadata `json:"metadata"`
}

// ListMetadata describes a search response
type ListMetadata struct {
	Size          int    `json:"size"`
	PageSize      int    `json:"pageSize"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}
