// Package mocks provides mock implementations of the ecsbridge collaborator interfaces.
//
// # Basic Usage
//
// MockCaller stands in for the ECS gateway. Expectations are keyed on the action name and the
// rendered query string, which keeps them readable:
//
//	func TestClusterSearch(t *testing.T) {
//	    caller := new(mocks.MockCaller)
//
//	    caller.On("Invoke", mock.Anything, "ListClusters", "").
//	        Return(map[string]any{"clusterArns": []any{"arn:a"}}, nil)
//	    caller.On("Invoke", mock.Anything, "DescribeClusters", "clusters=[arn:a]").
//	        Return(map[string]any{"clusters": []any{map[string]any{"clusterName": "prod"}}}, nil)
//
//	    resolver := batch.NewResolver(caller)
//	    ...
//	    caller.AssertExpectations(t)
//	}
//
// # Join Lookups
//
// MockSearcher replaces the secondary searcher used for the instance join:
//
//	instances := new(mocks.MockSearcher)
//	instances.On("Search", mock.Anything, mock.MatchedBy(func(req core.Request) bool {
//	    return req.Structure == "Instances"
//	})).Return(&core.RecordList{...}, nil)
//
// # Tips
//
// 1. Use mock.Anything for the context argument
// 2. Use mock.MatchedBy for custom argument matching
// 3. Always assert expectations were met with AssertExpectations
package mocks

// Helper type aliases for convenience
type (
	// Caller is an alias for MockCaller to allow shorter declarations
	Caller = MockCaller

	// Searcher is an alias for MockSearcher to allow shorter declarations
	Searcher = MockSearcher
)
