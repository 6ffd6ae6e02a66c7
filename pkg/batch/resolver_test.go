package batch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pay-theory/ecsbridge/pkg/core"
	"github.com/pay-theory/ecsbridge/pkg/errors"
	"github.com/pay-theory/ecsbridge/pkg/mocks"
	"github.com/pay-theory/ecsbridge/pkg/model"
	"github.com/pay-theory/ecsbridge/pkg/query"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func kind(t *testing.T, structure string) *model.Kind {
	t.Helper()
	k, ok := model.DefaultRegistry().Get(structure)
	require.True(t, ok)
	return k
}

func anyList(values ...string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func clusters(names ...string) map[string]any {
	out := make([]any, len(names))
	for i, n := range names {
		out[i] = map[string]any{"clusterName": n, "clusterArn": "arn:cluster/" + n}
	}
	return map[string]any{"clusters": out, "failures": []any{}}
}

func TestChunk(t *testing.T) {
	ids := make([]string, 250)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%d", i)
	}

	chunks := Chunk(ids, MaxBatchSize)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 100)
	assert.Len(t, chunks[1], 100)
	assert.Len(t, chunks[2], 50)
	assert.Equal(t, "id-200", chunks[2][0])

	assert.Empty(t, Chunk(nil, MaxBatchSize))
	assert.Len(t, Chunk(ids, 500), 3, "size is capped at the describe limit")
	assert.Len(t, Chunk(ids[:10], 3), 4)
}

func TestResolvePagesThroughList(t *testing.T) {
	caller := new(mocks.MockCaller)
	caller.On("Invoke", mock.Anything, "ListClusters", "").
		Return(map[string]any{"clusterArns": anyList("arn:cluster/prod"), "nextToken": "t1"}, nil).Once()
	caller.On("Invoke", mock.Anything, "ListClusters", "nextToken=t1").
		Return(map[string]any{"clusterArns": anyList("arn:cluster/stage")}, nil).Once()
	caller.On("Invoke", mock.Anything, "DescribeClusters", "clusters=[arn:cluster/prod]").
		Return(clusters("prod"), nil).Once()
	caller.On("Invoke", mock.Anything, "DescribeClusters", "clusters=[arn:cluster/stage]").
		Return(clusters("stage"), nil).Once()

	result, err := NewResolver(caller).Resolve(context.Background(), kind(t, model.Clusters), &query.Query{}, Page{})
	require.NoError(t, err)

	require.Len(t, result.Records, 2)
	assert.Equal(t, "prod", result.Records[0]["clusterName"])
	assert.Equal(t, "stage", result.Records[1]["clusterName"])
	assert.Empty(t, result.NextToken)
	caller.AssertExpectations(t)
}

func TestResolveSinglePage(t *testing.T) {
	caller := new(mocks.MockCaller)
	caller.On("Invoke", mock.Anything, "ListClusters", "nextToken=t0&maxResults=1").
		Return(map[string]any{"clusterArns": anyList("arn:cluster/prod"), "nextToken": "t1"}, nil).Once()
	caller.On("Invoke", mock.Anything, "DescribeClusters", "clusters=[arn:cluster/prod]").
		Return(clusters("prod"), nil).Once()

	result, err := NewResolver(caller).Resolve(context.Background(), kind(t, model.Clusters), &query.Query{}, Page{Token: "t0", Size: 1})
	require.NoError(t, err)

	assert.Len(t, result.Records, 1)
	assert.Equal(t, "t1", result.NextToken)
	caller.AssertExpectations(t)
}

func TestResolveScopesTasksToCluster(t *testing.T) {
	caller := new(mocks.MockCaller)
	caller.On("Invoke", mock.Anything, "ListTasks", "cluster=prod&desiredStatus=RUNNING").
		Return(map[string]any{"taskArns": anyList("arn:task/1", "arn:task/2")}, nil).Once()
	caller.On("Invoke", mock.Anything, "DescribeTasks", "tasks=[arn:task/1,arn:task/2]&cluster=prod").
		Return(map[string]any{"tasks": []any{
			map[string]any{"taskArn": "arn:task/1"},
			map[string]any{"taskArn": "arn:task/2"},
		}}, nil).Once()

	q := query.MustParse("cluster=prod&desiredStatus=RUNNING&environment[DB_HOST]=10.0.0.5&instance.privateIpAddress=10.1.1.1")
	result, err := NewResolver(caller).Resolve(context.Background(), kind(t, model.Tasks), q, Page{})
	require.NoError(t, err)

	assert.Len(t, result.Records, 2)
	caller.AssertExpectations(t)
}

func TestResolveExplicitIdentifiersSkipsList(t *testing.T) {
	ids := make([]string, 250)
	for i := range ids {
		ids[i] = fmt.Sprintf("arn:cluster/c%03d", i)
	}

	var (
		mu    sync.Mutex
		sizes []int
	)
	caller := new(mocks.MockCaller)
	caller.On("Invoke", mock.Anything, "DescribeClusters", mock.Anything).
		Run(func(args mock.Arguments) {
			rendered := args.String(2)
			inner := strings.TrimSuffix(strings.TrimPrefix(rendered, "clusters=["), "]")
			mu.Lock()
			sizes = append(sizes, len(strings.Split(inner, ",")))
			mu.Unlock()
		}).
		Return(clusters("x"), nil)

	q := (&query.Query{}).SetList("clusterArns", ids)
	result, err := NewResolver(caller, WithMaxConcurrency(4)).Resolve(context.Background(), kind(t, model.Clusters), q, Page{})
	require.NoError(t, err)

	assert.Len(t, result.Records, 3)
	caller.AssertNumberOfCalls(t, "Invoke", 3)
	caller.AssertNotCalled(t, "Invoke", mock.Anything, "ListClusters", mock.Anything)
	assert.ElementsMatch(t, []int{100, 100, 50}, sizes)
}

func TestResolvePreservesBatchOrder(t *testing.T) {
	caller := new(mocks.MockCaller)
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("c%d", i)
		caller.On("Invoke", mock.Anything, "DescribeClusters", "clusters=["+name+"]").Return(clusters(name), nil).Once()
	}

	r := NewResolver(caller, WithMaxConcurrency(5))
	records, err := r.DescribeAll(context.Background(), kind(t, model.Clusters), nil,
		[][]string{{"c0"}, {"c1"}, {"c2"}, {"c3"}, {"c4"}})
	require.NoError(t, err)

	names := make([]string, len(records))
	for i, rec := range records {
		names[i] = rec["clusterName"].(string)
	}
	assert.Equal(t, []string{"c0", "c1", "c2", "c3", "c4"}, names)
}

func TestResolveTaskDefinitionsPerIdentifier(t *testing.T) {
	caller := new(mocks.MockCaller)
	caller.On("Invoke", mock.Anything, "ListTaskDefinitions", "familyPrefix=web&status=ACTIVE").
		Return(map[string]any{"taskDefinitionArns": anyList("arn:td/web:1", "arn:td/web:2")}, nil).Once()
	for _, arn := range []string{"arn:td/web:1", "arn:td/web:2"} {
		caller.On("Invoke", mock.Anything, "DescribeTaskDefinition", "taskDefinition="+arn).
			Return(map[string]any{"taskDefinition": map[string]any{"taskDefinitionArn": arn}}, nil).Once()
	}

	q := query.MustParse("familyPrefix=web&status=ACTIVE")
	result, err := NewResolver(caller).Resolve(context.Background(), kind(t, model.TaskDefinitions), q, Page{})
	require.NoError(t, err)

	require.Len(t, result.Records, 2)
	assert.Equal(t, core.Record{"taskDefinitionArn": "arn:td/web:2"}, result.Records[1])
	caller.AssertExpectations(t)
}

func TestDescribeRejectsOversizedBatch(t *testing.T) {
	caller := new(mocks.MockCaller)
	ids := make([]string, MaxBatchSize+1)

	_, err := NewResolver(caller).Describe(context.Background(), kind(t, model.Clusters), nil, ids)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	caller.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything, mock.Anything)
}

func TestResolveAbortsOnRemoteError(t *testing.T) {
	caller := new(mocks.MockCaller)
	caller.On("Invoke", mock.Anything, "ListContainerInstances", "cluster=prod").
		Return(map[string]any{"containerInstanceArns": anyList("arn:ci/1")}, nil).Once()
	caller.On("Invoke", mock.Anything, "DescribeContainerInstances", "containerInstances=[arn:ci/1]&cluster=prod").
		Return(nil, errors.Remote("DescribeContainerInstances", &errors.RemoteAPIError{Type: "ClusterNotFoundException"})).Once()

	_, err := NewResolver(caller).Resolve(context.Background(), kind(t, model.ContainerInstances), query.MustParse("cluster=prod"), Page{})
	require.Error(t, err)

	remote, ok := errors.AsRemoteAPIError(err)
	require.True(t, ok)
	assert.Equal(t, "ClusterNotFoundException", remote.Type)

	var be *errors.BridgeError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, model.ContainerInstances, be.Structure)
}

func TestCount(t *testing.T) {
	caller := new(mocks.MockCaller)
	caller.On("Invoke", mock.Anything, "ListTasks", "cluster=prod").
		Return(map[string]any{"taskArns": anyList("a", "b"), "nextToken": "n"}, nil).Once()
	caller.On("Invoke", mock.Anything, "ListTasks", "cluster=prod&nextToken=n").
		Return(map[string]any{"taskArns": anyList("c")}, nil).Once()

	n, err := NewResolver(caller).Count(context.Background(), kind(t, model.Tasks), query.MustParse("cluster=prod"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	caller.AssertExpectations(t)
}

func TestListStalledToken(t *testing.T) {
	caller := new(mocks.MockCaller)
	caller.On("Invoke", mock.Anything, "ListClusters", "").
		Return(map[string]any{"clusterArns": anyList("a"), "nextToken": "same"}, nil).Once()
	caller.On("Invoke", mock.Anything, "ListClusters", "nextToken=same").
		Return(map[string]any{"clusterArns": anyList("b"), "nextToken": "same"}, nil).Once()

	_, _, err := NewResolver(caller).List(context.Background(), kind(t, model.Clusters), nil, Page{})
	require.Error(t, err)
	assert.True(t, errors.IsRemoteAPI(err))
}

func TestStringList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, StringList([]any{"a", nil, "b"}))
	assert.Equal(t, []string{}, StringList(nil))
}
