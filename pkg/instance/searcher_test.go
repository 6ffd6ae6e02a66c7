package instance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pay-theory/ecsbridge/pkg/core"
	bridgeerrors "github.com/pay-theory/ecsbridge/pkg/errors"
	"github.com/pay-theory/ecsbridge/pkg/query"
)

type fakeEC2 struct {
	pages  []*ec2.DescribeInstancesOutput
	err    error
	inputs []*ec2.DescribeInstancesInput
}

func (f *fakeEC2) DescribeInstances(_ context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	page := f.pages[len(f.inputs)-1]
	return page, nil
}

func instance(id, ip string) types.Instance {
	return types.Instance{
		InstanceId:       aws.String(id),
		InstanceType:     types.InstanceTypeT3Micro,
		PrivateIpAddress: aws.String(ip),
		State:            &types.InstanceState{Name: types.InstanceStateNameRunning},
		Tags:             []types.Tag{{Key: aws.String("Name"), Value: aws.String("web-" + id)}},
	}
}

func TestSearch(t *testing.T) {
	client := &fakeEC2{pages: []*ec2.DescribeInstancesOutput{
		{
			Reservations: []types.Reservation{{Instances: []types.Instance{instance("i-b", "10.0.0.2")}}},
			NextToken:    aws.String("page-2"),
		},
		{
			Reservations: []types.Reservation{{Instances: []types.Instance{instance("i-a", "10.0.0.1")}}},
		},
	}}

	list, err := New(client).Search(context.Background(), core.Request{
		Structure: Structure,
		Query:     "InstanceId.2=i-b&InstanceId.1=i-a",
		Fields:    []string{"instanceId", "privateIpAddress", "state[name]"},
	})
	require.NoError(t, err)

	require.Len(t, client.inputs, 2)
	assert.Empty(t, client.inputs[0].InstanceIds)
	assert.Equal(t, []types.Filter{{Name: aws.String("instance-id"), Values: []string{"i-a", "i-b"}}}, client.inputs[0].Filters)
	assert.Equal(t, "page-2", aws.ToString(client.inputs[1].NextToken))

	assert.Equal(t, []string{"instanceId", "privateIpAddress", "state[name]"}, list.Fields)
	assert.Equal(t, 2, list.Metadata.Size)
	assert.Equal(t, []core.Record{
		{"instanceId": "i-a", "privateIpAddress": "10.0.0.1", "state[name]": "running"},
		{"instanceId": "i-b", "privateIpAddress": "10.0.0.2", "state[name]": "running"},
	}, list.Records)
}

func TestSearchClientSideFilter(t *testing.T) {
	client := &fakeEC2{pages: []*ec2.DescribeInstancesOutput{{
		Reservations: []types.Reservation{{Instances: []types.Instance{
			instance("i-a", "10.0.0.1"),
			instance("i-b", "10.0.0.2"),
		}}},
	}}}

	list, err := New(client).Search(context.Background(), core.Request{
		Structure:  Structure,
		Query:      `privateIpAddress=<%= parameter["ip"] %>`,
		Parameters: map[string]string{"ip": "10.0.0.2"},
		Fields:     []string{"instanceId"},
	})
	require.NoError(t, err)
	assert.Nil(t, client.inputs[0].InstanceIds)
	assert.Empty(t, client.inputs[0].Filters)
	assert.Equal(t, []core.Record{{"instanceId": "i-b"}}, list.Records)
}

// inventoryEC2 answers like EC2: unknown InstanceIds fail the call, unknown instance-id filter
// values are left out
type inventoryEC2 struct {
	instances []types.Instance
	inputs    []*ec2.DescribeInstancesInput
}

func (f *inventoryEC2) DescribeInstances(_ context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	f.inputs = append(f.inputs, in)

	known := make(map[string]bool)
	for _, inst := range f.instances {
		known[aws.ToString(inst.InstanceId)] = true
	}
	for _, id := range in.InstanceIds {
		if !known[id] {
			return nil, &smithy.GenericAPIError{Code: "InvalidInstanceID.NotFound", Message: "The instance ID '" + id + "' does not exist"}
		}
	}

	wanted := make(map[string]bool)
	for _, filter := range in.Filters {
		if aws.ToString(filter.Name) == "instance-id" {
			for _, id := range filter.Values {
				wanted[id] = true
			}
		}
	}

	var matched []types.Instance
	for _, inst := range f.instances {
		if len(wanted) == 0 || wanted[aws.ToString(inst.InstanceId)] {
			matched = append(matched, inst)
		}
	}
	return &ec2.DescribeInstancesOutput{Reservations: []types.Reservation{{Instances: matched}}}, nil
}

func TestSearchSkipsUnknownInstances(t *testing.T) {
	client := &inventoryEC2{instances: []types.Instance{
		instance("i-1", "10.0.0.1"),
		instance("i-3", "10.0.0.3"),
	}}

	list, err := New(client).Search(context.Background(), core.Request{
		Structure: Structure,
		Query:     "InstanceId.1=i-1&InstanceId.2=i-gone",
		Fields:    []string{"instanceId", "privateIpAddress"},
	})
	require.NoError(t, err)
	assert.Equal(t, []core.Record{{"instanceId": "i-1", "privateIpAddress": "10.0.0.1"}}, list.Records)
}

func TestSearchBatchesInstanceIDs(t *testing.T) {
	ids := make([]string, 150)
	var clauses []string
	for i := range ids {
		ids[i] = fmt.Sprintf("i-%03d", i)
		clauses = append(clauses, fmt.Sprintf("InstanceId.%d=%s", i+1, ids[i]))
	}
	client := &inventoryEC2{instances: []types.Instance{instance("i-149", "10.0.1.149")}}

	list, err := New(client).Search(context.Background(), core.Request{
		Structure: Structure,
		Query:     strings.Join(clauses, "&"),
		Fields:    []string{"instanceId"},
	})
	require.NoError(t, err)

	require.Len(t, client.inputs, 2)
	assert.Equal(t, ids[:100], client.inputs[0].Filters[0].Values)
	assert.Equal(t, ids[100:], client.inputs[1].Filters[0].Values)
	assert.Equal(t, []core.Record{{"instanceId": "i-149"}}, list.Records)
}

func TestSearchAllFieldsWhenNoneRequested(t *testing.T) {
	client := &fakeEC2{pages: []*ec2.DescribeInstancesOutput{{
		Reservations: []types.Reservation{{Instances: []types.Instance{instance("i-a", "10.0.0.1")}}},
	}}}

	list, err := New(client).Search(context.Background(), core.Request{Structure: Structure, Query: "InstanceId.1=i-a"})
	require.NoError(t, err)
	assert.Contains(t, list.Fields, "instanceId")
	assert.Contains(t, list.Fields, "tags")
	assert.Equal(t, "t3.micro", list.Records[0]["instanceType"])
}

func TestSearchErrors(t *testing.T) {
	t.Run("WrongStructure", func(t *testing.T) {
		_, err := New(&fakeEC2{}).Search(context.Background(), core.Request{Structure: "Tasks"})
		assert.True(t, bridgeerrors.IsValidation(err))
	})

	t.Run("APIError", func(t *testing.T) {
		client := &fakeEC2{err: &smithy.GenericAPIError{Code: "InvalidInstanceID.NotFound", Message: "The instance ID 'i-x' does not exist"}}
		_, err := New(client).Search(context.Background(), core.Request{Structure: Structure, Query: "InstanceId.1=i-x"})

		remote, ok := bridgeerrors.AsRemoteAPIError(err)
		require.True(t, ok)
		assert.Equal(t, "InvalidInstanceID.NotFound", remote.Type)
	})

	t.Run("Unauthorized", func(t *testing.T) {
		client := &fakeEC2{err: &smithy.GenericAPIError{Code: "UnauthorizedOperation"}}
		_, err := New(client).Search(context.Background(), core.Request{Structure: Structure})
		assert.True(t, bridgeerrors.IsAuthorization(err))
	})

	t.Run("Transport", func(t *testing.T) {
		client := &fakeEC2{err: errors.New("dial tcp: timeout")}
		_, err := New(client).Search(context.Background(), core.Request{Structure: Structure})
		assert.True(t, bridgeerrors.IsTransport(err))
	})
}

func TestInstanceIDs(t *testing.T) {
	ids, rest, err := InstanceIDs(query.MustParse("InstanceId.3=c&state=running&InstanceId.1=a&InstanceId.2=b"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.Equal(t, "state=running", rest.String())

	_, _, err = InstanceIDs(query.MustParse("InstanceId.x=a"))
	assert.True(t, bridgeerrors.IsQuery(err))

	_, _, err = InstanceIDs(query.MustParse("InstanceId.0=a"))
	assert.True(t, bridgeerrors.IsQuery(err))
}

func TestToRecord(t *testing.T) {
	record, err := ToRecord(instance("i-a", "10.0.0.1"))
	require.NoError(t, err)

	assert.Equal(t, "i-a", record["instanceId"])
	assert.Equal(t, map[string]any{"name": "running"}, record["state"])
	assert.Equal(t, []any{map[string]any{"key": "Name", "value": "web-i-a"}}, record["tags"])
	assert.NotContains(t, record, "publicIpAddress", "unset members are dropped")
}
