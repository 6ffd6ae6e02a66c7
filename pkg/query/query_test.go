package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pay-theory/ecsbridge/pkg/errors"
)

func TestParse(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		q, err := Parse("   ")
		require.NoError(t, err)
		assert.Equal(t, 0, q.Len())
		assert.Equal(t, "", q.String())
	})

	t.Run("ScalarsAndLists", func(t *testing.T) {
		q, err := Parse("cluster=prod & desiredStatus=RUNNING&taskArns=[arn:a, arn:b]")
		require.NoError(t, err)
		require.Equal(t, 3, q.Len())

		assert.Equal(t, Clause{Key: "cluster", Operator: OpEquals, Value: "prod"}, q.Clauses[0])
		assert.Equal(t, "RUNNING", q.Value("desiredStatus"))

		list, ok := q.List("taskArns")
		require.True(t, ok)
		assert.Equal(t, []string{"arn:a", "arn:b"}, list)

		assert.Equal(t, "cluster=prod&desiredStatus=RUNNING&taskArns=[arn:a,arn:b]", q.String())
	})

	t.Run("ValueKeepsEqualsSigns", func(t *testing.T) {
		q, err := Parse("startedBy=ecs-svc/a=b")
		require.NoError(t, err)
		assert.Equal(t, "ecs-svc/a=b", q.Value("startedBy"))
	})

	t.Run("NestedAndComplexKeysAreVerbatim", func(t *testing.T) {
		q, err := Parse("environment[DB_HOST]=10.0.0.5&instance.privateIpAddress=10.1.1.1")
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.5", q.Value("environment[DB_HOST]"))
		assert.Equal(t, "10.1.1.1", q.Value("instance.privateIpAddress"))
	})

	t.Run("EmptyList", func(t *testing.T) {
		q, err := Parse("clusterArns=[]")
		require.NoError(t, err)
		list, ok := q.List("clusterArns")
		require.True(t, ok)
		assert.Empty(t, list)
	})

	t.Run("Errors", func(t *testing.T) {
		bad := []string{
			"cluster",
			"cluster=prod&",
			"=prod",
			"taskArns=[a,b",
			"a=1&&b=2",
		}
		for _, expr := range bad {
			t.Run(expr, func(t *testing.T) {
				_, err := Parse(expr)
				require.Error(t, err)
				assert.True(t, errors.IsQuery(err))
			})
		}
	})
}

func TestSubstitute(t *testing.T) {
	out, err := Substitute(`cluster=<%= parameter["Cluster"] %>&desiredStatus=<%=parameter["Status"]%>`, map[string]string{
		"Cluster": "prod",
		"Status":  "STOPPED",
	})
	require.NoError(t, err)
	assert.Equal(t, "cluster=prod&desiredStatus=STOPPED", out)

	_, err = Substitute(`cluster=<%= parameter["Missing"] %>`, nil)
	require.Error(t, err)
	assert.True(t, errors.IsQuery(err))
	assert.Contains(t, err.Error(), "Missing")
}

func TestTranslate(t *testing.T) {
	q, err := Translate(`clusterArn=<%= parameter["Arn"] %>`, map[string]string{"Arn": "arn:aws:ecs:us-east-1:1:cluster/prod"})
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:ecs:us-east-1:1:cluster/prod", q.Value("clusterArn"))
}

func TestQueryMutation(t *testing.T) {
	q := MustParse("cluster=prod")

	q.Set("maxResults", "10").Set("cluster", "stage")
	assert.Equal(t, "cluster=stage&maxResults=10", q.String())

	q.SetList("tasks", []string{"a", "b"})
	assert.Equal(t, "cluster=stage&maxResults=10&tasks=[a,b]", q.String())

	clone := q.Clone()
	clone.Clauses[2].List[0] = "changed"
	assert.Equal(t, "a", q.Clauses[2].List[0], "clone must not share list storage")

	onlyCluster := q.Filter(func(c Clause) bool { return c.Key == "cluster" })
	assert.Equal(t, "cluster=stage", onlyCluster.String())
	assert.Equal(t, 3, q.Len())

	assert.True(t, q.Has("maxResults"))
	assert.Equal(t, "cluster=stage", q.Without("maxResults", "tasks").String())
	assert.True(t, q.Has("tasks"), "Without must not modify the receiver")
}

func TestNilQueryAccessors(t *testing.T) {
	var q *Query
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, "", q.String())
	_, ok := q.Get("cluster")
	assert.False(t, ok)
	assert.Equal(t, 0, q.Clone().Len())
}

func TestRewriteIdentifierShortcut(t *testing.T) {
	tests := map[string]struct {
		key      string
		input    string
		expected string
	}{
		"KeyedArn":        {"cluster", "clusterArn=arn:aws:ecs:us-east-1:1:cluster/prod", "clusterArns=[arn:aws:ecs:us-east-1:1:cluster/prod]"},
		"BareArn":         {"task", "cluster=prod&arn=arn:task/1", "cluster=prod&taskArns=[arn:task/1]"},
		"CapitalArn":      {"containerInstance", "Arn=arn:ci/1&cluster=prod", "containerInstanceArns=[arn:ci/1]&cluster=prod"},
		"ListValue":       {"task", "taskArn=[a,b]", "taskArns=[a,b]"},
		"OtherKindArn":    {"task", "taskDefinitionArn=arn:td/1", "taskDefinitionArn=arn:td/1"},
		"NoIdentifier":    {"cluster", "status=ACTIVE", "status=ACTIVE"},
		"AlreadyExplicit": {"cluster", "clusterArns=[a]", "clusterArns=[a]"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			q := RewriteIdentifierShortcut(MustParse(tt.input), tt.key)
			assert.Equal(t, tt.expected, q.String())
		})
	}
}

func TestExplicitIdentifiers(t *testing.T) {
	ids, ok := ExplicitIdentifiers(MustParse("cluster=prod&taskArns=[a,b,c]"), "task")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	_, ok = ExplicitIdentifiers(MustParse("taskArn=a"), "task")
	assert.False(t, ok)
}
