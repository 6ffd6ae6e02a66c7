// Package instance serves the EC2 backed Instances structure used by the instance join
package instance

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"go.uber.org/zap"

	"github.com/pay-theory/ecsbridge/pkg/batch"
	"github.com/pay-theory/ecsbridge/pkg/core"
	"github.com/pay-theory/ecsbridge/pkg/errors"
	"github.com/pay-theory/ecsbridge/pkg/fields"
	"github.com/pay-theory/ecsbridge/pkg/naming"
	"github.com/pay-theory/ecsbridge/pkg/query"
	"github.com/pay-theory/ecsbridge/pkg/results"
)

// Structure is the structure name served by the searcher
const Structure = fields.InstancesStructure

const (
	instanceIDPrefix = "InstanceId."

	// instanceIDFilter names the DescribeInstances filter matching instance ids. Unlike
	// InstanceIds, unknown ids in a filter are left out of the result instead of failing the call.
	instanceIDFilter = "instance-id"
)

// Searcher answers Instances searches with EC2 DescribeInstances
type Searcher struct {
	client ec2.DescribeInstancesAPIClient
	logger *zap.Logger
}

// Option configures a Searcher
type Option func(*Searcher)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Searcher) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a searcher over client
func New(client ec2.DescribeInstancesAPIClient, opts ...Option) *Searcher {
	s := &Searcher{client: client, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromConfig creates a searcher with an EC2 client built from cfg
func NewFromConfig(cfg aws.Config, opts ...Option) *Searcher {
	return New(ec2.NewFromConfig(cfg), opts...)
}

// Search describes the instances named by InstanceId.N clauses. Other scalar clauses filter
// the described instances client side.
func (s *Searcher) Search(ctx context.Context, req core.Request) (*core.RecordList, error) {
	if req.Structure != Structure {
		return nil, errors.Validation("search", "invalid structure %q", req.Structure)
	}

	q, err := query.Translate(req.Query, req.Parameters)
	if err != nil {
		return nil, err
	}
	ids, rest, err := InstanceIDs(q)
	if err != nil {
		return nil, err
	}

	var records []core.Record
	for _, input := range describeInputs(ids) {
		described, err := s.describe(ctx, input)
		if err != nil {
			return nil, err
		}
		records = append(records, described...)
	}

	s.logger.Debug("described instances",
		zap.Int("requested", len(ids)),
		zap.Int("returned", len(records)),
	)

	records = results.Filter(records, rest, nil)

	fieldNames := req.Fields
	if len(fieldNames) == 0 {
		fieldNames = results.FieldsOf(records)
	}

	order, err := results.ParseOrder(req.Metadata.Order)
	if err != nil {
		return nil, err
	}
	if len(order) == 0 {
		order = results.DefaultOrder(fieldNames)
	}

	out := results.Project(records, fieldNames, nil)
	results.Sort(out, order, nil)

	return &core.RecordList{
		Fields:   fieldNames,
		Records:  out,
		Metadata: core.ListMetadata{Size: len(out), PageSize: req.Metadata.PageSize},
	}, nil
}

// describeInputs matches ids through the instance-id filter, one call per identifier batch.
// No ids describes every instance.
func describeInputs(ids []string) []*ec2.DescribeInstancesInput {
	if len(ids) == 0 {
		return []*ec2.DescribeInstancesInput{{}}
	}

	chunks := batch.Chunk(ids, batch.MaxBatchSize)
	inputs := make([]*ec2.DescribeInstancesInput, len(chunks))
	for i, chunk := range chunks {
		inputs[i] = &ec2.DescribeInstancesInput{
			Filters: []types.Filter{{Name: aws.String(instanceIDFilter), Values: chunk}},
		}
	}
	return inputs
}

func (s *Searcher) describe(ctx context.Context, input *ec2.DescribeInstancesInput) ([]core.Record, error) {
	var records []core.Record
	paginator := ec2.NewDescribeInstancesPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.WithStructure(classify(err), Structure)
		}
		for _, reservation := range page.Reservations {
			for _, inst := range reservation.Instances {
				record, err := ToRecord(inst)
				if err != nil {
					return nil, err
				}
				records = append(records, record)
			}
		}
	}
	return records, nil
}

// InstanceIDs extracts the 1-indexed InstanceId.N clauses of q in index order and returns the
// remaining clauses
func InstanceIDs(q *query.Query) ([]string, *query.Query, error) {
	type indexed struct {
		n  int
		id string
	}

	var found []indexed
	for _, c := range q.Clauses {
		if !strings.HasPrefix(c.Key, instanceIDPrefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(c.Key, instanceIDPrefix))
		if err != nil || n < 1 {
			return nil, nil, errors.Query("search", "invalid instance id parameter %q", c.Key)
		}
		if c.IsList {
			return nil, nil, errors.Query("search", "instance id parameter %q must be a single value", c.Key)
		}
		found = append(found, indexed{n: n, id: c.Value})
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].n < found[j].n })

	ids := make([]string, len(found))
	for i, f := range found {
		ids[i] = f.id
	}
	rest := q.Filter(func(c query.Clause) bool { return !strings.HasPrefix(c.Key, instanceIDPrefix) })
	return ids, rest, nil
}

// ToRecord converts an SDK instance into a record keyed by camelCase attribute names
func ToRecord(inst types.Instance) (core.Record, error) {
	raw, err := json.Marshal(inst)
	if err != nil {
		return nil, errors.Wrap(errors.ErrTransport, "search", "failed to encode instance", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var decoded map[string]any
	if err := dec.Decode(&decoded); err != nil {
		return nil, errors.Wrap(errors.ErrTransport, "search", "failed to decode instance", err)
	}

	return core.Record(camelCase(decoded).(map[string]any)), nil
}

// camelCase renames map keys recursively and drops null members
func camelCase(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if inner == nil {
				continue
			}
			out[naming.DefaultAttrName(k)] = camelCase(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = camelCase(inner)
		}
		return out
	default:
		return val
	}
}

func classify(err error) error {
	var apiErr smithy.APIError
	if !stderrors.As(err, &apiErr) {
		return errors.Wrap(errors.ErrTransport, "DescribeInstances", "request failed", err)
	}

	remote := &errors.RemoteAPIError{Type: apiErr.ErrorCode(), Message: apiErr.ErrorMessage()}
	var respErr *smithyhttp.ResponseError
	if stderrors.As(err, &respErr) {
		remote.StatusCode = respErr.HTTPStatusCode()
	}

	switch apiErr.ErrorCode() {
	case "AuthFailure", "UnauthorizedOperation":
		return errors.Wrap(errors.ErrAuthorization, "DescribeInstances", "not authorized", remote)
	}
	return errors.Remote("DescribeInstances", remote)
}
