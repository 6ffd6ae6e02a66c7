// Package batch enumerates and describes ECS resources in identifier batches
package batch

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pay-theory/ecsbridge/pkg/core"
	"github.com/pay-theory/ecsbridge/pkg/errors"
	"github.com/pay-theory/ecsbridge/pkg/model"
	"github.com/pay-theory/ecsbridge/pkg/query"
)

// MaxBatchSize is the most identifiers a single Describe call accepts
const MaxBatchSize = 100

const (
	nextTokenParameter  = "nextToken"
	maxResultsParameter = "maxResults"
	clusterParameter    = "cluster"
)

// Caller invokes one remote action
type Caller interface {
	Invoke(ctx context.Context, action string, q *query.Query) (map[string]any, error)
}

// Page selects a window of List results. A zero Size pages through every result.
type Page struct {
	Token string
	Size  int
}

// Result holds the described records of one resolution
type Result struct {
	Records   []core.Record
	NextToken string
}

// Resolver turns a query into List and Describe calls
type Resolver struct {
	caller         Caller
	maxConcurrency int
	logger         *zap.Logger
}

// Option configures a Resolver
type Option func(*Resolver)

// WithMaxConcurrency bounds the number of Describe batches in flight
func WithMaxConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxConcurrency = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver creates a resolver issuing calls through caller
func NewResolver(caller Caller, opts ...Option) *Resolver {
	r := &Resolver{
		caller:         caller,
		maxConcurrency: 1,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Chunk splits ids into consecutive batches of at most size identifiers
func Chunk(ids []string, size int) [][]string {
	if size <= 0 || size > MaxBatchSize {
		size = MaxBatchSize
	}

	total := (len(ids) + size - 1) / size
	chunks := make([][]string, 0, total)
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[i:end])
	}
	return chunks
}

// Resolve returns the described records matching the remote-side clauses of q. An explicit
// identifier list skips the List call entirely.
func (r *Resolver) Resolve(ctx context.Context, kind *model.Kind, q *query.Query, page Page) (*Result, error) {
	var (
		batches [][]string
		next    string
	)

	if ids, ok := q.List(kind.ExplicitListField()); ok {
		batches = Chunk(ids, MaxBatchSize)
	} else {
		var err error
		batches, next, err = r.List(ctx, kind, q, page)
		if err != nil {
			return nil, err
		}
	}

	records, err := r.DescribeAll(ctx, kind, q, batches)
	if err != nil {
		return nil, err
	}
	return &Result{Records: records, NextToken: next}, nil
}

// Count sums the identifiers of every List page. No Describe calls are made.
func (r *Resolver) Count(ctx context.Context, kind *model.Kind, q *query.Query) (int, error) {
	batches, _, err := r.List(ctx, kind, q, Page{})
	if err != nil {
		return 0, err
	}

	total := 0
	for _, b := range batches {
		total += len(b)
	}
	return total, nil
}

// ListQuery returns the clauses of q understood by the kind's List action
func ListQuery(kind *model.Kind, q *query.Query) *query.Query {
	return q.Filter(func(c query.Clause) bool {
		return !c.IsList && kind.IsListParameter(c.Key)
	})
}

// List enumerates identifiers page by page, one batch per page. With a page size only the
// first page is read and its continuation token is returned.
func (r *Resolver) List(ctx context.Context, kind *model.Kind, q *query.Query, page Page) ([][]string, string, error) {
	base := ListQuery(kind, q)
	token := page.Token

	var batches [][]string
	for {
		call := base.Clone()
		if token != "" {
			call.Set(nextTokenParameter, token)
		}
		if page.Size > 0 {
			call.Set(maxResultsParameter, strconv.Itoa(page.Size))
		}

		resp, err := r.caller.Invoke(ctx, kind.ListAction(), call)
		if err != nil {
			return nil, "", errors.WithStructure(err, kind.Structure)
		}

		ids := StringList(resp[kind.ListResultField()])
		batches = append(batches, Chunk(ids, MaxBatchSize)...)

		next := stringValue(resp[nextTokenParameter])
		r.logger.Debug("listed identifiers",
			zap.String("structure", kind.Structure),
			zap.Int("count", len(ids)),
			zap.Bool("more", next != ""),
		)

		if next == "" || page.Size > 0 {
			return batches, next, nil
		}
		if next == token {
			return nil, "", errors.New(errors.ErrRemoteAPI, kind.ListAction(), "continuation token did not advance")
		}
		token = next
	}
}

// DescribeAll describes every batch on a bounded pool and returns the records in batch order.
// The first failure cancels the outstanding batches.
func (r *Resolver) DescribeAll(ctx context.Context, kind *model.Kind, q *query.Query, batches [][]string) ([]core.Record, error) {
	if len(batches) == 0 {
		return []core.Record{}, nil
	}

	results := make([][]core.Record, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxConcurrency)

	for i, ids := range batches {
		i, ids := i, ids
		g.Go(func() error {
			records, err := r.Describe(gctx, kind, q, ids)
			if err != nil {
				return err
			}
			results[i] = records
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, errors.WithStructure(err, kind.Structure)
	}

	var records []core.Record
	for _, batch := range results {
		records = append(records, batch...)
	}
	if records == nil {
		records = []core.Record{}
	}
	return records, nil
}

// Describe describes one batch of identifiers
func (r *Resolver) Describe(ctx context.Context, kind *model.Kind, q *query.Query, ids []string) ([]core.Record, error) {
	if len(ids) > MaxBatchSize {
		return nil, errors.Validation(kind.DescribeAction(), "batch of %d identifiers exceeds the limit of %d", len(ids), MaxBatchSize)
	}
	if kind.DescribePerIdentifier {
		return r.describeEach(ctx, kind, ids)
	}

	call := (&query.Query{}).SetList(kind.DescribeParameter(), ids)
	if kind.ClusterScoped {
		if cluster := q.Value(clusterParameter); cluster != "" {
			call.Set(clusterParameter, cluster)
		}
	}

	resp, err := r.caller.Invoke(ctx, kind.DescribeAction(), call)
	if err != nil {
		return nil, err
	}
	r.logFailures(kind, resp)

	raw, _ := resp[kind.DescribeResultField()].([]any)
	records := make([]core.Record, 0, len(raw))
	for _, item := range raw {
		if obj, ok := item.(map[string]any); ok {
			records = append(records, core.Record(obj))
		}
	}
	return records, nil
}

func (r *Resolver) describeEach(ctx context.Context, kind *model.Kind, ids []string) ([]core.Record, error) {
	records := make([]core.Record, 0, len(ids))
	for _, id := range ids {
		call := (&query.Query{}).Set(kind.DescribeParameter(), id)
		resp, err := r.caller.Invoke(ctx, kind.DescribeAction(), call)
		if err != nil {
			return nil, err
		}
		if obj, ok := resp[kind.DescribeResultField()].(map[string]any); ok {
			records = append(records, core.Record(obj))
		}
	}
	return records, nil
}

func (r *Resolver) logFailures(kind *model.Kind, resp map[string]any) {
	failures, _ := resp["failures"].([]any)
	for _, f := range failures {
		obj, _ := f.(map[string]any)
		r.logger.Warn("describe reported a failure",
			zap.String("structure", kind.Structure),
			zap.String("arn", stringValue(obj["arn"])),
			zap.String("reason", stringValue(obj["reason"])),
		)
	}
}

// StringList converts a decoded JSON array into strings, skipping nulls
func StringList(v any) []string {
	raw, _ := v.([]any)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if item != nil {
			out = append(out, stringValue(item))
		}
	}
	return out
}

func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}
