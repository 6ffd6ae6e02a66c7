// Package ecsbridge answers structure-oriented queries (Clusters, ContainerInstances, Tasks,
// TaskDefinitions) against the Amazon ECS JSON API
package ecsbridge

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pay-theory/ecsbridge/pkg/batch"
	"github.com/pay-theory/ecsbridge/pkg/core"
	"github.com/pay-theory/ecsbridge/pkg/errors"
	"github.com/pay-theory/ecsbridge/pkg/fields"
	"github.com/pay-theory/ecsbridge/pkg/gateway"
	"github.com/pay-theory/ecsbridge/pkg/instance"
	"github.com/pay-theory/ecsbridge/pkg/model"
	"github.com/pay-theory/ecsbridge/pkg/query"
	"github.com/pay-theory/ecsbridge/pkg/results"
	"github.com/pay-theory/ecsbridge/pkg/session"
	"github.com/pay-theory/ecsbridge/pkg/validation"
)

const (
	// Name identifies the bridge to its host
	Name = "Amazon ECS Bridge"

	// Version is the bridge version
	Version = "1.2.0"
)

// Adapter implements core.Bridge over ECS
type Adapter struct {
	caller         batch.Caller
	resolver       *batch.Resolver
	registry       *model.Registry
	aliases        *fields.AliasRegistry
	joins          *fields.JoinRegistry
	instances      core.Searcher
	maxConcurrency int
	logger         *zap.Logger
}

var _ core.Bridge = (*Adapter)(nil)

// Option configures an Adapter
type Option func(*Adapter)

// WithInstanceSearcher sets the searcher answering the Instances structure of the instance join
func WithInstanceSearcher(s core.Searcher) Option {
	return func(a *Adapter) {
		a.instances = s
	}
}

// WithCaller replaces the ECS gateway. No AWS session is created when a caller is supplied.
func WithCaller(c batch.Caller) Option {
	return func(a *Adapter) {
		a.caller = c
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMaxConcurrency bounds the Describe batches and join lookups in flight
func WithMaxConcurrency(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.maxConcurrency = n
		}
	}
}

// WithAliases replaces the field alias registry
func WithAliases(aliases *fields.AliasRegistry) Option {
	return func(a *Adapter) {
		if aliases != nil {
			a.aliases = aliases
		}
	}
}

// WithJoins replaces the join registry
func WithJoins(joins *fields.JoinRegistry) Option {
	return func(a *Adapter) {
		if joins != nil {
			a.joins = joins
		}
	}
}

// WithRegistry replaces the structure registry
func WithRegistry(registry *model.Registry) Option {
	return func(a *Adapter) {
		if registry != nil {
			a.registry = registry
		}
	}
}

// New creates an adapter. Unless WithCaller is given, cfg is resolved into an AWS session that
// signs ECS requests and backs the default EC2 instance searcher.
func New(ctx context.Context, cfg *session.Config, opts ...Option) (*Adapter, error) {
	a := &Adapter{
		registry: model.DefaultRegistry(),
		aliases:  fields.DefaultAliases(),
		joins:    fields.DefaultJoins(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.caller == nil {
		sess, err := session.NewSession(ctx, cfg)
		if err != nil {
			return nil, err
		}

		a.caller = gateway.New(sess.Region(), sess.Credentials(),
			gateway.WithEndpoint(sess.Config().Endpoint),
			gateway.WithHTTPClient(sess.HTTPClient()),
			gateway.WithLogger(a.logger),
			gateway.WithMaxResponseBytes(sess.Config().MaxResponseBytes),
		)
		if a.instances == nil {
			a.instances = instance.NewFromConfig(sess.AWSConfig(), instance.WithLogger(a.logger))
		}
		if a.maxConcurrency == 0 {
			a.maxConcurrency = sess.Config().MaxConcurrency
		}
	}

	if a.maxConcurrency <= 0 {
		a.maxConcurrency = session.DefaultMaxConcurrency
	}
	a.resolver = batch.NewResolver(a.caller,
		batch.WithMaxConcurrency(a.maxConcurrency),
		batch.WithLogger(a.logger),
	)
	return a, nil
}

// Count returns the number of records matching the request. Queries evaluated entirely by
// the List action are counted without describing any record.
func (a *Adapter) Count(ctx context.Context, req core.Request) (int, error) {
	kind, q, logger, err := a.prepare("count", req)
	if err != nil {
		return 0, err
	}

	_, explicit := q.List(kind.ExplicitListField())
	if !explicit && clientQuery(kind, q).Len() == 0 {
		n, err := a.resolver.Count(ctx, kind, q)
		if err != nil {
			return 0, err
		}
		logger.Debug("counted records", zap.Int("count", n))
		return n, nil
	}

	full := req
	full.Metadata = core.RequestMetadata{}
	list, err := a.search(ctx, kind, q, full, logger)
	if err != nil {
		return 0, err
	}
	return list.Metadata.Size, nil
}

// Retrieve returns the single record matching the request, or nil when nothing matched.
// A single identifier (<key>Arn=, arn= or Arn=) is described directly without a List call.
func (a *Adapter) Retrieve(ctx context.Context, req core.Request) (core.Record, error) {
	kind, q, logger, err := a.prepare("retrieve", req)
	if err != nil {
		return nil, err
	}
	query.RewriteIdentifierShortcut(q, kind.Key)

	list, err := a.search(ctx, kind, q, req, logger)
	if err != nil {
		return nil, err
	}

	switch len(list.Records) {
	case 0:
		return nil, nil
	case 1:
		return list.Records[0], nil
	default:
		return nil, &errors.BridgeError{
			Op:        "retrieve",
			Structure: kind.Structure,
			Kind:      errors.ErrAmbiguousResult,
			Message:   "multiple results matched the query",
		}
	}
}

// Search returns every record matching the request
func (a *Adapter) Search(ctx context.Context, req core.Request) (*core.RecordList, error) {
	kind, q, logger, err := a.prepare("search", req)
	if err != nil {
		return nil, err
	}
	return a.search(ctx, kind, q, req, logger)
}

// prepare validates req and translates its query
func (a *Adapter) prepare(op string, req core.Request) (*model.Kind, *query.Query, *zap.Logger, error) {
	kind, ok := a.registry.Get(req.Structure)
	if !ok {
		return nil, nil, nil, errors.Validation(op, "invalid structure %q", req.Structure)
	}

	if err := validation.ValidatePageSize(req.Metadata.PageSize); err != nil {
		return nil, nil, nil, errors.WithStructure(errors.Wrap(errors.ErrValidation, op, "invalid request metadata", err), kind.Structure)
	}
	if err := validation.ValidateFields(req.Fields); err != nil {
		return nil, nil, nil, errors.WithStructure(errors.Wrap(errors.ErrValidation, op, "invalid field list", err), kind.Structure)
	}
	if err := a.validatePaths(req.Fields); err != nil {
		return nil, nil, nil, errors.WithStructure(err, kind.Structure)
	}

	q, err := query.Translate(req.Query, req.Parameters)
	if err != nil {
		return nil, nil, nil, errors.WithStructure(err, kind.Structure)
	}
	if err := a.validatePaths(clauseKeys(clientQuery(kind, q))); err != nil {
		return nil, nil, nil, errors.WithStructure(err, kind.Structure)
	}

	logger := a.logger.With(
		zap.String("search_id", uuid.NewString()),
		zap.String("operation", op),
		zap.String("structure", kind.Structure),
	)
	logger.Debug("translated query", zap.String("query", q.String()), zap.Strings("fields", req.Fields))
	return kind, q, logger, nil
}

func (a *Adapter) search(ctx context.Context, kind *model.Kind, q *query.Query, req core.Request, logger *zap.Logger) (*core.RecordList, error) {
	order, err := results.ParseOrder(req.Metadata.Order)
	if err != nil {
		return nil, errors.WithStructure(err, kind.Structure)
	}
	if err := a.validatePaths(sortFields(order)); err != nil {
		return nil, errors.WithStructure(err, kind.Structure)
	}

	resolved, err := a.resolver.Resolve(ctx, kind, q, batch.Page{
		Token: req.Metadata.PageToken,
		Size:  req.Metadata.PageSize,
	})
	if err != nil {
		return nil, err
	}
	records := resolved.Records

	client := clientQuery(kind, q)
	group := fields.GroupComplexFields(req.Fields, clauseKeys(client), sortFields(order))
	if !group.Empty() {
		if err := a.resolveJoins(ctx, q, records, group, logger); err != nil {
			return nil, errors.WithStructure(err, kind.Structure)
		}
	}

	records = results.Filter(records, client, a.aliases)

	fieldNames := req.Fields
	if len(fieldNames) == 0 {
		fieldNames = results.FieldsOf(records)
	}
	if len(order) == 0 {
		order = results.DefaultOrder(fieldNames)
	}
	results.Sort(records, order, a.aliases)

	out := results.Project(records, fieldNames, a.aliases)
	logger.Debug("search complete", zap.Int("size", len(out)), zap.Bool("more", resolved.NextToken != ""))

	return &core.RecordList{
		Fields:  fieldNames,
		Records: out,
		Metadata: core.ListMetadata{
			Size:          len(out),
			PageSize:      req.Metadata.PageSize,
			NextPageToken: resolved.NextToken,
		},
	}, nil
}

// validatePaths rejects malformed bracket paths among names. Complex fields are checked when
// their join is resolved.
func (a *Adapter) validatePaths(names []string) error {
	for _, name := range names {
		if fields.IsComplex(name) {
			continue
		}
		if _, err := fields.ParsePath(a.aliases.Resolve(name)); err != nil {
			return err
		}
	}
	return nil
}

// clientQuery returns the scalar clauses the List action does not understand. Clauses on List
// parameters are not re-applied client side because ECS already filtered on them.
func clientQuery(kind *model.Kind, q *query.Query) *query.Query {
	return q.Filter(func(c query.Clause) bool {
		return !c.IsList && !kind.IsListParameter(c.Key)
	})
}

func clauseKeys(q *query.Query) []string {
	keys := make([]string, q.Len())
	for i, c := range q.Clauses {
		keys[i] = c.Key
	}
	return keys
}

func sortFields(keys []results.SortKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.Field
	}
	return out
}
