package ecsbridge

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pay-theory/ecsbridge/pkg/core"
	"github.com/pay-theory/ecsbridge/pkg/errors"
	"github.com/pay-theory/ecsbridge/pkg/fields"
	"github.com/pay-theory/ecsbridge/pkg/query"
	"github.com/pay-theory/ecsbridge/pkg/results"
)

const clusterParameter = "cluster"

// resolveJoins writes every complex field of group onto records. Each join key costs exactly one
// secondary search. Identifiers missing from the secondary result resolve to nil.
func (a *Adapter) resolveJoins(ctx context.Context, q *query.Query, records []core.Record, group *fields.Group, logger *zap.Logger) error {
	specs := make([]fields.JoinSpec, len(group.Keys))
	for i, key := range group.Keys {
		spec, err := a.joins.Resolve(key, a.isStructure)
		if err != nil {
			return err
		}
		specs[i] = spec
	}

	cluster := q.Value(clusterParameter)
	indexes := make([]map[string]core.Record, len(specs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.maxConcurrency)
	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			index, err := a.lookup(gctx, spec, group.Subfields[spec.Key], foreignIDs(records, spec.SourceField), cluster, logger)
			if err != nil {
				return err
			}
			indexes[i] = index
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, spec := range specs {
		for _, record := range records {
			var foreign core.Record
			if id := results.Stringify(record[spec.SourceField]); id != "" {
				foreign = indexes[i][id]
			}
			for _, sub := range group.Subfields[spec.Key] {
				record[spec.Key+"."+sub] = foreign.Value(sub)
			}
		}
	}
	return nil
}

// lookup runs the secondary search of one join key and indexes the result by foreign identifier
func (a *Adapter) lookup(ctx context.Context, spec fields.JoinSpec, subfields, ids []string, cluster string, logger *zap.Logger) (map[string]core.Record, error) {
	index := make(map[string]core.Record)
	if len(ids) == 0 {
		return index, nil
	}

	searcher, err := a.searcherFor(spec.Structure)
	if err != nil {
		return nil, err
	}

	req := core.Request{
		Structure: spec.Structure,
		Query:     spec.BuildQuery(ids, cluster),
		Fields:    joinFields(subfields, spec.ForeignField),
	}
	logger.Debug("resolving complex fields",
		zap.String("join", spec.Key),
		zap.String("foreign_structure", spec.Structure),
		zap.Int("identifiers", len(ids)),
	)

	list, err := searcher.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	for _, record := range list.Records {
		if id := results.Stringify(record[spec.ForeignField]); id != "" {
			index[id] = record
		}
	}

	if missing := len(ids) - len(index); missing > 0 {
		logger.Debug("join targets missing", zap.String("join", spec.Key), zap.Int("missing", missing))
	}
	return index, nil
}

func (a *Adapter) searcherFor(structure string) (core.Searcher, error) {
	if structure == fields.InstancesStructure {
		if a.instances == nil {
			return nil, errors.Validation("join", "no searcher configured for structure %q", structure)
		}
		return a.instances, nil
	}
	if !a.isStructure(structure) {
		return nil, errors.Validation("join", "invalid structure %q", structure)
	}
	return a, nil
}

func (a *Adapter) isStructure(structure string) bool {
	_, ok := a.registry.Get(structure)
	return ok
}

// foreignIDs returns the distinct non-empty values of field in encounter order
func foreignIDs(records []core.Record, field string) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, record := range records {
		id := results.Stringify(record[field])
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// joinFields returns subfields plus the foreign identifier field, without duplicates
func joinFields(subfields []string, foreignField string) []string {
	out := make([]string, 0, len(subfields)+1)
	seen := make(map[string]bool, len(subfields)+1)
	for _, f := range append(append([]string{}, subfields...), foreignField) {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}
