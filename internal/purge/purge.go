// ABOUTME: Record purgers: sample-tagged records only, or a whole collection
// ABOUTME: Query ids in batches, delete each, repeat until the query comes back empty

package purge

import (
	"context"
	"fmt"

	"github.com/nainya/memsetup/internal/collection"
	"github.com/nainya/memsetup/internal/logger"
	"github.com/nainya/memsetup/internal/metrics"
	"github.com/nainya/memsetup/internal/store"
)

// TagsProperty holds the sample marker on sample records
const TagsProperty = "tags"

// Store is the subset of the store client the purger needs
type Store interface {
	QueryIDs(ctx context.Context, collection string, where *store.Where, limit int) ([]string, error)
	DeleteObject(ctx context.Context, id string) error
}

// Config bounds each purge
type Config struct {
	SampleTag string
	BatchSize int // ids per query
	MaxRounds int // query/delete rounds before giving up
}

// Result summarizes one purge
type Result struct {
	Collection string
	Matched    int
	Deleted    int
	Failed     int // distinct records whose delete failed
	Rounds     int
	Exhausted  bool // the last query returned no ids
}

// Purger deletes records from a collection
type Purger struct {
	store   Store
	cfg     Config
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewPurger creates a purger
func NewPurger(s Store, cfg Config, log *logger.Logger, m *metrics.Metrics) *Purger {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 100
	}
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.NewMetrics()
	}
	return &Purger{store: s, cfg: cfg, log: log, metrics: m}
}

// ClearTagged deletes only records whose tags contain the sample marker
func (p *Purger) ClearTagged(ctx context.Context, arg string) (*Result, error) {
	return p.clear(ctx, "clear-sample", arg, store.ContainsAny(TagsProperty, p.cfg.SampleTag))
}

// ClearAll deletes every record in the collection
func (p *Purger) ClearAll(ctx context.Context, arg string) (*Result, error) {
	return p.clear(ctx, "clear-all", arg, nil)
}

// clear runs query/delete rounds until a query returns nothing. It also stops
// when a round deletes nothing (only ids that already failed came back) or
// after MaxRounds. A failed query aborts without deleting anything further.
func (p *Purger) clear(ctx context.Context, action, arg string, where *store.Where) (*Result, error) {
	name, err := collection.Normalize(arg)
	if err != nil {
		return nil, err
	}
	res := &Result{Collection: name}
	failed := make(map[string]bool)

	for res.Rounds < p.cfg.MaxRounds {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		ids, err := p.store.QueryIDs(ctx, name, where, p.cfg.BatchSize)
		if err != nil {
			p.metrics.RecordFailure(action)
			return res, fmt.Errorf("query ids in %q: %w", name, err)
		}
		res.Rounds++

		if len(ids) == 0 {
			res.Exhausted = true
			break
		}
		res.Matched += len(ids)
		p.log.Info().Int("count", len(ids)).Int("round", res.Rounds).Msg("deleting records")

		deleted := p.deleteAll(ctx, action, ids, failed, res)
		if deleted == 0 {
			p.log.Warn().Int("round", res.Rounds).Msg("no record could be deleted, stopping")
			break
		}
	}

	switch {
	case res.Matched == 0:
		p.log.Info().Msg("no matching records, nothing to delete")
	case !res.Exhausted:
		p.log.Warn().Int("deleted", res.Deleted).Int("failed", res.Failed).Msg("records may remain, run again")
	default:
		p.log.Info().Int("deleted", res.Deleted).Int("failed", res.Failed).Msg("purge finished")
	}
	return res, nil
}

// deleteAll deletes ids once each per run; ids in failed were already tried
// in an earlier round and are skipped.
func (p *Purger) deleteAll(ctx context.Context, action string, ids []string, failed map[string]bool, res *Result) int {
	deleted := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return deleted
		}
		if failed[id] {
			continue
		}
		if err := p.store.DeleteObject(ctx, id); err != nil {
			failed[id] = true
			res.Failed++
			p.metrics.RecordFailure(action)
			p.log.Error().Err(err).Str("id", id).Msg("failed to delete record")
			continue
		}
		deleted++
		res.Deleted++
		p.metrics.RecordsDeletedTotal.Inc()
		p.log.Debug().Str("id", id).Msg("deleted record")
	}
	return deleted
}
