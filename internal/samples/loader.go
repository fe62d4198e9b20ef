// ABOUTME: Two-phase sample loader: insert every memory, then link relations
// ABOUTME: Links resolve through the name->id map built during the same run

package samples

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/tidwall/sjson"

	"github.com/nainya/memsetup/internal/collection"
	"github.com/nainya/memsetup/internal/logger"
	"github.com/nainya/memsetup/internal/metrics"
)

// RelatedProperty is the reference property linked memories are written to
const RelatedProperty = "relatedMemories"

// Store is the subset of the store client the loader needs
type Store interface {
	CreateObject(ctx context.Context, class string, properties map[string]any) (string, error)
	GetObject(ctx context.Context, id string) ([]byte, error)
	ReplaceObject(ctx context.Context, id string, object []byte) error
}

// Report summarizes one Load run
type Report struct {
	Collection string
	IDs        map[string]string // memory name -> assigned id

	Inserted     int
	InsertFailed int

	Linked         int // relation entries written
	LinkFailed     int // relation entries whose GET or PUT failed
	SkippedSources int // relation entries whose source never got an id
	DroppedLinks   int // individual targets that did not resolve
}

// Loader inserts sample memories and wires their cross-references
type Loader struct {
	store   Store
	dir     string
	tag     string
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewLoader creates a loader reading definitions from dir and marking
// every inserted record with tag
func NewLoader(store Store, dir, tag string, log *logger.Logger, m *metrics.Metrics) *Loader {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.NewMetrics()
	}
	return &Loader{store: store, dir: dir, tag: tag, log: log, metrics: m}
}

// Load reads the sample definition for the collection named by arg and runs
// both phases. Per-record and per-relation failures are logged and counted
// in the report; only a missing or invalid definition returns an error.
// Nothing is rolled back.
func (l *Loader) Load(ctx context.Context, arg string) (*Report, error) {
	name, err := collection.Normalize(arg)
	if err != nil {
		return nil, err
	}

	path, err := FindFile(l.dir, name)
	if err != nil {
		return nil, err
	}
	def, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	l.log.Info().Str("file", path).Int("memories", len(def.Memories)).Int("relations", len(def.Relations)).
		Msg("loaded sample definition")

	return l.Apply(ctx, name, def)
}

// Apply runs the insert phase and then the link phase for def
func (l *Loader) Apply(ctx context.Context, name string, def *Definition) (*Report, error) {
	report := &Report{Collection: name, IDs: make(map[string]string, len(def.Memories))}

	if err := l.insertAll(ctx, name, def.Memories, report); err != nil {
		return report, err
	}
	if err := l.linkAll(ctx, name, def.Relations, report); err != nil {
		return report, err
	}

	l.log.Info().
		Int("inserted", report.Inserted).
		Int("insert_failed", report.InsertFailed).
		Int("linked", report.Linked).
		Int("link_failed", report.LinkFailed).
		Int("skipped_sources", report.SkippedSources).
		Int("dropped_links", report.DroppedLinks).
		Msg("sample load finished")
	return report, nil
}

func (l *Loader) insertAll(ctx context.Context, name string, memories []Memory, report *Report) error {
	for _, mem := range memories {
		if err := ctx.Err(); err != nil {
			return err
		}

		id, err := l.store.CreateObject(ctx, name, l.properties(mem))
		if err != nil {
			report.InsertFailed++
			l.metrics.RecordFailure("add-sample")
			l.log.Error().Err(err).Str("name", mem.Name).Msg("failed to insert memory")
			continue
		}

		report.IDs[mem.Name] = id
		report.Inserted++
		l.metrics.RecordsInsertedTotal.Inc()
		l.log.Info().Str("name", mem.Name).Str("id", id).Msg("inserted memory")
	}
	return nil
}

// properties returns the stored property set: every field but the metadata
// keys, with tags forced to contain the sample marker.
func (l *Loader) properties(mem Memory) map[string]any {
	props := maps.Clone(mem.Properties)
	if props == nil {
		props = make(map[string]any, 1)
	}
	props[KeyTags] = MergeTags(mem.Tags, l.tag)
	return props
}

// MergeTags returns the sorted, de-duplicated union of tags and marker
func MergeTags(tags []string, marker string) []string {
	out := append(slices.Clone(tags), marker)
	slices.Sort(out)
	return slices.Compact(out)
}

func (l *Loader) linkAll(ctx context.Context, name string, relations []Relation, report *Report) error {
	for _, rel := range relations {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(rel.Targets) == 0 {
			continue
		}

		id, ok := report.IDs[rel.Source]
		if !ok {
			report.SkippedSources++
			l.log.Warn().Str("source", rel.Source).Msg("skipping relations, source was not inserted")
			continue
		}

		if err := l.link(ctx, name, id, rel, report); err != nil {
			report.LinkFailed++
			l.metrics.RecordFailure("add-sample")
			l.log.Error().Err(err).Str("source", rel.Source).Msg("failed to update relations")
			continue
		}
		report.Linked++
		l.log.Info().Str("source", rel.Source).Msg("updated relations")
	}
	return nil
}

func (l *Loader) link(ctx context.Context, name, id string, rel Relation, report *Report) error {
	// The store replaces the whole object on PUT, so start from its current state.
	object, err := l.store.GetObject(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch object: %w", err)
	}

	links := make([]collection.Link, 0, len(rel.Targets))
	for _, target := range rel.Targets {
		targetID, ok := report.IDs[target]
		if !ok {
			report.DroppedLinks++
			l.metrics.LinksDroppedTotal.Inc()
			l.log.Debug().Str("source", rel.Source).Str("target", target).Msg("dropping unresolved target")
			continue
		}
		links = append(links, collection.NewLink(name, targetID))
	}

	updated, err := sjson.SetBytes(object, "properties."+RelatedProperty, links)
	if err != nil {
		return fmt.Errorf("set %s: %w", RelatedProperty, err)
	}
	if err := l.store.ReplaceObject(ctx, id, updated); err != nil {
		return fmt.Errorf("replace object: %w", err)
	}
	l.metrics.LinksWrittenTotal.Add(float64(len(links)))
	return nil
}
