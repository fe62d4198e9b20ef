// Package admin wires the store client to the provisioning, loading and purge actions
package admin

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nainya/memsetup/internal/config"
	"github.com/nainya/memsetup/internal/logger"
	"github.com/nainya/memsetup/internal/metrics"
	"github.com/nainya/memsetup/internal/purge"
	"github.com/nainya/memsetup/internal/samples"
	"github.com/nainya/memsetup/internal/schema"
	"github.com/nainya/memsetup/internal/store"
	"github.com/nainya/memsetup/internal/telemetry"
)

// Action names one operator command
type Action string

const (
	ActionInfo        Action = "info"
	ActionAddClass    Action = "add-class"
	ActionAddSample   Action = "add-sample"
	ActionClearSample Action = "clear-sample"
	ActionClearAll    Action = "clear-all"
)

// Actions lists the commands that take a collection, in usage order
var Actions = []Action{ActionAddClass, ActionAddSample, ActionClearSample, ActionClearAll}

// Usage is the command summary shown by Describe and -h
const Usage = `  -add-class <Collection>      Add schema from JSON (e.g. Memory_v1)
  -add-sample <Collection>     Add sample data from <Collection>_samples.yaml
  -clear-sample <Collection>   Delete objects tagged as sample
  -clear-all <Collection>      Delete all objects in collection
`

// Admin runs actions against one store
type Admin struct {
	client      *store.Client
	provisioner *schema.Provisioner
	loader      *samples.Loader
	purger      *purge.Purger

	schemaDir string
	log       *logger.Logger
	metrics   *metrics.Metrics
}

// New builds every component from cfg
func New(cfg config.Config, log *logger.Logger, m *metrics.Metrics) *Admin {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.NewMetrics()
	}

	client := store.NewClient(cfg.BaseURL(),
		store.WithTimeout(cfg.HTTPTimeout),
		store.WithLogger(log.StoreLogger("http")),
		store.WithMetrics(m),
	)

	return &Admin{
		client:      client,
		provisioner: schema.NewProvisioner(client, cfg.SchemaDir, log.ComponentLogger("schema")),
		loader:      samples.NewLoader(client, cfg.SchemaDir, cfg.SampleTag, log.ComponentLogger("samples"), m),
		purger: purge.NewPurger(client, purge.Config{
			SampleTag: cfg.SampleTag,
			BatchSize: cfg.QueryLimit,
			MaxRounds: cfg.MaxRounds,
		}, log.ComponentLogger("purge"), m),
		schemaDir: cfg.SchemaDir,
		log:       log,
		metrics:   m,
	}
}

// Run executes one action. Failures of single records are logged by the
// components; the returned error only reports an aborted action, and it has
// already been logged.
func (a *Admin) Run(ctx context.Context, action Action, collection string, out io.Writer) error {
	if action == ActionInfo {
		return a.Describe(ctx, out)
	}

	ctx, span := telemetry.Tracer().Start(ctx, "memsetup."+string(action),
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	start := time.Now()
	a.log.LogActionStart(string(action), collection)

	err := a.dispatch(ctx, action, collection)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	a.log.LogActionDone(string(action), collection, time.Since(start), err)
	return err
}

func (a *Admin) dispatch(ctx context.Context, action Action, collection string) error {
	switch action {
	case ActionAddClass:
		_, err := a.provisioner.EnsureSchema(ctx, collection)
		return err
	case ActionAddSample:
		_, err := a.loader.Load(ctx, collection)
		return err
	case ActionClearSample:
		_, err := a.purger.ClearTagged(ctx, collection)
		return err
	case ActionClearAll:
		_, err := a.purger.ClearAll(ctx, collection)
		return err
	default:
		return fmt.Errorf("unknown action %q", action)
	}
}

// Describe prints the server's classes, the local schema files and the
// command summary. It never changes anything.
func (a *Admin) Describe(ctx context.Context, out io.Writer) error {
	fmt.Fprintf(out, "Schema found on server %s:\n", a.client.BaseURL())
	classes, err := a.client.ListClasses(ctx)
	if err != nil {
		fmt.Fprintf(out, "  Error fetching schema: %v\n", err)
	}
	for _, c := range classes {
		fmt.Fprintf(out, "  - %s\n", c)
	}

	fmt.Fprintf(out, "Schema files found in %s:\n", a.schemaDir)
	files, err := schema.ListFiles(a.schemaDir)
	if err != nil {
		fmt.Fprintf(out, "  Error listing schema files: %v\n", err)
	}
	for _, f := range files {
		fmt.Fprintf(out, "  - %s\n", f)
	}

	fmt.Fprintln(out, "Commands:")
	fmt.Fprint(out, Usage)
	return nil
}
