// memsetup provisions schema and sample data for a vector-store collection
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nainya/memsetup/internal/admin"
	"github.com/nainya/memsetup/internal/config"
	"github.com/nainya/memsetup/internal/logger"
	"github.com/nainya/memsetup/internal/metrics"
	"github.com/nainya/memsetup/internal/telemetry"
)

// options are the parsed command-line flags
type options struct {
	envFile     string
	logLevel    string
	metricsFile string
	pretty      string

	action     admin.Action
	collection string
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}
	os.Exit(run(opts, os.Stdout))
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("memsetup", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	collections := make(map[admin.Action]*string, len(admin.Actions))
	for _, a := range admin.Actions {
		collections[a] = fs.String(string(a), "", "collection for the "+string(a)+" action")
	}
	fs.StringVar(&opts.envFile, "env-file", ".env", "KEY=VALUE file read before the environment (missing file ignored)")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides MEMSETUP_LOG_LEVEL)")
	fs.StringVar(&opts.pretty, "log-pretty", "", "console log output: true or false (overrides MEMSETUP_LOG_PRETTY)")
	fs.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")

	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: memsetup [flags] [one action]")
		fmt.Fprintln(stderr, "Actions:")
		fmt.Fprint(stderr, admin.Usage)
		fmt.Fprintln(stderr, "With no action, prints the server schema, local schema files and this summary.")
		fmt.Fprintln(stderr, "Flags:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %v\n", fs.Args())
		fs.Usage()
		return opts, fmt.Errorf("unexpected arguments")
	}

	opts.action = admin.ActionInfo
	selected := 0
	for _, a := range admin.Actions {
		if v := *collections[a]; v != "" {
			selected++
			opts.action = a
			opts.collection = v
		}
	}
	if selected > 1 {
		fmt.Fprintln(stderr, "select exactly one action")
		fs.Usage()
		return opts, fmt.Errorf("more than one action")
	}
	return opts, nil
}

func run(opts options, stdout io.Writer) int {
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.pretty != "" {
		cfg.LogPretty = opts.pretty == "true"
	}

	logger.InitGlobalLogger(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	log := logger.GetGlobalLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, "memsetup", telemetry.Options{
		Endpoint:   cfg.OTelEndpoint,
		Enabled:    cfg.OTelEnabled,
		Action:     string(opts.action),
		Collection: opts.collection,
	})
	if err != nil {
		log.Warn().Err(err).Msg("tracing disabled")
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			log.Warn().Err(err).Msg("flush traces")
		}
	}()

	m := metrics.NewMetrics()
	a := admin.New(cfg, log, m)

	// Aborted actions are already logged; the exit status stays 0 either way.
	_ = a.Run(ctx, opts.action, opts.collection, stdout)

	if opts.metricsFile != "" {
		if err := m.WriteTextfile(opts.metricsFile); err != nil {
			log.Error().Err(err).Msg("metrics not written")
		}
	}
	return 0
}
