package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hurou927/tsdb-report/internal/catalog"
	"github.com/hurou927/tsdb-report/internal/config"
	"github.com/hurou927/tsdb-report/internal/db"
	"github.com/hurou927/tsdb-report/internal/graph"
	"github.com/hurou927/tsdb-report/internal/report"
)

var (
	cfgPath string
	verbose bool
	cfg     *config.Config
	logger  *slog.Logger
	runID   string
)

var rootCmd = &cobra.Command{
	Use:   "tsdb-report",
	Short: "Document a TimescaleDB database and its continuous aggregate chains",
	Long: `tsdb-report connects to a PostgreSQL database running TimescaleDB, reads the
catalog and produces a schema and health report. Continuous aggregates built on
other aggregates are resolved into hierarchical chains per base table.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath, cmd.Flags())
		if err != nil {
			return err
		}
		if verbose {
			cfg.Log.Level = "debug"
		}
		runID = uuid.NewString()
		logger, err = newLogger(cfg.Log)
		if err != nil {
			return err
		}
		logger = logger.With("run_id", runID)
		return nil
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&cfgPath, "config", "", "path to YAML config file (default ./"+config.DefaultConfigFile+" if present)")
	f.StringP("host", "H", "", "database host")
	f.IntP("port", "p", 0, "database port")
	f.StringP("user", "U", "", "database user")
	f.StringP("dbname", "d", "", "database name")
	f.StringP("password", "P", "", "database password")
	f.String("sslmode", "", "SSL mode (disable, require, verify-full, ...)")
	f.StringSlice("schema", nil, "schemas to document (repeatable)")
	f.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	f.String("log-level", "", "log level: debug, info, warn or error")
	f.String("log-format", "", "log format: text or json")
	f.String("matcher", "", "definition matcher: substring or identifier")
	f.String("dependency-source", "", "chained dependencies from: definition or catalog")
	f.Int("max-chain-depth", 0, "maximum levels of indirect aggregates")
	f.Int("concurrency", 0, "catalog queries run in parallel")
	f.Duration("query-timeout", 0, "timeout of a single catalog query")
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger != nil {
			logger.Error("command failed", "error", err)
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		stop()
		os.Exit(1)
	}
}

// newLogger builds the process logger. Logs go to stderr so report output on
// stdout stays clean.
func newLogger(c config.Log) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(c.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "", "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (supported: text, json)", c.Format)
	}
}

// analysisOptions maps the configuration onto chain analysis options.
func analysisOptions() (graph.Options, error) {
	m, err := graph.MatcherByName(cfg.Analysis.Matcher)
	if err != nil {
		return graph.Options{}, err
	}
	return graph.Options{
		Matcher:       m,
		MaxChainDepth: cfg.Analysis.MaxChainDepth,
		UseReferences: cfg.Analysis.DependencySource == "catalog",
		SkipGraph:     !cfg.Analysis.UseGraph,
		Logger:        logger,
	}, nil
}

// openCollector connects to the database and returns a catalog collector.
// The returned func releases the connections.
func openCollector(ctx context.Context) (*catalog.Collector, func(), error) {
	pool, err := db.NewPool(ctx, &cfg.Connection)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	sqlDB := db.OpenDB(pool)
	closeFn := func() {
		sqlDB.Close()
		pool.Close()
	}
	collector := catalog.NewCollector(sqlDB, catalog.Options{
		Schemas:        cfg.Schemas,
		Concurrency:    cfg.Collect.Concurrency,
		QueryTimeout:   cfg.Collect.QueryTimeout,
		SlowQueryLimit: cfg.Collect.SlowQueryLimit,
		ViewReferences: cfg.Analysis.DependencySource == "catalog",
	}, logger)
	return collector, closeFn, nil
}

func reportMeta() report.Meta {
	return report.Meta{
		Database:    cfg.Connection.Database,
		Host:        cfg.Connection.Host,
		Port:        cfg.Connection.Port,
		GeneratedAt: time.Now(),
		RunID:       runID,
	}
}
