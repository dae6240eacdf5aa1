package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const (
	// DefaultConfigFile is read from the working directory when no --config is given.
	DefaultConfigFile = "tsdb-report.yaml"
	// EnvPrefix selects environment overrides; "__" separates nested keys,
	// e.g. TSDB_REPORT_CONNECTION__HOST.
	EnvPrefix = "TSDB_REPORT_"
	// DefaultOutput is the report file written when none is configured.
	DefaultOutput = "timescaledb_schema.md"
)

// Config represents the top-level configuration.
type Config struct {
	Connection Connection `koanf:"connection"`
	Schemas    []string   `koanf:"schemas"`
	Output     string     `koanf:"output"`
	Format     string     `koanf:"format"`
	LabelsFile string     `koanf:"labels_file"`
	Analysis   Analysis   `koanf:"analysis"`
	Collect    Collect    `koanf:"collect"`
	Log        Log        `koanf:"log"`
}

// Connection holds database connection parameters.
type Connection struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	SSLMode  string `koanf:"sslmode"`
}

// Analysis tunes continuous-aggregate chain resolution.
type Analysis struct {
	// Matcher is "substring" or "identifier".
	Matcher string `koanf:"matcher"`
	// DependencySource is "definition" (scan view text) or "catalog" (pg_depend).
	DependencySource string `koanf:"dependency_source"`
	MaxChainDepth    int    `koanf:"max_chain_depth"`
	UseGraph         bool   `koanf:"use_graph"`
}

// Collect tunes catalog collection.
type Collect struct {
	Concurrency    int           `koanf:"concurrency"`
	QueryTimeout   time.Duration `koanf:"query_timeout"`
	SlowQueryLimit int           `koanf:"slow_query_limit"`
}

// Log configures the process logger.
type Log struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// DSN builds a PostgreSQL connection string.
func (c *Connection) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		quoteDSN(c.Host), c.Port, quoteDSN(c.Database), quoteDSN(c.User), quoteDSN(c.Password), quoteDSN(c.SSLMode),
	)
}

// quoteDSN quotes a keyword/value connection string value when needed.
func quoteDSN(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func defaults() map[string]any {
	return map[string]any{
		"schemas":                    []string{"public"},
		"output":                     DefaultOutput,
		"format":                     "markdown",
		"analysis.matcher":           "substring",
		"analysis.dependency_source": "definition",
		"analysis.max_chain_depth":   4,
		"analysis.use_graph":         true,
		"collect.concurrency":        4,
		"collect.query_timeout":      "30s",
		"collect.slow_query_limit":   10,
		"log.level":                  "info",
		"log.format":                 "text",
	}
}

// flagKeys maps CLI flag names onto config keys.
var flagKeys = map[string]string{
	"host":              "connection.host",
	"port":              "connection.port",
	"dbname":            "connection.database",
	"user":              "connection.user",
	"password":          "connection.password",
	"sslmode":           "connection.sslmode",
	"schema":            "schemas",
	"output":            "output",
	"labels":            "labels_file",
	"matcher":           "analysis.matcher",
	"dependency-source": "analysis.dependency_source",
	"max-chain-depth":   "analysis.max_chain_depth",
	"concurrency":       "collect.concurrency",
	"query-timeout":     "collect.query_timeout",
	"log-level":         "log.level",
	"log-format":        "log.format",
}

// Load builds the configuration. Precedence (highest to lowest): explicitly
// set flags, TSDB_REPORT_ environment variables, the config file, defaults.
// Connection fields still empty afterwards fall back to the libpq variables.
// path may be empty; DefaultConfigFile is then used if it exists.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("loading flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.applyEnv(flags)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// applyEnv fills in empty Connection fields from environment variables.
// Config values take precedence; env vars are used only as fallback, except
// PGPASSWORD, which overrides a password from the file unless --password is set.
func (c *Config) applyEnv(flags *pflag.FlagSet) {
	conn := &c.Connection
	if conn.Host == "" {
		conn.Host = envOr("PGHOST", "POSTGRES_HOST")
	}
	if conn.Port == 0 {
		if s := envOr("PGPORT", "POSTGRES_PORT"); s != "" {
			if p, err := strconv.Atoi(s); err == nil {
				conn.Port = p
			}
		}
	}
	if conn.Database == "" {
		conn.Database = envOr("PGDATABASE", "POSTGRES_DB")
	}
	if conn.User == "" {
		conn.User = envOr("PGUSER", "POSTGRES_USER")
	}
	if flags == nil || !flags.Changed("password") {
		if v := os.Getenv("PGPASSWORD"); v != "" {
			conn.Password = v
		}
	}
	if conn.Password == "" {
		conn.Password = os.Getenv("POSTGRES_PASSWORD")
	}
	if conn.SSLMode == "" {
		conn.SSLMode = envOr("PGSSLMODE")
	}
}

// envOr returns the first non-empty value from the given env var names.
func envOr(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// validate checks required fields and fills remaining defaults.
func (c *Config) validate() error {
	var errs []error
	if c.Connection.Host == "" {
		c.Connection.Host = "localhost"
	}
	if c.Connection.Port <= 0 {
		c.Connection.Port = 5432
	}
	if c.Connection.Database == "" {
		errs = append(errs, errors.New("connection.database is required"))
	}
	if c.Connection.User == "" {
		errs = append(errs, errors.New("connection.user is required"))
	}
	if c.Connection.SSLMode == "" {
		c.Connection.SSLMode = "disable"
	}
	if len(c.Schemas) == 0 {
		c.Schemas = []string{"public"}
	}
	if c.Output == "" {
		c.Output = DefaultOutput
	}
	if !oneOf(c.Format, "markdown", "html", "json") {
		errs = append(errs, fmt.Errorf("format must be markdown, html or json, got %q", c.Format))
	}
	if !oneOf(c.Analysis.Matcher, "substring", "identifier") {
		errs = append(errs, fmt.Errorf("analysis.matcher must be substring or identifier, got %q", c.Analysis.Matcher))
	}
	if !oneOf(c.Analysis.DependencySource, "definition", "catalog") {
		errs = append(errs, fmt.Errorf("analysis.dependency_source must be definition or catalog, got %q", c.Analysis.DependencySource))
	}
	if c.Analysis.MaxChainDepth < 2 {
		errs = append(errs, fmt.Errorf("analysis.max_chain_depth must be at least 2, got %d", c.Analysis.MaxChainDepth))
	}
	if c.Collect.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("collect.concurrency must be at least 1, got %d", c.Collect.Concurrency))
	}
	if c.Collect.QueryTimeout < 0 {
		errs = append(errs, errors.New("collect.query_timeout must not be negative"))
	}
	return errors.Join(errs...)
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
