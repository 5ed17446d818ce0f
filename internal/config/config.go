// Package config provides configuration management for the paper ingest service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// Snapshot store backends.
const (
	StoreBackendPostgres = "postgres"
	StoreBackendSQLite   = "sqlite"
	StoreBackendFile     = "file"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "PAPERINGEST"

// Config holds all configuration for the paper ingest service.
type Config struct {
	// Server contains HTTP/gRPC server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Store selects where corpus snapshots are persisted.
	Store StoreConfig `mapstructure:"store"`
	// Temporal contains Temporal workflow orchestration settings.
	Temporal TemporalConfig `mapstructure:"temporal"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Kafka contains event publishing and trigger listening settings.
	Kafka KafkaConfig `mapstructure:"kafka"`
	// Scheduler contains the in-process cron trigger settings.
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	// Engine contains ingestion cycle settings.
	Engine EngineConfig `mapstructure:"engine"`
	// Enrichment contains citation lookup settings.
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	// Backfill contains gap backfill settings.
	Backfill BackfillConfig `mapstructure:"backfill"`
	// Providers contains upstream provider settings.
	Providers ProvidersConfig `mapstructure:"providers"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// GRPCPort is the gRPC health server port (default: 9090).
	GRPCPort int `mapstructure:"grpc_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password (use environment variable in production).
	Password string `mapstructure:"password"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool (default: 10).
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open (default: 2).
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is a directory of migration files. Empty uses the
	// migrations compiled into the binary.
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup (default: false).
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
	// StatementCacheCapacity is the size of the prepared statement cache.
	StatementCacheCapacity int `mapstructure:"statement_cache_capacity"`
}

// StoreConfig selects the snapshot store backend.
type StoreConfig struct {
	// Backend is one of postgres, sqlite or file.
	Backend string `mapstructure:"backend"`
	// SQLitePath is the database file used by the sqlite backend.
	SQLitePath string `mapstructure:"sqlite_path"`
	// FilePath is the YAML document used by the file backend.
	FilePath string `mapstructure:"file_path"`
}

// TemporalConfig holds Temporal workflow configuration.
type TemporalConfig struct {
	// HostPort is the Temporal server address.
	HostPort string `mapstructure:"host_port"`
	// Namespace is the Temporal namespace.
	Namespace string `mapstructure:"namespace"`
	// TaskQueue is the task queue name for ingestion workflows.
	TaskQueue string `mapstructure:"task_queue"`
	// CronSchedule is the cron expression the worker registers the
	// ingestion workflow under. Empty disables the schedule.
	CronSchedule string `mapstructure:"cron_schedule"`
	// WorkflowID is the stable ID of the scheduled ingestion workflow.
	WorkflowID string `mapstructure:"workflow_id"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
	// Namespace prefixes every metric name.
	Namespace string `mapstructure:"namespace"`
}

// KafkaConfig holds Kafka settings.
type KafkaConfig struct {
	// Enabled controls whether Kafka publishing and listening are active.
	Enabled bool `mapstructure:"enabled"`
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// Topic receives corpus events.
	Topic string `mapstructure:"topic"`
	// TriggerTopic carries manual ingestion requests. Empty disables the listener.
	TriggerTopic string `mapstructure:"trigger_topic"`
	// GroupID is the consumer group of the trigger listener.
	GroupID string `mapstructure:"group_id"`
	// BatchSize is the maximum number of messages to batch before sending.
	BatchSize int `mapstructure:"batch_size"`
	// BatchTimeout is the maximum time to wait for a batch to fill before sending.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// SchedulerConfig holds the in-process scheduler settings.
type SchedulerConfig struct {
	// Enabled starts the cron scheduler in the server.
	Enabled bool `mapstructure:"enabled"`
	// Spec is a cron expression or descriptor such as "@every 10m".
	Spec string `mapstructure:"spec"`
	// RunOnStart triggers one cycle as soon as the server is up.
	RunOnStart bool `mapstructure:"run_on_start"`
}

// EngineConfig holds ingestion cycle settings.
type EngineConfig struct {
	// Capacity is the maximum corpus size. Zero disables the bound.
	Capacity int `mapstructure:"capacity"`
	// SafetyOverlap is subtracted from the newest watermark to build the
	// next fetch threshold.
	SafetyOverlap time.Duration `mapstructure:"safety_overlap"`
	// InitialLookback is the fetch window used on a cold start.
	InitialLookback time.Duration `mapstructure:"initial_lookback"`
	// DedupPolicy is any_key or provider_id_precedence. provider_id_precedence
	// can admit two records with the same normalized title when both carry
	// provider identifiers; only any_key keeps titles unique.
	DedupPolicy string `mapstructure:"dedup_policy"`
	// CycleTimeout bounds a whole cycle, backfill included.
	CycleTimeout time.Duration `mapstructure:"cycle_timeout"`
	// LockKey is the Postgres advisory lock key used for cross-process
	// single-flight. Zero disables the distributed lock.
	LockKey int64 `mapstructure:"lock_key"`
}

// EnrichmentConfig holds citation lookup settings.
type EnrichmentConfig struct {
	// Enabled turns enrichment on.
	Enabled bool `mapstructure:"enabled"`
	// Quota is the maximum number of lookups per cycle.
	Quota int `mapstructure:"quota"`
	// MinInterval is the minimum gap between two lookups.
	MinInterval time.Duration `mapstructure:"min_interval"`
	// Providers lists the providers whose records lack citation counts.
	Providers []string `mapstructure:"providers"`
}

// BackfillConfig holds gap backfill settings.
type BackfillConfig struct {
	// Enabled allows the zero-yield recovery path and manual backfills.
	Enabled bool `mapstructure:"enabled"`
	// HorizonMonths bounds the scan below, counted back from the newest watermark.
	HorizonMonths int `mapstructure:"horizon_months"`
	// MaxMonthsPerScan caps how many flagged months one scan fetches.
	MaxMonthsPerScan int `mapstructure:"max_months_per_scan"`
	// Slack widens each month's fetch window on both edges.
	Slack time.Duration `mapstructure:"slack"`
	// SmallCorpusSize is the size below which SmallThreshold applies.
	SmallCorpusSize int `mapstructure:"small_corpus_size"`
	// SmallThreshold is the minimum records per month for a small corpus.
	SmallThreshold int `mapstructure:"small_threshold"`
	// LargeThreshold is the minimum records per month otherwise.
	LargeThreshold int `mapstructure:"large_threshold"`
}

// ProvidersConfig holds configuration for every upstream provider.
type ProvidersConfig struct {
	ArXiv           ArXivConfig           `mapstructure:"arxiv"`
	OpenAlex        OpenAlexConfig        `mapstructure:"openalex"`
	SemanticScholar SemanticScholarConfig `mapstructure:"semantic_scholar"`
	EuropePMC       EuropePMCConfig       `mapstructure:"europepmc"`
	HuggingFace     ProviderConfig        `mapstructure:"huggingface"`
	Feed            FeedConfig            `mapstructure:"feed"`
}

// ProviderConfig holds the settings shared by every provider.
type ProviderConfig struct {
	// Enabled controls whether this provider is used.
	Enabled bool `mapstructure:"enabled"`
	// APIKey is loaded from the environment only (see loadSecrets).
	APIKey string `mapstructure:"-"`
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the per-request timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// FetchTimeout bounds one whole fetch, paging included.
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// BurstSize is the rate limiter burst.
	BurstSize int `mapstructure:"burst_size"`
	// MaxResults is the maximum records per fetch.
	MaxResults int `mapstructure:"max_results"`
}

// ArXivConfig holds arXiv settings.
type ArXivConfig struct {
	ProviderConfig `mapstructure:",squash"`
	// Categories restricts the query to these arXiv categories.
	Categories []string `mapstructure:"categories"`
}

// OpenAlexConfig holds OpenAlex settings.
type OpenAlexConfig struct {
	ProviderConfig `mapstructure:",squash"`
	// Email joins the OpenAlex polite pool.
	Email string `mapstructure:"email"`
	// Filter is appended to the date filter.
	Filter string `mapstructure:"filter"`
}

// SemanticScholarConfig holds Semantic Scholar settings.
type SemanticScholarConfig struct {
	ProviderConfig `mapstructure:",squash"`
	// Keywords form the bulk search query.
	Keywords []string `mapstructure:"keywords"`
	// FieldsOfStudy restricts the bulk search.
	FieldsOfStudy []string `mapstructure:"fields_of_study"`
}

// EuropePMCConfig holds Europe PMC settings.
type EuropePMCConfig struct {
	ProviderConfig `mapstructure:",squash"`
	// Query is ANDed with the preprint filter.
	Query string `mapstructure:"query"`
	// Publishers restricts results to these preprint servers.
	Publishers []string `mapstructure:"publishers"`
}

// FeedConfig holds the RSS/Atom feed provider settings.
type FeedConfig struct {
	ProviderConfig `mapstructure:",squash"`
	// Sources are the feeds to read.
	Sources []FeedSource `mapstructure:"sources"`
}

// FeedSource is one configured feed.
type FeedSource struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}
	if c.StatementCacheCapacity > 0 {
		params.Set("statement_cache_capacity", fmt.Sprintf("%d", c.StatementCacheCapacity))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// GRPCAddress returns the gRPC server address.
func (c *ServerConfig) GRPCAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort)
}

// MetricsAddress returns the metrics server address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// UsesPostgres reports whether any component needs a PostgreSQL connection.
func (c *Config) UsesPostgres() bool {
	return c.Store.Backend == StoreBackendPostgres || c.Engine.LockKey != 0
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	return LoadWithViper(viper.New())
}

// LoadWithViper loads configuration using v. Callers may set a config file
// on v beforehand; otherwise the standard search paths are used.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if present
	if v.ConfigFileUsed() == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/paper-ingest")
	}

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets exclusively from environment variables.
	// These fields use mapstructure:"-" to prevent loading from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.Providers.SemanticScholar.APIKey = os.Getenv(EnvPrefix + "_PROVIDERS_SEMANTIC_SCHOLAR_API_KEY")
	cfg.Providers.OpenAlex.APIKey = os.Getenv(EnvPrefix + "_PROVIDERS_OPENALEX_API_KEY")
	cfg.Providers.HuggingFace.APIKey = os.Getenv(EnvPrefix + "_PROVIDERS_HUGGINGFACE_TOKEN")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.grpc_port", 9090)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "paperingest")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "paper_ingest")
	// Default to "require" for production security. Use PAPERINGEST_DATABASE_SSL_MODE=disable for local development.
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "")
	v.SetDefault("database.migration_auto_run", false)
	v.SetDefault("database.statement_cache_capacity", 512)

	// Store defaults
	v.SetDefault("store.backend", StoreBackendPostgres)
	v.SetDefault("store.sqlite_path", "paper_ingest.db")
	v.SetDefault("store.file_path", "corpus.yaml")

	// Temporal defaults
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "paper-ingest")
	v.SetDefault("temporal.task_queue", "paper-ingest-tasks")
	v.SetDefault("temporal.cron_schedule", "*/10 * * * *")
	v.SetDefault("temporal.workflow_id", "paper-ingest-cycle")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "paper_ingest")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "events.paper_ingest.corpus")
	v.SetDefault("kafka.trigger_topic", "")
	v.SetDefault("kafka.group_id", "paper-ingest-service")
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", "10ms")

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.spec", "@every 10m")
	v.SetDefault("scheduler.run_on_start", true)

	// Engine defaults
	v.SetDefault("engine.capacity", 10000)
	v.SetDefault("engine.safety_overlap", "48h")
	v.SetDefault("engine.initial_lookback", "720h")
	v.SetDefault("engine.dedup_policy", "any_key")
	v.SetDefault("engine.cycle_timeout", "30m")
	v.SetDefault("engine.lock_key", 0)

	// Enrichment defaults
	v.SetDefault("enrichment.enabled", true)
	v.SetDefault("enrichment.quota", 10)
	v.SetDefault("enrichment.min_interval", "1100ms")
	v.SetDefault("enrichment.providers", []string{"arxiv", "huggingface", "europepmc", "feed"})

	// Backfill defaults
	v.SetDefault("backfill.enabled", true)
	v.SetDefault("backfill.horizon_months", 24)
	v.SetDefault("backfill.max_months_per_scan", 3)
	v.SetDefault("backfill.slack", "72h")
	v.SetDefault("backfill.small_corpus_size", 500)
	v.SetDefault("backfill.small_threshold", 5)
	v.SetDefault("backfill.large_threshold", 20)

	// Provider defaults - arXiv
	v.SetDefault("providers.arxiv.enabled", true)
	v.SetDefault("providers.arxiv.base_url", "https://export.arxiv.org/api")
	v.SetDefault("providers.arxiv.timeout", "30s")
	v.SetDefault("providers.arxiv.fetch_timeout", "2m")
	v.SetDefault("providers.arxiv.rate_limit", 0.33) // arXiv asks for one request every 3 seconds
	v.SetDefault("providers.arxiv.burst_size", 1)
	v.SetDefault("providers.arxiv.max_results", 200)
	v.SetDefault("providers.arxiv.categories", []string{"cs.AI", "cs.CL", "cs.LG"})

	// Provider defaults - OpenAlex
	v.SetDefault("providers.openalex.enabled", true)
	v.SetDefault("providers.openalex.base_url", "https://api.openalex.org")
	v.SetDefault("providers.openalex.timeout", "30s")
	v.SetDefault("providers.openalex.fetch_timeout", "2m")
	v.SetDefault("providers.openalex.rate_limit", 10.0)
	v.SetDefault("providers.openalex.burst_size", 10)
	v.SetDefault("providers.openalex.max_results", 200)
	v.SetDefault("providers.openalex.email", "")
	v.SetDefault("providers.openalex.filter", "")

	// Provider defaults - Semantic Scholar
	// API keys are loaded exclusively from environment variables (see loadSecrets).
	v.SetDefault("providers.semantic_scholar.enabled", false)
	v.SetDefault("providers.semantic_scholar.base_url", "https://api.semanticscholar.org/graph/v1")
	v.SetDefault("providers.semantic_scholar.timeout", "30s")
	v.SetDefault("providers.semantic_scholar.fetch_timeout", "2m")
	v.SetDefault("providers.semantic_scholar.rate_limit", 1.0)
	v.SetDefault("providers.semantic_scholar.burst_size", 1)
	v.SetDefault("providers.semantic_scholar.max_results", 200)
	v.SetDefault("providers.semantic_scholar.keywords", []string{})
	v.SetDefault("providers.semantic_scholar.fields_of_study", []string{"Computer Science"})

	// Provider defaults - Europe PMC
	v.SetDefault("providers.europepmc.enabled", false)
	v.SetDefault("providers.europepmc.base_url", "https://www.ebi.ac.uk/europepmc/webservices/rest")
	v.SetDefault("providers.europepmc.timeout", "30s")
	v.SetDefault("providers.europepmc.fetch_timeout", "2m")
	v.SetDefault("providers.europepmc.rate_limit", 5.0)
	v.SetDefault("providers.europepmc.burst_size", 5)
	v.SetDefault("providers.europepmc.max_results", 200)
	v.SetDefault("providers.europepmc.query", "")
	v.SetDefault("providers.europepmc.publishers", []string{"bioRxiv", "medRxiv"})

	// Provider defaults - Hugging Face
	v.SetDefault("providers.huggingface.enabled", true)
	v.SetDefault("providers.huggingface.base_url", "https://huggingface.co/api")
	v.SetDefault("providers.huggingface.timeout", "10s")
	v.SetDefault("providers.huggingface.fetch_timeout", "1m")
	v.SetDefault("providers.huggingface.rate_limit", 2.0)
	v.SetDefault("providers.huggingface.burst_size", 2)
	v.SetDefault("providers.huggingface.max_results", 200)

	// Provider defaults - feeds
	v.SetDefault("providers.feed.enabled", false)
	v.SetDefault("providers.feed.timeout", "30s")
	v.SetDefault("providers.feed.fetch_timeout", "2m")
	v.SetDefault("providers.feed.rate_limit", 2.0)
	v.SetDefault("providers.feed.burst_size", 2)
	v.SetDefault("providers.feed.max_results", 200)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate server ports
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.GRPCPort <= 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.Server.GRPCPort)
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
	}

	// Validate store and database config
	switch c.Store.Backend {
	case StoreBackendPostgres:
	case StoreBackendSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store sqlite_path is required for the sqlite backend")
		}
	case StoreBackendFile:
		if c.Store.FilePath == "" {
			return fmt.Errorf("store file_path is required for the file backend")
		}
	default:
		return fmt.Errorf("invalid store backend: %q", c.Store.Backend)
	}
	if c.UsesPostgres() {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			return fmt.Errorf("invalid database port: %d", c.Database.Port)
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
		}
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Validate engine config
	if c.Engine.Capacity < 0 {
		return fmt.Errorf("engine capacity must not be negative")
	}
	if c.Engine.SafetyOverlap < 0 {
		return fmt.Errorf("engine safety_overlap must not be negative")
	}
	if c.Engine.InitialLookback <= 0 {
		return fmt.Errorf("engine initial_lookback must be positive")
	}
	if c.Engine.DedupPolicy != "any_key" && c.Engine.DedupPolicy != "provider_id_precedence" {
		return fmt.Errorf("invalid engine dedup_policy: %q", c.Engine.DedupPolicy)
	}

	// Validate enrichment config
	if c.Enrichment.Enabled {
		if c.Enrichment.Quota <= 0 {
			return fmt.Errorf("enrichment quota must be positive")
		}
		if c.Enrichment.MinInterval < 0 {
			return fmt.Errorf("enrichment min_interval must not be negative")
		}
	}

	// Validate backfill config
	if c.Backfill.Enabled {
		if c.Backfill.HorizonMonths <= 0 {
			return fmt.Errorf("backfill horizon_months must be positive")
		}
		if c.Backfill.MaxMonthsPerScan <= 0 {
			return fmt.Errorf("backfill max_months_per_scan must be positive")
		}
		if c.Backfill.SmallThreshold < 0 || c.Backfill.LargeThreshold < 0 {
			return fmt.Errorf("backfill thresholds must not be negative")
		}
	}

	// Validate scheduler and kafka config
	if c.Scheduler.Enabled && c.Scheduler.Spec == "" {
		return fmt.Errorf("scheduler spec is required when the scheduler is enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when kafka is enabled")
	}

	// Validate feed sources
	if c.Providers.Feed.Enabled {
		for i, src := range c.Providers.Feed.Sources {
			if src.URL == "" {
				return fmt.Errorf("providers.feed.sources[%d]: url is required", i)
			}
		}
	}

	return nil
}
