// Package config provides configuration management for the reference service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/helixir/reference-service/internal/domain"
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

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Proxy URL rewrite styles.
const (
	ProxyTypeQuery  = "query"
	ProxyTypePrefix = "prefix"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "REFSVC"

// Config holds all configuration for the reference service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database selects and configures the paper store.
	Database DatabaseConfig `mapstructure:"database"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Sources configures every external bibliographic API.
	Sources SourcesConfig `mapstructure:"sources"`
	// HTTPClient configures the shared retry wrapper.
	HTTPClient HTTPClientConfig `mapstructure:"http_client"`
	// Acquisition configures the acquisition pipeline and downloader.
	Acquisition AcquisitionConfig `mapstructure:"acquisition"`
	// Verification configures the citation verification engine.
	Verification VerificationConfig `mapstructure:"verification"`
	// Kafka contains run event publisher settings.
	Kafka KafkaConfig `mapstructure:"kafka"`
	// Index configures the local full-text index.
	Index IndexConfig `mapstructure:"index"`
	// Mirror configures the S3 artifact mirror.
	Mirror MirrorConfig `mapstructure:"mirror"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	// Acquisition requests run synchronously, so this is generous.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds paper store configuration.
type DatabaseConfig struct {
	// Driver selects the store: memory, sqlite or postgres.
	Driver string `mapstructure:"driver" validate:"oneof=memory sqlite postgres"`
	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string `mapstructure:"sqlite_path"`
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is loaded from REFSVC_DATABASE_PASSWORD only.
	Password string `mapstructure:"-"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool (default: 20).
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
	// MigrationAutoRun applies embedded migrations on startup (default: false).
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format" validate:"oneof=json console pretty"`
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
	Namespace string `mapstructure:"namespace" validate:"required"`
}

// SourcesConfig holds configuration for every external API.
type SourcesConfig struct {
	// Mailto is the contact email sent to polite-pool APIs unless a source sets its own.
	Mailto          string       `mapstructure:"mailto"`
	SemanticScholar SourceConfig `mapstructure:"semantic_scholar"`
	OpenAlex        SourceConfig `mapstructure:"openalex"`
	CrossRef        SourceConfig `mapstructure:"crossref"`
	Unpaywall       SourceConfig `mapstructure:"unpaywall"`
	CORE            SourceConfig `mapstructure:"core"`
	EuropePMC       SourceConfig `mapstructure:"europepmc"`
	ArXiv           SourceConfig `mapstructure:"arxiv"`
	DOI             SourceConfig `mapstructure:"doi"`
}

// SourceConfig holds configuration for a single source API.
type SourceConfig struct {
	// Enabled controls whether this source is used.
	Enabled bool `mapstructure:"enabled"`
	// APIKey is loaded from the environment (REFSVC_CORE_API_KEY, REFSVC_SEMANTIC_SCHOLAR_API_KEY).
	APIKey string `mapstructure:"-"`
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
	// Timeout bounds each request.
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit" validate:"gte=0"`
	// MaxResults is the maximum results per query.
	MaxResults int `mapstructure:"max_results" validate:"gte=0"`
	// Mailto overrides SourcesConfig.Mailto for this source.
	Mailto string `mapstructure:"mailto" validate:"omitempty,email"`
}

// ContactEmail returns the mailto for src, falling back to the shared one.
func (s SourcesConfig) ContactEmail(src SourceConfig) string {
	if src.Mailto != "" {
		return src.Mailto
	}
	return s.Mailto
}

// HTTPClientConfig configures the retry wrapper shared by every source client and the downloader.
type HTTPClientConfig struct {
	// MaxAttempts is the total number of attempts per request (1 or 2).
	MaxAttempts int `mapstructure:"max_attempts" validate:"min=1,max=2"`
	// RetryDelay is the backoff before the second attempt.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// MaxRetryDelay caps a server-provided Retry-After.
	MaxRetryDelay time.Duration `mapstructure:"max_retry_delay"`
}

// AcquisitionConfig configures the acquisition pipeline.
type AcquisitionConfig struct {
	// DownloadDir is where validated PDFs are written.
	DownloadDir string `mapstructure:"download_dir" validate:"required"`
	// MinPDFBytes rejects error pages served with a 200 status.
	MinPDFBytes int64 `mapstructure:"min_pdf_bytes" validate:"gt=0"`
	// MaxPDFBytes caps a single download.
	MaxPDFBytes int64 `mapstructure:"max_pdf_bytes" validate:"gtfield=MinPDFBytes"`
	// DownloadTimeout bounds each candidate URL.
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
	// DownloadConcurrency bounds concurrent downloads across papers.
	DownloadConcurrency int `mapstructure:"download_concurrency" validate:"min=1,max=32"`
	// ResolveConcurrency bounds concurrent OA resolutions across papers.
	ResolveConcurrency int `mapstructure:"resolve_concurrency" validate:"min=1,max=32"`
	// SearchTimeout bounds each source in the search stage. Zero disables it.
	SearchTimeout time.Duration `mapstructure:"search_timeout" validate:"gte=0"`
	// MaxResultsPerSource limits the search stage per source.
	MaxResultsPerSource int `mapstructure:"max_results_per_source" validate:"min=1,max=200"`
	// TitleSimilarityThreshold is the Jaccard threshold for OA title matches.
	TitleSimilarityThreshold float64 `mapstructure:"title_similarity_threshold" validate:"gt=0,lte=1"`
	// KeywordFilter drops CrossRef results whose title shares no query keyword.
	KeywordFilter bool `mapstructure:"keyword_filter"`
	// StrictPDFValidation parses every payload with pdfcpu before accepting it.
	StrictPDFValidation bool `mapstructure:"strict_pdf_validation"`
	// ExtractDOI fills a missing DOI from the first pages of a downloaded PDF.
	ExtractDOI bool `mapstructure:"extract_doi"`
	// Proxy configures the institutional proxy stage.
	Proxy ProxyConfig `mapstructure:"proxy"`
}

// ProxyConfig configures the authenticated institutional proxy stage.
type ProxyConfig struct {
	// Enabled turns the proxy stage on.
	Enabled bool `mapstructure:"enabled"`
	// Type is the rewrite style: query (login?url=) or prefix (host rewriting).
	Type string `mapstructure:"type" validate:"omitempty,oneof=query prefix"`
	// BaseURL is the proxy root, e.g. https://ezproxy.example.edu.
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
	// Username for the proxy login form.
	Username string `mapstructure:"username"`
	// Password is loaded from REFSVC_PROXY_PASSWORD only.
	Password string `mapstructure:"-"`
	// Domains lists publisher hosts routed through the proxy. Empty means all.
	Domains []string `mapstructure:"domains"`
}

// VerificationConfig configures citation verification.
type VerificationConfig struct {
	// Concurrency bounds in-flight external searches.
	Concurrency int `mapstructure:"concurrency" validate:"min=1,max=32"`
	// ContextWindow is how many characters before a citation are scanned for a title.
	ContextWindow int `mapstructure:"context_window" validate:"gte=0"`
	// TitleSimilarityThreshold is the Jaccard threshold for title matches.
	TitleSimilarityThreshold float64 `mapstructure:"title_similarity_threshold" validate:"gt=0,lte=1"`
	// SearchRows is the number of candidates requested per search.
	SearchRows int `mapstructure:"search_rows" validate:"min=1,max=50"`
	// CachePath persists the lookup cache across runs. Empty keeps it in memory.
	CachePath string `mapstructure:"cache_path"`
	// CacheTTL expires persisted lookups. Zero keeps them forever.
	CacheTTL time.Duration `mapstructure:"cache_ttl" validate:"gte=0"`
}

// KafkaConfig holds Kafka publisher settings for run events.
type KafkaConfig struct {
	// Enabled controls whether Kafka publishing is active.
	Enabled bool `mapstructure:"enabled"`
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// Topic is the Kafka topic run events are published to.
	Topic string `mapstructure:"topic"`
	// BatchSize is the maximum number of messages to batch before sending.
	BatchSize int `mapstructure:"batch_size"`
	// BatchTimeout is the maximum time to wait for a batch to fill before sending.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// IndexConfig configures the bleve full-text index.
type IndexConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	// MaxPages limits how many PDF pages are extracted per paper.
	MaxPages int `mapstructure:"max_pages" validate:"gte=0"`
}

// MirrorConfig configures the S3 artifact mirror.
type MirrorConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
	Region  string `mapstructure:"region"`
	// Endpoint overrides the S3 endpoint, e.g. for MinIO.
	Endpoint string `mapstructure:"endpoint"`
	// AccessKeyID and SecretAccessKey are loaded from the environment only.
	// When empty the default AWS credential chain is used.
	AccessKeyID     string `mapstructure:"-"`
	SecretAccessKey string `mapstructure:"-"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
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

// MetricsAddress returns the metrics server address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/reference-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Secrets never come from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func loadSecrets(cfg *Config) {
	cfg.Database.Password = os.Getenv("REFSVC_DATABASE_PASSWORD")
	cfg.Sources.CORE.APIKey = os.Getenv("REFSVC_CORE_API_KEY")
	cfg.Sources.SemanticScholar.APIKey = os.Getenv("REFSVC_SEMANTIC_SCHOLAR_API_KEY")
	cfg.Acquisition.Proxy.Password = os.Getenv("REFSVC_PROXY_PASSWORD")

	cfg.Mirror.AccessKeyID = firstEnv("REFSVC_MIRROR_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID")
	cfg.Mirror.SecretAccessKey = firstEnv("REFSVC_MIRROR_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY")
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "10m")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.sqlite_path", "data/references.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "refsvc")
	v.SetDefault("database.name", "reference_service")
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_auto_run", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "refsvc")

	// Sources. API keys are loaded exclusively from environment variables (see loadSecrets).
	v.SetDefault("sources.mailto", "")
	setSourceDefaults(v, "semantic_scholar", true, "https://api.semanticscholar.org/graph/v1", 1.0, 20)
	setSourceDefaults(v, "openalex", true, "https://api.openalex.org", 10.0, 20)
	setSourceDefaults(v, "crossref", true, "https://api.crossref.org", 10.0, 20)
	setSourceDefaults(v, "unpaywall", false, "https://api.unpaywall.org/v2", 10.0, 0)
	setSourceDefaults(v, "core", false, "https://api.core.ac.uk/v3", 5.0, 5)
	setSourceDefaults(v, "europepmc", true, "https://www.ebi.ac.uk/europepmc/webservices/rest", 10.0, 1)
	setSourceDefaults(v, "arxiv", true, "https://export.arxiv.org/api", 1.0, 20)
	setSourceDefaults(v, "doi", true, "https://doi.org", 5.0, 0)

	// Shared retry wrapper
	v.SetDefault("http_client.max_attempts", 2)
	v.SetDefault("http_client.retry_delay", "1s")
	v.SetDefault("http_client.max_retry_delay", "5s")

	// Acquisition defaults
	v.SetDefault("acquisition.download_dir", "data/pdfs")
	v.SetDefault("acquisition.min_pdf_bytes", 10<<10)
	v.SetDefault("acquisition.max_pdf_bytes", 50<<20)
	v.SetDefault("acquisition.download_timeout", "60s")
	v.SetDefault("acquisition.download_concurrency", 3)
	v.SetDefault("acquisition.resolve_concurrency", 3)
	v.SetDefault("acquisition.search_timeout", "45s")
	v.SetDefault("acquisition.max_results_per_source", 20)
	v.SetDefault("acquisition.title_similarity_threshold", 0.8)
	v.SetDefault("acquisition.keyword_filter", true)
	v.SetDefault("acquisition.strict_pdf_validation", false)
	v.SetDefault("acquisition.extract_doi", true)
	v.SetDefault("acquisition.proxy.enabled", false)
	v.SetDefault("acquisition.proxy.type", ProxyTypeQuery)
	v.SetDefault("acquisition.proxy.base_url", "")
	v.SetDefault("acquisition.proxy.username", "")
	v.SetDefault("acquisition.proxy.domains", []string{})

	// Verification defaults
	v.SetDefault("verification.concurrency", 5)
	v.SetDefault("verification.context_window", 500)
	v.SetDefault("verification.title_similarity_threshold", 0.8)
	v.SetDefault("verification.search_rows", 5)
	v.SetDefault("verification.cache_path", "")
	v.SetDefault("verification.cache_ttl", "720h")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "events.reference_service")
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", "10ms")

	// Index defaults
	v.SetDefault("index.enabled", false)
	v.SetDefault("index.path", "data/papers.bleve")
	v.SetDefault("index.max_pages", 3)

	// Mirror defaults
	v.SetDefault("mirror.enabled", false)
	v.SetDefault("mirror.bucket", "")
	v.SetDefault("mirror.endpoint", "")
	v.SetDefault("mirror.prefix", "pdfs/")
	v.SetDefault("mirror.region", "us-east-1")
}

func setSourceDefaults(v *viper.Viper, name string, enabled bool, baseURL string, rate float64, maxResults int) {
	key := "sources." + name
	v.SetDefault(key+".enabled", enabled)
	v.SetDefault(key+".base_url", baseURL)
	v.SetDefault(key+".timeout", "15s")
	v.SetDefault(key+".rate_limit", rate)
	v.SetDefault(key+".max_results", maxResults)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate validates the configuration. Configuration errors are fatal at
// startup; every failure wraps domain.ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return domain.NewConfigError(fe.Namespace(), fmt.Sprintf("failed %q constraint (value %v)", fe.Tag(), fe.Value()))
		}
		return domain.NewConfigError("config", err.Error())
	}

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return domain.NewConfigError("server.http_port", fmt.Sprintf("invalid HTTP port: %d", c.Server.HTTPPort))
	}
	if c.Metrics.Enabled && (c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535) {
		return domain.NewConfigError("server.metrics_port", fmt.Sprintf("invalid metrics port: %d", c.Server.MetricsPort))
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return domain.NewConfigError("database.sqlite_path", "sqlite path is required")
		}
	case DriverPostgres:
		if c.Database.Host == "" {
			return domain.NewConfigError("database.host", "database host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			return domain.NewConfigError("database.port", fmt.Sprintf("invalid database port: %d", c.Database.Port))
		}
		if c.Database.Name == "" {
			return domain.NewConfigError("database.name", "database name is required")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			return domain.NewConfigError("database.max_conns",
				fmt.Sprintf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns))
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return domain.NewConfigError("logging.level", fmt.Sprintf("invalid log level: %s", c.Logging.Level))
	}

	if c.Sources.Unpaywall.Enabled && c.Sources.ContactEmail(c.Sources.Unpaywall) == "" {
		return domain.NewConfigError("sources.unpaywall.mailto", "unpaywall requires a contact email")
	}
	if c.Sources.CORE.Enabled && c.Sources.CORE.APIKey == "" {
		return domain.NewConfigError("sources.core", "CORE requires REFSVC_CORE_API_KEY to be set")
	}

	if p := c.Acquisition.Proxy; p.Enabled {
		if p.BaseURL == "" {
			return domain.NewConfigError("acquisition.proxy.base_url", "proxy base url is required when the proxy is enabled")
		}
		if p.Username != "" && p.Password == "" {
			return domain.NewConfigError("acquisition.proxy", "proxy username requires REFSVC_PROXY_PASSWORD to be set")
		}
	}

	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return domain.NewConfigError("kafka", "brokers and topic are required when kafka is enabled")
	}
	if c.Index.Enabled && c.Index.Path == "" {
		return domain.NewConfigError("index.path", "index path is required when indexing is enabled")
	}
	if c.Mirror.Enabled && c.Mirror.Bucket == "" {
		return domain.NewConfigError("mirror.bucket", "bucket is required when the mirror is enabled")
	}

	return nil
}
