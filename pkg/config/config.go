package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	Orchestrator OrchestratorConfig
	Pricing      PricingConfig
	Enrichment   EnrichmentConfig
	OpenAI       OpenAIConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	VendorSync   VendorSyncConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"VERILINE_APP_ENV" required:"true"`
	Port         string `envconfig:"VERILINE_APP_PORT" required:"true"`
	MetricsPort  string `envconfig:"VERILINE_APP_METRICS_PORT" default:"9091"`
	LogLevel     string `envconfig:"VERILINE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"VERILINE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"VERILINE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"VERILINE_DB_DSN"`
	Driver string `envconfig:"VERILINE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"VERILINE_DB_HOST"`
	LegacyPort     int    `envconfig:"VERILINE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"VERILINE_DB_USER"`
	LegacyPassword string `envconfig:"VERILINE_DB_PASSWORD"`
	LegacyName     string `envconfig:"VERILINE_DB_NAME"`
	LegacySSLMode  string `envconfig:"VERILINE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"VERILINE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"VERILINE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"VERILINE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VERILINE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"VERILINE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"VERILINE_REDIS_ADDR"`
	Password     string        `envconfig:"VERILINE_REDIS_PASSWORD"`
	DB           int           `envconfig:"VERILINE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VERILINE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VERILINE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VERILINE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VERILINE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VERILINE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"VERILINE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"VERILINE_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"VERILINE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

// OrchestratorConfig tunes the line item state machine.
type OrchestratorConfig struct {
	// MaxIngestPasses bounds how many enrichment passes a single line
	// item may trigger before it is routed to needs_explanation.
	MaxIngestPasses int `envconfig:"VERILINE_ORCHESTRATOR_MAX_INGEST_PASSES" default:"1"`
}

// PricingConfig tunes price band checks.
type PricingConfig struct {
	// ToleranceFactor is the multiple of the band maximum above which a
	// unit price is treated as a policy violation.
	ToleranceFactor string `envconfig:"VERILINE_PRICING_TOLERANCE_FACTOR" default:"1.5"`
}

// VendorConfig describes one enrichment vendor endpoint.
type VendorConfig struct {
	Name        string `json:"name"`
	BaseURL     string `json:"base_url"`
	Priority    int    `json:"priority"`
	RateLimitMS int    `json:"rate_limit_ms"`
	Enabled     bool   `json:"enabled"`
}

// VendorList decodes a JSON array of vendor configs from a single env var.
type VendorList []VendorConfig

// Decode implements envconfig.Decoder.
func (v *VendorList) Decode(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		*v = nil
		return nil
	}
	var vendors []VendorConfig
	if err := json.Unmarshal([]byte(value), &vendors); err != nil {
		return fmt.Errorf("parsing vendor list: %w", err)
	}
	*v = vendors
	return nil
}

type EnrichmentConfig struct {
	Vendors           VendorList    `envconfig:"VERILINE_ENRICHMENT_VENDORS"`
	HTTPTimeout       time.Duration `envconfig:"VERILINE_ENRICHMENT_HTTP_TIMEOUT" default:"10s"`
	MaxItemsPerVendor int           `envconfig:"VERILINE_ENRICHMENT_MAX_ITEMS_PER_VENDOR" default:"10"`
	UserAgent         string        `envconfig:"VERILINE_ENRICHMENT_USER_AGENT" default:"veriline-enrichment/1.0"`
}

type OpenAIConfig struct {
	APIKey         string        `envconfig:"VERILINE_OPENAI_API_KEY"`
	Endpoint       string        `envconfig:"VERILINE_OPENAI_ENDPOINT"`
	Model          string        `envconfig:"VERILINE_OPENAI_MODEL" default:"gpt-4o-mini"`
	RequestTimeout time.Duration `envconfig:"VERILINE_OPENAI_REQUEST_TIMEOUT" default:"8s"`
}

// Enabled reports whether an oracle client should be constructed at all.
func (o OpenAIConfig) Enabled() bool {
	return strings.TrimSpace(o.APIKey) != ""
}

type GCPConfig struct {
	ProjectID              string `envconfig:"VERILINE_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"VERILINE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"VERILINE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	LineItemTopic        string `envconfig:"VERILINE_PUBSUB_LINE_ITEM_TOPIC" default:"vl-line-item-events"`
	LineItemSubscription string `envconfig:"VERILINE_PUBSUB_LINE_ITEM_SUBSCRIPTION" required:"true"`
	AuditSubscription    string `envconfig:"VERILINE_PUBSUB_AUDIT_SUBSCRIPTION" required:"true"`
}

type BigQueryConfig struct {
	Dataset        string `envconfig:"VERILINE_BIGQUERY_DATASET" default:"veriline"`
	DecisionsTable string `envconfig:"VERILINE_BIGQUERY_DECISIONS_TABLE" default:"line_item_decisions"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"VERILINE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"VERILINE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"VERILINE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// VendorSyncConfig tunes the offline vendor refresh job.
type VendorSyncConfig struct {
	StaleAfter time.Duration `envconfig:"VERILINE_VENDOR_SYNC_STALE_AFTER" default:"168h"`
	BatchSize  int           `envconfig:"VERILINE_VENDOR_SYNC_BATCH_SIZE" default:"100"`
	Interval   time.Duration `envconfig:"VERILINE_VENDOR_SYNC_INTERVAL" default:"1h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
