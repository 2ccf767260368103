package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Market   MarketConfig   `json:"market"`
	Security SecurityConfig `json:"security"`
	Logging  LoggingConfig  `json:"logging"`
	Events   EventsConfig   `json:"events"`
	AWS      AWSConfig      `json:"aws"`
	Reports  ReportsConfig  `json:"reports"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	AllowedOrigins  []string      `json:"allowed_origins"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	User           string        `json:"user"`
	Password       string        `json:"password"`
	DBName         string        `json:"db_name"`
	SSLMode        string        `json:"ssl_mode"`
	MaxConnections int           `json:"max_connections"`
	MaxIdleConns   int           `json:"max_idle_conns"`
	MaxLifetime    time.Duration `json:"max_lifetime"`
}

// MarketConfig holds ledger and marketplace settings
type MarketConfig struct {
	// OwnerID is the single identity allowed to mint
	OwnerID        string `json:"owner_id"`
	Store          string `json:"store"` // "postgres" or "memory"
	MinVintageYear int    `json:"min_vintage_year"`
	MaxVintageYear int    `json:"max_vintage_year"`
	// RecipientPolicy is one of allow_all, allow_list, deny_list
	RecipientPolicy string   `json:"recipient_policy"`
	Recipients      []string `json:"recipients"`
}

// SecurityConfig
type SecurityConfig struct {
	JWTSecret           string            `json:"jwt_secret"`
	JWTIssuer           string            `json:"jwt_issuer"`
	APIKeys             map[string]string `json:"api_keys"`
	AllowHeaderIdentity bool              `json:"allow_header_identity"`
	TokenTTL            time.Duration     `json:"token_ttl"`
}

// LoggingConfig
type LoggingConfig struct {
	Level       string `json:"level"`
	Debug       bool   `json:"debug"`
	SentryDSN   string `json:"sentry_dsn"`
	Environment string `json:"environment"`
}

// EventsConfig configures the dispatcher and its sinks. A sink is enabled
// when its block is filled in.
type EventsConfig struct {
	Workers         int           `json:"workers"`
	QueueSize       int           `json:"queue_size"`
	DeliveryTimeout time.Duration `json:"delivery_timeout"`
	RetryInterval   time.Duration `json:"retry_interval"`
	RetryMaxElapsed time.Duration `json:"retry_max_elapsed"`
	Journal         bool          `json:"journal"`
	WebSocket       bool          `json:"websocket"`

	Mongo    MongoSinkConfig   `json:"mongo"`
	SNS      SNSSinkConfig     `json:"sns"`
	NATS     NATSSinkConfig    `json:"nats"`
	Elastic  ElasticSinkConfig `json:"elasticsearch"`
	DynamoDB DynamoSinkConfig  `json:"dynamodb"`
	SES      IssueMailConfig   `json:"ses"`
}

type MongoSinkConfig struct {
	URI        string `json:"uri"`
	Database   string `json:"database"`
	Collection string `json:"collection"`
}

type SNSSinkConfig struct {
	TopicARN string `json:"topic_arn"`
}

type NATSSinkConfig struct {
	URL           string `json:"url"`
	Stream        string `json:"stream"`
	SubjectPrefix string `json:"subject_prefix"`
}

type ElasticSinkConfig struct {
	Addresses []string `json:"addresses"`
	Username  string   `json:"username"`
	Password  string   `json:"password"`
	Index     string   `json:"index"`
}

type DynamoSinkConfig struct {
	Table string `json:"table"`
}

type IssueMailConfig struct {
	From string   `json:"from"`
	To   []string `json:"to"`
}

// AWSConfig is shared by the S3, SNS, SES and DynamoDB clients
type AWSConfig struct {
	Region          string `json:"region"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	// Endpoint overrides the service endpoint, e.g. for localstack
	Endpoint string `json:"endpoint"`
}

// ReportsConfig
type ReportsConfig struct {
	Bucket       string `json:"bucket"`
	Prefix       string `json:"prefix"`
	AuditEnabled bool   `json:"audit_enabled"`
	AuditCron    string `json:"audit_cron"`
	// ExportCron schedules holdings uploads in the worker; empty disables them
	ExportCron   string `json:"export_cron"`
	ExportFormat string `json:"export_format"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			User:           os.Getenv("USER"),
			DBName:         "credit_market",
			SSLMode:        "disable",
			MaxConnections: 20,
			MaxIdleConns:   5,
			MaxLifetime:    5 * time.Minute,
		},
		Market: MarketConfig{
			Store:           "postgres",
			MinVintageYear:  1990,
			RecipientPolicy: "allow_all",
		},
		Security: SecurityConfig{
			JWTIssuer: "credit-market",
			TokenTTL:  time.Hour,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Environment: "development",
		},
		Events: EventsConfig{
			Workers:         8,
			QueueSize:       1024,
			DeliveryTimeout: 5 * time.Second,
			RetryInterval:   500 * time.Millisecond,
			RetryMaxElapsed: 30 * time.Second,
			Journal:         true,
			WebSocket:       true,
			Mongo:           MongoSinkConfig{Database: "credit_market", Collection: "market_events"},
			NATS:            NATSSinkConfig{Stream: "MARKET", SubjectPrefix: "market"},
			Elastic:         ElasticSinkConfig{Index: "market-events"},
		},
		AWS: AWSConfig{
			Region: "us-east-1",
		},
		Reports: ReportsConfig{
			Prefix:       "reports/holdings",
			AuditCron:    "0 */15 * * * *",
			ExportFormat: "xlsx",
		},
	}
}

// LoadConfig loads configuration from defaults, the JSON file at configPath,
// a .env file and environment variables, in that order.
func LoadConfig(configPath string) (*Config, error) {
	config := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// .env is optional; real environment variables win over it
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	overrideWithEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func overrideWithEnv(config *Config) {
	envString("SERVER_HOST", &config.Server.Host)
	envInt("SERVER_PORT", &config.Server.Port)
	envList("SERVER_ALLOWED_ORIGINS", &config.Server.AllowedOrigins)

	envString("DATABASE_HOST", &config.Database.Host)
	envInt("DATABASE_PORT", &config.Database.Port)
	envString("DATABASE_USER", &config.Database.User)
	envString("DATABASE_PASSWORD", &config.Database.Password)
	envString("DATABASE_DBNAME", &config.Database.DBName)
	envString("DATABASE_SSLMODE", &config.Database.SSLMode)
	envInt("DATABASE_MAX_CONNECTIONS", &config.Database.MaxConnections)

	envString("MARKET_OWNER_ID", &config.Market.OwnerID)
	envString("MARKET_STORE", &config.Market.Store)
	envInt("MARKET_MIN_VINTAGE_YEAR", &config.Market.MinVintageYear)
	envInt("MARKET_MAX_VINTAGE_YEAR", &config.Market.MaxVintageYear)
	envString("MARKET_RECIPIENT_POLICY", &config.Market.RecipientPolicy)
	envList("MARKET_RECIPIENTS", &config.Market.Recipients)

	envString("JWT_SECRET", &config.Security.JWTSecret)
	envString("JWT_ISSUER", &config.Security.JWTIssuer)
	envBool("ALLOW_HEADER_IDENTITY", &config.Security.AllowHeaderIdentity)

	envString("LOG_LEVEL", &config.Logging.Level)
	envBool("LOG_DEBUG", &config.Logging.Debug)
	envString("SENTRY_DSN", &config.Logging.SentryDSN)
	envString("ENVIRONMENT", &config.Logging.Environment)

	envInt("EVENTS_WORKERS", &config.Events.Workers)
	envInt("EVENTS_QUEUE_SIZE", &config.Events.QueueSize)
	envDuration("EVENTS_RETRY_MAX_ELAPSED", &config.Events.RetryMaxElapsed)
	envString("EVENTS_MONGO_URI", &config.Events.Mongo.URI)
	envString("EVENTS_SNS_TOPIC_ARN", &config.Events.SNS.TopicARN)
	envString("EVENTS_NATS_URL", &config.Events.NATS.URL)
	envList("EVENTS_ELASTICSEARCH_ADDRESSES", &config.Events.Elastic.Addresses)
	envString("EVENTS_DYNAMODB_TABLE", &config.Events.DynamoDB.Table)
	envString("EVENTS_SES_FROM", &config.Events.SES.From)
	envList("EVENTS_SES_TO", &config.Events.SES.To)

	envString("AWS_REGION", &config.AWS.Region)
	envString("AWS_ACCESS_KEY_ID", &config.AWS.AccessKeyID)
	envString("AWS_SECRET_ACCESS_KEY", &config.AWS.SecretAccessKey)
	envString("AWS_ENDPOINT_URL", &config.AWS.Endpoint)

	envString("REPORTS_BUCKET", &config.Reports.Bucket)
	envBool("REPORTS_AUDIT_ENABLED", &config.Reports.AuditEnabled)
	envString("REPORTS_AUDIT_CRON", &config.Reports.AuditCron)
	envString("REPORTS_EXPORT_CRON", &config.Reports.ExportCron)
	envString("REPORTS_EXPORT_FORMAT", &config.Reports.ExportFormat)
}

// Validate checks settings that have no usable default
func (c *Config) Validate() error {
	if c.Market.OwnerID == "" {
		return errors.New("market owner identity is required (MARKET_OWNER_ID)")
	}
	switch c.Market.Store {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown market store %q", c.Market.Store)
	}
	if c.Market.MaxVintageYear != 0 && c.Market.MaxVintageYear < c.Market.MinVintageYear {
		return errors.New("max vintage year is before min vintage year")
	}
	return nil
}

// GetDatabaseURL returns the database connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func envString(key string, target *string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}

func envInt(key string, target *int) {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func envBool(key string, target *bool) {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func envDuration(key string, target *time.Duration) {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			*target = parsed
		}
	}
}

func envList(key string, target *[]string) {
	value := os.Getenv(key)
	if value == "" {
		return
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	*target = items
}
