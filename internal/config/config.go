package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultRegion is used when AWS_REGION is unset.
const DefaultRegion = "us-east-1"

// Config is the root configuration for ducklake-init. It is built once by
// Load and treated as read-only afterwards.
type Config struct {
	Postgres    PostgresConfig    `mapstructure:"postgres"`
	ObjectStore ObjectStoreConfig `mapstructure:"objectstore"`
	Readiness   ReadinessConfig   `mapstructure:"readiness"`
	Lake        LakeConfig        `mapstructure:"lake"`
	RC          RCConfig          `mapstructure:"rc"`
	Idle        IdleConfig        `mapstructure:"idle"`
	Status      StatusConfig      `mapstructure:"status"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DB       string `mapstructure:"db"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

type ObjectStoreConfig struct {
	EndpointURL     string `mapstructure:"endpoint_url"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	HealthPath      string `mapstructure:"health_path"`
}

type ReadinessConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	Timeout        time.Duration `mapstructure:"timeout"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
}

type LakeConfig struct {
	Name       string `mapstructure:"name"`
	DataPrefix string `mapstructure:"data_prefix"`
	DuckDBPath string `mapstructure:"duckdb_path"`
}

type RCConfig struct {
	TemplatePath string `mapstructure:"template_path"`
	OutputPath   string `mapstructure:"output_path"`
}

type IdleConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type StatusConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	ServiceName  string `mapstructure:"service_name"`
	LogLevel     string `mapstructure:"log_level"`
}

// containerEnv maps config keys to the variable names the lake container
// has always been started with. These bypass the LAKEINIT_ prefix.
var containerEnv = map[string]string{
	"postgres.host":                 "POSTGRES_HOST",
	"postgres.port":                 "POSTGRES_PORT",
	"postgres.user":                 "POSTGRES_USER",
	"postgres.password":             "POSTGRES_PASSWORD",
	"postgres.db":                   "POSTGRES_DB",
	"objectstore.endpoint_url":      "AWS_ENDPOINT_URL",
	"objectstore.access_key_id":     "AWS_ACCESS_KEY_ID",
	"objectstore.secret_access_key": "AWS_SECRET_ACCESS_KEY",
	"objectstore.region":            "AWS_REGION",
	"objectstore.bucket":            "BUCKET",
}

// Load reads config from the optional YAML file at path, then overlays
// environment variables. Container variables (POSTGRES_USER, BUCKET, ...)
// are bound by their plain names; every other key can be overridden with
// the LAKEINIT_ prefix (e.g. LAKEINIT_READINESS_TIMEOUT).
//
// Load does not check required values; call Validate before using the
// result for anything that touches the network.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("LAKEINIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range containerEnv {
		if err := v.BindEnv(key, env, "LAKEINIT_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_"))); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if cfg.ObjectStore.Region == "" {
		cfg.ObjectStore.Region = DefaultRegion
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.ssl_mode", "disable")

	v.SetDefault("objectstore.region", DefaultRegion)
	v.SetDefault("objectstore.health_path", "/minio/health/live")

	v.SetDefault("readiness.interval", time.Second)
	v.SetDefault("readiness.timeout", 60*time.Second)
	v.SetDefault("readiness.attempt_timeout", 2*time.Second)

	v.SetDefault("lake.name", "the_ducklake")
	v.SetDefault("lake.data_prefix", "lake")
	v.SetDefault("lake.duckdb_path", "")

	v.SetDefault("rc.template_path", "/duckdbrc.tpl")
	v.SetDefault("rc.output_path", "/root/.duckdbrc")

	v.SetDefault("idle.interval", time.Hour)

	v.SetDefault("status.addr", "")
	v.SetDefault("status.shutdown_timeout", 10*time.Second)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("telemetry.service_name", "ducklake-init")
	v.SetDefault("telemetry.log_level", "info")
}

// Validate reports every missing required value and every unusable tunable
// in a single *ConfigurationError.
func (c *Config) Validate() error {
	var missing []string
	required := []struct {
		env string
		val string
	}{
		{"POSTGRES_HOST", c.Postgres.Host},
		{"POSTGRES_USER", c.Postgres.User},
		{"POSTGRES_PASSWORD", c.Postgres.Password},
		{"POSTGRES_DB", c.Postgres.DB},
		{"AWS_ENDPOINT_URL", c.ObjectStore.EndpointURL},
		{"AWS_ACCESS_KEY_ID", c.ObjectStore.AccessKeyID},
		{"AWS_SECRET_ACCESS_KEY", c.ObjectStore.SecretAccessKey},
		{"BUCKET", c.ObjectStore.Bucket},
	}
	for _, r := range required {
		if strings.TrimSpace(r.val) == "" {
			missing = append(missing, r.env)
		}
	}

	var invalid []string
	if c.ObjectStore.EndpointURL != "" {
		if _, _, err := c.ObjectStore.S3Endpoint(); err != nil {
			invalid = append(invalid, err.Error())
		}
	}
	if c.Readiness.Interval <= 0 {
		invalid = append(invalid, "readiness.interval must be positive")
	}
	if c.Readiness.Timeout <= 0 {
		invalid = append(invalid, "readiness.timeout must be positive")
	}
	if c.Readiness.AttemptTimeout <= 0 {
		invalid = append(invalid, "readiness.attempt_timeout must be positive")
	}
	if c.Idle.Interval <= 0 {
		invalid = append(invalid, "idle.interval must be positive")
	}
	if c.Lake.Name == "" {
		invalid = append(invalid, "lake.name must not be empty")
	}

	if len(missing) > 0 || len(invalid) > 0 {
		return &ConfigurationError{Missing: missing, Invalid: invalid}
	}
	return nil
}

// S3Endpoint splits EndpointURL into the host:port DuckDB expects for
// s3_endpoint and whether the connection uses TLS.
func (o ObjectStoreConfig) S3Endpoint() (hostPort string, useSSL bool, err error) {
	u, err := url.Parse(o.EndpointURL)
	if err != nil {
		return "", false, fmt.Errorf("AWS_ENDPOINT_URL %q: %w", o.EndpointURL, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("AWS_ENDPOINT_URL %q has no host", o.EndpointURL)
	}
	switch u.Scheme {
	case "http":
		return u.Host, false, nil
	case "https":
		return u.Host, true, nil
	default:
		return "", false, fmt.Errorf("AWS_ENDPOINT_URL %q: unsupported scheme %q", o.EndpointURL, u.Scheme)
	}
}

// KeywordDSN renders the config as a libpq keyword/value connection string, the
// form both pgx and the DuckDB postgres extension accept.
func (cfg PostgresConfig) KeywordDSN() string {
	s := fmt.Sprintf("dbname=%s host=%s port=%d user=%s password=%s",
		quoteConnValue(cfg.DB),
		quoteConnValue(cfg.Host),
		cfg.Port,
		quoteConnValue(cfg.User),
		quoteConnValue(cfg.Password),
	)
	if cfg.SSLMode != "" {
		s += " sslmode=" + quoteConnValue(cfg.SSLMode)
	}
	return s
}

// quoteConnValue quotes a libpq value when it is empty or contains spaces,
// quotes or backslashes.
func quoteConnValue(v string) string {
	needsQuote := v == ""
	for _, r := range v {
		if r == ' ' || r == '\'' || r == '\\' {
			needsQuote = true
			break
		}
	}
	if !needsQuote {
		return v
	}
	out := make([]rune, 0, len(v)+2)
	out = append(out, '\'')
	for _, r := range v {
		if r == '\'' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	out = append(out, '\'')
	return string(out)
}

// DataPath is the object-store prefix holding the lake's data files.
func (c *Config) DataPath() string {
	prefix := strings.Trim(c.Lake.DataPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("s3://%s/", c.ObjectStore.Bucket)
	}
	return fmt.Sprintf("s3://%s/%s/", c.ObjectStore.Bucket, prefix)
}
