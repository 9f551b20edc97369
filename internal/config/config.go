package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. SHARELINK_AUTH_JWT_SECRET
const EnvPrefix = "SHARELINK"

// Config represents the entire application configuration
type Config struct {
	Database     DatabaseConfig     `mapstructure:"database"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Share        ShareConfig        `mapstructure:"share"`
	Maintenance  MaintenanceConfig  `mapstructure:"maintenance"`
	Analytics    AnalyticsConfig    `mapstructure:"analytics"`
	Notification NotificationConfig `mapstructure:"notification"`
	SMTP         SMTPConfig         `mapstructure:"smtp"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Admin        AdminConfig        `mapstructure:"admin"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path          string `mapstructure:"path"`
	BusyTimeoutMs int    `mapstructure:"busy_timeout_ms"`
	QueryTimeout  string `mapstructure:"query_timeout"`
	MaxOpenConns  int    `mapstructure:"max_open_conns"`
}

// HTTPConfig contains HTTP server configuration
type HTTPConfig struct {
	BindAddr           string `mapstructure:"bind_addr"`
	BaseURL            string `mapstructure:"base_url"`
	TrustProxy         bool   `mapstructure:"trust_proxy"`
	ReadTimeout        string `mapstructure:"read_timeout"`
	WriteTimeout       string `mapstructure:"write_timeout"`
	IdleTimeout        string `mapstructure:"idle_timeout"`
	ShutdownTimeout    string `mapstructure:"shutdown_timeout"`
	PublicRateInterval string `mapstructure:"public_rate_interval"`
	PublicRateBurst    int    `mapstructure:"public_rate_burst"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ShareConfig contains share policy settings
type ShareConfig struct {
	MaxAccessCeiling int64  `mapstructure:"max_access_ceiling"`
	MaxLifetime      string `mapstructure:"max_lifetime"`
	DefaultLifetime  string `mapstructure:"default_lifetime"`
	LogDeniedAccess  bool   `mapstructure:"log_denied_access"`
}

// MaintenanceConfig contains sweep and retention settings
type MaintenanceConfig struct {
	SweepInterval             string `mapstructure:"sweep_interval"`
	CleanupInterval           string `mapstructure:"cleanup_interval"`
	RetentionDays             int    `mapstructure:"retention_days"`
	AncillaryRetention        string `mapstructure:"ancillary_retention"`
	NotificationRetryInterval string `mapstructure:"notification_retry_interval"`
	NotificationRetryMaxAge   string `mapstructure:"notification_retry_max_age"`
}

// AnalyticsConfig contains suspicious activity and health thresholds
type AnalyticsConfig struct {
	SuspiciousWindow    string `mapstructure:"suspicious_window"`
	SuspiciousThreshold int64  `mapstructure:"suspicious_threshold"`
	CountDenials        bool   `mapstructure:"count_denials"`
	MaxQueryLatency     string `mapstructure:"max_query_latency"`
	MaxSuspiciousIPs    int    `mapstructure:"max_suspicious_ips"`
}

// NotificationConfig contains notification settings
type NotificationConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Subject       string `mapstructure:"subject"`
	SendTimeout   string `mapstructure:"send_timeout"`
	MaxRecipients int    `mapstructure:"max_recipients"`
	MaxAttempts   int    `mapstructure:"max_attempts"`
}

// SMTPConfig contains outgoing mail settings
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	UseTLS   bool   `mapstructure:"use_tls"`
}

// StorageConfig selects and configures the file store
type StorageConfig struct {
	Backend           string       `mapstructure:"backend"`
	Local             LocalStorage `mapstructure:"local"`
	S3                S3Storage    `mapstructure:"s3"`
	MetadataCacheSize int          `mapstructure:"metadata_cache_size"`
	MetadataCacheTTL  string       `mapstructure:"metadata_cache_ttl"`
}

// LocalStorage configures the local filesystem file store
type LocalStorage struct {
	RootDir string `mapstructure:"root_dir"`
}

// S3Storage configures the S3 file store
type S3Storage struct {
	Bucket       string `mapstructure:"bucket"`
	Prefix       string `mapstructure:"prefix"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

// AuthConfig contains owner authentication settings
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
	Leeway    string `mapstructure:"leeway"`
}

// AdminConfig contains admin endpoint settings
type AdminConfig struct {
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	TriggerInterval string `mapstructure:"trigger_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "/var/lib/sharelink/sharelink.db")
	v.SetDefault("database.busy_timeout_ms", 5000)
	v.SetDefault("database.query_timeout", "10s")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("http.bind_addr", "0.0.0.0:8080")
	v.SetDefault("http.base_url", "http://localhost:8080")
	v.SetDefault("http.trust_proxy", false)
	v.SetDefault("http.read_timeout", "30s")
	v.SetDefault("http.write_timeout", "5m")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("http.shutdown_timeout", "30s")
	v.SetDefault("http.public_rate_interval", "100ms")
	v.SetDefault("http.public_rate_burst", 30)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("share.max_access_ceiling", 10000)
	v.SetDefault("share.max_lifetime", "8760h")
	v.SetDefault("share.default_lifetime", "0s")
	v.SetDefault("share.log_denied_access", true)
	v.SetDefault("maintenance.sweep_interval", "1m")
	v.SetDefault("maintenance.cleanup_interval", "1h")
	v.SetDefault("maintenance.retention_days", 90)
	v.SetDefault("maintenance.ancillary_retention", "720h")
	v.SetDefault("maintenance.notification_retry_interval", "5m")
	v.SetDefault("maintenance.notification_retry_max_age", "24h")
	v.SetDefault("analytics.suspicious_window", "1h")
	v.SetDefault("analytics.suspicious_threshold", 100)
	v.SetDefault("analytics.count_denials", false)
	v.SetDefault("analytics.max_query_latency", "500ms")
	v.SetDefault("analytics.max_suspicious_ips", 10)
	v.SetDefault("notification.enabled", false)
	v.SetDefault("notification.subject", "A file has been shared with you")
	v.SetDefault("notification.send_timeout", "10s")
	v.SetDefault("notification.max_recipients", 50)
	v.SetDefault("notification.max_attempts", 5)
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.user", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("smtp.use_tls", false)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local.root_dir", "/var/lib/sharelink/files")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.prefix", "")
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.access_key", "")
	v.SetDefault("storage.s3.secret_key", "")
	v.SetDefault("storage.s3.use_path_style", false)
	v.SetDefault("storage.metadata_cache_size", 1024)
	v.SetDefault("storage.metadata_cache_ttl", "1m")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.leeway", "30s")
	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.password", "")
	v.SetDefault("admin.trigger_interval", "10s")
}

// Load loads configuration from the specified file path. An empty path
// uses defaults and environment overrides only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Database.BusyTimeoutMs < 0 {
		return fmt.Errorf("database.busy_timeout_ms must not be negative")
	}

	durations := map[string]string{
		"database.query_timeout":                  c.Database.QueryTimeout,
		"http.read_timeout":                       c.HTTP.ReadTimeout,
		"http.write_timeout":                      c.HTTP.WriteTimeout,
		"http.idle_timeout":                       c.HTTP.IdleTimeout,
		"http.shutdown_timeout":                   c.HTTP.ShutdownTimeout,
		"http.public_rate_interval":               c.HTTP.PublicRateInterval,
		"share.max_lifetime":                      c.Share.MaxLifetime,
		"share.default_lifetime":                  c.Share.DefaultLifetime,
		"maintenance.sweep_interval":              c.Maintenance.SweepInterval,
		"maintenance.cleanup_interval":            c.Maintenance.CleanupInterval,
		"maintenance.ancillary_retention":         c.Maintenance.AncillaryRetention,
		"maintenance.notification_retry_interval": c.Maintenance.NotificationRetryInterval,
		"maintenance.notification_retry_max_age":  c.Maintenance.NotificationRetryMaxAge,
		"analytics.suspicious_window":             c.Analytics.SuspiciousWindow,
		"analytics.max_query_latency":             c.Analytics.MaxQueryLatency,
		"notification.send_timeout":               c.Notification.SendTimeout,
		"storage.metadata_cache_ttl":              c.Storage.MetadataCacheTTL,
		"auth.leeway":                             c.Auth.Leeway,
		"admin.trigger_interval":                  c.Admin.TriggerInterval,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", key)
		}
	}

	if c.Share.MaxAccessCeiling < 0 {
		return fmt.Errorf("share.max_access_ceiling must not be negative")
	}
	if c.Maintenance.RetentionDays < 1 {
		return fmt.Errorf("maintenance.retention_days must be positive")
	}
	if c.Analytics.SuspiciousThreshold < 1 {
		return fmt.Errorf("analytics.suspicious_threshold must be positive")
	}
	if c.HTTP.PublicRateBurst < 1 {
		return fmt.Errorf("http.public_rate_burst must be positive")
	}
	if c.Notification.MaxRecipients < 1 || c.Notification.MaxRecipients > 1000 {
		return fmt.Errorf("notification.max_recipients must be between 1 and 1000")
	}
	if c.Notification.MaxAttempts < 1 {
		return fmt.Errorf("notification.max_attempts must be positive")
	}

	if c.Notification.Enabled {
		if c.SMTP.Host == "" || c.SMTP.From == "" {
			return fmt.Errorf("smtp.host and smtp.from are required when notifications are enabled")
		}
		if c.SMTP.Port < 1 || c.SMTP.Port > 65535 {
			return fmt.Errorf("smtp.port must be between 1 and 65535")
		}
	}

	switch c.Storage.Backend {
	case "local":
		if c.Storage.Local.RootDir == "" {
			return fmt.Errorf("storage.local.root_dir is required")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required")
		}
	default:
		return fmt.Errorf("invalid storage.backend: %s", c.Storage.Backend)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// parseDuration returns the parsed value, or fallback when empty or invalid
func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// GetQueryTimeout returns the per-query timeout as time.Duration
func (c *DatabaseConfig) GetQueryTimeout() time.Duration {
	return parseDuration(c.QueryTimeout, 10*time.Second)
}

// GetBusyTimeout returns the SQLite busy timeout as time.Duration
func (c *DatabaseConfig) GetBusyTimeout() time.Duration {
	if c.BusyTimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.BusyTimeoutMs) * time.Millisecond
}

// GetReadTimeout returns the read timeout as time.Duration
func (c *HTTPConfig) GetReadTimeout() time.Duration {
	return parseDuration(c.ReadTimeout, 30*time.Second)
}

// GetWriteTimeout returns the write timeout as time.Duration
func (c *HTTPConfig) GetWriteTimeout() time.Duration {
	return parseDuration(c.WriteTimeout, 5*time.Minute)
}

// GetIdleTimeout returns the idle timeout as time.Duration
func (c *HTTPConfig) GetIdleTimeout() time.Duration {
	return parseDuration(c.IdleTimeout, 60*time.Second)
}

// GetShutdownTimeout returns the graceful shutdown timeout as time.Duration
func (c *HTTPConfig) GetShutdownTimeout() time.Duration {
	return parseDuration(c.ShutdownTimeout, 30*time.Second)
}

// GetPublicRateInterval returns the per-IP refill interval of share link requests
func (c *HTTPConfig) GetPublicRateInterval() time.Duration {
	return parseDuration(c.PublicRateInterval, 100*time.Millisecond)
}

// GetMaxLifetime returns the longest allowed share lifetime (0 = no cap)
func (c *ShareConfig) GetMaxLifetime() time.Duration {
	return parseDuration(c.MaxLifetime, 0)
}

// GetDefaultLifetime returns the lifetime applied to shares created without expiry
func (c *ShareConfig) GetDefaultLifetime() time.Duration {
	return parseDuration(c.DefaultLifetime, 0)
}

// GetSweepInterval returns the sweep interval as time.Duration
func (c *MaintenanceConfig) GetSweepInterval() time.Duration {
	return parseDuration(c.SweepInterval, time.Minute)
}

// GetCleanupInterval returns the cleanup interval as time.Duration
func (c *MaintenanceConfig) GetCleanupInterval() time.Duration {
	return parseDuration(c.CleanupInterval, time.Hour)
}

// GetAncillaryRetention returns how long denials and failed notifications are kept
func (c *MaintenanceConfig) GetAncillaryRetention() time.Duration {
	return parseDuration(c.AncillaryRetention, 30*24*time.Hour)
}

// GetNotificationRetryInterval returns the retry interval (0 = never)
func (c *MaintenanceConfig) GetNotificationRetryInterval() time.Duration {
	return parseDuration(c.NotificationRetryInterval, 5*time.Minute)
}

// GetNotificationRetryMaxAge returns the retry window as time.Duration
func (c *MaintenanceConfig) GetNotificationRetryMaxAge() time.Duration {
	return parseDuration(c.NotificationRetryMaxAge, 24*time.Hour)
}

// GetSuspiciousWindow returns the suspicious activity window as time.Duration
func (c *AnalyticsConfig) GetSuspiciousWindow() time.Duration {
	return parseDuration(c.SuspiciousWindow, time.Hour)
}

// GetMaxQueryLatency returns the latency above which health degrades
func (c *AnalyticsConfig) GetMaxQueryLatency() time.Duration {
	return parseDuration(c.MaxQueryLatency, 500*time.Millisecond)
}

// GetSendTimeout returns the per-message send timeout as time.Duration
func (c *NotificationConfig) GetSendTimeout() time.Duration {
	return parseDuration(c.SendTimeout, 10*time.Second)
}

// GetMetadataCacheTTL returns the file metadata cache TTL as time.Duration
func (c *StorageConfig) GetMetadataCacheTTL() time.Duration {
	return parseDuration(c.MetadataCacheTTL, time.Minute)
}

// GetLeeway returns the allowed clock skew for token validation
func (c *AuthConfig) GetLeeway() time.Duration {
	return parseDuration(c.Leeway, 30*time.Second)
}

// GetTriggerInterval returns the minimum gap between manual runs of a job
func (c *AdminConfig) GetTriggerInterval() time.Duration {
	return parseDuration(c.TriggerInterval, 10*time.Second)
}
