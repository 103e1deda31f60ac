package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// HTTP server and attribution window
	App AppConfig `mapstructure:"app"`

	// PostgreSQL
	Postgres PostgresConfig `mapstructure:"postgres"`

	// Redis
	Redis RedisConfig `mapstructure:"redis"`

	// NATS
	NATS NATSConfig `mapstructure:"nats"`

	// Prometheus
	Prometheus PrometheusConfig `mapstructure:"prometheus"`

	// Kommo CRM
	Kommo KommoConfig `mapstructure:"kommo"`

	// Google Ads
	GoogleAds GoogleAdsConfig `mapstructure:"google_ads"`
}

type AppConfig struct {
	Addr            string `mapstructure:"addr"`
	ClickTTLMinutes int    `mapstructure:"click_ttl_minutes"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Port     int    `mapstructure:"port"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NATSConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type PrometheusConfig struct {
	Port int `mapstructure:"port"`
}

// KommoConfig describes access to the Kommo CRM account and the custom field
// IDs the attribution flow writes to and reads from.
type KommoConfig struct {
	// BaseURL is a template containing a {subdomain} placeholder,
	// e.g. "https://{subdomain}.kommo.com/api/v4".
	BaseURL          string `mapstructure:"base_url"`
	Subdomain        string `mapstructure:"subdomain"`
	AccessToken      string `mapstructure:"access_token"`
	TargetPipelineID int    `mapstructure:"target_pipeline_id"`
	TargetStageID    int    `mapstructure:"target_stage_id"`

	// FieldIDs maps logical field names (source, gclid, gbraid, page_path,
	// phone, email, conversion_value, currency_code, conversion_time and
	// any boolean marker fields) to Kommo custom field IDs.
	FieldIDs map[string]int `mapstructure:"field_ids"`

	// Salesbot IDs for the two follow-up reminder windows.
	ShortWindowSalesbotID int `mapstructure:"short_window_salesbot_id"`
	LongWindowSalesbotID  int `mapstructure:"long_window_salesbot_id"`
}

// GoogleAdsConfig describes the Google Ads account used for offline
// conversion uploads.
type GoogleAdsConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	DeveloperToken   string `mapstructure:"developer_token"`
	LoginCustomerID  string `mapstructure:"login_customer_id"`
	ClientCustomerID string `mapstructure:"client_customer_id"`
	JSONKeyFilePath  string `mapstructure:"json_key_file_path"`

	// ConversionActionIDs maps a conversion action name (as configured in
	// the Google Ads UI) to its numeric conversion action ID.
	ConversionActionIDs map[string]string `mapstructure:"conversion_action_ids"`
}

func Load() (*Config, error) {
	// Load local .env for development (ignored when missing).
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Search for config/config.yaml (plus root for overrides).
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Allow environment variables to override YAML entries.
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Preserve legacy env variable names.
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.addr", ":8080")
	v.SetDefault("app.click_ttl_minutes", 15)
	v.SetDefault("kommo.base_url", "https://{subdomain}.kommo.com/api/v4")
	v.SetDefault("google_ads.enabled", false)
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.addr", "APP_ADDR")
	v.BindEnv("app.click_ttl_minutes", "CLICK_LOG_TTL_MINUTES")

	// PostgreSQL
	v.BindEnv("postgres.host", "PG_HOST")
	v.BindEnv("postgres.user", "PG_USER")
	v.BindEnv("postgres.password", "PG_PASSWORD")
	v.BindEnv("postgres.database", "PG_DB")
	v.BindEnv("postgres.port", "PG_PORT")
	v.BindEnv("postgres.sslmode", "PG_SSLMODE")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")

	// NATS
	v.BindEnv("nats.host", "NATS_HOST")
	v.BindEnv("nats.port", "NATS_PORT")
	v.BindEnv("nats.user", "NATS_USER")
	v.BindEnv("nats.password", "NATS_PASSWORD")

	// Prometheus
	v.BindEnv("prometheus.port", "PROM_PORT")

	// Kommo
	v.BindEnv("kommo.base_url", "KOMMO_BASE_URL")
	v.BindEnv("kommo.subdomain", "KOMMO_SUBDOMAIN")
	v.BindEnv("kommo.access_token", "KOMMO_ACCESS_TOKEN")
	v.BindEnv("kommo.target_pipeline_id", "KOMMO_TARGET_PIPELINE_ID")
	v.BindEnv("kommo.target_stage_id", "KOMMO_TARGET_STAGE_ID")
	v.BindEnv("kommo.short_window_salesbot_id", "KOMMO_SHORT_WINDOW_SALESBOT_ID")
	v.BindEnv("kommo.long_window_salesbot_id", "KOMMO_LONG_WINDOW_SALESBOT_ID")

	// Google Ads
	v.BindEnv("google_ads.enabled", "GOOGLE_ADS_IS_ENABLED")
	v.BindEnv("google_ads.developer_token", "GOOGLE_ADS_DEVELOPER_TOKEN")
	v.BindEnv("google_ads.login_customer_id", "GOOGLE_ADS_LOGIN_CUSTOMER_ID")
	v.BindEnv("google_ads.client_customer_id", "GOOGLE_ADS_CLIENT_CUSTOMER_ID")
	v.BindEnv("google_ads.json_key_file_path", "GOOGLE_ADS_JSON_KEY_FILE_PATH")
}
