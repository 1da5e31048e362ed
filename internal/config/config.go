package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/weather-bridge/internal/validation"
)

// Config holds bridge configuration loaded from YAML, secrets and env.
type Config struct {
	ServerPort string `validate:"required,numeric"`

	WundergroundAPIKey string `validate:"required"`
	StationID          string `validate:"required"`
	Units              string `validate:"oneof=si metric imperial uk-hybrid"`
	Geocode            string
	DetailedConditions bool
	ForecastDays       int `validate:"gte=0,lte=5"`
	ObservationURL     string `validate:"omitempty,url"`
	ForecastURL        string `validate:"omitempty,url"`
	UpstreamTimeout    time.Duration
	Timezone           string
	Location           *time.Location

	GeocodeCity    string
	GeocodeState   string
	GeocodeCountry string
	GoogleAPIKey   string

	PWSEnabled   bool
	PWSStationID string
	PWSAPIKey    string
	PWSURL       string `validate:"omitempty,url"`
	PWSTimeout   time.Duration

	MQTTEnabled     bool
	MQTTBroker      string
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopicPrefix string
	MQTTQoS         int `validate:"gte=0,lte=2"`
	MQTTRetain      bool

	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	PollInterval time.Duration `validate:"gt=0"`

	RequestTimeout time.Duration
	CacheTTL       time.Duration
	CacheBackend   string `validate:"oneof=in_memory memcached"`

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	CircuitBreakerFailureThreshold int `validate:"gte=1"`
	CircuitBreakerSuccessThreshold int `validate:"gte=1"`
	CircuitBreakerTimeout          time.Duration
	RateLimitRPS                   int
	RateLimitBurst                 int

	ShutdownTimeout time.Duration

	DegradedWindow   time.Duration
	DegradedErrorPct int `validate:"gte=1,lte=100"`
	StaleAfter       time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Wunderground struct {
		StationID          string `yaml:"station_id"`
		Units              string `yaml:"units"`
		Geocode            string `yaml:"geocode"`
		DetailedConditions bool   `yaml:"detailed_conditions"`
		ForecastDays       *int   `yaml:"forecast_days"`
		ObservationURL     string `yaml:"observation_url"`
		ForecastURL        string `yaml:"forecast_url"`
		Timeout            string `yaml:"timeout"`
		Timezone           string `yaml:"timezone"`
	} `yaml:"wunderground"`

	Geocoding struct {
		City    string `yaml:"city"`
		State   string `yaml:"state"`
		Country string `yaml:"country"`
	} `yaml:"geocoding"`

	PWS struct {
		Enabled   bool   `yaml:"enabled"`
		StationID string `yaml:"station_id"`
		URL       string `yaml:"url"`
		Timeout   string `yaml:"timeout"`
	} `yaml:"pws"`

	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		ClientID    string `yaml:"client_id"`
		Username    string `yaml:"username"`
		TopicPrefix string `yaml:"topic_prefix"`
		QoS         int    `yaml:"qos"`
		Retain      *bool  `yaml:"retain"`
	} `yaml:"mqtt"`

	Kafka struct {
		Enabled bool     `yaml:"enabled"`
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`

	Poll struct {
		Interval string `yaml:"interval"`
	} `yaml:"poll"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		CircuitBreakerFailureThreshold int    `yaml:"circuit_breaker_failure_threshold"`
		CircuitBreakerSuccessThreshold int    `yaml:"circuit_breaker_success_threshold"`
		CircuitBreakerTimeout          string `yaml:"circuit_breaker_timeout"`
		RateLimitRPS                   int    `yaml:"rate_limit_rps"`
		RateLimitBurst                 int    `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
		StaleAfter       string `yaml:"stale_after"`
	} `yaml:"lifecycle"`
}

type secretsFile struct {
	WundergroundAPIKey string `yaml:"wunderground_api_key"`
	PWSAPIKey          string `yaml:"pws_api_key"`
	GoogleAPIKey       string `yaml:"google_api_key"`
	MQTTPassword       string `yaml:"mqtt_password"`
}

var validate = validator.New()

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml.
// A .env file in the working directory is loaded first; it never overrides variables that are
// already set. Secrets come from env or the secrets file, env winning. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := loadSecrets(filepath.Join(cwd, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.WundergroundAPIKey = secret("WUNDERGROUND_API_KEY", sec.WundergroundAPIKey)
	if cfg.WundergroundAPIKey == "" {
		return nil, fmt.Errorf("WUNDERGROUND_API_KEY required (set env or config/secrets.yaml wunderground_api_key)")
	}
	cfg.PWSAPIKey = secret("PWS_API_KEY", sec.PWSAPIKey)
	cfg.GoogleAPIKey = secret("GOOGLE_API_KEY", sec.GoogleAPIKey)
	cfg.MQTTPassword = secret("MQTT_PASSWORD", sec.MQTTPassword)

	wu := fc.Wunderground
	cfg.StationID = strings.TrimSpace(wu.StationID)
	cfg.Units = strings.TrimSpace(strings.ToLower(wu.Units))
	if cfg.Units == "" {
		cfg.Units = "si"
	}
	cfg.Geocode = strings.TrimSpace(wu.Geocode)
	cfg.DetailedConditions = wu.DetailedConditions
	cfg.ForecastDays = 5
	if wu.ForecastDays != nil {
		cfg.ForecastDays = *wu.ForecastDays
	}
	cfg.ObservationURL = wu.ObservationURL
	cfg.ForecastURL = wu.ForecastURL
	cfg.UpstreamTimeout = parseDurationOrZero(wu.Timeout, 10*time.Second)
	cfg.Timezone = strings.TrimSpace(wu.Timezone)

	cfg.GeocodeCity = strings.TrimSpace(fc.Geocoding.City)
	cfg.GeocodeState = strings.TrimSpace(fc.Geocoding.State)
	cfg.GeocodeCountry = strings.TrimSpace(fc.Geocoding.Country)

	cfg.PWSEnabled = fc.PWS.Enabled
	cfg.PWSStationID = strings.TrimSpace(fc.PWS.StationID)
	cfg.PWSURL = fc.PWS.URL
	cfg.PWSTimeout = parseDuration(fc.PWS.Timeout, 10*time.Second)

	cfg.MQTTEnabled = fc.MQTT.Enabled
	cfg.MQTTBroker = strings.TrimSpace(fc.MQTT.Broker)
	cfg.MQTTClientID = fc.MQTT.ClientID
	cfg.MQTTUsername = fc.MQTT.Username
	cfg.MQTTTopicPrefix = fc.MQTT.TopicPrefix
	if cfg.MQTTTopicPrefix == "" {
		cfg.MQTTTopicPrefix = "weather"
	}
	cfg.MQTTQoS = fc.MQTT.QoS
	cfg.MQTTRetain = true
	if fc.MQTT.Retain != nil {
		cfg.MQTTRetain = *fc.MQTT.Retain
	}

	cfg.KafkaEnabled = fc.Kafka.Enabled
	cfg.KafkaBrokers = fc.Kafka.Brokers
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		cfg.KafkaBrokers = strings.Split(v, ",")
	}
	cfg.KafkaTopic = fc.Kafka.Topic
	if cfg.KafkaTopic == "" {
		cfg.KafkaTopic = "weather.reports"
	}

	cfg.PollInterval = parseDuration(fc.Poll.Interval, 5*time.Minute)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 15*time.Minute)
	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.CircuitBreakerFailureThreshold = fc.Reliability.CircuitBreakerFailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = fc.Reliability.CircuitBreakerSuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 2
	}
	cfg.CircuitBreakerTimeout = parseDuration(fc.Reliability.CircuitBreakerTimeout, 60*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 30*time.Minute)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}
	cfg.StaleAfter = parseDuration(fc.Lifecycle.StaleAfter, 3*cfg.PollInterval)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

// secret returns the env variable when set, otherwise the secrets file value.
func secret(envName, fromFile string) string {
	if v := strings.TrimSpace(os.Getenv(envName)); v != "" {
		return v
	}
	return strings.TrimSpace(fromFile)
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
// Used for parsing duration fields from YAML config with safe fallback to defaults.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validateConfig runs struct-tag validation, then the checks that span fields.
// A zero upstream timeout means the transport default; otherwise RequestTimeout is
// raised above it so a read-through fetch can complete.
func validateConfig(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	stationID, err := validation.ValidateStationID(cfg.StationID)
	if err != nil {
		return fmt.Errorf("wunderground.station_id: %w", err)
	}
	cfg.StationID = stationID

	if cfg.Geocode != "" {
		geocode, err := validation.ValidateGeocode(cfg.Geocode)
		if err != nil {
			return fmt.Errorf("wunderground.geocode: %w", err)
		}
		cfg.Geocode = geocode
	}

	if cfg.UpstreamTimeout < 0 {
		return fmt.Errorf("wunderground.timeout must not be negative")
	}
	if cfg.UpstreamTimeout > 0 && cfg.RequestTimeout <= cfg.UpstreamTimeout {
		cfg.RequestTimeout = cfg.UpstreamTimeout + time.Second
	}

	cfg.Location = time.Local
	if cfg.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return fmt.Errorf("wunderground.timezone: %w", err)
		}
		cfg.Location = loc
	}

	if cfg.PWSEnabled {
		if _, err := validation.ValidateStationID(cfg.PWSStationID); err != nil {
			return fmt.Errorf("pws.station_id: %w", err)
		}
		if cfg.PWSAPIKey == "" {
			return fmt.Errorf("PWS_API_KEY required when pws.enabled (set env or config/secrets.yaml pws_api_key)")
		}
	}
	if cfg.MQTTEnabled && cfg.MQTTBroker == "" {
		return fmt.Errorf("mqtt.broker required when mqtt.enabled")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return fmt.Errorf("kafka.brokers required when kafka.enabled")
	}
	return nil
}
