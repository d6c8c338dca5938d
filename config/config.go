package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
	ShipSync ShipSyncConfig `yaml:"shipsync"`
}

type DatabaseConfig struct {
	// DSN, если задан, важнее отдельных полей.
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

func (c DatabaseConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Username, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

type KafkaConfig struct {
	Host                        string `yaml:"host"`
	Port                        int    `yaml:"port"`
	ReconciledTopicName         string `yaml:"reconciled_topic_name"`
	ReconcileRequestedTopicName string `yaml:"reconcile_requested_topic_name"`
}

// Brokers returns nil when kafka is not configured.
func (c KafkaConfig) Brokers() []string {
	if c.Host == "" {
		return nil
	}
	return []string{fmt.Sprintf("%s:%d", c.Host, c.Port)}
}

type RedisConfig struct {
	// Addr, если задан, важнее host/port.
	Addr string `yaml:"addr"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// KeyPrefix добавляется ко всем ключам кэша и лимитера.
	KeyPrefix string `yaml:"key_prefix"`
}

func (c RedisConfig) Address() string {
	if c.Addr != "" {
		return c.Addr
	}
	if c.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type LogConfig struct {
	Level    string `yaml:"level"`    // debug | info | warn | error
	Encoding string `yaml:"encoding"` // json | console
	// File включает запись в файл с ротацией, в дополнение к stderr.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type ShipSyncConfig struct {
	HTTPAddr       string `yaml:"http_addr"`
	WorkerHTTPAddr string `yaml:"worker_http_addr"`

	// memory | postgres
	Store string `yaml:"store"`

	KafkaConsumerGroup  string `yaml:"kafka_consumer_group"`
	ViewCacheTTLSeconds int    `yaml:"view_cache_ttl_seconds"`

	GatewayTimeoutSeconds     int `yaml:"gateway_timeout_seconds"`
	GatewayRateLimitPerMinute int `yaml:"gateway_rate_limit_per_minute"`

	RefreshSchedule     string `yaml:"refresh_schedule"`
	RefreshBatchSize    int    `yaml:"refresh_batch_size"`
	RefreshConcurrency  int    `yaml:"refresh_concurrency"`
	RefreshLeaseSeconds int    `yaml:"refresh_lease_seconds"`

	// Планирование следующей проверки. Нули означают значения по умолчанию:
	// IN_TRANSIT/READY_FOR_PICKUP 30..120 минут, прочее 90 минут, backoff 5/15/30/60 минут.
	NextCheckActiveMinSeconds int `yaml:"next_check_active_min_seconds"`
	NextCheckActiveMaxSeconds int `yaml:"next_check_active_max_seconds"`
	NextCheckDefaultSeconds   int `yaml:"next_check_default_seconds"`
	NextCheckDeliveredSeconds int `yaml:"next_check_delivered_seconds"`
	Backoff1Seconds           int `yaml:"backoff_1_seconds"`
	Backoff2Seconds           int `yaml:"backoff_2_seconds"`
	Backoff3Seconds           int `yaml:"backoff_3_seconds"`
	Backoff4Seconds           int `yaml:"backoff_4_seconds"`

	CourierMode    string `yaml:"courier_mode"` // "fake" | "track24" | "emulatorv1"
	CourierBaseURL string `yaml:"courier_base_url"`
	CourierAPIKey  string `yaml:"courier_api_key"`
	CourierDomain  string `yaml:"courier_domain"`
	CourierName    string `yaml:"courier_name"`
}

func (c ShipSyncConfig) ViewCacheTTL() time.Duration {
	return time.Duration(c.ViewCacheTTLSeconds) * time.Second
}

func (c ShipSyncConfig) GatewayTimeout() time.Duration {
	return time.Duration(c.GatewayTimeoutSeconds) * time.Second
}

func (c ShipSyncConfig) RefreshLease() time.Duration {
	return time.Duration(c.RefreshLeaseSeconds) * time.Second
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	// .env не обязателен: без него работаем на переменных окружения процесса.
	_ = godotenv.Load()
	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	config.ApplyDefaults()

	return &config, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("SHIPSYNC_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("SHIPSYNC_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("SHIPSYNC_COURIER_API_KEY"); v != "" {
		c.ShipSync.CourierAPIKey = v
	}
	if v := os.Getenv("SHIPSYNC_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("SHIPSYNC_GATEWAY_TIMEOUT_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SHIPSYNC_GATEWAY_TIMEOUT_SECONDS: %w", err)
		}
		c.ShipSync.GatewayTimeoutSeconds = n
	}
	return nil
}

func (c *Config) ApplyDefaults() {
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Kafka.ReconciledTopicName == "" {
		c.Kafka.ReconciledTopicName = "shipsync.shipment-reconciled"
	}
	if c.Kafka.ReconcileRequestedTopicName == "" {
		c.Kafka.ReconcileRequestedTopicName = "shipsync.reconcile-requested"
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "shipsync:"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Encoding == "" {
		c.Log.Encoding = "json"
	}

	s := &c.ShipSync
	if s.HTTPAddr == "" {
		s.HTTPAddr = ":8080"
	}
	if s.WorkerHTTPAddr == "" {
		s.WorkerHTTPAddr = ":8081"
	}
	if s.Store == "" {
		s.Store = "postgres"
	}
	if s.KafkaConsumerGroup == "" {
		s.KafkaConsumerGroup = "ship-worker"
	}
	if s.GatewayTimeoutSeconds <= 0 {
		s.GatewayTimeoutSeconds = 10
	}
	if s.RefreshSchedule == "" {
		s.RefreshSchedule = "@every 30s"
	}
	if s.CourierMode == "" {
		s.CourierMode = "fake"
	}
	if s.CourierName == "" {
		s.CourierName = "CDEK"
	}
}
