package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"logLevel"`
	Server      struct {
		Port    int    `mapstructure:"port"`
		BaseURL string `mapstructure:"baseURL"` // public base URL used for provider callback URLs
	} `mapstructure:"server"`
	NATS struct {
		URL      string             `mapstructure:"url"`
		Dispatch ConsumerNatsConfig `mapstructure:"dispatch"`
	} `mapstructure:"nats"`
	Database struct {
		PostgresDSN         string `mapstructure:"postgresDSN"`
		PostgresAutoMigrate bool   `mapstructure:"postgresAutoMigrate"`
	} `mapstructure:"database"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	Provider struct {
		BaseURL string        `mapstructure:"baseURL"` // telephony provider API root
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"provider"`
	Email struct {
		APIKey string `mapstructure:"apiKey"`
		From   string `mapstructure:"from"`
		Admin  string `mapstructure:"admin"` // destination for account request notices
	} `mapstructure:"email"`
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port"`
	} `mapstructure:"metrics"`
	WorkerPools struct {
		Forwarding ForwardingWorkerPoolConfig `mapstructure:"forwarding"`
	} `mapstructure:"workerPools"`
}

// ForwardingWorkerPoolConfig holds configuration for the forwarding worker pool
type ForwardingWorkerPoolConfig struct {
	PoolSize   int           `mapstructure:"poolSize"`   // Number of workers
	QueueSize  int           `mapstructure:"queueSize"`  // Task queue buffer size
	MaxBlock   time.Duration `mapstructure:"maxBlock"`   // Max time to block when submitting if queue full
	ExpiryTime time.Duration `mapstructure:"expiryTime"` // Idle worker expiry time
}

// ConsumerNatsConfig holds configuration specific to a NATS consumer
type ConsumerNatsConfig struct {
	MaxAge       int64         `mapstructure:"maxAge"` // max age of messages in days
	Stream       string        `mapstructure:"stream"`
	Consumer     string        `mapstructure:"consumer"` // durable name
	QueueGroup   string        `mapstructure:"group"`
	SubjectList  []string      `mapstructure:"subjectList"`
	MaxDeliver   int           `mapstructure:"maxDeliver"`   // Max delivery attempts before the job is exhausted
	NakBaseDelay time.Duration `mapstructure:"nakBaseDelay"` // Base delay for exponential backoff NAK
	NakMaxDelay  time.Duration `mapstructure:"nakMaxDelay"`  // Maximum delay for exponential backoff NAK
}

// LoadConfig reads configuration from file or environment variables
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("environment", "development")
	v.SetDefault("logLevel", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 2112)

	v.SetDefault("nats.dispatch.stream", "DISPATCH_JOBS")
	v.SetDefault("nats.dispatch.consumer", "dispatch-worker")
	v.SetDefault("nats.dispatch.group", "dispatch")
	v.SetDefault("nats.dispatch.subjectList", []string{"v1.dispatch.>"})
	v.SetDefault("nats.dispatch.maxAge", int64(7))
	v.SetDefault("nats.dispatch.maxDeliver", 5)
	v.SetDefault("nats.dispatch.nakBaseDelay", 2*time.Second)
	v.SetDefault("nats.dispatch.nakMaxDelay", time.Minute)

	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("provider.baseURL", "https://api.twilio.com")
	v.SetDefault("provider.timeout", 30*time.Second)

	v.SetDefault("workerPools.forwarding.poolSize", 10)
	v.SetDefault("workerPools.forwarding.queueSize", 10000)
	v.SetDefault("workerPools.forwarding.maxBlock", time.Second)
	v.SetDefault("workerPools.forwarding.expiryTime", time.Minute)

	// Config file settings
	v.SetConfigName("default")
	v.SetConfigType("yaml")

	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("$HOME/.asfour")
	v.AddConfigPath("/etc/asfour")

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine, env vars cover it
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvs(v, Config{})

	// Read directly from ENV for critical values
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		v.Set("database.postgresDSN", dsn)
	}
	if lgLevel := os.Getenv("LOG_LEVEL"); lgLevel != "" {
		v.Set("logLevel", lgLevel)
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		v.Set("nats.url", url)
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		v.Set("redis.addr", addr)
	}
	if key := os.Getenv("SENDGRID_API_KEY"); key != "" {
		v.Set("email.apiKey", key)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &config, nil
}

// bindEnvs recursively binds environment variables to config struct fields
func bindEnvs(v *viper.Viper, cfg interface{}, parts ...string) {
	ifv := reflect.ValueOf(cfg)
	ift := reflect.TypeOf(cfg)
	for i := 0; i < ift.NumField(); i++ {
		fieldVal := ifv.Field(i)
		fieldType := ift.Field(i)

		tag := fieldType.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		path := append(parts, tag)
		key := strings.Join(path, ".")

		if fieldType.Type.Kind() == reflect.Struct {
			bindEnvs(v, fieldVal.Interface(), path...)
			continue
		}

		_ = v.BindEnv(key)
	}
}
