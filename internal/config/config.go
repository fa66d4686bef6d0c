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
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Drive   DriveConfig   `mapstructure:"drive"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`
	WorkerPools struct {
		Pipeline PipelineWorkerPoolConfig `mapstructure:"pipeline"`
	} `mapstructure:"workerPools"`
}

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DatabaseConfig selects the storage backend. SQLite is the default
// single-file deployment; a DATABASE_URL env switches to Postgres.
type DatabaseConfig struct {
	Driver      string `mapstructure:"driver"` // postgres | sqlite
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"autoMigrate"`
}

// GatewayConfig holds Z-API credentials and outbound-reply policy
type GatewayConfig struct {
	InstanceID      string        `mapstructure:"instanceId"`
	Token           string        `mapstructure:"token"`
	ClientToken     string        `mapstructure:"clientToken"`
	BaseURL         string        `mapstructure:"baseUrl"`
	ResponseEnabled bool          `mapstructure:"responseEnabled"`
	Cooldown        time.Duration `mapstructure:"cooldown"`
	SendTimeout     time.Duration `mapstructure:"sendTimeout"`
}

// LLMConfig holds Gemini settings for suggested replies
type LLMConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	APIKey        string        `mapstructure:"apiKey"`
	Model         string        `mapstructure:"model"`
	MaxTokens     int32         `mapstructure:"maxTokens"`
	Temperature   float32       `mapstructure:"temperature"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MinConfidence float64       `mapstructure:"minConfidence"` // auto-reply gate
	FewShotLimit  int           `mapstructure:"fewShotLimit"`
}

// DriveConfig holds Google Drive settings for document uploads
type DriveConfig struct {
	ClientID     string `mapstructure:"clientId"`
	ClientSecret string `mapstructure:"clientSecret"`
	FolderID     string `mapstructure:"folderId"`
	TokenFile    string `mapstructure:"tokenFile"`
	UploadsDir   string `mapstructure:"uploadsDir"` // local fallback root
}

// Enabled reports whether Drive uploads are configured at all.
func (d DriveConfig) Enabled() bool {
	return d.ClientID != "" && d.ClientSecret != ""
}

// IngestConfig holds document-ingestion settings
type IngestConfig struct {
	DownloadTimeout time.Duration `mapstructure:"downloadTimeout"`
	VisionEnabled   bool          `mapstructure:"visionEnabled"`
}

// PipelineWorkerPoolConfig holds configuration for the webhook pipeline worker pool
type PipelineWorkerPoolConfig struct {
	PoolSize   int           `mapstructure:"poolSize"`   // Number of workers
	QueueSize  int           `mapstructure:"queueSize"`  // Task queue buffer size
	MaxBlock   time.Duration `mapstructure:"maxBlock"`   // Max time to block when submitting if queue full
	ExpiryTime time.Duration `mapstructure:"expiryTime"` // Idle worker expiry time
}

// LoadConfig reads configuration from file or environment variables
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("environment", "development")
	v.SetDefault("logLevel", "info")
	v.SetDefault("server.port", 3000)
	v.SetDefault("metrics.enabled", true)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "/tmp/clientes.db")
	v.SetDefault("database.autoMigrate", true)

	// Replies stay off unless explicitly enabled; the gateway retries
	// misbehaving endpoints aggressively, so the default is observe-only.
	v.SetDefault("gateway.baseUrl", "https://api.z-api.io")
	v.SetDefault("gateway.responseEnabled", false)
	v.SetDefault("gateway.cooldown", 30*time.Second)
	v.SetDefault("gateway.sendTimeout", 10*time.Second)

	v.SetDefault("llm.enabled", true)
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.maxTokens", 500)
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.timeout", 10*time.Second)
	v.SetDefault("llm.minConfidence", 0.5)
	v.SetDefault("llm.fewShotLimit", 5)

	v.SetDefault("drive.tokenFile", "./drive-token.json")
	v.SetDefault("drive.uploadsDir", "./uploads")

	v.SetDefault("ingest.downloadTimeout", 30*time.Second)
	v.SetDefault("ingest.visionEnabled", false)

	v.SetDefault("workerPools.pipeline.poolSize", 10)
	v.SetDefault("workerPools.pipeline.queueSize", 10000)
	v.SetDefault("workerPools.pipeline.maxBlock", time.Second)
	v.SetDefault("workerPools.pipeline.expiryTime", time.Minute)

	// Config file settings
	v.SetConfigName("default")
	v.SetConfigType("yaml")

	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("$HOME/.wdespachante")
	v.AddConfigPath("/etc/wdespachante")

	if err := v.ReadInConfig(); err != nil {
		// It's ok if config file is not found, we'll use env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Map environment variables to config fields
	bindEnvs(v, Config{})

	// Read directly from ENV for critical values
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		v.Set("database.driver", "postgres")
		v.Set("database.dsn", dsn)
	}
	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		v.Set("database.driver", "sqlite")
		v.Set("database.dsn", dbPath)
	}
	if lgLevel := os.Getenv("LOG_LEVEL"); lgLevel != "" {
		v.Set("logLevel", lgLevel)
	}
	if port := os.Getenv("PORT"); port != "" {
		v.Set("server.port", port)
	}
	if id := os.Getenv("ZAPI_INSTANCE_ID"); id != "" {
		v.Set("gateway.instanceId", id)
	}
	if token := os.Getenv("ZAPI_TOKEN"); token != "" {
		v.Set("gateway.token", token)
	}
	if clientToken := os.Getenv("CLIENT_TOKEN"); clientToken != "" {
		v.Set("gateway.clientToken", clientToken)
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		v.Set("llm.apiKey", key)
	}
	if id := os.Getenv("GOOGLE_CLIENT_ID"); id != "" {
		v.Set("drive.clientId", id)
	}
	if secret := os.Getenv("GOOGLE_CLIENT_SECRET"); secret != "" {
		v.Set("drive.clientSecret", secret)
	}
	if folder := os.Getenv("GOOGLE_DRIVE_FOLDER_ID"); folder != "" {
		v.Set("drive.folderId", folder)
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
