package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	ConfigEnvPrefix = "BINV"

	StorageDriverPostgres = "postgres"
	StorageDriverSQLite   = "sqlite"
	StorageDriverRedis    = "redis"
	StorageDriverBoltDB   = "boltdb"
)

// Config defines the structure of the configuration file.
type Config struct {
	GitCommit               string          `yaml:"git_commit" envconfig:"GIT_COMMIT" json:"git_commit"`
	GitTag                  string          `yaml:"git_tag" envconfig:"GIT_TAG" json:"git_tag"`
	BuildTime               string          `yaml:"build_time" envconfig:"BUILD_TIME" json:"build_time"`
	IsProduction            bool            `yaml:"is_production" envconfig:"IS_PRODUCTION" json:"is_production"`
	LogLevel                zapcore.Level   `yaml:"log_level" envconfig:"LOG_LEVEL" json:"log_level"`
	LogFolder               string          `yaml:"log_folder" envconfig:"LOG_FOLDER" json:"log_folder"`
	LogMaxSize              int             `yaml:"log_max_size" envconfig:"LOG_MAX_SIZE" json:"log_max_size"`
	OpsEndpointsEnable      bool            `yaml:"ops_endpoints_enable" envconfig:"OPS_ENDPOINTS_ENABLE" json:"ops_endpoints_enable"`
	ProfilerEndpointsEnable bool            `yaml:"profiler_endpoints_enable" envconfig:"PROFILER_ENDPOINTS_ENABLE" json:"profiler_endpoints_enable"`
	Server                  ServerConfig    `yaml:"server" json:"server"`
	Storage                 StorageConfig   `yaml:"storage" json:"storage"`
	Postgres                PostgresConfig  `yaml:"postgres" json:"postgres"`
	SQLite                  SQLiteConfig    `yaml:"sqlite" json:"sqlite"`
	Redis                   RedisConfig     `yaml:"redis" json:"redis"`
	BoltDB                  BoltDBConfig    `yaml:"boltdb" json:"boltdb"`
	RateLimit               RateLimitConfig `yaml:"ratelimit" json:"ratelimit"`
}

type ServerConfig struct {
	Host                    string        `yaml:"host" envconfig:"HOST" json:"host"`
	Port                    string        `yaml:"port" envconfig:"PORT" json:"port"`
	ReadTimeout             time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" json:"read_timeout"`
	WriteTimeout            time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" json:"write_timeout"`
	RequestTimeout          time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" json:"request_timeout"` // Time to wait for a request to finish
	ShutdownTimeout         time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" json:"shutdown_timeout"`
}

type StorageConfig struct {
	Driver         string        `yaml:"driver" envconfig:"DRIVER" json:"driver"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" envconfig:"CONNECT_TIMEOUT" json:"connect_timeout"`
}

type PostgresConfig struct {
	DSN             string        `yaml:"dsn" envconfig:"DSN" json:"-"`
	MaxOpenConns    int           `yaml:"max_open_conns" envconfig:"MAX_OPEN_CONNS" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" envconfig:"MAX_IDLE_CONNS" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" envconfig:"CONN_MAX_LIFETIME" json:"conn_max_lifetime"`
}

type SQLiteConfig struct {
	FilePath    string        `yaml:"filepath" envconfig:"FILE_PATH" json:"filepath"`
	BusyTimeout time.Duration `yaml:"busy_timeout" envconfig:"BUSY_TIMEOUT" json:"busy_timeout"`
}

type RedisConfig struct {
	Host          string        `yaml:"host" envconfig:"HOST" json:"host"`
	Port          string        `yaml:"port" envconfig:"PORT" json:"port"`
	DialTimeout   time.Duration `yaml:"dial_timeout" envconfig:"DIAL_TIMEOUT" json:"dial_timeout"`
	ReadTimeout   time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" json:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" json:"write_timeout"`
	PoolSize      int           `yaml:"pool_size" envconfig:"POOL_SIZE" json:"pool_size"`
	PoolTimeout   time.Duration `yaml:"pool_timeout" envconfig:"POOL_TIMEOUT" json:"pool_timeout"`
	Username      string        `yaml:"username" envconfig:"USERNAME" json:"-"`
	Password      string        `yaml:"password" envconfig:"PASSWORD" json:"-"`
	DatabaseIndex int           `yaml:"db_index" envconfig:"DATABASE_INDEX" json:"db_index"`
	KeyPrefix     string        `yaml:"key_prefix" envconfig:"KEY_PREFIX" json:"key_prefix"`
}

type BoltDBConfig struct {
	FilePath   string        `yaml:"filepath" envconfig:"FILE_PATH" json:"filepath"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"TIMEOUT" json:"timeout"`
	BucketName string        `yaml:"bucket_name" envconfig:"BUCKET_NAME" json:"bucket_name"`
}

type RateLimitConfig struct {
	Enable            bool          `yaml:"enable" envconfig:"ENABLE" json:"enable"`
	RequestsPerSecond float64       `yaml:"requests_per_second" envconfig:"REQUESTS_PER_SECOND" json:"requests_per_second"`
	Burst             int           `yaml:"burst" envconfig:"BURST" json:"burst"`
	IdleTTL           time.Duration `yaml:"idle_ttl" envconfig:"IDLE_TTL" json:"idle_ttl"`
	TrustedProxies    []string      `yaml:"trusted_proxies" envconfig:"TRUSTED_PROXIES" json:"trusted_proxies"`
}

// LoadConfigFile provides an instance of config structure for the all application.
func LoadConfigFile(configFile string) (*Config, error) {
	file, err := os.Open(configFile)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	cfg := &Config{}
	if err = yaml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigEnvs reads the environments variables and overrides matching values of config.
func LoadConfigEnvs(prefix string, config *Config) error {
	return envconfig.Process(prefix, config)
}

// InitConfig setup defaults values for non provided parameters
// and configures build tags values to be used if provided.
func InitConfig(config *Config, gitCommit, gitTag, buildTime string) error {
	if len(gitCommit) != 0 {
		config.GitCommit = gitCommit
	}

	if len(gitTag) != 0 {
		config.GitTag = gitTag
	}

	if len(buildTime) != 0 {
		config.BuildTime = buildTime
	}

	if len(config.Server.Host) == 0 || len(config.Server.Port) == 0 {
		return errors.New("make sure to set valid server address and port in configuration file")
	}

	if config.Server.RequestTimeout <= 0 {
		config.Server.RequestTimeout = 30 * time.Second
	}

	if config.Server.ShutdownTimeout <= 0 {
		config.Server.ShutdownTimeout = 30 * time.Second
	}

	if config.LogMaxSize <= 0 {
		config.LogMaxSize = 10
	}

	if config.Storage.ConnectTimeout <= 0 {
		config.Storage.ConnectTimeout = 10 * time.Second
	}

	switch config.Storage.Driver {
	case StorageDriverPostgres:
		if len(config.Postgres.DSN) == 0 {
			return errors.New("make sure to set a valid postgres dsn in configuration file")
		}
	case StorageDriverSQLite:
		if len(config.SQLite.FilePath) == 0 {
			return errors.New("make sure to set a valid sqlite file path in configuration file")
		}
	case StorageDriverRedis:
		if len(config.Redis.Host) == 0 || len(config.Redis.Port) == 0 {
			return errors.New("make sure to set valid redis address and port in configuration file")
		}
		if len(config.Redis.KeyPrefix) == 0 {
			config.Redis.KeyPrefix = "books"
		}
	case StorageDriverBoltDB:
		if len(config.BoltDB.FilePath) == 0 || len(config.BoltDB.BucketName) == 0 {
			return errors.New("make sure to set valid boltdb file path and bucket name in configuration file")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", config.Storage.Driver)
	}

	if config.RateLimit.Enable && (config.RateLimit.RequestsPerSecond <= 0 || config.RateLimit.Burst <= 0) {
		return errors.New("make sure to set positive rate limit values in configuration file")
	}

	if _, err := ParseTrustedProxies(config.RateLimit.TrustedProxies); err != nil {
		return fmt.Errorf("make sure to set valid rate limit trusted proxies in configuration file: %w", err)
	}

	if config.RateLimit.IdleTTL <= 0 {
		config.RateLimit.IdleTTL = 3 * time.Minute
	}

	return nil
}

// LoadAndInitConfigs loads in order the configs from various predefined sources
// then build the App configuration data.
func LoadAndInitConfigs(gitCommit, gitTag, buildTime string) (*Config, error) {
	// Setup the yaml configuration from file.
	config, err := LoadConfigFile("./config.yml")
	if err != nil {
		return config, fmt.Errorf("failed to load configurations from file: %s", err)
	}

	// Set the environment configuration. The file is optional.
	err = godotenv.Load("./config.env")
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config, fmt.Errorf("failed to set environment configurations: %s", err)
	}

	// Use environment variables with prefix `BINV`.
	err = LoadConfigEnvs(ConfigEnvPrefix, config)
	if err != nil {
		return config, fmt.Errorf("failed to load configurations from environment: %s", err)
	}

	err = InitConfig(config, gitCommit, gitTag, buildTime)
	if err != nil {
		return config, fmt.Errorf("failed to initialize configurations: %s", err)
	}
	return config, nil
}
