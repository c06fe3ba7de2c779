package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string
	Store    string
	MySQL    MySQLConfig
	Redis    RedisConfig
	MinIO    MinIOConfig
	Auth     AuthConfig
	Workers  WorkerConfig
	Log      LogConfig

	// ShutdownTimeout bounds how long servers drain on SIGINT/SIGTERM.
	ShutdownTimeout time.Duration
	// SeedProducts optionally names a JSON file of products loaded at startup.
	SeedProducts string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// MinIOConfig configures image uploads. An empty Endpoint disables them.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

func (c MinIOConfig) Enabled() bool {
	return c.Endpoint != ""
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type WorkerConfig struct {
	Count     int
	QueueSize int
}

type LogConfig struct {
	Level       string
	Development bool
}

// ClientConfig is what invctl needs to reach a running server.
type ClientConfig struct {
	ServerURL string
	Token     string
	Timeout   time.Duration
	LogLevel  string
	// VersionCheck sends the loaded version with each save so the server
	// rejects writes over a newer copy.
	VersionCheck bool
}

func setServerDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("grpc.addr", ":50051")
	v.SetDefault("store", StoreMySQL)
	v.SetDefault("mysql.dsn", "root:root@tcp(localhost:3306)/inventory?parseTime=true")
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 25)
	v.SetDefault("mysql.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 100)
	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.bucket", "inventory")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.public_url", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("workers.count", 4)
	v.SetDefault("workers.queue_size", 1000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("shutdown_timeout", 5*time.Second)
	v.SetDefault("seed_products", "")
}

func setClientDefaults(v *viper.Viper) {
	v.SetDefault("server", "http://localhost:8080")
	v.SetDefault("token", "")
	v.SetDefault("timeout", 15*time.Second)
	v.SetDefault("log_level", "warn")
	v.SetDefault("version_check", false)
}

// loadEnvFiles reads .env then .env.local. Missing files are fine and
// variables already in the environment win.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

func newViper(prefix string) *viper.Viper {
	v := viper.New()
	if prefix != "" {
		v.SetEnvPrefix(prefix)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load builds the server configuration from .env files, an optional
// config file and the environment (MYSQL_DSN, REDIS_ADDR, ...).
func Load(configFile string) (*Config, error) {
	loadEnvFiles()

	v := newViper("")
	setServerDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		HTTPAddr: v.GetString("http.addr"),
		GRPCAddr: v.GetString("grpc.addr"),
		Store:    strings.ToLower(v.GetString("store")),
		MySQL: MySQLConfig{
			DSN:             v.GetString("mysql.dsn"),
			MaxOpenConns:    v.GetInt("mysql.max_open_conns"),
			MaxIdleConns:    v.GetInt("mysql.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("mysql.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			PoolSize: v.GetInt("redis.pool_size"),
		},
		MinIO: MinIOConfig{
			Endpoint:  v.GetString("minio.endpoint"),
			AccessKey: v.GetString("minio.access_key"),
			SecretKey: v.GetString("minio.secret_key"),
			Bucket:    v.GetString("minio.bucket"),
			UseSSL:    v.GetBool("minio.use_ssl"),
			PublicURL: v.GetString("minio.public_url"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("auth.jwt_secret"),
			TokenTTL:  v.GetDuration("auth.token_ttl"),
		},
		Workers: WorkerConfig{
			Count:     v.GetInt("workers.count"),
			QueueSize: v.GetInt("workers.queue_size"),
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
		},
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),
		SeedProducts:    v.GetString("seed_products"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store {
	case StoreMySQL, StoreMemory:
	default:
		return fmt.Errorf("unknown store %q (want %s or %s)", c.Store, StoreMySQL, StoreMemory)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	if c.Workers.Count <= 0 {
		return fmt.Errorf("workers.count must be positive, got %d", c.Workers.Count)
	}
	if c.Workers.QueueSize <= 0 {
		return fmt.Errorf("workers.queue_size must be positive, got %d", c.Workers.QueueSize)
	}
	return nil
}

// LoadClient reads invctl settings from INVCTL_* variables and .env files.
func LoadClient() (*ClientConfig, error) {
	loadEnvFiles()

	v := newViper("INVCTL")
	setClientDefaults(v)

	cfg := &ClientConfig{
		ServerURL:    strings.TrimRight(v.GetString("server"), "/"),
		Token:        v.GetString("token"),
		Timeout:      v.GetDuration("timeout"),
		LogLevel:     v.GetString("log_level"),
		VersionCheck: v.GetBool("version_check"),
	}
	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("INVCTL_SERVER is required")
	}
	return cfg, nil
}
