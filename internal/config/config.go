package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"Server"`
	Database DatabaseConfig `mapstructure:"Database"`
	Auth     AuthConfig     `mapstructure:"Auth"`
	Storage  StorageConfig  `mapstructure:"Storage"`
}

type ServerConfig struct {
	Port     string `mapstructure:"Port"`
	GRPCPort string `mapstructure:"GRPCPort"`
	// BaseURL: публичный адрес, из которого строятся ссылки /shares/...
	BaseURL         string        `mapstructure:"BaseURL"`
	TempDir         string        `mapstructure:"TempDir"`
	CleanupInterval time.Duration `mapstructure:"CleanupInterval"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"Host"`
	Port     string `mapstructure:"Port"`
	User     string `mapstructure:"User"`
	Password string `mapstructure:"Password"`
	Name     string `mapstructure:"Name"`
	SSLMode  string `mapstructure:"SSLMode"`
}

type AuthConfig struct {
	JWTSecret  string        `mapstructure:"JWTSecret"`
	Issuer     string        `mapstructure:"Issuer"`
	Leeway     time.Duration `mapstructure:"Leeway"`
	BcryptCost int           `mapstructure:"BcryptCost"`
}

// StorageConfig: где лежит содержимое файлов: local или s3
type StorageConfig struct {
	Driver          string `mapstructure:"Driver"`
	Root            string `mapstructure:"Root"`
	S3Bucket        string `mapstructure:"S3Bucket"`
	S3Endpoint      string `mapstructure:"S3Endpoint"`
	S3Region        string `mapstructure:"S3Region"`
	AccessKeyID     string `mapstructure:"AccessKeyID"`
	SecretAccessKey string `mapstructure:"SecretAccessKey"`
}

const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

// envBindings: переменные окружения, перекрывающие файл конфигурации
var envBindings = map[string]string{
	"Server.Port":             "HTTP_PORT",
	"Server.GRPCPort":         "GRPC_PORT",
	"Server.BaseURL":          "BASE_URL",
	"Server.TempDir":          "TEMP_DIR",
	"Server.CleanupInterval":  "CLEANUP_INTERVAL",
	"Database.Host":           "DATABASE_HOST",
	"Database.Port":           "DATABASE_PORT",
	"Database.User":           "DATABASE_USER",
	"Database.Password":       "DATABASE_PASSWORD",
	"Database.Name":           "DATABASE_NAME",
	"Database.SSLMode":        "DATABASE_SSLMODE",
	"Auth.JWTSecret":          "JWT_SECRET",
	"Auth.Issuer":             "JWT_ISSUER",
	"Auth.Leeway":             "JWT_LEEWAY",
	"Auth.BcryptCost":         "BCRYPT_COST",
	"Storage.Driver":          "STORAGE_DRIVER",
	"Storage.Root":            "STORAGE_ROOT",
	"Storage.S3Bucket":        "S3_BUCKET",
	"Storage.S3Endpoint":      "S3_ENDPOINT",
	"Storage.S3Region":        "S3_REGION",
	"Storage.AccessKeyID":     "S3_ACCESS_KEY_ID",
	"Storage.SecretAccessKey": "S3_SECRET_ACCESS_KEY",
}

func NewConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	v.SetDefault("Server.Port", "2525")
	v.SetDefault("Server.GRPCPort", "50051")
	v.SetDefault("Server.TempDir", "/tmp/sharebox")
	v.SetDefault("Server.CleanupInterval", time.Hour)
	v.SetDefault("Database.SSLMode", "disable")
	v.SetDefault("Auth.Leeway", 30*time.Second)
	v.SetDefault("Auth.BcryptCost", 10)
	v.SetDefault("Storage.Driver", StorageLocal)
	v.SetDefault("Storage.Root", "./uploads")

	// Читаем конфигурацию из файла
	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Warning: using only environment variables: %v\n", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Database.Host == "" ||
		c.Database.Port == "" ||
		c.Database.User == "" ||
		c.Database.Password == "" ||
		c.Database.Name == "" {
		return fmt.Errorf("database configuration is incomplete: host=%s, port=%s, user=%s, name=%s",
			c.Database.Host, c.Database.Port, c.Database.User, c.Database.Name)
	}

	if c.Server.BaseURL == "" {
		return fmt.Errorf("Server.BaseURL is required")
	}
	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("Auth.JWTSecret is required")
	}

	switch c.Storage.Driver {
	case StorageLocal:
		if c.Storage.Root == "" {
			return fmt.Errorf("Storage.Root is required for local storage")
		}
	case StorageS3:
		if c.Storage.S3Bucket == "" || c.Storage.AccessKeyID == "" || c.Storage.SecretAccessKey == "" {
			return fmt.Errorf("s3 storage requires S3Bucket, AccessKeyID and SecretAccessKey")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

// GetURL: адрес базы в формате golang-migrate
func (c *DatabaseConfig) GetURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
		c.SSLMode,
	)
}
