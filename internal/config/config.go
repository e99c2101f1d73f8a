// Package config provides functionality for managing configuration options
// for the application using command-line flags, a JSON config file, a .env
// file and environment variables.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Storage backends accepted by Options.Storage.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

// DefaultTokenTTL is the token lifetime used when none is configured.
const DefaultTokenTTL = 3 * time.Hour

// Options holds the configuration values for the application.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string `json:"server_address" env:"SERVER_ADDRESS"`

	// Storage selects the kv backend: memory, postgres or redis.
	Storage string `json:"storage" env:"STORAGE"`

	// DatabaseDSN holds the database connection string for the application.
	DatabaseDSN string `json:"database_dsn" env:"DATABASE_DSN"`

	RedisAddr   string `json:"redis_addr" env:"REDIS_ADDR"`
	RedisPrefix string `json:"redis_prefix" env:"REDIS_PREFIX"`

	// JWTSecret signs access tokens. Empty means a random per-process secret.
	JWTSecret string        `json:"jwt_secret" env:"JWT_SECRET"`
	TokenTTL  time.Duration `json:"-" env:"TOKEN_TTL"`

	// AdminUser and AdminPassword, when both set, bootstrap an admin account.
	AdminUser     string `json:"admin_user" env:"ADMIN_USER"`
	AdminPassword string `json:"admin_password" env:"ADMIN_PASSWORD"`

	TLSCert string `json:"tls_cert" env:"TLS_CERT"`
	TLSKey  string `json:"tls_key" env:"TLS_KEY"`

	LogLevel string `json:"log_level" env:"LOG_LEVEL"`

	// Config is the path to the Config file.
	Config string `json:"-" env:"CONFIG"`
}

// dotenvPath is the .env file consulted before the environment.
var dotenvPath = ".env"

// Parse parses the command-line flags, config file and environment variables
// to set configuration values. It exits the process on invalid input.
func Parse() *Options {
	opts, err := Load(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return opts
}

// Load builds Options from args. Later sources override earlier ones:
// flags, then the JSON config file, then .env, then the process environment.
func Load(args []string) (*Options, error) {
	options := &Options{}

	fs := flag.NewFlagSet("projectshelf", flag.ContinueOnError)
	fs.StringVar(&options.Port, "a", "localhost:8080", "run on ip:port server")
	fs.StringVar(&options.Storage, "s", StorageMemory, "storage backend: memory, postgres or redis")
	fs.StringVar(&options.DatabaseDSN, "d", "", "db address")
	fs.StringVar(&options.RedisAddr, "r", "localhost:6379", "redis address")
	fs.StringVar(&options.RedisPrefix, "redis-prefix", "projectshelf", "redis key prefix")
	fs.StringVar(&options.JWTSecret, "k", "", "token signing secret")
	fs.DurationVar(&options.TokenTTL, "ttl", DefaultTokenTTL, "token lifetime")
	fs.StringVar(&options.AdminUser, "admin-user", "", "bootstrap admin user name")
	fs.StringVar(&options.AdminPassword, "admin-password", "", "bootstrap admin password")
	fs.StringVar(&options.TLSCert, "tls-cert", "", "TLS certificate file")
	fs.StringVar(&options.TLSKey, "tls-key", "", "TLS key file")
	fs.StringVar(&options.LogLevel, "l", "info", "log level")
	fs.StringVar(&options.Config, "config", "config.json", "path to config file")
	fs.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Override flags with environment variables if set
	if configPath := os.Getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		if _, err := os.Stat(options.Config); err == nil {
			if err := loadFile(options.Config, options); err != nil {
				return nil, err
			}
		}
	}

	if _, err := os.Stat(dotenvPath); err == nil {
		if err := godotenv.Load(dotenvPath); err != nil {
			return nil, fmt.Errorf("error while loading %s: %w", dotenvPath, err)
		}
	}

	if err := env.Parse(options); err != nil {
		return nil, fmt.Errorf("error while parsing environment: %w", err)
	}

	if err := options.validate(); err != nil {
		return nil, err
	}
	return options, nil
}

// fileOptions is the JSON shape of the config file. The token lifetime is
// written as a duration string such as "90m".
type fileOptions struct {
	*Options
	TokenTTL string `json:"token_ttl"`
}

func loadFile(path string, options *Options) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error while reading config file: %w", err)
	}
	fo := fileOptions{Options: options}
	if err := json.Unmarshal(data, &fo); err != nil {
		return fmt.Errorf("error while parsing config file: %w", err)
	}
	if fo.TokenTTL != "" {
		ttl, err := time.ParseDuration(fo.TokenTTL)
		if err != nil {
			return fmt.Errorf("error while parsing config file: token_ttl: %w", err)
		}
		options.TokenTTL = ttl
	}
	return nil
}

func (o *Options) validate() error {
	switch o.Storage {
	case StorageMemory, StorageRedis:
	case StoragePostgres:
		if o.DatabaseDSN == "" {
			return errors.New("postgres storage requires a database DSN")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", o.Storage)
	}
	if o.TokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive, got %s", o.TokenTTL)
	}
	if (o.TLSCert == "") != (o.TLSKey == "") {
		return errors.New("tls cert and key must be set together")
	}
	if (o.AdminUser == "") != (o.AdminPassword == "") {
		return errors.New("admin user and password must be set together")
	}
	return nil
}

// TLSEnabled reports whether the server should listen with TLS.
func (o *Options) TLSEnabled() bool {
	return o.TLSCert != "" && o.TLSKey != ""
}
