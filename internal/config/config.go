package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"
)

const defaultHubSpotObjectTableMapping = "contact=user,company=entity,deal=order,product=product,line_item=order_item"

type Config struct {
	ServerPort  string
	LookupStore string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string

	JWTSecret           string
	JWTExpiry           time.Duration
	APIClientID         string
	APIClientSecretHash string

	LogLevel     int
	LogIndicator string
	LogFormat    string

	DefaultProvider    string
	DefaultEnvironment string
	PrimaryKeyFormat   string
	SyncWorkers        int
	RemoteCallTimeout  time.Duration
	LockTTL            time.Duration
	ModelDefinitions   string

	Providers map[string]ProviderConfig
}

// ProviderConfig is the static configuration of one CRM provider.
type ProviderConfig struct {
	// ObjectTableMapping maps remote object types to local tables.
	ObjectTableMapping map[string]string
	Environments       map[string]EnvironmentConfig
	RateLimit          float64
}

// EnvironmentConfig holds the credentials of one provider environment.
type EnvironmentConfig struct {
	BaseURI     string
	AccessToken string
}

func LoadConfig() (*Config, error) {
	jwtExpiry, err := time.ParseDuration(getEnv("JWT_EXPIRY", "24h"))
	if err != nil {
		return nil, errors.New("invalid JWT_EXPIRY format")
	}
	callTimeout, err := time.ParseDuration(getEnv("REMOTE_CALL_TIMEOUT", "30s"))
	if err != nil {
		return nil, errors.New("invalid REMOTE_CALL_TIMEOUT format")
	}
	lockTTL, err := time.ParseDuration(getEnv("LOCK_TTL", "30s"))
	if err != nil {
		return nil, errors.New("invalid LOCK_TTL format")
	}
	logLevel, err := getEnvInt("CRM_LOG_LEVEL", 3)
	if err != nil {
		return nil, err
	}
	workers, err := getEnvInt("SYNC_WORKERS", 1)
	if err != nil {
		return nil, err
	}
	rateLimit, err := strconv.ParseFloat(getEnv("HUBSPOT_RATE_LIMIT", "10"), 64)
	if err != nil {
		return nil, errors.New("invalid HUBSPOT_RATE_LIMIT format")
	}
	objectTables, err := ParseObjectTableMapping(getEnv("HUBSPOT_OBJECT_TABLE_MAPPING", defaultHubSpotObjectTableMapping))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerPort:          getEnv("SERVER_PORT", "8080"),
		LookupStore:         strings.ToLower(getEnv("LOOKUP_STORE", StorePostgres)),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		SQLitePath:          getEnv("SQLITE_PATH", "crmsync.db"),
		RedisURL:            os.Getenv("REDIS_URL"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		JWTExpiry:           jwtExpiry,
		APIClientID:         os.Getenv("API_CLIENT_ID"),
		APIClientSecretHash: os.Getenv("API_CLIENT_SECRET_HASH"),
		LogLevel:            logLevel,
		LogIndicator:        getEnv("CRM_LOG_INDICATOR", "crmsync"),
		LogFormat:           getEnv("LOG_FORMAT", "text"),
		DefaultProvider:     getEnv("CRM_DEFAULT_PROVIDER", "hubspot"),
		DefaultEnvironment:  getEnv("CRM_DEFAULT_ENVIRONMENT", "production"),
		PrimaryKeyFormat:    strings.ToLower(getEnv("DB_PRIMARY_KEY_FORMAT", "int")),
		SyncWorkers:         workers,
		RemoteCallTimeout:   callTimeout,
		LockTTL:             lockTTL,
		ModelDefinitions:    os.Getenv("MODEL_DEFINITIONS"),
		Providers: map[string]ProviderConfig{
			"hubspot": {
				ObjectTableMapping: objectTables,
				RateLimit:          rateLimit,
				Environments: map[string]EnvironmentConfig{
					"production": {
						BaseURI:     getEnv("HUBSPOT_PRODUCTION_URI", "https://api.hubapi.com"),
						AccessToken: os.Getenv("HUBSPOT_PRODUCTION_TOKEN"),
					},
					"sandbox": {
						BaseURI:     getEnv("HUBSPOT_SANDBOX_URI", "https://api.hubapi.com"),
						AccessToken: os.Getenv("HUBSPOT_SANDBOX_TOKEN"),
					},
				},
			},
		},
	}

	// Validate required fields
	switch cfg.LookupStore {
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required")
		}
	case StoreSQLite:
		if cfg.SQLitePath == "" {
			return nil, errors.New("SQLITE_PATH is required")
		}
	case StoreMemory:
	default:
		return nil, fmt.Errorf("invalid LOOKUP_STORE %q", cfg.LookupStore)
	}
	if cfg.LogLevel < 0 || cfg.LogLevel > 3 {
		return nil, errors.New("CRM_LOG_LEVEL must be between 0 and 3")
	}
	if cfg.PrimaryKeyFormat != "int" && cfg.PrimaryKeyFormat != "uuid" {
		return nil, errors.New("DB_PRIMARY_KEY_FORMAT must be int or uuid")
	}
	if cfg.SyncWorkers < 1 {
		return nil, errors.New("SYNC_WORKERS must be at least 1")
	}
	if cfg.LockTTL < time.Second {
		return nil, errors.New("LOCK_TTL must be at least 1s")
	}
	if cfg.RemoteCallTimeout <= 0 {
		return nil, errors.New("REMOTE_CALL_TIMEOUT must be positive")
	}

	return cfg, nil
}

// LockWait bounds how long a unit waits for a tuple lock held elsewhere. A
// holder keeps the lock across one load and one create.
func (c *Config) LockWait() time.Duration {
	return c.LockTTL + 2*c.RemoteCallTimeout
}

// ValidateServer checks the settings only the HTTP service needs.
func (c *Config) ValidateServer() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.APIClientID == "" || c.APIClientSecretHash == "" {
		return errors.New("API_CLIENT_ID and API_CLIENT_SECRET_HASH are required")
	}
	return nil
}

// ObjectTableMappings returns provider -> remote type -> local table.
func (c *Config) ObjectTableMappings() map[string]map[string]string {
	out := make(map[string]map[string]string, len(c.Providers))
	for name, p := range c.Providers {
		out[name] = p.ObjectTableMapping
	}
	return out
}

// ParseObjectTableMapping parses "contact=user,company=entity".
func ParseObjectTableMapping(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		remote, local, ok := strings.Cut(pair, "=")
		remote, local = strings.TrimSpace(remote), strings.TrimSpace(local)
		if !ok || remote == "" || local == "" {
			return nil, fmt.Errorf("invalid object table mapping entry %q", pair)
		}
		out[remote] = local
	}
	return out, nil
}

// ProviderNames returns the configured providers in sorted order.
func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s format", key)
	}
	return n, nil
}
