// Package config loads server configuration from the environment and
// per-tier fund policy profiles from YAML.
package config

import "os"

// Config holds server configuration.
type Config struct {
	Port          string
	LogLevel      string
	DatabaseURL   string
	SQLitePath    string
	RedisAddr     string
	SweepSecret   string
	JWTSecret     string
	ProfilesDir   string
	DefaultTier   string
	GatewayAPIKey string
}

// Load loads configuration from environment variables.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	sqlitePath := os.Getenv("SQLITE_PATH")
	if sqlitePath == "" {
		sqlitePath = "likelemba.db"
	}

	profilesDir := os.Getenv("PROFILES_DIR")
	if profilesDir == "" {
		profilesDir = "profiles"
	}

	defaultTier := os.Getenv("DEFAULT_TIER")
	if defaultTier == "" {
		defaultTier = "standard"
	}

	return &Config{
		Port:          port,
		LogLevel:      logLevel,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		SQLitePath:    sqlitePath,
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		SweepSecret:   os.Getenv("SWEEP_SECRET"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		ProfilesDir:   profilesDir,
		DefaultTier:   defaultTier,
		GatewayAPIKey: os.Getenv("GATEWAY_API_KEY"),
	}
}
