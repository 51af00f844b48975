package config // package config loads application configuration from environment variables

import (
	"log/slog" // slog reports configuration errors before the process exits
	"os"       // os provides access to environment variables
	"strings"
)

// Config holds the required process settings.  Each field corresponds to an
// environment variable; optional, default-bearing settings live in the
// Load*Config helpers next to this file.
type Config struct {
	Env       string // application environment (e.g. "dev", "prod")
	Port      string // HTTP port to listen on
	DBUser    string // database username
	DBPass    string // database password (optional)
	DBHost    string // database host address
	DBPort    string // database port number
	DBName    string // database name
	JWTSecret string // secret used to verify (and, for issue-token, sign) JWTs
	LogLevel  slog.Level
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// stop the program.
func Load() Config {
	return Config{
		Env:       must("APP_ENV"),      // environment (dev/test/prod)
		Port:      must("APP_PORT"),     // port to bind the HTTP server
		DBUser:    must("DB_USER"),      // database user
		DBPass:    os.Getenv("DB_PASS"), // database password (empty allowed)
		DBHost:    must("DB_HOST"),      // database host
		DBPort:    must("DB_PORT"),      // database port
		DBName:    must("DB_NAME"),      // database name
		JWTSecret: must("JWT_SECRET"),   // secret used for JWTs
		LogLevel:  ParseLogLevel(envStr("LOG_LEVEL", "info")),
	}
}

// ParseLogLevel maps debug/info/warn/error to a slog level, defaulting to
// info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs an error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		slog.Error("missing required env var", "key", key)
		os.Exit(1)
	}
	return v
}
