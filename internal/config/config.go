// Package config provides environment configuration for the multichat host.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Catalog source kinds.
const (
	CatalogGraphQL = "graphql"
	CatalogFile    = "file"
	CatalogOpenAI  = "openai"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	CORSOrigins        []string

	// Channel settings
	WSEndpoint         string
	WSHandshakeTimeout time.Duration

	// Catalog settings
	RAGEnabled    bool
	CatalogSource string
	CatalogURL    string
	CatalogToken  string
	CatalogFile   string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	// NATS settings (feedback sink)
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Panel stream
	PanelHeartbeatInterval time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 0),
		CORSOrigins:        getListEnv("CORS_ALLOWED_ORIGINS", []string{"https://*", "http://*"}),

		// Channel
		WSEndpoint:         getEnv("WS_ENDPOINT", "ws://localhost:3001/socket"),
		WSHandshakeTimeout: getDurationEnv("WS_HANDSHAKE_TIMEOUT", 10*time.Second),

		// Catalog
		RAGEnabled:    getBoolEnv("RAG_ENABLED", false),
		CatalogSource: getEnv("CATALOG_SOURCE", CatalogGraphQL),
		CatalogURL:    getEnv("CATALOG_URL", "http://localhost:3001/graphql"),
		CatalogToken:  getEnv("CATALOG_TOKEN", ""),
		CatalogFile:   getEnv("CATALOG_FILE", "catalog.yaml"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),

		// NATS
		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Panel stream
		PanelHeartbeatInterval: getDurationEnv("PANEL_HEARTBEAT_INTERVAL", 30*time.Second),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
