package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Durations use Go duration syntax ("30s", "2m").
type Config struct {
	Env       string // application environment (dev, prod)
	Port      string // HTTP port to listen on
	LogLevel  string // debug, info, warn, error
	LogFormat string // json or console

	StoreDriver    string // mysql or memory
	MemorySeedPath string // JSON events and purchases loaded into the memory store
	DBUser         string // database username
	DBPass         string // database password (optional)
	DBHost         string // database host address
	DBPort         string // database port number
	DBName         string // database name
	DBMigrate      bool   // create tables on startup

	JWTSecret    string // secret used to verify operator JWTs
	TokenHashKey string // server key for session and bypass token digests

	HeartbeatInterval time.Duration // how often viewing clients heartbeat
	SessionLiveness   time.Duration // heartbeat gap after which a session is stale
	SessionRetention  time.Duration // how long ended sessions are kept for status reporting
	DefaultRadiusKm   float64       // blackout radius when an event has none

	MuxBaseURL        string        // video platform API base URL
	MuxTokenID        string        // video platform API token id
	MuxTokenSecret    string        // video platform API token secret
	StatusPollEvery   time.Duration // live status poll interval (0 disables)
	StatusPollTimeout time.Duration // deadline for one poll run
	StatusPollFanout  int           // concurrent status requests per run

	GeocoderURL string // Nominatim-compatible reverse geocoder (optional)

	RabbitMQURL     string        // broker for access audit events (optional)
	RabbitMQTimeout time.Duration // bound on each broker dial and publish
	AuditBuffer     int           // audit events queued before new ones are dropped
	AuditConsumer   bool          // run the audit log consumer in-process
	AuditLogPath    string        // file the audit consumer appends to
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  Database settings are
// only required for the mysql store driver.
func Load() Config {
	cfg := Config{
		Env:       must("APP_ENV"),
		Port:      envStr("APP_PORT", "8080"),
		LogLevel:  envStr("LOG_LEVEL", "info"),
		LogFormat: envStr("LOG_FORMAT", ""),

		StoreDriver:    envStr("STORE_DRIVER", "mysql"),
		MemorySeedPath: os.Getenv("MEMORY_SEED_PATH"),
		DBPass:         os.Getenv("DB_PASS"),
		DBMigrate:      envBool("DB_MIGRATE", false),

		JWTSecret:    must("JWT_SECRET"),
		TokenHashKey: must("TOKEN_HASH_KEY"),

		HeartbeatInterval: envDur("HEARTBEAT_INTERVAL", 30*time.Second),
		SessionLiveness:   envDur("SESSION_LIVENESS", 90*time.Second),
		SessionRetention:  envDur("SESSION_RETENTION", 24*time.Hour),
		DefaultRadiusKm:   envFloat("GEO_DEFAULT_RADIUS_KM", 50),

		MuxBaseURL:        envStr("MUX_BASE_URL", "https://api.mux.com"),
		MuxTokenID:        os.Getenv("MUX_TOKEN_ID"),
		MuxTokenSecret:    os.Getenv("MUX_TOKEN_SECRET"),
		StatusPollEvery:   envDur("STATUS_POLL_INTERVAL", 30*time.Second),
		StatusPollTimeout: envDur("STATUS_POLL_TIMEOUT", 10*time.Second),
		StatusPollFanout:  envInt("STATUS_POLL_FANOUT", 8),

		GeocoderURL: os.Getenv("GEOCODER_URL"),

		RabbitMQURL:     envStr("RABBITMQ_URL", os.Getenv("AMQP_URL")),
		RabbitMQTimeout: envDur("RABBITMQ_TIMEOUT", 3*time.Second),
		AuditBuffer:     envInt("AUDIT_BUFFER", 1024),
		AuditConsumer:   envBool("AUDIT_CONSUMER_ENABLED", false),
		AuditLogPath:    envStr("AUDIT_LOG_PATH", "logs/access.log"),
	}
	if cfg.StoreDriver == "mysql" {
		cfg.DBUser = must("DB_USER")
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
		cfg.DBName = must("DB_NAME")
	}
	if len(cfg.TokenHashKey) > 64 {
		log.Fatalf("TOKEN_HASH_KEY must be at most 64 bytes")
	}
	cfg.HeartbeatInterval, cfg.SessionLiveness = normalizeLiveness(cfg.HeartbeatInterval, cfg.SessionLiveness)
	return cfg
}

// normalizeLiveness keeps the liveness window wide enough to tolerate one
// missed heartbeat.  A window shorter than two intervals is raised to three.
func normalizeLiveness(interval, window time.Duration) (time.Duration, time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if window < 2*interval {
		log.Printf("SESSION_LIVENESS %s too short for HEARTBEAT_INTERVAL %s; using %s", window, interval, 3*interval)
		window = 3 * interval
	}
	return interval, window
}

// IsProduction reports whether the service runs in a production environment.
func (c Config) IsProduction() bool { return c.Env == "prod" || c.Env == "production" }

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envFloat(k string, d float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return d
}
