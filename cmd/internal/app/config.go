package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	Env string

	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// If true, identity may come from ?user=&name=&staff= query parameters.
	// Development convenience only; refused outside the development env.
	DevQueryAuth bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		Env: EnvString("CHAMADOS_ENV", "development"),

		HTTPAddr:  EnvString("CHAMADOS_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("CHAMADOS_LOG_LEVEL", "info"),
		LogFormat: EnvString("CHAMADOS_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("CHAMADOS_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("CHAMADOS_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("CHAMADOS_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("CHAMADOS_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("CHAMADOS_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("CHAMADOS_DATABASE_URL", ""),
		DBSchema:    EnvString("CHAMADOS_DB_SCHEMA", "chamados"),
		DBMaxConns:  EnvInt32("CHAMADOS_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("CHAMADOS_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("CHAMADOS_READINESS_REQUIRE_DB", false),

		DevQueryAuth: EnvBool("CHAMADOS_DEV_QUERY_AUTH", false),
	}
}
