package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Scheduler SchedulerConfig
	Ledger    LedgerConfig
	Metrics   MetricsConfig
}

type ServerConfig struct {
	Port           string
	RequestTimeout time.Duration
}

type DatabaseConfig struct {
	AutoMigrate bool
}

type JWTConfig struct {
	SecretKey string
}

// SchedulerConfig controls the loan lifecycle jobs
type SchedulerConfig struct {
	Token       string
	Timezone    *time.Location
	LoanTimeout time.Duration
	LockTTL     time.Duration
}

type LedgerConfig struct {
	MaxMetadataBytes int
	MaxMetadataKeys  int
	BankCurrencies   []string
}

type MetricsConfig struct {
	Addr string
}

var envBindings = map[string]string{
	"server.port":               "PORT",
	"server.request_timeout":    "SERVER_REQUEST_TIMEOUT",
	"database.host":             "DATABASE_HOST",
	"database.port":             "DATABASE_PORT",
	"database.user":             "DATABASE_USER",
	"database.password":         "DATABASE_PASSWORD",
	"database.name":             "DATABASE_NAME",
	"database.ssl_mode":         "DATABASE_SSL_MODE",
	"database.auto_migrate":     "DATABASE_AUTO_MIGRATE",
	"redis.host":                "REDIS_HOST",
	"redis.port":                "REDIS_PORT",
	"redis.password":            "REDIS_PASSWORD",
	"redis.db":                  "REDIS_DB",
	"jwt.secret_key":            "JWT_SECRET_KEY",
	"scheduler.token":           "SCHEDULER_TOKEN",
	"scheduler.timezone":        "SCHEDULER_TIMEZONE",
	"scheduler.loan_timeout":    "SCHEDULER_LOAN_TIMEOUT",
	"scheduler.lock_ttl":        "SCHEDULER_LOCK_TTL",
	"ledger.max_metadata_bytes": "LEDGER_MAX_METADATA_BYTES",
	"ledger.max_metadata_keys":  "LEDGER_MAX_METADATA_KEYS",
	"ledger.bank_currencies":    "LEDGER_BANK_CURRENCIES",
	"metrics.addr":              "METRICS_ADDR",
}

// Load reads .env and the environment into viper and returns the typed config
func Load() *Config {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	for key, env := range envBindings {
		viper.BindEnv(key, env)
	}
	SetDefaults()

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("[CONFIG] Config file not found, using defaults: %v", err)
	}

	return FromViper()
}

func SetDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.request_timeout", 60*time.Second)
	viper.SetDefault("database.auto_migrate", true)
	viper.SetDefault("scheduler.timezone", "UTC")
	viper.SetDefault("scheduler.loan_timeout", 30*time.Second)
	viper.SetDefault("scheduler.lock_ttl", 10*time.Minute)
	viper.SetDefault("ledger.max_metadata_bytes", 8192)
	viper.SetDefault("ledger.max_metadata_keys", 64)
	viper.SetDefault("ledger.bank_currencies", "USD")
	viper.SetDefault("metrics.addr", ":9090")
}

// FromViper builds a Config from whatever viper currently holds
func FromViper() *Config {
	tzName := viper.GetString("scheduler.timezone")
	tz, err := time.LoadLocation(tzName)
	if err != nil {
		log.Printf("[CONFIG] Unknown scheduler timezone %q, falling back to UTC: %v", tzName, err)
		tz = time.UTC
	}

	return &Config{
		Server: ServerConfig{
			Port:           viper.GetString("server.port"),
			RequestTimeout: viper.GetDuration("server.request_timeout"),
		},
		Database: DatabaseConfig{
			AutoMigrate: viper.GetBool("database.auto_migrate"),
		},
		JWT: JWTConfig{
			SecretKey: viper.GetString("jwt.secret_key"),
		},
		Scheduler: SchedulerConfig{
			Token:       viper.GetString("scheduler.token"),
			Timezone:    tz,
			LoanTimeout: viper.GetDuration("scheduler.loan_timeout"),
			LockTTL:     viper.GetDuration("scheduler.lock_ttl"),
		},
		Ledger: LedgerConfig{
			MaxMetadataBytes: viper.GetInt("ledger.max_metadata_bytes"),
			MaxMetadataKeys:  viper.GetInt("ledger.max_metadata_keys"),
			BankCurrencies:   parseCurrencies(viper.GetString("ledger.bank_currencies")),
		},
		Metrics: MetricsConfig{
			Addr: viper.GetString("metrics.addr"),
		},
	}
}

func parseCurrencies(raw string) []string {
	var out []string
	for _, c := range strings.Split(raw, ",") {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		out = []string{"USD"}
	}
	return out
}
