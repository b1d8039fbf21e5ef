// Package config loads the autoresponder settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	TransportCloud     = "cloud"
	TransportWhatsmeow = "whatsmeow"

	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

type Config struct {
	Port      string
	GinMode   string
	LogLevel  string
	LogPretty *bool // nil when LOG_PRETTY is unset

	// WhatsApp
	Transport                 string
	VerifyToken               string
	WhatsAppToken             string
	PhoneNumberID             string
	WhatsAppBusinessAccountID string
	GraphAPIURL               string
	SessionDBPath             string

	// Storage
	StoreBackend string
	DataFile     string
	DBPath       string
	DBHost       string
	DBPort       string
	DBUser       string
	DBPassword   string
	DBName       string
	DBSSLMode    string
	MediaRoot    string

	SchedulerInterval  time.Duration
	SendRPS            float64
	SendBurst          int
	CORSAllowedOrigins []string

	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads .env (when present) and the environment, applies defaults and
// validates the result.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("error loading .env file")
	}

	cfg := Config{
		Port:     getenv("PORT", "8080"),
		GinMode:  strings.ToLower(getenv("GIN_MODE", "release")),
		LogLevel: strings.ToLower(getenv("LOG_LEVEL", "info")),

		Transport:                 strings.ToLower(getenv("TRANSPORT", TransportCloud)),
		VerifyToken:               getenv("VERIFY_TOKEN", ""),
		WhatsAppToken:             getenv("WHATSAPP_TOKEN", ""),
		PhoneNumberID:             getenv("PHONE_NUMBER_ID", ""),
		WhatsAppBusinessAccountID: getenv("WABA_ID", ""),
		GraphAPIURL:               strings.TrimRight(getenv("GRAPH_API_URL", "https://graph.facebook.com/v19.0"), "/"),
		SessionDBPath:             getenv("SESSION_DB_PATH", "session.db"),

		StoreBackend: strings.ToLower(getenv("STORE_BACKEND", BackendFile)),
		DataFile:     getenv("DATA_FILE", "data.json"),
		DBPath:       getenv("DB_PATH", "autoresponder.db"),
		DBHost:       getenv("DB_HOST", "localhost"),
		DBPort:       getenv("DB_PORT", "5432"),
		DBUser:       getenv("DB_USER", ""),
		DBPassword:   getenv("DB_PASSWORD", ""),
		DBName:       getenv("DB_NAME", ""),
		DBSSLMode:    getenv("DB_SSLMODE", "disable"),
		MediaRoot:    getenv("MEDIA_ROOT", "assets"),

		SchedulerInterval:  getdur("SCHEDULER_INTERVAL", time.Minute),
		SendRPS:            getfloat("SEND_RPS", 5),
		SendBurst:          getint("SEND_BURST", 5),
		CORSAllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "*")),

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "whatsapp-autoresponder"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}
	if v, ok := os.LookupEnv("LOG_PRETTY"); ok && v != "" {
		pretty := getbool("LOG_PRETTY", false)
		cfg.LogPretty = &pretty
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	switch cfg.Transport {
	case TransportCloud, TransportWhatsmeow:
	default:
		return cfg, fmt.Errorf("TRANSPORT must be %q or %q", TransportCloud, TransportWhatsmeow)
	}
	switch cfg.StoreBackend {
	case BackendFile:
		if strings.TrimSpace(cfg.DataFile) == "" {
			return cfg, errors.New("DATA_FILE must not be empty")
		}
	case BackendSQLite:
		if strings.TrimSpace(cfg.DBPath) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case BackendPostgres:
		if cfg.DBName == "" || cfg.DBUser == "" {
			return cfg, errors.New("DB_NAME and DB_USER are required for the postgres backend")
		}
	default:
		return cfg, fmt.Errorf("STORE_BACKEND must be one of: %s, %s, %s", BackendFile, BackendSQLite, BackendPostgres)
	}
	if cfg.SchedulerInterval <= 0 {
		return cfg, errors.New("SCHEDULER_INTERVAL must be a positive duration")
	}
	if cfg.SendRPS < 0 {
		return cfg, errors.New("SEND_RPS must be >= 0")
	}
	if cfg.SendBurst < 1 {
		return cfg, errors.New("SEND_BURST must be >= 1")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// PostgresDSN builds the connection string for the postgres backend.
func (c Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode)
}

func getenv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
