package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"wheresmybus/internal/gtfs"
)

type Config struct {
	DatabaseURL string `yaml:"databaseURL" validate:"required"`
	City        string `yaml:"city"`
	DBSchema    string `yaml:"dbSchema" validate:"required,identifier"`
	ListenAddr  string `yaml:"listenAddr" validate:"required"`

	TripUpdatesURL      string `yaml:"tripUpdatesURL" validate:"omitempty,url"`
	VehiclePositionsURL string `yaml:"vehiclePositionsURL" validate:"omitempty,url"`
	RealtimeTimeoutMS   int    `yaml:"realtimeTimeoutMS" validate:"gt=0"`

	UTCOffset string         `yaml:"utcOffset" validate:"required"`
	Location  *time.Location `yaml:"-"`

	RouteHorizonMinutes     int `yaml:"routeHorizonMinutes" validate:"gte=1,lte=1440"`
	RouteNextHorizonMinutes int `yaml:"routeNextHorizonMinutes" validate:"gte=1,lte=1440"`
	StopHorizonMinutes      int `yaml:"stopHorizonMinutes" validate:"gte=1,lte=1440"`

	StopSequenceCacheSize int    `yaml:"stopSequenceCacheSize" validate:"gte=1"`
	RedisAddr             string `yaml:"redisAddr"`
	RedisPassword         string `yaml:"redisPassword"`
	RedisDB               int    `yaml:"redisDB" validate:"gte=0"`

	NATSURL           string `yaml:"natsURL" validate:"omitempty,url"`
	NATSSubjectPrefix string `yaml:"natsSubjectPrefix" validate:"required"`

	MetricsAddr string `yaml:"metricsAddr"`
	LogLevel    string `yaml:"logLevel" validate:"oneof=trace debug info warn error"`
	LogFormat   string `yaml:"logFormat" validate:"oneof=console json"`
}

// RealtimeTimeout is the shared deadline for decoding both feeds.
func (c *Config) RealtimeTimeout() time.Duration {
	return time.Duration(c.RealtimeTimeoutMS) * time.Millisecond
}

func defaults() *Config {
	return &Config{
		DBSchema:                "gtfs",
		ListenAddr:              ":3000",
		RealtimeTimeoutMS:       4000,
		UTCOffset:               "+10:00",
		RouteHorizonMinutes:     180,
		RouteNextHorizonMinutes: 60,
		StopHorizonMinutes:      60,
		StopSequenceCacheSize:   50000,
		NATSSubjectPrefix:       "wheresmybus",
		LogLevel:                "info",
		LogFormat:               "console",
	}
}

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		return identifierRe.MatchString(fl.Field().String())
	})
	return v
}

// Load builds the configuration from defaults, then CONFIG_FILE (YAML) if set,
// then .env and the process environment, and validates the result.
func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read CONFIG_FILE: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse CONFIG_FILE: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := newValidator().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	loc, err := gtfs.ParseOffset(cfg.UTCOffset)
	if err != nil {
		return nil, fmt.Errorf("invalid UTC_OFFSET: %w", err)
	}
	cfg.Location = loc
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	// Database URL (cluster DSN): prefer DATABASE_URL / PG_DSN, else build from PG* vars
	if dsn := firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN")); dsn != "" {
		cfg.DatabaseURL = dsn
	}
	cfg.City = firstNonEmpty(os.Getenv("CITY"), os.Getenv("CITY_NAME"), cfg.City)
	if cfg.DatabaseURL == "" {
		dsn, err := dsnFromPGEnv(cfg.City != "")
		if err != nil {
			return err
		}
		cfg.DatabaseURL = dsn
	}

	setString(&cfg.DBSchema, "DB_SCHEMA")
	cfg.ListenAddr = firstNonEmpty(os.Getenv("LISTEN_ADDR"), portAddr(os.Getenv("PORT")), cfg.ListenAddr)
	setString(&cfg.TripUpdatesURL, "GTFS_RT_TRIP_UPDATES_URL")
	setString(&cfg.VehiclePositionsURL, "GTFS_RT_VEHICLE_POSITIONS_URL")
	setString(&cfg.UTCOffset, "UTC_OFFSET")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setString(&cfg.NATSURL, "NATS_URL")
	setString(&cfg.NATSSubjectPrefix, "NATS_SUBJECT_PREFIX")
	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	setString(&cfg.MetricsAddr, "METRICS_ADDR")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.LogFormat, "LOG_FORMAT")
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)

	ints := []struct {
		key string
		dst *int
	}{
		{"GTFS_RT_TIMEOUT_MS", &cfg.RealtimeTimeoutMS},
		{"ROUTE_HORIZON_MINUTES", &cfg.RouteHorizonMinutes},
		{"ROUTE_NEXT_HORIZON_MINUTES", &cfg.RouteNextHorizonMinutes},
		{"STOP_HORIZON_MINUTES", &cfg.StopHorizonMinutes},
		{"STOP_SEQUENCE_CACHE_SIZE", &cfg.StopSequenceCacheSize},
		{"REDIS_DB", &cfg.RedisDB},
	}
	for _, e := range ints {
		if err := setInt(e.dst, e.key); err != nil {
			return err
		}
	}
	return nil
}

func dsnFromPGEnv(haveCity bool) (string, error) {
	host := getenvDefault("PGHOST", "127.0.0.1")
	port := getenvDefault("PGPORT", "5432")
	user := getenvDefault("PGUSER", "postgres")
	pass := os.Getenv("PGPASSWORD")
	db := os.Getenv("PGDATABASE")
	// If CITY is provided, default base DB to 'postgres' when PGDATABASE is not set.
	if db == "" && haveCity {
		db = "postgres"
	}
	if db == "" {
		return "", errors.New("PGDATABASE or DATABASE_URL must be set (set PGDATABASE=postgres when using CITY)")
	}
	sslmode := getenvDefault("PGSSLMODE", "disable")
	if pass != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode), nil
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode), nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, v)
	}
	*dst = n
	return nil
}

func portAddr(port string) string {
	port = strings.TrimSpace(port)
	if port == "" {
		return ""
	}
	return ":" + port
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
