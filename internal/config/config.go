package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rl1809/coffee-order/internal/adapter/resilience"
)

type Config struct {
	ServiceName string
	Environment string
	LogLevel    string

	HTTPAddr string
	GRPCAddr string

	MySQLDSN     string
	SeedCatalog  bool
	RedisAddr    string
	CatalogTTL   time.Duration
	SagaLogPath  string
	KafkaBrokers string
	OTLPEndpoint string

	Currency string

	PaymentURL      string
	NotificationURL string
	Payment         resilience.Settings
	Notification    resilience.Settings
	PaymentLockTTL  time.Duration

	RelayWorkers   int
	RelayQueueSize int

	RecoveryInterval time.Duration
	RecoveryAge      time.Duration

	ShutdownTimeout time.Duration
}

// Load reads configuration from the environment, falling back to local
// development defaults.
func Load() (Config, error) {
	l := loader{}
	cfg := Config{
		ServiceName: l.str("SERVICE_NAME", "coffee-order"),
		Environment: l.str("APP_ENV", "local"),
		LogLevel:    l.str("LOG_LEVEL", "info"),

		HTTPAddr: l.str("HTTP_ADDR", ":8080"),
		GRPCAddr: l.str("GRPC_ADDR", ":50051"),

		MySQLDSN:     l.str("MYSQL_DSN", "root:root@tcp(localhost:3306)/coffeeshop?parseTime=true"),
		SeedCatalog:  l.boolean("SEED_CATALOG", true),
		RedisAddr:    l.str("REDIS_ADDR", "localhost:6379"),
		CatalogTTL:   l.duration("CATALOG_CACHE_TTL", 5*time.Minute),
		SagaLogPath:  l.str("SAGA_LOG_PATH", "./data/saga.db"),
		KafkaBrokers: l.str("KAFKA_BROKERS", "localhost:9092"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),

		Currency: l.str("CATALOG_CURRENCY", "USD"),

		PaymentURL:      l.str("PAYMENT_SERVICE_URL", "http://localhost:8081"),
		NotificationURL: l.str("NOTIFICATION_SERVICE_URL", "http://localhost:8082"),
		Payment:         l.policy("PAYMENT", "payment"),
		Notification:    l.policy("NOTIFICATION", "notification"),
		PaymentLockTTL:  l.duration("PAYMENT_LOCK_TTL", 60*time.Second),

		RelayWorkers:   l.atLeast("EVENT_RELAY_WORKERS", 4, 1),
		RelayQueueSize: l.atLeast("EVENT_RELAY_QUEUE_SIZE", 10000, 1),

		RecoveryInterval: l.duration("SAGA_RECOVERY_INTERVAL", time.Minute),
		RecoveryAge:      l.duration("SAGA_RECOVERY_AGE", 5*time.Minute),

		ShutdownTimeout: l.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
	if l.err != nil {
		return Config{}, l.err
	}
	return cfg, nil
}

// loader keeps the first parse error so Load can report it once.
type loader struct {
	err error
}

func (l *loader) str(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (l *loader) integer(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.fail(key, v, err)
		return fallback
	}
	return n
}

// atLeast is integer with a lower bound; counts below floor are rejected.
func (l *loader) atLeast(key string, fallback, floor int) int {
	n := l.integer(key, fallback)
	if n < floor {
		l.fail(key, os.Getenv(key), fmt.Errorf("must be at least %d", floor))
		return fallback
	}
	return n
}

func (l *loader) boolean(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		l.fail(key, v, err)
		return fallback
	}
	return b
}

func (l *loader) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.fail(key, v, err)
		return fallback
	}
	return d
}

// policy reads <PREFIX>_TIMEOUT, _MAX_RETRIES, _BASE_DELAY, _MAX_DELAY,
// _FAILURE_THRESHOLD, _OPEN_TIMEOUT and _HALF_OPEN_REQUESTS.
func (l *loader) policy(prefix, name string) resilience.Settings {
	s := resilience.DefaultSettings(name)
	s.Timeout = l.duration(prefix+"_TIMEOUT", s.Timeout)
	s.MaxRetries = l.atLeast(prefix+"_MAX_RETRIES", s.MaxRetries, 0)
	s.BaseDelay = l.duration(prefix+"_BASE_DELAY", s.BaseDelay)
	s.MaxDelay = l.duration(prefix+"_MAX_DELAY", s.MaxDelay)
	s.FailureThreshold = uint32(l.atLeast(prefix+"_FAILURE_THRESHOLD", int(s.FailureThreshold), 1))
	s.OpenTimeout = l.duration(prefix+"_OPEN_TIMEOUT", s.OpenTimeout)
	s.HalfOpenRequests = uint32(l.atLeast(prefix+"_HALF_OPEN_REQUESTS", int(s.HalfOpenRequests), 1))
	return s
}

func (l *loader) fail(key, value string, err error) {
	if l.err == nil {
		l.err = fmt.Errorf("config: invalid %s=%q: %w", key, value, err)
	}
}
