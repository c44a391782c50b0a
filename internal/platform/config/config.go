package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	pstrings "plinth/pkg/platform/strings"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr           string
	JWTSigningKey  string
	AdminTokenHash string
}

// Platform captures the DNS targets users point their domains at.
type Platform struct {
	// IP is the address the apex A record must resolve to.
	IP string
	// Nameservers is the delegation set handed out in nameserver mode.
	Nameservers []string
}

// Registrar configures the external domain registrar API.
type Registrar struct {
	BaseURL string
	APIKey  string
	// ReturnURL is where the registrar sends the user after checkout.
	ReturnURL string
	// PollInterval is the order status polling cadence.
	PollInterval time.Duration
	// PollWindow bounds how long an order may stay non-terminal before it is
	// escalated as failed. Payment has already occurred by then, so the
	// failure message points at support rather than retrying silently.
	PollWindow time.Duration
}

// Hosting configures the hosting control plane used for domain mappings.
type Hosting struct {
	BaseURL string
	APIKey  string
	// CertSweepInterval is the certificate monitor cadence.
	CertSweepInterval time.Duration
}

// RedisConfig tunes the optional Redis cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka configures the optional audit event stream.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Config is the full service configuration.
type Config struct {
	Server      Server
	Platform    Platform
	Registrar   Registrar
	Hosting     Hosting
	Redis       RedisConfig
	Kafka       Kafka
	PostgresURL string
}

// FromEnv builds a Config from environment variables so main stays lean.
// Defaults are development values; production overrides everything.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:           envOr("DOMAINS_ADDR", ":8080"),
			JWTSigningKey:  envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			AdminTokenHash: os.Getenv("ADMIN_TOKEN_HASH"),
		},
		Platform: Platform{
			IP:          envOr("PLATFORM_IP", "130.211.43.242"),
			Nameservers: splitList(envOr("PLATFORM_NAMESERVERS", "ns1.plinth-dns.com,ns2.plinth-dns.com")),
		},
		Registrar: Registrar{
			BaseURL:      envOr("REGISTRAR_BASE_URL", "https://registrar.api.local"),
			APIKey:       os.Getenv("REGISTRAR_API_KEY"),
			ReturnURL:    envOr("CHECKOUT_RETURN_URL", "https://dashboard.plinth.app/domains/checkout/return"),
			PollInterval: envDuration("ORDER_POLL_INTERVAL", 3*time.Second),
			PollWindow:   envDuration("ORDER_POLL_WINDOW", 15*time.Minute),
		},
		Hosting: Hosting{
			BaseURL:           envOr("HOSTING_BASE_URL", "https://hosting.api.local"),
			APIKey:            os.Getenv("HOSTING_API_KEY"),
			CertSweepInterval: envDuration("CERT_SWEEP_INTERVAL", time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   envOr("KAFKA_AUDIT_TOPIC", "domains.audit"),
		},
		PostgresURL: os.Getenv("POSTGRES_URL"),
	}
}

// SearchCacheTTL bounds how long registrar search results stay cached.
var SearchCacheTTL = 5 * time.Minute

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// splitList parses a comma-separated env value, dropping blanks and repeats.
func splitList(v string) []string {
	if v == "" {
		return nil
	}
	out := pstrings.DedupeAndTrim(strings.Split(v, ","))
	if len(out) == 0 {
		return nil
	}
	return out
}
