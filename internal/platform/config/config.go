package config

import (
	"math/big"
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration so main stays lean.
type Server struct {
	Addr string

	// Parent domain the registrar mints under, e.g. names under "dcl.eth".
	TopDomain string
	Domain    string
	BaseURI   string

	// Owner is the administrator account for privileged operations.
	Owner         string
	AdminToken    string
	JWTSigningKey string

	// ServiceAccount is the identity the registrar acts as against the
	// external naming system; the instance addresses identify each protocol
	// in the controller ACL and in commit hashes.
	ServiceAccount       string
	CommitRevealInstance string
	StandardInstance     string

	// FeeCollector receives fees from the immediate protocol; empty burns.
	FeeCollector string

	// Price is the fee per name in the accepted token's smallest unit.
	Price *big.Int

	RevealDelay time.Duration
	MaxGasPrice uint64

	Redis    RedisConfig
	Postgres PostgresConfig
	Kafka    KafkaConfig
}

// RedisConfig holds the optional Redis backing for commit records.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig holds the optional Postgres backing for the ledger.
type PostgresConfig struct {
	URL string
}

// KafkaConfig holds the optional Kafka sink for the event log.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// DefaultPrice is 100 tokens at 18 decimals, the fee both protocols charge.
var DefaultPrice = new(big.Int).Mul(big.NewInt(100), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	cfg := Server{
		Addr:          envOr("NAMEREG_ADDR", ":8080"),
		TopDomain:     envOr("NAMEREG_TOP_DOMAIN", "eth"),
		Domain:        envOr("NAMEREG_DOMAIN", "dcl"),
		BaseURI:       os.Getenv("NAMEREG_BASE_URI"),
		Owner:         envOr("NAMEREG_OWNER", "0x0000000000000000000000000000000000000001"),
		AdminToken:    os.Getenv("NAMEREG_ADMIN_TOKEN"),
		JWTSigningKey: envOr("NAMEREG_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		ServiceAccount:       envOr("NAMEREG_SERVICE_ACCOUNT", "0x0000000000000000000000000000000000000002"),
		CommitRevealInstance: envOr("NAMEREG_COMMIT_REVEAL_INSTANCE", "0x0000000000000000000000000000000000000003"),
		StandardInstance:     envOr("NAMEREG_STANDARD_INSTANCE", "0x0000000000000000000000000000000000000004"),
		FeeCollector:         os.Getenv("NAMEREG_FEE_COLLECTOR"),
		Price:         DefaultPrice,
		RevealDelay:   envDurationOr("NAMEREG_REVEAL_DELAY", 60*time.Second),
		MaxGasPrice:   envUint64Or("NAMEREG_MAX_GAS_PRICE", 20_000_000_000),
		Redis: RedisConfig{
			URL:          os.Getenv("NAMEREG_REDIS_URL"),
			PoolSize:     envIntOr("NAMEREG_REDIS_POOL_SIZE", 10),
			MinIdleConns: envIntOr("NAMEREG_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDurationOr("NAMEREG_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDurationOr("NAMEREG_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDurationOr("NAMEREG_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{URL: os.Getenv("NAMEREG_POSTGRES_URL")},
		Kafka: KafkaConfig{
			Topic: envOr("NAMEREG_KAFKA_TOPIC", "namereg.events"),
		},
	}
	if brokers := os.Getenv("NAMEREG_KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = splitComma(brokers)
	}
	if price := os.Getenv("NAMEREG_PRICE"); price != "" {
		if p, ok := new(big.Int).SetString(price, 10); ok {
			cfg.Price = p
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envUint64Or(key string, fallback uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
