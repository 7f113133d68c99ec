package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	LogLevel    string

	AdminAPIKey string

	// Enclave signing key. When both are empty an ephemeral keypair is
	// generated at boot, which is the normal in-enclave mode.
	SigningSeedHex string

	// Self-described code identity (own PCR0). Embedded in checkpoint
	// headers; informational for consumers, who verify via attestation.
	CodeIdentity string

	// Attestation serving: path to the raw envelope produced by the
	// hardware attestation device at boot.
	AttestationPath string

	// Measurement acceptance: optional rego bundle, plus static
	// allowlists used when no bundle is configured.
	PolicyBundlePath     string
	AllowedGatewayPCR0   []string
	AllowedValidatorPCR0 []string

	CheckpointIntervalSeconds int
	CheckpointDir             string

	SubnetID             int64
	AuditWeightTolerance int64

	RedisAddr                  string
	RedisPassword              string
	RedisDB                    int
	AttestationCacheTTLSeconds int
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:                   addr,
		PostgresDSN:                os.Getenv("POSTGRES_DSN"),
		LogLevel:                   envDefault("LOG_LEVEL", "info"),
		AdminAPIKey:                os.Getenv("ADMIN_API_KEY"),
		SigningSeedHex:             os.Getenv("ENCLAVE_SIGNING_SEED_HEX"),
		CodeIdentity:               os.Getenv("CODE_IDENTITY_PCR0"),
		AttestationPath:            os.Getenv("ATTESTATION_PATH"),
		PolicyBundlePath:           os.Getenv("ATTESTATION_POLICY_BUNDLE"),
		AllowedGatewayPCR0:         envList("ALLOWED_GATEWAY_PCR0"),
		AllowedValidatorPCR0:       envList("ALLOWED_VALIDATOR_PCR0"),
		CheckpointIntervalSeconds:  envIntDefault("CHECKPOINT_INTERVAL_SECONDS", 3600),
		CheckpointDir:              envDefault("CHECKPOINT_DIR", "checkpoints"),
		SubnetID:                   int64(envIntDefault("SUBNET_ID", 71)),
		AuditWeightTolerance:       int64(envIntDefault("AUDIT_WEIGHT_TOLERANCE", 1)),
		RedisAddr:                  os.Getenv("REDIS_ADDR"),
		RedisPassword:              os.Getenv("REDIS_PASSWORD"),
		RedisDB:                    envIntDefault("REDIS_DB", 0),
		AttestationCacheTTLSeconds: envIntDefault("ATTESTATION_CACHE_TTL_SECONDS", 300),
	}
}

func (c Config) CheckpointInterval() time.Duration {
	if c.CheckpointIntervalSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(c.CheckpointIntervalSeconds) * time.Second
}

func (c Config) AttestationCacheTTL() time.Duration {
	if c.AttestationCacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.AttestationCacheTTLSeconds) * time.Second
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
