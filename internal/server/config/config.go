// Package config handles configuration for the idgate server: defaults,
// an optional JSON overlay, environment variables, and command-line flags,
// applied in that order.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/idgate/internal/common"
)

// Auth provider backends.
const (
	ProviderSupabase = "supabase"
	ProviderLocal    = "local"
)

// Credential mirror variants. A deployment uses exactly one.
const (
	MirrorLocal  = "local"
	MirrorRemote = "remote"
	MirrorOff    = "off"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreS3       = "s3"
)

// Config holds runtime settings for the idgate server.
//
// Fields:
//   - HTTPAddr: bind address for the public HTTP endpoint.
//   - DatabaseDSN: PostgreSQL DSN (pgx) for accounts, sessions, credentials.
//   - SupabaseURL / SupabaseAnonKey / SupabaseSecretKey: GoTrue endpoint and keys.
//   - EncryptionKey: hex-encoded 32-byte AES key for mirrored credentials.
//   - AuthProvider: "supabase" or "local" (embedded provider).
//   - SecretKey: HMAC secret for the embedded provider's JWTs.
//   - MirrorMode / MirrorPeerURL: credential mirror variant and peer endpoint.
//   - SessionStore / Redis*: where sessions live.
//   - CredentialStore / S3*: where encrypted credentials live.
//   - ProviderTimeout / StoreTimeout: per-call bounds for external calls.
type Config struct {
	HTTPAddr    string `env:"HTTP_ADDR"`
	DatabaseDSN string `env:"DATABASE_DSN"`
	LogLevel    string `env:"LOG_LEVEL"`

	SupabaseURL       string `env:"SUPABASE_URL"`
	SupabaseAnonKey   string `env:"SUPABASE_ANON_KEY"`
	SupabaseSecretKey string `env:"SUPABASE_SECRET_KEY"`
	EncryptionKey     string `env:"ENCRYPTION_KEY"`

	AuthProvider                 string        `env:"AUTH_PROVIDER"`
	SecretKey                    string        `env:"JWT_SECRET"`
	AccessTokenValidityDuration  time.Duration `env:"ACCESS_TOKEN_TTL"`
	RefreshTokenValidityDuration time.Duration `env:"REFRESH_TOKEN_TTL"`

	MirrorMode      string        `env:"MIRROR_MODE"`
	MirrorPeerURL   string        `env:"MIRROR_PEER_URL"`
	MirrorQueueSize int           `env:"MIRROR_QUEUE_SIZE"`
	MirrorTimeout   time.Duration `env:"MIRROR_TIMEOUT"`

	SessionStore  string        `env:"SESSION_STORE"`
	SessionTTL    time.Duration `env:"SESSION_TTL"`
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB"`

	CredentialStore string `env:"CREDENTIAL_STORE"`
	S3RootUser      string `env:"S3_ROOT_USER"`
	S3RootPassword  string `env:"S3_ROOT_PASSWORD"`
	S3Bucket        string `env:"S3_BUCKET"`
	S3Region        string `env:"S3_REGION"`
	S3BaseEndpoint  string `env:"S3_BASE_ENDPOINT"`

	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT"`
	StoreTimeout    time.Duration `env:"STORE_TIMEOUT"`
}

// LoadDefaults populates Config with development defaults. Secrets and
// endpoints have no defaults; Validate rejects them when missing.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":8080"
	c.LogLevel = "info"
	c.AuthProvider = ProviderSupabase
	c.AccessTokenValidityDuration = 15 * time.Minute
	c.RefreshTokenValidityDuration = 30 * 24 * time.Hour
	c.MirrorMode = MirrorLocal
	c.MirrorQueueSize = 64
	c.MirrorTimeout = 10 * time.Second
	c.SessionStore = StorePostgres
	c.SessionTTL = time.Duration(common.SessionCookieMaxAge) * time.Second
	c.RedisAddr = "127.0.0.1:6379"
	c.CredentialStore = StorePostgres
	c.S3Bucket = "credentials"
	c.S3Region = "us-east-1"
	c.ProviderTimeout = 10 * time.Second
	c.StoreTimeout = 5 * time.Second
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file, the environment, and finally command-line flags.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every missing or inconsistent setting at once. A non-nil
// result matches common.ErrMissingConfig and must abort startup.
func (c *Config) Validate() error {
	var missing []string
	req := func(name, v string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}

	req("DATABASE_DSN", c.DatabaseDSN)
	req("ENCRYPTION_KEY", c.EncryptionKey)

	switch c.AuthProvider {
	case ProviderSupabase:
		req("SUPABASE_URL", c.SupabaseURL)
		req("SUPABASE_ANON_KEY", c.SupabaseAnonKey)
		req("SUPABASE_SECRET_KEY", c.SupabaseSecretKey)
	case ProviderLocal:
		req("JWT_SECRET", c.SecretKey)
	default:
		missing = append(missing, fmt.Sprintf("AUTH_PROVIDER (unknown %q)", c.AuthProvider))
	}

	switch c.MirrorMode {
	case MirrorLocal, MirrorOff:
	case MirrorRemote:
		req("MIRROR_PEER_URL", c.MirrorPeerURL)
	default:
		missing = append(missing, fmt.Sprintf("MIRROR_MODE (unknown %q)", c.MirrorMode))
	}

	switch c.SessionStore {
	case StorePostgres:
	case StoreRedis:
		req("REDIS_ADDR", c.RedisAddr)
	default:
		missing = append(missing, fmt.Sprintf("SESSION_STORE (unknown %q)", c.SessionStore))
	}

	switch c.CredentialStore {
	case StorePostgres:
	case StoreS3:
		req("S3_BUCKET", c.S3Bucket)
		req("S3_REGION", c.S3Region)
	default:
		missing = append(missing, fmt.Sprintf("CREDENTIAL_STORE (unknown %q)", c.CredentialStore))
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", common.ErrMissingConfig, strings.Join(missing, ", "))
	}
	return nil
}
