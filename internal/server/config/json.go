package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/idgate/internal/flagx"
	"github.com/dmitrijs2005/idgate/internal/timex"
)

// JsonConfig is the on-disk shape of the -c/-config file. Durations accept
// either "5s" strings or integer nanoseconds. Absent keys keep the value
// already in Config.
type JsonConfig struct {
	HTTPAddr          *string `json:"http_addr"`
	DatabaseDSN       *string `json:"database_dsn"`
	LogLevel          *string `json:"log_level"`
	SupabaseURL       *string `json:"supabase_url"`
	SupabaseAnonKey   *string `json:"supabase_anon_key"`
	SupabaseSecretKey *string `json:"supabase_secret_key"`
	EncryptionKey     *string `json:"encryption_key"`

	AuthProvider                 *string         `json:"auth_provider"`
	SecretKey                    *string         `json:"secret_key"`
	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`

	MirrorMode      *string         `json:"mirror_mode"`
	MirrorPeerURL   *string         `json:"mirror_peer_url"`
	MirrorQueueSize *int            `json:"mirror_queue_size"`
	MirrorTimeout   *timex.Duration `json:"mirror_timeout"`

	SessionStore  *string         `json:"session_store"`
	SessionTTL    *timex.Duration `json:"session_ttl"`
	RedisAddr     *string         `json:"redis_addr"`
	RedisPassword *string         `json:"redis_password"`
	RedisDB       *int            `json:"redis_db"`

	CredentialStore *string `json:"credential_store"`
	S3RootUser      *string `json:"s3_root_user"`
	S3RootPassword  *string `json:"s3_root_password"`
	S3Bucket        *string `json:"s3_bucket"`
	S3Region        *string `json:"s3_region"`
	S3BaseEndpoint  *string `json:"s3_base_endpoint"`

	ProviderTimeout *timex.Duration `json:"provider_timeout"`
	StoreTimeout    *timex.Duration `json:"store_timeout"`
}

// parseJson loads the file named by -c/-config, if any, over config.
func parseJson(config *Config) error {
	path := flagx.JsonConfigFlags()
	if path == "" {
		return nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.SupabaseURL, c.SupabaseURL)
	setString(&config.SupabaseAnonKey, c.SupabaseAnonKey)
	setString(&config.SupabaseSecretKey, c.SupabaseSecretKey)
	setString(&config.EncryptionKey, c.EncryptionKey)
	setString(&config.AuthProvider, c.AuthProvider)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setString(&config.MirrorMode, c.MirrorMode)
	setString(&config.MirrorPeerURL, c.MirrorPeerURL)
	setInt(&config.MirrorQueueSize, c.MirrorQueueSize)
	setDuration(&config.MirrorTimeout, c.MirrorTimeout)
	setString(&config.SessionStore, c.SessionStore)
	setDuration(&config.SessionTTL, c.SessionTTL)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	setInt(&config.RedisDB, c.RedisDB)
	setString(&config.CredentialStore, c.CredentialStore)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setDuration(&config.ProviderTimeout, c.ProviderTimeout)
	setDuration(&config.StoreTimeout, c.StoreTimeout)

	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
