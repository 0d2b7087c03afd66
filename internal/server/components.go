package server

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrijs2005/idgate/internal/logging"
	"github.com/dmitrijs2005/idgate/internal/server/config"
	"github.com/dmitrijs2005/idgate/internal/server/provider"
	"github.com/dmitrijs2005/idgate/internal/server/provider/local"
	"github.com/dmitrijs2005/idgate/internal/server/provider/supabase"
	"github.com/dmitrijs2005/idgate/internal/server/repositories/credentials"
	"github.com/dmitrijs2005/idgate/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/idgate/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/idgate/internal/server/services"
)

// RedisSessionPrefix namespaces session keys in Redis.
const RedisSessionPrefix = "idgate:session"

func buildSessionStore(c *config.Config, rm repomanager.RepositoryManager, db *sql.DB, rdb redis.UniversalClient) (sessions.Repository, error) {
	switch c.SessionStore {
	case config.StorePostgres:
		return rm.Sessions(db), nil
	case config.StoreRedis:
		if rdb == nil {
			return nil, fmt.Errorf("session store %q: no redis client", c.SessionStore)
		}
		return sessions.NewRedisRepository(rdb, RedisSessionPrefix, c.SessionTTL), nil
	default:
		return nil, fmt.Errorf("unknown session store %q", c.SessionStore)
	}
}

func buildCredentialStore(ctx context.Context, c *config.Config, rm repomanager.RepositoryManager, db *sql.DB) (credentials.Repository, error) {
	switch c.CredentialStore {
	case config.StorePostgres:
		return rm.Credentials(db), nil
	case config.StoreS3:
		client, err := credentials.NewS3Client(ctx, credentials.S3Options{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			BaseEndpoint: c.S3BaseEndpoint,
		})
		if err != nil {
			return nil, err
		}
		return credentials.NewS3Repository(client, c.S3Bucket), nil
	default:
		return nil, fmt.Errorf("unknown credential store %q", c.CredentialStore)
	}
}

func buildProvider(c *config.Config, rm repomanager.RepositoryManager, db *sql.DB) (provider.Provider, error) {
	switch c.AuthProvider {
	case config.ProviderSupabase:
		return supabase.New(c.SupabaseURL, c.SupabaseAnonKey, c.SupabaseSecretKey, c.ProviderTimeout), nil
	case config.ProviderLocal:
		return local.New(db, rm, []byte(c.SecretKey), c.AccessTokenValidityDuration, c.RefreshTokenValidityDuration), nil
	default:
		return nil, fmt.Errorf("unknown auth provider %q", c.AuthProvider)
	}
}

// buildDispatcher returns nil when mirroring is off.
func buildDispatcher(c *config.Config, localMirror *services.LocalMirror, log logging.Logger) (*services.Dispatcher, error) {
	var m services.Mirror
	switch c.MirrorMode {
	case config.MirrorOff:
		return nil, nil
	case config.MirrorLocal:
		m = localMirror
	case config.MirrorRemote:
		m = services.NewRemoteMirror(c.MirrorPeerURL, c.MirrorTimeout)
	default:
		return nil, fmt.Errorf("unknown mirror mode %q", c.MirrorMode)
	}
	return services.NewDispatcher(m, c.MirrorQueueSize, c.MirrorTimeout, log), nil
}

// OpenCredentialStore opens only what the configured credential store
// needs. The returned func releases it.
func OpenCredentialStore(ctx context.Context, c *config.Config) (credentials.Repository, func() error, error) {
	if c.CredentialStore != config.StorePostgres {
		store, err := buildCredentialStore(ctx, c, nil, nil)
		return store, func() error { return nil }, err
	}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("db ping: %w", err)
	}
	return credentials.NewPostgresRepository(db), db.Close, nil
}
