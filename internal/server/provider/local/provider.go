// Package local is an embedded email/password provider for development and
// self-hosting. It mirrors GoTrue's observable behaviour closely enough that
// the orchestrator cannot tell the two apart.
package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/idgate/internal/common"
	"github.com/dmitrijs2005/idgate/internal/cryptox"
	"github.com/dmitrijs2005/idgate/internal/dbx"
	"github.com/dmitrijs2005/idgate/internal/server/models"
	"github.com/dmitrijs2005/idgate/internal/server/provider"
	"github.com/dmitrijs2005/idgate/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// MinPasswordLength matches GoTrue's default.
const MinPasswordLength = 6

var (
	errAlreadyRegistered = &provider.Error{Status: http.StatusBadRequest, Message: "User already registered"}
	errInvalidLogin      = &provider.Error{Status: http.StatusBadRequest, Message: "Invalid login credentials"}
	errWeakPassword      = &provider.Error{
		Status:  http.StatusUnprocessableEntity,
		Message: fmt.Sprintf("Password should be at least %d characters.", MinPasswordLength),
	}
	errRefreshNotFound = &provider.Error{
		Status:  http.StatusBadRequest,
		Message: "Invalid Refresh Token: Refresh Token Not Found",
		Err:     common.ErrInvalidToken,
	}
	errRefreshExpired = &provider.Error{
		Status:  http.StatusBadRequest,
		Message: "Invalid Refresh Token: Refresh Token Expired",
		Err:     common.ErrRefreshTokenExpired,
	}
)

type Provider struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	now                          func() time.Time
}

func New(db *sql.DB, m repomanager.RepositoryManager, secret []byte, accessTTL, refreshTTL time.Duration) *Provider {
	return &Provider{
		db:                           db,
		repomanager:                  m,
		jwtSecret:                    secret,
		accessTokenValidityDuration:  accessTTL,
		refreshTokenValidityDuration: refreshTTL,
		now:                          time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (p *Provider) SignUp(ctx context.Context, email, password string) (*provider.Identity, error) {
	if len(password) < MinPasswordLength {
		return nil, errWeakPassword
	}
	hash, salt, err := cryptox.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	identity := &models.Identity{
		ID:           uuid.NewString(),
		Email:        normalizeEmail(email),
		PasswordHash: hash,
		Salt:         salt,
	}

	var out *provider.Identity
	err = dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := p.repomanager.Identities(tx).Create(ctx, identity); err != nil {
			if errors.Is(err, common.ErrorConflict) {
				return errAlreadyRegistered
			}
			return err
		}
		var err error
		out, err = p.issue(ctx, tx, identity)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*provider.Identity, error) {
	identity, err := p.repomanager.Identities(p.db).GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// burn the same argon2 cost so absent users are not distinguishable by timing
			cryptox.VerifyPassword(password, make([]byte, cryptox.KeySize), common.GenerateRandByteArray(16))
			return nil, errInvalidLogin
		}
		return nil, err
	}
	if !cryptox.VerifyPassword(password, identity.PasswordHash, identity.Salt) {
		return nil, errInvalidLogin
	}
	return p.issue(ctx, p.db, identity)
}

// Refresh consumes a refresh token and returns a fresh token pair in one
// transaction.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*provider.Identity, error) {
	var out *provider.Identity
	err := dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		rt, err := p.repomanager.RefreshTokens(tx).Consume(ctx, refreshToken)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return errRefreshNotFound
			}
			return err
		}
		if rt.Expires.Before(p.now()) {
			return errRefreshExpired
		}
		identity, err := p.repomanager.Identities(tx).GetByID(ctx, rt.UserID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return errRefreshNotFound
			}
			return err
		}
		out, err = p.issue(ctx, tx, identity)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Provider) DeleteUser(ctx context.Context, userID string) error {
	return p.repomanager.Identities(p.db).Delete(ctx, userID)
}

func (p *Provider) issue(ctx context.Context, db dbx.DBTX, identity *models.Identity) (*provider.Identity, error) {
	now := p.now()
	access, err := generateAccessToken(identity.ID, identity.Email, p.jwtSecret, now, p.accessTokenValidityDuration)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	if err := p.repomanager.RefreshTokens(db).Create(ctx, identity.ID, refresh, now.Add(p.refreshTokenValidityDuration)); err != nil {
		return nil, err
	}
	return &provider.Identity{UserID: identity.ID, AccessToken: access, RefreshToken: refresh}, nil
}
