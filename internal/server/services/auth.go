package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/idgate/internal/common"
	"github.com/dmitrijs2005/idgate/internal/dbx"
	"github.com/dmitrijs2005/idgate/internal/logging"
	"github.com/dmitrijs2005/idgate/internal/retryx"
	"github.com/dmitrijs2005/idgate/internal/server/models"
	"github.com/dmitrijs2005/idgate/internal/server/provider"
	"github.com/dmitrijs2005/idgate/internal/server/repositories/repomanager"
)

// DefaultInsertRounds bounds allocate+insert rounds when the insert itself
// loses an id race.
const DefaultInsertRounds = 3

// compensationTimeout bounds the provider rollback after a failed signup.
const compensationTimeout = 5 * time.Second

// AuthResult is returned by successful signup and login.
type AuthResult struct {
	AccountID    string
	UserID       string
	AccessToken  string
	RefreshToken string
	Session      *Resolution
}

// AuthService runs the signup, login and refresh flows.
type AuthService struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	provider     provider.Provider
	allocator    *Allocator
	correlator   *Correlator
	dispatcher   *Dispatcher
	storeTimeout time.Duration
	insertRounds uint64
	log          logging.Logger
	now          func() time.Time
}

// NewAuthService wires the flows. dispatcher may be nil, which disables
// credential mirroring.
func NewAuthService(
	db *sql.DB,
	m repomanager.RepositoryManager,
	p provider.Provider,
	allocator *Allocator,
	correlator *Correlator,
	dispatcher *Dispatcher,
	storeTimeout time.Duration,
	log logging.Logger,
) *AuthService {
	return &AuthService{
		db:           db,
		repomanager:  m,
		provider:     p,
		allocator:    allocator,
		correlator:   correlator,
		dispatcher:   dispatcher,
		storeTimeout: storeTimeout,
		insertRounds: DefaultInsertRounds,
		log:          log,
		now:          time.Now,
	}
}

func validationError(err error) error {
	return fmt.Errorf("%w: %s", common.ErrorValidation, err.Error())
}

func storageError(err error) error {
	return fmt.Errorf("%w: %w", common.ErrStorage, err)
}

// Signup registers a new user with the provider and links it to a freshly
// allocated account id.
func (s *AuthService) Signup(ctx context.Context, req SignupRequest, client ClientInfo) (*AuthResult, error) {
	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}

	res, err := s.correlator.Resolve(ctx, client.CookieHeader, client.IP, client.UserAgent)
	if err != nil {
		return nil, err
	}

	accounts := s.repomanager.Accounts(s.db)

	sctx, cancel := dbx.Bounded(ctx, s.storeTimeout)
	taken, err := accounts.UsernameExists(sctx, req.Username)
	cancel()
	if err != nil {
		return nil, storageError(err)
	}
	if taken {
		return nil, common.ErrUsernameTaken
	}

	identity, err := s.provider.SignUp(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	accountID, err := s.createAccount(ctx, identity.UserID, req.Username, res.SessionID)
	if err != nil {
		s.compensate(ctx, identity.UserID, err)
		return nil, err
	}

	s.dispatcher.Dispatch(ctx, accountID, req.Password)

	s.log.Info(ctx, "signup", "account_id", accountID, "user_id", identity.UserID, "session_id", res.SessionID)
	return &AuthResult{
		AccountID:    accountID,
		UserID:       identity.UserID,
		AccessToken:  identity.AccessToken,
		RefreshToken: identity.RefreshToken,
		Session:      res,
	}, nil
}

// createAccount allocates an id and inserts the account, starting over with
// a new id if the insert loses a race for the one it was given.
func (s *AuthService) createAccount(ctx context.Context, userID, username, sessionID string) (string, error) {
	var accountID string
	err := retryx.Do(ctx, s.insertRounds, 0, func(ctx context.Context, round int) error {
		id, err := s.allocator.Allocate(ctx)
		if err != nil {
			return err
		}

		account := models.NewAccount(id, userID, username, sessionID, s.now())

		sctx, cancel := dbx.Bounded(ctx, s.storeTimeout)
		defer cancel()

		err = s.repomanager.Accounts(s.db).Insert(sctx, account)
		switch {
		case err == nil:
			accountID = id
			return nil
		case errors.Is(err, common.ErrIDConflict):
			s.log.Warn(ctx, "account id taken at insert", "round", round)
			return retryx.Retryable(err)
		case errors.Is(err, common.ErrorConflict):
			// lost a race for the username after the pre-check
			return common.ErrUsernameTaken
		default:
			return storageError(err)
		}
	})
	if err != nil {
		if errors.Is(err, retryx.ErrExhausted) && !errors.Is(err, common.ErrAllocationExhausted) {
			return "", fmt.Errorf("%w: %w", common.ErrAllocationExhausted, err)
		}
		return "", err
	}
	return accountID, nil
}

// compensate deletes the provider user created by a signup that could not
// be completed, so the email is free to sign up again.
func (s *AuthService) compensate(ctx context.Context, userID string, cause error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	if err := s.provider.DeleteUser(cctx, userID); err != nil {
		s.log.Error(ctx, "signup rollback failed, provider user orphaned",
			"user_id", userID, "cause", cause, "error", err)
		return
	}
	s.log.Warn(ctx, "signup rolled back", "user_id", userID, "cause", cause)
}

// Login authenticates with the provider and records the login on the linked
// account. If no account is linked nothing is written.
func (s *AuthService) Login(ctx context.Context, req LoginRequest, client ClientInfo) (*AuthResult, error) {
	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}

	identity, err := s.provider.SignInWithPassword(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	res, err := s.correlator.Resolve(ctx, client.CookieHeader, client.IP, client.UserAgent)
	if err != nil {
		return nil, err
	}

	entry := models.LogEntry{Type: models.LogLogin, Timestamp: s.now().UTC(), SessionID: res.SessionID}

	sctx, cancel := dbx.Bounded(ctx, s.storeTimeout)
	defer cancel()

	var account *models.Account
	err = dbx.WithTx(sctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		accounts := s.repomanager.Accounts(tx)
		if err := accounts.AppendLog(ctx, identity.UserID, entry); err != nil {
			return err
		}
		var err error
		account, err = accounts.FindByUserID(ctx, identity.UserID)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.log.Error(ctx, "authenticated user has no account", "user_id", identity.UserID)
			return nil, common.ErrAccountNotFound
		}
		return nil, storageError(err)
	}

	s.log.Info(ctx, "login", "account_id", account.ID, "user_id", identity.UserID, "session_id", res.SessionID)
	return &AuthResult{
		AccountID:    account.ID,
		UserID:       identity.UserID,
		AccessToken:  identity.AccessToken,
		RefreshToken: identity.RefreshToken,
		Session:      res,
	}, nil
}

// Refresh trades a refresh token for a new token pair. It neither touches the
// session nor appends to the account log.
func (s *AuthService) Refresh(ctx context.Context, req RefreshRequest) (*AuthResult, error) {
	if err := req.Validate(); err != nil {
		return nil, validationError(err)
	}

	identity, err := s.provider.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return nil, err
	}

	sctx, cancel := dbx.Bounded(ctx, s.storeTimeout)
	defer cancel()

	account, err := s.repomanager.Accounts(s.db).FindByUserID(sctx, identity.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.log.Error(ctx, "refreshed user has no account", "user_id", identity.UserID)
			return nil, common.ErrAccountNotFound
		}
		return nil, storageError(err)
	}

	s.log.Debug(ctx, "token refreshed", "account_id", account.ID, "user_id", identity.UserID)
	return &AuthResult{
		AccountID:    account.ID,
		UserID:       identity.UserID,
		AccessToken:  identity.AccessToken,
		RefreshToken: identity.RefreshToken,
	}, nil
}

// CredentialService is the receiving end of a remote credential mirror.
type CredentialService struct {
	mirror       *LocalMirror
	storeTimeout time.Duration
	log          logging.Logger
}

func NewCredentialService(mirror *LocalMirror, storeTimeout time.Duration, log logging.Logger) *CredentialService {
	return &CredentialService{mirror: mirror, storeTimeout: storeTimeout, log: log}
}

// Store encrypts and upserts one credential synchronously.
func (s *CredentialService) Store(ctx context.Context, req MirrorRequest) error {
	if err := req.Validate(); err != nil {
		return validationError(err)
	}

	sctx, cancel := dbx.Bounded(ctx, s.storeTimeout)
	defer cancel()

	if err := s.mirror.Mirror(sctx, req.ID, req.Password); err != nil {
		return storageError(err)
	}
	s.log.Info(ctx, "credential stored", "account_id", req.ID)
	return nil
}
