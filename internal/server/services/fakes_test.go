package services

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/idgate/internal/common"
	"github.com/dmitrijs2005/idgate/internal/dbx"
	"github.com/dmitrijs2005/idgate/internal/logging"
	"github.com/dmitrijs2005/idgate/internal/server/models"
	"github.com/dmitrijs2005/idgate/internal/server/provider"
	"github.com/dmitrijs2005/idgate/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/idgate/internal/server/repositories/credentials"
	"github.com/dmitrijs2005/idgate/internal/server/repositories/identities"
	"github.com/dmitrijs2005/idgate/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/idgate/internal/server/repositories/sessions"
)

// --- accounts ---

// fakeAccounts enforces the same unique keys as the accounts table. The
// existence check and the insert are separate critical sections, so the
// check-then-insert race is real.
type fakeAccounts struct {
	mu       sync.Mutex
	byID     map[string]*models.Account
	inserts  atomic.Int64
	existErr error
	// insertErrs are returned, in order, before the real insert logic.
	insertErrs []error
	appendErr  error
	findErr    error
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{byID: map[string]*models.Account{}}
}

func (f *fakeAccounts) UsernameExists(ctx context.Context, username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existErr != nil {
		return false, f.existErr
	}
	for _, a := range f.byID {
		if a.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAccounts) ExistsByID(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existErr != nil {
		return false, f.existErr
	}
	_, ok := f.byID[id]
	return ok, nil
}

func (f *fakeAccounts) Insert(ctx context.Context, a *models.Account) error {
	f.inserts.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.insertErrs) > 0 {
		err := f.insertErrs[0]
		f.insertErrs = f.insertErrs[1:]
		return err
	}
	if _, ok := f.byID[a.ID]; ok {
		return common.ErrIDConflict
	}
	for _, other := range f.byID {
		if other.Username == a.Username || other.UserID == a.UserID {
			return common.ErrorConflict
		}
	}
	cp := *a
	cp.Logs = append([]models.LogEntry(nil), a.Logs...)
	cp.CreatedAt = time.Now()
	f.byID[a.ID] = &cp
	return nil
}

func (f *fakeAccounts) findLocked(userID string) *models.Account {
	for _, a := range f.byID {
		if a.UserID == userID {
			return a
		}
	}
	return nil
}

func (f *fakeAccounts) FindByUserID(ctx context.Context, userID string) (*models.Account, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.findLocked(userID)
	if a == nil {
		return nil, common.ErrorNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAccounts) AppendLog(ctx context.Context, userID string, e models.LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	a := f.findLocked(userID)
	if a == nil {
		return common.ErrorNotFound
	}
	a.Logs = append(a.Logs, e)
	return nil
}

func (f *fakeAccounts) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID)
}

// --- sessions ---

type fakeSessions struct {
	mu        sync.Mutex
	byID      map[string]*models.Session
	createErr error
	appendErr error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{byID: map[string]*models.Session{}}
}

func (f *fakeSessions) Create(ctx context.Context, s *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.byID[s.ID]; ok {
		return common.ErrorConflict
	}
	cp := *s
	cp.IPAddresses = append([]string(nil), s.IPAddresses...)
	f.byID[s.ID] = &cp
	return nil
}

func (f *fakeSessions) AppendIP(ctx context.Context, id, ip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	s, ok := f.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	for _, have := range s.IPAddresses {
		if have == ip {
			return nil
		}
	}
	s.IPAddresses = append(s.IPAddresses, ip)
	return nil
}

func (f *fakeSessions) Get(ctx context.Context, id string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessions) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID)
}

// --- credentials ---

type fakeCredentials struct {
	mu        sync.Mutex
	payloads  map[string]string
	upsertErr error
}

func newFakeCredentials() *fakeCredentials {
	return &fakeCredentials{payloads: map[string]string{}}
}

func (f *fakeCredentials) Upsert(ctx context.Context, accountID, payload string) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads[accountID] = payload
	return nil
}

func (f *fakeCredentials) Get(ctx context.Context, accountID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payloads[accountID]
	if !ok {
		return "", common.ErrorNotFound
	}
	return p, nil
}

// --- repo manager ---

type fakeRepoManager struct {
	a *fakeAccounts
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error       { return nil }
func (m *fakeRepoManager) Accounts(db dbx.DBTX) accounts.Repository           { return m.a }
func (m *fakeRepoManager) Sessions(db dbx.DBTX) sessions.Repository           { return nil }
func (m *fakeRepoManager) Credentials(db dbx.DBTX) credentials.Repository     { return nil }
func (m *fakeRepoManager) Identities(db dbx.DBTX) identities.Repository       { return nil }
func (m *fakeRepoManager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository { return nil }

// --- provider ---

type fakeProvider struct {
	mu        sync.Mutex
	users     map[string]string // email -> user id
	signUps   atomic.Int64
	deleted   []string
	signUpErr error
	signInErr error
	deleteErr error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{users: map[string]string{}}
}

func (p *fakeProvider) SignUp(ctx context.Context, email, password string) (*provider.Identity, error) {
	p.signUps.Add(1)
	if p.signUpErr != nil {
		return nil, p.signUpErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.users[email]; ok {
		return nil, &provider.Error{Status: 400, Message: "User already registered"}
	}
	id := "uid-" + email
	p.users[email] = id
	return &provider.Identity{UserID: id, AccessToken: "at-" + id, RefreshToken: "rt-" + id}, nil
}

func (p *fakeProvider) SignInWithPassword(ctx context.Context, email, password string) (*provider.Identity, error) {
	if p.signInErr != nil {
		return nil, p.signInErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.users[email]
	if !ok {
		return nil, &provider.Error{Status: 400, Message: "Invalid login credentials"}
	}
	return &provider.Identity{UserID: id, AccessToken: "at-" + id, RefreshToken: "rt-" + id}, nil
}

// Refresh accepts the refresh token issued by SignUp or SignInWithPassword.
func (p *fakeProvider) Refresh(ctx context.Context, refreshToken string) (*provider.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range p.users {
		if refreshToken == "rt-"+id {
			return &provider.Identity{UserID: id, AccessToken: "at2-" + id, RefreshToken: "rt2-" + id}, nil
		}
	}
	return nil, &provider.Error{Status: 400, Message: "Invalid Refresh Token: Refresh Token Not Found"}
}

func (p *fakeProvider) DeleteUser(ctx context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, userID)
	if p.deleteErr != nil {
		return p.deleteErr
	}
	for email, id := range p.users {
		if id == userID {
			delete(p.users, email)
		}
	}
	return nil
}

// --- mirror ---

type recordingMirror struct {
	mu    sync.Mutex
	calls []mirrorTask
	err   error
	block chan struct{}
	panic bool
}

func (m *recordingMirror) Mirror(ctx context.Context, accountID, password string) error {
	if m.block != nil {
		<-m.block
	}
	if m.panic {
		panic("boom")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, mirrorTask{accountID: accountID, password: password})
	return m.err
}

func (m *recordingMirror) recorded() []mirrorTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mirrorTask(nil), m.calls...)
}

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var nop logging.Logger = logging.Nop{}
