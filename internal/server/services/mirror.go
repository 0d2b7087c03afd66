package services

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/idgate/internal/cryptox"
	"github.com/dmitrijs2005/idgate/internal/dbx"
	"github.com/dmitrijs2005/idgate/internal/logging"
	"github.com/dmitrijs2005/idgate/internal/netx"
	"github.com/dmitrijs2005/idgate/internal/server/repositories/credentials"
)

// Mirror copies a freshly registered credential to a secondary system.
type Mirror interface {
	Mirror(ctx context.Context, accountID, password string) error
}

// LocalMirror encrypts the credential and upserts it into a credential
// store. It also serves the receiving end of RemoteMirror.
type LocalMirror struct {
	store credentials.Repository
	key   []byte
}

func NewLocalMirror(store credentials.Repository, key []byte) *LocalMirror {
	return &LocalMirror{store: store, key: key}
}

func (m *LocalMirror) Mirror(ctx context.Context, accountID, password string) error {
	token, err := cryptox.EncryptCredential(password, m.key)
	if err != nil {
		return fmt.Errorf("encrypt credential: %w", err)
	}
	if err := m.store.Upsert(ctx, accountID, token); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	return nil
}

// RemoteMirror posts the credential to a peer's /login-else endpoint. One
// attempt; any non-2xx answer is a failure.
type RemoteMirror struct {
	url  string
	http *http.Client
}

func NewRemoteMirror(peerURL string, timeout time.Duration) *RemoteMirror {
	return &RemoteMirror{url: peerURL, http: &http.Client{Timeout: timeout}}
}

type mirrorPayload struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

func (m *RemoteMirror) Mirror(ctx context.Context, accountID, password string) error {
	err := netx.DoJSON(ctx, m.http, http.MethodPost, m.url, nil,
		mirrorPayload{ID: accountID, Password: password}, nil)
	if err != nil {
		return fmt.Errorf("mirror to peer: %w", err)
	}
	return nil
}

type mirrorTask struct {
	accountID string
	password  string
}

// Dispatcher runs mirror calls off the request path on a single worker.
// Dispatch never blocks: when the queue is full the task is dropped and
// logged. A nil *Dispatcher accepts and ignores everything, which is how
// mirroring is switched off.
type Dispatcher struct {
	mirror    Mirror
	timeout   time.Duration
	log       logging.Logger
	ch        chan mirrorTask
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closeOnce sync.Once

	// mu orders Dispatch against Close so that nothing is queued after the
	// worker starts draining.
	mu     sync.Mutex
	closed bool
}

func NewDispatcher(m Mirror, queueSize int, timeout time.Duration, log logging.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	d := &Dispatcher{
		mirror:  m,
		timeout: timeout,
		log:     log,
		ch:      make(chan mirrorTask, queueSize),
		done:    make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case t := <-d.ch:
			d.execute(t)
		case <-d.done:
			for {
				select {
				case t := <-d.ch:
					d.execute(t)
				default:
					return
				}
			}
		}
	}
}

// execute runs on a detached context: the request that queued the task has
// usually finished by now.
func (d *Dispatcher) execute(t mirrorTask) {
	ctx, cancel := dbx.Bounded(context.Background(), d.timeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			d.log.Error(ctx, "credential mirror panicked", "account_id", t.accountID, "panic", fmt.Sprint(p))
		}
	}()

	if err := d.mirror.Mirror(ctx, t.accountID, t.password); err != nil {
		d.log.Error(ctx, "credential mirror failed", "account_id", t.accountID, "error", err)
		return
	}
	d.log.Debug(ctx, "credential mirrored", "account_id", t.accountID)
}

// Dispatch queues a mirror call and reports whether it was accepted.
func (d *Dispatcher) Dispatch(ctx context.Context, accountID, password string) bool {
	if d == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	select {
	case d.ch <- mirrorTask{accountID: accountID, password: password}:
		return true
	default:
		d.dropped.Add(1)
		d.log.Warn(ctx, "credential mirror queue full, dropping", "account_id", accountID)
		return false
	}
}

// Close stops accepting work and waits for queued tasks to finish.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.done)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
