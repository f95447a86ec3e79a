package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/duynhne/codeyard/internal/core/session"
	"github.com/duynhne/codeyard/internal/logger"
)

var (
	// ErrNoSession is returned when a 401 arrives and there is no token to refresh.
	ErrNoSession = errors.New("no session to refresh")
	// ErrRefreshFailed wraps the error of a failed refresh for every parked request.
	ErrRefreshFailed = errors.New("token refresh failed")
)

type refreshState int

const (
	stateIdle refreshState = iota
	stateRefreshing
)

func (s refreshState) String() string {
	if s == stateRefreshing {
		return "refreshing"
	}
	return "idle"
}

// RefreshFunc exchanges the refresh credential for a new access token.
type RefreshFunc func(ctx context.Context) (string, error)

// waiter is a request parked behind a refresh. done is closed once the
// request has replayed, which hands the turn to the next waiter.
type waiter struct {
	result chan error
	done   chan struct{}
	once   sync.Once
}

func newWaiter() *waiter {
	return &waiter{result: make(chan error, 1), done: make(chan struct{})}
}

func (w *waiter) release() {
	w.once.Do(func() { close(w.done) })
}

func noop() {}

// RefreshCoordinator guarantees at most one token refresh in flight.
// Requests that hit a 401 while a refresh is running are parked in arrival
// order and released once the refresh settles, with its outcome. After a
// successful refresh they replay one at a time, in the order they parked.
type RefreshCoordinator struct {
	mu      sync.Mutex
	state   refreshState
	waiters []*waiter

	// window is the token being replaced by the running refresh; failed is
	// the token of the last window whose refresh failed.
	window string
	failed string

	session *session.Store
	refresh RefreshFunc
	timeout time.Duration
	metrics *Metrics
}

// NewRefreshCoordinator creates an idle coordinator.
func NewRefreshCoordinator(store *session.Store, refresh RefreshFunc, timeout time.Duration, metrics *Metrics) *RefreshCoordinator {
	return &RefreshCoordinator{
		session: store,
		refresh: refresh,
		timeout: timeout,
		metrics: metrics,
	}
}

// Refreshing reports whether a refresh is in flight.
func (rc *RefreshCoordinator) Refreshing() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.state == stateRefreshing
}

// Await is called after a request sent with staleToken was answered with 401.
// It returns nil once a token different from staleToken is installed and the
// request may be retried.
//
// If the session already moved past staleToken, Await returns immediately.
// If there is no token at all, the session is expired without a refresh and
// ErrNoSession is returned. The session is not expired a second time for a
// token whose refresh already failed.
func (rc *RefreshCoordinator) Await(ctx context.Context, staleToken string) error {
	done, err := rc.AwaitTurn(ctx, staleToken)
	done()
	return err
}

// AwaitTurn is Await for a caller that replays its request afterwards. The
// caller must call done once the replay was answered (or abandoned); the next
// parked request is not released before that.
func (rc *RefreshCoordinator) AwaitTurn(ctx context.Context, staleToken string) (done func(), err error) {
	rc.mu.Lock()
	current := rc.session.AccessToken()
	if current == "" {
		expire := staleToken == "" || staleToken != rc.failed
		rc.mu.Unlock()
		rc.metrics.Refreshes.WithLabelValues("no_session").Inc()
		if expire {
			rc.session.Expire(ctx)
		}
		return noop, ErrNoSession
	}
	if current != staleToken {
		rc.mu.Unlock()
		return noop, nil
	}
	return rc.join(ctx)
}

// Refresh refreshes the access token explicitly. It joins the refresh in
// flight, or starts one; either way exactly one refresh call is made for the
// window. A failure expires the session like an intercepted 401 does.
func (rc *RefreshCoordinator) Refresh(ctx context.Context) error {
	rc.mu.Lock()
	done, err := rc.join(ctx)
	done()
	return err
}

// join parks the caller in the current window, starting it when idle.
// rc.mu must be held; join releases it.
func (rc *RefreshCoordinator) join(ctx context.Context) (func(), error) {
	w := newWaiter()
	rc.waiters = append(rc.waiters, w)
	if rc.state == stateIdle {
		rc.state = stateRefreshing
		rc.window = rc.session.AccessToken()
		go rc.run(ctx)
	} else {
		rc.metrics.Parked.Inc()
	}
	rc.mu.Unlock()

	select {
	case err := <-w.result:
		return w.release, err
	case <-ctx.Done():
		w.release()
		return noop, ctx.Err()
	}
}

func (rc *RefreshCoordinator) run(parent context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), rc.timeout)
	defer cancel()

	log := logger.FromContext(ctx)
	start := time.Now()
	token, err := rc.refresh(ctx)
	if err == nil && token == "" {
		err = errors.New("empty access token in refresh response")
	}

	if err != nil {
		rc.metrics.Refreshes.WithLabelValues("failure").Inc()
		log.Warn().Err(err).Dur("duration", time.Since(start)).Msg("Token refresh failed")
		err = fmt.Errorf("%w: %w", ErrRefreshFailed, err)
		rc.mu.Lock()
		rc.failed = rc.window
		rc.mu.Unlock()
		rc.session.Expire(ctx)
	} else {
		rc.metrics.Refreshes.WithLabelValues("success").Inc()
		if perr := rc.session.SetToken(ctx, token); perr != nil {
			log.Warn().Err(perr).Msg("Refreshed token installed but not persisted")
		}
		log.Debug().Dur("duration", time.Since(start)).Msg("Token refreshed")
	}

	rc.mu.Lock()
	waiters := rc.waiters
	rc.waiters = nil
	rc.state = stateIdle
	rc.mu.Unlock()

	for _, w := range waiters {
		w.result <- err
		if err == nil {
			<-w.done
		}
	}
}
