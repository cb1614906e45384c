package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mkaufman2023/enteliweb/internal/gateway"
)

// reloginStrikes is how many consecutive ErrVendor/ErrHTTP failures drop
// the session.
const reloginStrikes = 2

// sessionKeeper owns the shared gateway session and the re-login policy.
type sessionKeeper struct {
	client   *gateway.Client
	server   string
	username string
	password string
	logger   Logger

	// mu serializes every gateway operation.
	mu      sync.Mutex
	sess    *gateway.Session
	strikes int

	authenticated atomic.Bool
	logins        atomic.Int64
}

// do runs op with a logged-in session, logging in first when needed, and
// applies the re-login policy to op's error.
func (k *sessionKeeper) do(ctx context.Context, op func(sess *gateway.Session) error) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.sess == nil {
		if err := k.loginLocked(ctx); err != nil {
			return err
		}
	}

	err := op(k.sess)
	k.observeLocked(err)
	return err
}

// login replaces the session unconditionally.
func (k *sessionKeeper) login(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.loginLocked(ctx)
}

func (k *sessionKeeper) loginLocked(ctx context.Context) error {
	sess, err := k.client.Login(ctx, k.server, k.username, k.password)
	if err != nil {
		return fmt.Errorf("logging in to %s: %w", k.server, err)
	}
	k.sess = sess
	k.strikes = 0
	k.authenticated.Store(true)
	k.logins.Add(1)
	k.logger.Info("gateway session established", "server", k.server)
	return nil
}

func (k *sessionKeeper) observeLocked(err error) {
	switch {
	case err == nil:
		k.strikes = 0
	case errors.Is(err, gateway.ErrNotAuthenticated):
		k.dropLocked("session not authenticated")
	case errors.Is(err, gateway.ErrVendor), errors.Is(err, gateway.ErrHTTP):
		k.strikes++
		if k.strikes >= reloginStrikes {
			k.dropLocked("repeated gateway errors")
		}
	}
}

func (k *sessionKeeper) dropLocked(reason string) {
	k.logger.Warn("dropping gateway session", "reason", reason, "strikes", k.strikes)
	k.sess.Close()
	k.sess = nil
	k.strikes = 0
	k.authenticated.Store(false)
}

func (k *sessionKeeper) close() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.sess != nil {
		k.sess.Close()
		k.sess = nil
	}
	k.authenticated.Store(false)
}
