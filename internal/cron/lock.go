package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/licensing-backend/pkg/instance"
)

// defaultLeaseTTL bounds how long a crashed worker can block the next cycle.
const defaultLeaseTTL = 15 * time.Minute

var errLeaseLost = errors.New("cron lease lost")

// Lock keeps two cron workers from sweeping the same rows at once.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Renewer is implemented by locks whose lease can be pushed out while a long
// cycle is still running.
type Renewer interface {
	Renew(ctx context.Context) error
}

type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfEquals(ctx context.Context, key, value string) (bool, error)
	ExpireIfEquals(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}

// LeaseLock stores one lease under a redis key. The value is
// "<instance>/<nonce>", fresh per acquire, so a worker whose lease expired
// cannot free or extend the lease a newer worker took over.
type LeaseLock struct {
	store leaseStore
	key   string
	ttl   time.Duration
	token string
}

func NewLeaseLock(store leaseStore, key string, ttl time.Duration) (*LeaseLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("lease store is required")
	case key == "":
		return nil, errors.New("lease key is required")
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &LeaseLock{store: store, key: key, ttl: ttl}, nil
}

func (l *LeaseLock) Acquire(ctx context.Context) (bool, error) {
	token := fmt.Sprintf("%s/%s", instance.GetID(), uuid.NewString())
	won, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	if won {
		l.token = token
	}
	return won, nil
}

// Renew resets the lease TTL. It returns errLeaseLost once another worker
// owns the key.
func (l *LeaseLock) Renew(ctx context.Context) error {
	if l.token == "" {
		return errLeaseLost
	}
	ok, err := l.store.ExpireIfEquals(ctx, l.key, l.token, l.ttl)
	if err != nil {
		return fmt.Errorf("renew lease %s: %w", l.key, err)
	}
	if !ok {
		l.token = ""
		return errLeaseLost
	}
	return nil
}

// Release is a no-op when the lease already expired or changed hands.
func (l *LeaseLock) Release(ctx context.Context) error {
	token := l.token
	if token == "" {
		return nil
	}
	l.token = ""
	if _, err := l.store.DelIfEquals(ctx, l.key, token); err != nil {
		return fmt.Errorf("release lease %s: %w", l.key, err)
	}
	return nil
}
