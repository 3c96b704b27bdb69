package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type leaseMemory struct {
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newLeaseMemory() *leaseMemory {
	return &leaseMemory{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *leaseMemory) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if _, taken := m.values[key]; taken {
		return false, nil
	}
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return true, nil
}

func (m *leaseMemory) DelIfEquals(_ context.Context, key, value string) (bool, error) {
	if m.values[key] != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func (m *leaseMemory) ExpireIfEquals(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	if m.values[key] != value {
		return false, nil
	}
	m.ttls[key] = ttl
	return true, nil
}

// expire simulates the key timing out in redis.
func (m *leaseMemory) expire(key string) { delete(m.values, key) }

func TestLeaseLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	store := newLeaseMemory()
	first, err := NewLeaseLock(store, "lic:lock:cron", 10*time.Minute)
	require.NoError(t, err)
	second, err := NewLeaseLock(store, "lic:lock:cron", 10*time.Minute)
	require.NoError(t, err)

	won, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, won)
	assert.Equal(t, 10*time.Minute, store.ttls["lic:lock:cron"])

	won, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, won)

	require.NoError(t, second.Release(ctx))
	assert.Contains(t, store.values, "lic:lock:cron", "non-holder must not free the lease")

	require.NoError(t, first.Release(ctx))
	won, _ = second.Acquire(ctx)
	assert.True(t, won)
}

func TestLeaseLockDefaultsAndValidation(t *testing.T) {
	lock, err := NewLeaseLock(newLeaseMemory(), "k", 0)
	require.NoError(t, err)
	assert.Equal(t, defaultLeaseTTL, lock.ttl)

	_, err = NewLeaseLock(nil, "k", time.Minute)
	assert.Error(t, err)
	_, err = NewLeaseLock(newLeaseMemory(), "", time.Minute)
	assert.Error(t, err)
}

func TestLeaseLockTokenNamesInstance(t *testing.T) {
	t.Setenv("LICENSING_INSTANCE_ID", "cron-a")
	store := newLeaseMemory()
	lock, _ := NewLeaseLock(store, "k", time.Minute)

	won, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, won)
	assert.Regexp(t, `^cron-a/[0-9a-f-]{36}$`, store.values["k"])
}

func TestLeaseLockRenew(t *testing.T) {
	ctx := context.Background()
	store := newLeaseMemory()
	lock, _ := NewLeaseLock(store, "k", time.Minute)

	assert.ErrorIs(t, lock.Renew(ctx), errLeaseLost, "renew before acquire")

	_, _ = lock.Acquire(ctx)
	store.ttls["k"] = time.Second
	require.NoError(t, lock.Renew(ctx))
	assert.Equal(t, time.Minute, store.ttls["k"])

	store.expire("k")
	successor, _ := NewLeaseLock(store, "k", time.Minute)
	won, _ := successor.Acquire(ctx)
	require.True(t, won)

	assert.ErrorIs(t, lock.Renew(ctx), errLeaseLost)
	require.NoError(t, lock.Release(ctx))
	assert.Contains(t, store.values, "k", "stale holder freed the successor's lease")
}

func TestLeaseLockSurfacesStoreErrors(t *testing.T) {
	store := newLeaseMemory()
	store.err = errors.New("connection refused")
	lock, _ := NewLeaseLock(store, "k", time.Minute)

	won, err := lock.Acquire(context.Background())
	assert.False(t, won)
	assert.ErrorContains(t, err, "connection refused")
}
