package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/licensing-backend/pkg/config"
)

// memory emulates the handful of commands Client issues.
type memory struct {
	values  map[string]string
	counts  map[string]int64
	expires map[string]time.Duration
}

func newMemory() *memory {
	return &memory{values: map[string]string{}, counts: map[string]int64{}, expires: map[string]time.Duration{}}
}

func (m *memory) Ping(context.Context) *redis.StatusCmd { return redis.NewStatusResult("PONG", nil) }

func (m *memory) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memory) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.values[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *memory) SetNX(_ context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd {
	if _, ok := m.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	m.values[key] = fmt.Sprint(value)
	if ttl > 0 {
		m.expires[key] = ttl
	}
	return redis.NewBoolResult(true, nil)
}

func (m *memory) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := m.values[k]; ok {
			n++
		}
		delete(m.values, k)
	}
	return redis.NewIntResult(n, nil)
}

func (m *memory) Incr(_ context.Context, key string) *redis.IntCmd {
	m.counts[key]++
	return redis.NewIntResult(m.counts[key], nil)
}

func (m *memory) ExpireNX(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	if _, ok := m.expires[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	m.expires[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (m *memory) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	if m.values[keys[0]] != fmt.Sprint(args[0]) {
		return redis.NewCmdResult(int64(0), nil)
	}
	switch script {
	case compareAndDelete:
		delete(m.values, keys[0])
	case compareAndExpire:
		m.expires[keys[0]] = time.Duration(args[1].(int64)) * time.Millisecond
	default:
		return redis.NewCmdResult(nil, fmt.Errorf("unexpected script"))
	}
	return redis.NewCmdResult(int64(1), nil)
}

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mem := newMemory()
	client := &Client{cmd: mem}

	for i := int64(1); i <= 2; i++ {
		allowed, count, err := client.FixedWindowAllow(ctx, "redeem:user-a", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, i, count)
	}
	allowed, count, err := client.FixedWindowAllow(ctx, "redeem:user-a", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, int64(3), count)
	assert.Equal(t, time.Minute, mem.expires["lic:rate_limit:redeem:user-a"])

	allowed, _, err = client.FixedWindowAllow(ctx, "redeem:user-b", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "scopes keep separate windows")
}

func TestIncrWithTTLKeepsFirstExpiry(t *testing.T) {
	ctx := context.Background()
	mem := newMemory()
	client := &Client{cmd: mem}

	_, err := client.IncrWithTTL(ctx, "hits", time.Minute)
	require.NoError(t, err)
	_, err = client.IncrWithTTL(ctx, "hits", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mem.expires["hits"])

	_, err = client.IncrWithTTL(ctx, "forever", 0)
	require.NoError(t, err)
	assert.NotContains(t, mem.expires, "forever")
}

func TestDelIfEquals(t *testing.T) {
	ctx := context.Background()
	client := &Client{cmd: newMemory()}
	key := client.LockKey("cron-worker:dev")

	ok, err := client.SetNX(ctx, key, "owner-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = client.SetNX(ctx, key, "owner-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	deleted, err := client.DelIfEquals(ctx, key, "owner-2")
	require.NoError(t, err)
	assert.False(t, deleted, "a different owner must not free the lease")

	deleted, err = client.DelIfEquals(ctx, key, "owner-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = client.Get(ctx, key)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestExpireIfEquals(t *testing.T) {
	ctx := context.Background()
	mem := newMemory()
	client := &Client{cmd: mem}
	key := client.LockKey("cron-worker:dev")

	_, err := client.SetNX(ctx, key, "owner-1", time.Minute)
	require.NoError(t, err)

	extended, err := client.ExpireIfEquals(ctx, key, "owner-2", time.Hour)
	require.NoError(t, err)
	assert.False(t, extended)
	assert.Equal(t, time.Minute, mem.expires[key])

	extended, err = client.ExpireIfEquals(ctx, key, "owner-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, extended)
	assert.Equal(t, time.Hour, mem.expires[key])
}

func TestKeys(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "lic:idempotency:scope:id", client.IdempotencyKey("scope", "id"))
	assert.Equal(t, "lic:idempotency:id", client.IdempotencyKey(" ", "id"))
	assert.Equal(t, "lic:rate_limit:redeem:user", client.RateLimitKey("redeem:user"))
	assert.Equal(t, "lic:lock:renewal", client.LockKey("renewal"))
}

func TestUnconnectedClient(t *testing.T) {
	var client *Client
	assert.ErrorIs(t, client.Ping(context.Background()), errNotConnected)
	_, err := (&Client{}).Get(context.Background(), "k")
	assert.ErrorIs(t, err, errNotConnected)
	assert.NoError(t, client.Close())
}

func TestOptions(t *testing.T) {
	_, err := options(config.RedisConfig{})
	require.Error(t, err)

	opts, err := options(config.RedisConfig{URL: "redis://:pw@cache:6380/3", PoolSize: 20, DialTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, 20, opts.PoolSize)
	assert.Equal(t, time.Second, opts.DialTimeout)

	opts, err = options(config.RedisConfig{Address: "localhost:6379", DB: 2})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
}
