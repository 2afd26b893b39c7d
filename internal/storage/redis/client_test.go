package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webmail/backend/internal/config"
)

// 需要真实的 Redis，设置 WEBMAIL_TEST_REDIS_ADDR 后运行
func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("WEBMAIL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("WEBMAIL_TEST_REDIS_ADDR not set")
	}
	client, err := New(context.Background(), &config.RedisConfig{Address: addr, DB: 15}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClient_Revoke(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	jti := "test-" + time.Now().Format(time.RFC3339Nano)

	revoked, err := client.IsRevoked(ctx, jti)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, client.Revoke(ctx, jti, time.Minute))
	revoked, err = client.IsRevoked(ctx, jti)
	require.NoError(t, err)
	assert.True(t, revoked)

	ttl, err := client.rdb.TTL(ctx, revokedKeyPrefix+jti).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestClient_RevokeExpired(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Revoke(ctx, "expired-token", -time.Second))
	revoked, err := client.IsRevoked(ctx, "expired-token")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestNew_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err := New(ctx, &config.RedisConfig{Address: "127.0.0.1:1"}, nil)
	assert.Error(t, err)
}
