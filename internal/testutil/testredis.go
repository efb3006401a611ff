package testutil

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewTestRedis connects to the Redis named by REDIS_TEST_ADDR and
// REDIS_TEST_DB (default localhost:6379, db 15). It skips the test if Redis
// is not available. Callers namespace their keys with a unique prefix.
func NewTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	db, err := strconv.Atoi(getEnvOrDefault("REDIS_TEST_DB", "15"))
	if err != nil {
		t.Fatalf("invalid REDIS_TEST_DB: %v", err)
	}
	client := redis.NewClient(&redis.Options{
		Addr: getEnvOrDefault("REDIS_TEST_ADDR", "localhost:6379"),
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Skipping test: unable to connect to redis: %v", err)
	}

	t.Cleanup(func() { _ = client.Close() })
	return client
}

// RedisPrefix returns a key prefix unique to the running test.
func RedisPrefix(t *testing.T) string {
	return "test:" + t.Name() + ":" + strconv.FormatInt(time.Now().UnixNano(), 36) + ":"
}
