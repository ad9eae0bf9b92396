package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startRedisDockerContainer(t *testing.T) (string, func()) {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("Failed to start Dockertest: %+v", err)
	}

	err = pool.Client.Ping()
	if err != nil {
		t.Skipf("Could not connect to Docker: %+v", err)
	}

	resource, err := pool.Run("redis", "7.0.10-alpine", nil)
	if err != nil {
		t.Fatalf("Failed to start redis: %+v", err)
	}

	// build address the container is listening on
	addr := net.JoinHostPort("localhost", resource.GetPort("6379/tcp"))

	// ensure to wait for the container to be ready
	err = pool.Retry(func() error {
		client := redis.NewClient(&redis.Options{Addr: addr})
		defer client.Close()
		return client.Ping(context.Background()).Err()
	})
	if err != nil {
		t.Fatalf("Failed to ping Redis: %+v", err)
	}

	destroyFunc := func() {
		if err := pool.Purge(resource); err != nil {
			t.Logf("Failed to purge resource: %+v", err)
		}
	}

	return addr, destroyFunc
}

func TestRedisStore(t *testing.T) {
	addr, destroyFunc := startRedisDockerContainer(t)
	defer destroyFunc()

	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	config := &Config{
		Storage: StorageConfig{ConnectTimeout: 5 * time.Second},
		Redis:   RedisConfig{Host: host, Port: port},
	}
	client, err := GetRedisClient(context.Background(), config)
	require.NoError(t, err)

	rs := NewRedisBookStorage(zap.NewNop(), client, "test.books")
	defer rs.Close()
	testBookStorage(t, rs)

	t.Run("Keys Layout", func(t *testing.T) {
		ctx := context.Background()
		ids, err := client.ZRange(ctx, "test.books:ids", 0, -1).Result()
		require.NoError(t, err)
		assert.Equal(t, []string{"2"}, ids)
		n, err := client.Exists(ctx, "test.books:book:2").Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		n, err = client.HLen(ctx, "test.books:isbn").Result()
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
		seq, err := client.Get(ctx, "test.books:seq").Int64()
		require.NoError(t, err)
		assert.Equal(t, int64(2), seq)
	})

	testBookStorageISBN(t, NewRedisBookStorage(zap.NewNop(), client, "test.isbn.books"))
}
