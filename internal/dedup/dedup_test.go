package dedup

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanhubbard/mmgen/internal/dataset"
	"github.com/jordanhubbard/mmgen/pkg/config"
)

func TestKey_Stable(t *testing.T) {
	assert.Equal(t, Key("a"), Key("a"))
	assert.NotEqual(t, Key("a"), Key("a "))
	assert.Len(t, Key("anything"), 64)
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	assert.False(t, m.Contains("Create a class"))
	require.NoError(t, m.Add(context.Background(), "Create a class"))
	require.NoError(t, m.Add(context.Background(), "Create a class"))
	assert.True(t, m.Contains("Create a class"))
	assert.Equal(t, 1, m.Len())
}

func TestMemory_IsSeen(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Add(context.Background(), "dup"))

	batch := []dataset.Record{
		{Instruction: "dup", RelevantAPIs: []dataset.API{{APIName: "t", Arguments: "a"}}},
		{Instruction: "fresh", RelevantAPIs: []dataset.API{{APIName: "t", Arguments: "a"}}},
	}
	kept, rejected := dataset.Filter(batch, m)
	require.Len(t, kept, 1)
	assert.Equal(t, "fresh", kept[0].Instruction)
	require.Len(t, rejected, 1)
	assert.Equal(t, dataset.ReasonDuplicate, rejected[0].Reason)
}

func TestNew_Backends(t *testing.T) {
	idx, err := New(context.Background(), config.DedupConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, idx)

	_, err = New(context.Background(), config.DedupConfig{Backend: "redis"})
	assert.Error(t, err)

	_, err = New(context.Background(), config.DedupConfig{Backend: "etcd"})
	assert.Error(t, err)
}

// redisClient returns a client for MMGEN_TEST_REDIS_URL or skips the test.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("MMGEN_TEST_REDIS_URL")
	if url == "" {
		t.Skip("MMGEN_TEST_REDIS_URL not set, skipping redis test")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	return client
}

func TestRedis_SharedSet(t *testing.T) {
	client := redisClient(t)
	ctx := context.Background()
	key := "mmgen:test:" + t.Name()
	t.Cleanup(func() {
		client.Del(ctx, key)
		_ = client.Close()
	})

	a := NewRedis(client, key)
	b := NewRedis(client, key)
	assert.False(t, b.Contains("Inspect object 4"))
	require.NoError(t, a.Add(ctx, "Inspect object 4"))
	assert.True(t, b.Contains("Inspect object 4"))

	n, err := b.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
