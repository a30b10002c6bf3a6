package lock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseExclusion(t *testing.T, l Locker, key string) {
	t.Helper()

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), key)
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInside))
}

func TestLocalLockerExcludes(t *testing.T) {
	l := NewLocalLocker()
	exerciseExclusion(t, l, "memory:session:abc")
	assert.Equal(t, 0, l.size())
}

func TestLocalLockerKeysAreIndependent(t *testing.T) {
	l := NewLocalLocker()

	releaseA, err := l.Acquire(context.Background(), "memory:user:a")
	require.NoError(t, err)
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	releaseB, err := l.Acquire(ctx, "memory:user:b")
	require.NoError(t, err)
	releaseB()
}

func TestLocalLockerHonoursContext(t *testing.T) {
	l := NewLocalLocker()

	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release()
	assert.Equal(t, 0, l.size())
}

func redisTestClient(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("Skipping: REDIS_TEST_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opt)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisLockerExcludes(t *testing.T) {
	client := redisTestClient(t)

	exerciseExclusion(t, NewRedisLocker(client, 5*time.Second), "memory:test:"+time.Now().Format(time.RFC3339Nano))
}

func TestRedisLockerOutlivesTTLWhileHeld(t *testing.T) {
	client := redisTestClient(t)
	l := NewRedisLocker(client, 300*time.Millisecond)
	key := "memory:held:" + time.Now().Format(time.RFC3339Nano)

	release, err := l.Acquire(context.Background(), key)
	require.NoError(t, err)

	time.Sleep(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, key)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	again, err := l.Acquire(context.Background(), key)
	require.NoError(t, err)
	again()
}
