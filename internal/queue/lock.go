package queue

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Deletes the key only while it still holds our token, so an expired lock
// taken over by another run is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLock is a SET NX lock with a TTL. The TTL bounds how long a crashed run
// can block the next one.
type RunLock struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration

	mu    gosync.Mutex
	token string
}

func NewRunLock(client redis.Cmdable, key string, ttl time.Duration) *RunLock {
	return &RunLock{
		client: client,
		key:    key,
		ttl:    ttl,
	}
}

func (l *RunLock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set lock %s: %w", l.key, err)
	}
	if !ok {
		return false, nil
	}

	l.mu.Lock()
	l.token = token
	l.mu.Unlock()
	return true, nil
}

func (l *RunLock) Release(ctx context.Context) error {
	l.mu.Lock()
	token := l.token
	l.token = ""
	l.mu.Unlock()

	if token == "" {
		return nil
	}
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	return nil
}
