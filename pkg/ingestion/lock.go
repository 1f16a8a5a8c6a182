package ingestion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/skuflow/platform/pkg/common/logger"
)

// Locker guarantees at most one in-flight run per file id.
type Locker interface {
	Acquire(ctx context.Context, fileID uuid.UUID) (release func(), err error)
}

// LocalLocker serializes runs within one process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[uuid.UUID]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[uuid.UUID]struct{})}
}

func (l *LocalLocker) Acquire(ctx context.Context, fileID uuid.UUID) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[fileID]; busy {
		return nil, ErrAlreadyRunning
	}
	l.held[fileID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, fileID)
			l.mu.Unlock()
		})
	}, nil
}

var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// RedisLocker shares run ownership across service instances. The key is
// refreshed while held so a long run keeps it; a crashed holder's key expires
// after ttl.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisLocker(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if prefix == "" {
		prefix = "catalog:ingest:lock:"
	}
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl}
}

func (l *RedisLocker) Acquire(ctx context.Context, fileID uuid.UUID) (func(), error) {
	key := l.prefix + fileID.String()
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquiring run lock: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyRunning
	}

	stop := make(chan struct{})
	go l.keepAlive(key, token, stop)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
				logger.Log.WithError(err).WithField("lock_key", key).Warn("failed to release run lock")
			}
		})
	}, nil
}

func (l *RedisLocker) keepAlive(key, token string, stop <-chan struct{}) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := refreshScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Err()
			cancel()
			if err != nil {
				logger.Log.WithError(err).WithField("lock_key", key).Warn("failed to refresh run lock")
			}
		}
	}
}
