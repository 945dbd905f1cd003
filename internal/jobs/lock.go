package jobs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// ErrLocked is returned when another run already holds the asset lock.
var ErrLocked = errors.New("asset is locked by another job")

// Locker guards an asset id so that at most one orchestrator run works on
// its directory at a time.
type Locker interface {
	// Acquire returns a release func, or ErrLocked if the id is held.
	Acquire(ctx context.Context, id string) (release func(), err error)
}

// LocalLocker is an in-process Locker.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) Acquire(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[id]; ok {
		return nil, ErrLocked
	}
	l.held[id] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, id)
			l.mu.Unlock()
		})
	}, nil
}

// RedisLockerConfig configures a RedisLocker.
type RedisLockerConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
	// TTL bounds how long a crashed holder keeps the lock.
	TTL time.Duration
}

// RedisLocker holds asset locks as Redis keys set with NX and a TTL. The
// value is a random token so that only the holder releases it.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

const defaultLockTTL = 24 * time.Hour

// releaseScript deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedisLocker(cfg RedisLockerConfig) (*RedisLocker, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "streamforge:transcode:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl}, nil
}

// Ping checks connectivity.
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *RedisLocker) Acquire(ctx context.Context, id string) (func(), error) {
	token, err := randomToken()
	if err != nil {
		return nil, err
	}
	key := l.prefix + id
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			releaseScript.Run(releaseCtx, l.client, []string{key}, token) //nolint:errcheck
		})
	}, nil
}

func (l *RedisLocker) Close() error {
	return l.client.Close()
}

func randomToken() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("lock token: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
