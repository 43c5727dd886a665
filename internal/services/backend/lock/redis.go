package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix       = "matchwarden:lock:"
	redisInitialInterval = 10 * time.Millisecond
	redisMaxInterval     = 250 * time.Millisecond
)

var errHeld = errors.New("lock held")

// Deletes the key only while it still carries this holder's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Extends the lease only while the key still carries this holder's token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker is a Locker shared by every backend process pointed at the same Redis.
// Locks expire after TTL so a crashed holder cannot wedge a player forever; a
// live holder renews its lease every third of the TTL.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisLocker builds a locker on client with the given lease TTL.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if ttl <= 0 {
		return nil, errors.New("lock ttl must be positive")
	}
	return &RedisLocker{client: client, ttl: ttl}, nil
}

// Acquire polls SET NX with exponential backoff until it wins or ctx ends.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (Handle, error) {
	redisKey := redisKeyPrefix + key
	token := uuid.NewString()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = redisInitialInterval
	policy.MaxInterval = redisMaxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("redis set nx: %w", err))
		}
		if !ok {
			return struct{}{}, errHeld
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(policy), backoff.WithMaxElapsedTime(0))
	if err != nil {
		if ctx.Err() != nil {
			return nil, acquireErr(ctx)
		}
		return nil, err
	}
	h := newRedisHandle(l.client, redisKey, token, l.ttl, time.Now)
	go h.renew()
	return h, nil
}

type redisHandle struct {
	client redis.UniversalClient
	key    string
	token  string
	ttl    time.Duration
	now    func() time.Time
	stop   chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	expires time.Time
	lost    bool

	once sync.Once
	err  error
}

func newRedisHandle(client redis.UniversalClient, key, token string, ttl time.Duration, now func() time.Time) *redisHandle {
	return &redisHandle{
		client:  client,
		key:     key,
		token:   token,
		ttl:     ttl,
		now:     now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		expires: now().Add(ttl),
	}
}

// renew extends the lease until Release or until the key is no longer ours.
func (h *redisHandle) renew() {
	defer close(h.done)
	ticker := time.NewTicker(h.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), h.ttl/3)
		started := h.now()
		renewed, err := renewScript.Run(ctx, h.client, []string{h.key}, h.token, h.ttl.Milliseconds()).Int()
		cancel()
		if err != nil {
			// Transient failure; Err reports loss once the old lease runs out.
			continue
		}
		h.mu.Lock()
		if renewed == 0 {
			h.lost = true
			h.mu.Unlock()
			return
		}
		h.expires = started.Add(h.ttl)
		h.mu.Unlock()
	}
}

func (h *redisHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lost || !h.now().Before(h.expires) {
		return fmt.Errorf("%w: %s", ErrLeaseLost, h.key)
	}
	return nil
}

func (h *redisHandle) Release(ctx context.Context) error {
	h.once.Do(func() {
		close(h.stop)
		<-h.done
		if err := releaseScript.Run(ctx, h.client, []string{h.key}, h.token).Err(); err != nil {
			h.err = fmt.Errorf("redis release %s: %w", h.key, err)
		}
	})
	return h.err
}
