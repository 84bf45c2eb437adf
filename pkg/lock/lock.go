// Package lock serializes work on a single key, such as staff decisions on one withdrawal request.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var ErrNotAcquired = errors.New("lock is held by another worker")

type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Local is a Locker for a single process.
type Local struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewLocal() *Local {
	return &Local{locks: make(map[string]*keyLock)}
}

func (l *Local) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}()

	kl.mu.Lock()
	defer kl.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

type Options struct {
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
}

func DefaultOptions() Options {
	return Options{
		Expiry:     10 * time.Second,
		Tries:      3,
		RetryDelay: 500 * time.Millisecond,
	}
}

// Redis is a Locker shared by every instance talking to the same Redis.
type Redis struct {
	rs   *redsync.Redsync
	opts Options
	log  logrus.FieldLogger
}

func NewRedis(rdb redis.UniversalClient, opts Options, log logrus.FieldLogger) *Redis {
	return &Redis{
		rs:   redsync.New(goredis.NewPool(rdb)),
		opts: opts,
		log:  log,
	}
}

func (r *Redis) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	mutex := r.rs.NewMutex("lock:"+key,
		redsync.WithExpiry(r.opts.Expiry),
		redsync.WithTries(r.opts.Tries),
		redsync.WithRetryDelay(r.opts.RetryDelay),
		redsync.WithGenValueFunc(func() (string, error) { return uuid.NewString(), nil }),
	)

	if err := mutex.LockContext(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errors.Wrapf(ErrNotAcquired, "key %s: %v", key, err)
	}

	defer func() {
		if ok, err := mutex.UnlockContext(ctx); err != nil || !ok {
			r.log.WithError(err).WithField("key", key).Warn("lock was not released cleanly")
		}
	}()

	return fn(ctx)
}
