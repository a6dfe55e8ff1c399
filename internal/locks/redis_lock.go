// Package locks serializes writers to one order's log across service
// instances with a Redis lock (SET NX PX, released by a token-checking Lua
// script).
package locks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/orderhistory/internal/apperror"
)

// releaseScript deletes the key only if it still holds our token.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`

// Defaults for NewOrderLock.
const (
	DefaultTTL     = 10 * time.Second
	DefaultWait    = 2 * time.Second
	defaultPrefix  = "orderlog:lock"
	retryInterval  = 50 * time.Millisecond
	releaseTimeout = 2 * time.Second
)

// ErrTokenMismatch means the lock expired and was taken by someone else
// before it was released.
var ErrTokenMismatch = errors.New("lock token mismatch")

// OrderLock hands out per-order writer locks.
type OrderLock struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	wait   time.Duration
}

// Option configures an OrderLock.
type Option func(*OrderLock)

// WithPrefix sets the key prefix. An empty prefix keeps the default.
func WithPrefix(prefix string) Option {
	return func(l *OrderLock) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

// WithWait sets how long Lock keeps retrying a held lock. A non-positive
// wait keeps DefaultWait.
func WithWait(wait time.Duration) Option {
	return func(l *OrderLock) {
		if wait > 0 {
			l.wait = wait
		}
	}
}

// NewOrderLock creates a lock manager. A non-positive ttl uses DefaultTTL.
func NewOrderLock(client redis.Cmdable, ttl time.Duration, opts ...Option) *OrderLock {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	l := &OrderLock{client: client, prefix: defaultPrefix, ttl: ttl, wait: DefaultWait}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *OrderLock) key(orderID int64) string {
	return l.prefix + ":" + strconv.FormatInt(orderID, 10)
}

// Lock acquires the writer lock for an order, retrying until the wait
// elapses. The returned release function is safe to call once.
func (l *OrderLock) Lock(ctx context.Context, orderID int64) (func(), error) {
	key := l.key(orderID)
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	for {
		ok, err := l.client.SetNX(waitCtx, key, token, l.ttl).Result()
		if err != nil && waitCtx.Err() == nil {
			return nil, apperror.NewInternal(fmt.Errorf("acquiring order lock: %w", err))
		}
		if ok {
			return l.releaser(key, token, orderID), nil
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, apperror.NewLocked("the order is being updated, try again shortly")
		case <-time.After(retryInterval):
		}
	}
}

// releaser builds the release function. It uses its own context so a
// cancelled request still frees the lock.
func (l *OrderLock) releaser(key, token string, orderID int64) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()

		if err := l.release(ctx, key, token); err != nil {
			slog.Warn("order lock not released cleanly",
				slog.Int64("order_id", orderID),
				slog.Any("error", err),
			)
		}
	}
}

func (l *OrderLock) release(ctx context.Context, key, token string) error {
	result, err := l.client.Eval(ctx, releaseScript, []string{key}, token).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrTokenMismatch
	}
	return nil
}
