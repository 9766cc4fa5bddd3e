package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hrms/internal/apperror"
	"hrms/internal/logger"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
)

const (
	runLockTTL     = 2 * time.Minute
	runLockBackoff = 100 * time.Millisecond
	runLockRetries = 30
)

// ErrRunInProgress is returned when another run holds the (company, cycle) lock
var ErrRunInProgress = apperror.WithCode(apperror.KindConflict, "RECONCILIATION_IN_PROGRESS",
	"a reconciliation for this payroll cycle is already running")

// RunLocker serialises reconciliation runs sharing a key
type RunLocker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// --- Redis ---

type redisRunLocker struct {
	client *redislock.Client
}

// NewRedisRunLocker serialises runs across every API instance sharing the Redis
func NewRedisRunLocker(client *redislock.Client) RunLocker {
	return &redisRunLocker{client: client}
}

func (l *redisRunLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lockKey := fmt.Sprintf("lock:reconciliation:%s", key)
	lock, err := l.client.Obtain(ctx, lockKey, runLockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(runLockBackoff), runLockRetries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrRunInProgress
	}
	if err != nil {
		logger.LogError("service", "redisRunLocker.Acquire", "Error obtaining reconciliation lock", lockKey, err)
		return nil, fmt.Errorf("failed to obtain reconciliation lock: %w", err)
	}

	return func() {
		// the request context may already be cancelled here
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			logger.Get().WithFields(logrus.Fields{"key": lockKey}).Warn("failed to release reconciliation lock: " + err.Error())
		}
	}, nil
}

// --- No-op ---

type noopRunLocker struct{}

// NewNoopRunLocker is used when no Redis is configured; the database transaction remains the only guard
func NewNoopRunLocker() RunLocker {
	return noopRunLocker{}
}

func (noopRunLocker) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}
