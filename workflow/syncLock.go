package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/daaty/dashboard-mobilidade-urbana-main/utils"
	"github.com/sirupsen/logrus"
)

const syncLockKey = "dashboard:sync:lock"

// SyncLocker serializes full syncs. TryLock never waits: when another sync
// holds the lock it returns utils.ErrSyncInProgress.
type SyncLocker interface {
	TryLock(ctx context.Context) (release func(context.Context) error, err error)
}

// NewSyncLocker locks across instances through Redis when a lock client is
// available, and within this process otherwise. The Redis lock is refreshed
// while held, so ttl only bounds how long a crashed holder blocks others.
func NewSyncLocker(client *redislock.Client, ttl time.Duration, logger logrus.FieldLogger) SyncLocker {
	if client == nil {
		return &localSyncLocker{}
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &redisSyncLocker{client: client, ttl: ttl, logger: logger}
}

type redisSyncLocker struct {
	client *redislock.Client
	ttl    time.Duration
	logger logrus.FieldLogger
}

func (l *redisSyncLocker) TryLock(ctx context.Context) (func(context.Context) error, error) {
	lock, err := l.client.Obtain(ctx, syncLockKey, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, utils.ErrSyncInProgress
	}
	if err != nil {
		return nil, err
	}
	stop := keepAlive(lock, l.ttl, l.logger)
	return func(ctx context.Context) error {
		stop()
		return lock.Release(ctx)
	}, nil
}

type lockRefresher interface {
	Refresh(ctx context.Context, ttl time.Duration, opt *redislock.Options) error
}

// keepAlive extends the lock every ttl/2 until stop is called. A failed
// refresh means the lock expired or was taken over, and ends the loop.
func keepAlive(lock lockRefresher, ttl time.Duration, logger logrus.FieldLogger) (stop func()) {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), ttl/2)
				err := lock.Refresh(ctx, ttl, nil)
				cancel()
				if err != nil {
					logger.WithError(err).WithField("key", syncLockKey).Error("sync lock lost; another sync may start")
					return
				}
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-finished
		})
	}
}

type localSyncLocker struct {
	mu sync.Mutex
}

func (l *localSyncLocker) TryLock(context.Context) (func(context.Context) error, error) {
	if !l.mu.TryLock() {
		return nil, utils.ErrSyncInProgress
	}
	var once sync.Once
	return func(context.Context) error {
		once.Do(l.mu.Unlock)
		return nil
	}, nil
}
