package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prudhvinik1/crmsync/internal/repositories"
)

// Locker serialises the lookup read-then-insert sequence per key tuple.
// The returned unlock func must be safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, name string) (unlock func(), err error)
}

// MemoryLocker is an in-process Locker.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]chan struct{})}
}

func (l *MemoryLocker) Lock(ctx context.Context, name string) (func(), error) {
	for {
		l.mu.Lock()
		held, busy := l.locks[name]
		if !busy {
			done := make(chan struct{})
			l.locks[name] = done
			l.mu.Unlock()

			var once sync.Once
			return func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.locks, name)
					l.mu.Unlock()
					close(done)
				})
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-held:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// RepositoryLocker adapts a LockRepository, such as the Redis one, to Locker.
// A held lock is extended every ttl/3 until unlocked, so a unit that runs
// longer than ttl keeps it.
type RepositoryLocker struct {
	repo repositories.LockRepository
	ttl  time.Duration
	wait time.Duration
}

func NewRepositoryLocker(repo repositories.LockRepository, ttl, wait time.Duration) *RepositoryLocker {
	return &RepositoryLocker{repo: repo, ttl: ttl, wait: wait}
}

func (l *RepositoryLocker) Lock(ctx context.Context, name string) (func(), error) {
	lease, err := l.repo.Acquire(ctx, name, l.ttl, l.wait)
	if err != nil {
		return nil, err
	}

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go l.keepAlive(lease, stop, stopped)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-stopped
			lease.Release()
		})
	}, nil
}

// keepAlive extends lease until stop is closed or the lease is lost.
func (l *RepositoryLocker) keepAlive(lease repositories.Lease, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	interval := l.ttl / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), interval)
		err := lease.Extend(ctx, l.ttl)
		cancel()
		if errors.Is(err, repositories.ErrLockLost) {
			return
		}
	}
}
