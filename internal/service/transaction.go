package service

import (
	"context"

	"github.com/cassiomorais/marketplace/internal/rules"
)

// TransactionManager defines the interface for transaction management.
// Services use this to wrap multiple repository operations in a single transaction.
type TransactionManager interface {
	// WithTransaction executes the given function within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	// Otherwise, it is committed. A call made with a context that already
	// carries a transaction joins it.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Locker serializes work on one key across every caller that shares it.
// The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// RateLimiter counts attempts per key in fixed windows.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit rules.Limit) (rules.Decision, error)
}

type commitHooksKey struct{}

type commitHooks struct {
	fns []func()
}

// inTransaction runs fn through tm. When ctx is not already inside an
// inTransaction call, the callbacks registered with afterCommit run once
// the transaction has committed and are dropped if it rolls back. Nested
// calls join the outer transaction and its callbacks.
func inTransaction(ctx context.Context, tm TransactionManager, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(commitHooksKey{}).(*commitHooks); ok {
		return tm.WithTransaction(ctx, fn)
	}

	hooks := &commitHooks{}
	err := tm.WithTransaction(context.WithValue(ctx, commitHooksKey{}, hooks), func(txCtx context.Context) error {
		// A rerun transaction starts over.
		hooks.fns = hooks.fns[:0]
		return fn(txCtx)
	})
	if err != nil {
		return err
	}
	for _, f := range hooks.fns {
		f()
	}
	return nil
}

// afterCommit defers f until the enclosing inTransaction commits, or runs it
// now when there is none.
func afterCommit(ctx context.Context, f func()) {
	if hooks, ok := ctx.Value(commitHooksKey{}).(*commitHooks); ok {
		hooks.fns = append(hooks.fns, f)
		return
	}
	f()
}
