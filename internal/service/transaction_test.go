package service

import (
	"context"
	"errors"
	"testing"

	"github.com/cassiomorais/marketplace/internal/testutil"
	"github.com/stretchr/testify/assert"
)

// rerunTxManager runs fn a second time when the first run fails, the way
// the postgres manager reruns serialization failures.
type rerunTxManager struct{ runs int }

func (m *rerunTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.runs++
	if err := fn(ctx); err == nil {
		return nil
	}
	m.runs++
	return fn(ctx)
}

// --- Commit Hook Tests ---

func TestInTransaction_CommitHooks(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name    string
		fnErr   error
		nested  bool
		wantRan []string
	}{
		{name: "commit runs hooks", wantRan: []string{"outer", "inner"}},
		{name: "rollback drops hooks", fnErr: boom},
		{name: "nested hooks wait for outer commit", nested: true, wantRan: []string{"outer", "inner"}},
		{name: "nested rollback drops every hook", nested: true, fnErr: boom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tm := testutil.NewMockTransactionManager()
			var ran []string

			err := inTransaction(context.Background(), tm, func(txCtx context.Context) error {
				afterCommit(txCtx, func() { ran = append(ran, "outer") })
				inner := func(ctx context.Context) error {
					afterCommit(ctx, func() { ran = append(ran, "inner") })
					return nil
				}
				if tt.nested {
					if err := inTransaction(txCtx, tm, inner); err != nil {
						return err
					}
					assert.Empty(t, ran)
				} else if err := inner(txCtx); err != nil {
					return err
				}
				return tt.fnErr
			})

			assert.ErrorIs(t, err, tt.fnErr)
			assert.Equal(t, tt.wantRan, ran)
		})
	}
}

func TestInTransaction_RerunStartsWithNoHooks(t *testing.T) {
	tm := &rerunTxManager{}
	calls := 0
	ran := 0

	err := inTransaction(context.Background(), tm, func(txCtx context.Context) error {
		calls++
		afterCommit(txCtx, func() { ran++ })
		if calls == 1 {
			return errors.New("serialization failure")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, tm.runs)
	assert.Equal(t, 1, ran)
}

func TestAfterCommit_WithoutTransactionRunsNow(t *testing.T) {
	ran := false
	afterCommit(context.Background(), func() { ran = true })
	assert.True(t, ran)
}
