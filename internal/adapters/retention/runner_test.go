package retention

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/waypoint/config"
	"github.com/target/waypoint/internal/domain/model"
)

type countingStore struct {
	deletes atomic.Int32
}

func (s *countingStore) Append(context.Context, model.AuditEvent) error { return nil }

func (s *countingStore) List(context.Context, model.AuditListOptions) ([]model.AuditEvent, error) {
	return nil, nil
}

func (s *countingStore) DeleteOlderThan(context.Context, time.Time, int) (int64, error) {
	s.deletes.Add(1)
	return 0, nil
}

func TestNewRunner_RequiresStore(t *testing.T) {
	_, err := NewRunner(RunnerOptions{})
	require.Error(t, err)
}

func TestRunner_RunPrunesUntilCancelled(t *testing.T) {
	store := &countingStore{}
	r, err := NewRunner(RunnerOptions{
		Store:  store,
		Config: config.AuditRetentionConfig{Interval: time.Millisecond, MaxAge: time.Hour, BatchSize: 10},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	assert.Eventually(t, func() bool { return store.deletes.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
}
