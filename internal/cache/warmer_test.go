package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/phrazzld/taskflow/internal/cache"
	"github.com/phrazzld/taskflow/internal/domain"
	"github.com/phrazzld/taskflow/internal/mocks"
	"github.com/phrazzld/taskflow/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWarmerWarmOnce(t *testing.T) {
	ctx := context.Background()
	gw := mocks.NewMockGateway()
	backend := cache.NewMemoryBackend()
	reader := cache.NewReader(cache.NewStore(backend, 0, nil), gw.Tasks(), nil)

	gw.Seed(
		&domain.Task{TeamID: 1, SubjectID: 2, Title: "open", Status: domain.TaskStatusPending},
		&domain.Task{TeamID: 1, SubjectID: 2, Title: "done", Status: domain.TaskStatusCompleted},
	)

	w := cache.NewWarmer(reader, []cache.Pair{{TeamID: 1, SubjectID: 2}, {TeamID: 5, SubjectID: 6}}, time.Minute, nil)
	assert.Equal(t, 4, w.WarmOnce(ctx))

	for _, status := range []domain.StatusFilter{domain.StatusFilterNotCompleted, domain.StatusFilterCompleted} {
		_, err := backend.Get(ctx, cache.ListKey(1, 2, status, 1, 5))
		assert.NoError(t, err, status)
	}
	_, err := backend.Get(ctx, cache.ListKey(5, 6, domain.StatusFilterCompleted, 1, 5))
	assert.ErrorIs(t, err, cache.ErrMiss, "empty listings are not cached")
}

func TestWarmerSkipsFailures(t *testing.T) {
	gw := mocks.NewMockGateway()
	gw.FailWith("tasks.list", store.ErrUnavailable, -1)
	reader := cache.NewReader(cache.NewStore(cache.NewMemoryBackend(), 0, nil), gw.Tasks(), nil)

	w := cache.NewWarmer(reader, []cache.Pair{{TeamID: 1, SubjectID: 2}}, time.Minute, nil)
	assert.Equal(t, 0, w.WarmOnce(context.Background()))
}

func TestWarmerStartStop(t *testing.T) {
	gw := mocks.NewMockGateway()
	reader := cache.NewReader(cache.NewStore(cache.NewMemoryBackend(), 0, nil), gw.Tasks(), nil)
	w := cache.NewWarmer(reader, []cache.Pair{{TeamID: 1, SubjectID: 2}}, time.Hour, nil)

	require.NoError(t, w.Start(context.Background()))
	assert.Equal(t, 2, gw.Calls("tasks.list"), "warms once on start")
	assert.Error(t, w.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w.Stop(ctx)
	w.Stop(ctx)
}
