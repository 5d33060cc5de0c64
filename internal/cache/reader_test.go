package cache_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/taskflow/internal/cache"
	"github.com/phrazzld/taskflow/internal/domain"
	"github.com/phrazzld/taskflow/internal/mocks"
	"github.com/phrazzld/taskflow/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReader(t *testing.T) (*cache.Reader, *cache.MemoryBackend, *mocks.MockGateway) {
	t.Helper()
	gw := mocks.NewMockGateway()
	backend := cache.NewMemoryBackend()
	return cache.NewReader(cache.NewStore(backend, 0, nil), gw.Tasks(), nil), backend, gw
}

func TestReaderListTasksReadThrough(t *testing.T) {
	ctx := context.Background()
	r, backend, gw := newReader(t)
	gw.Seed(&domain.Task{TeamID: 1, SubjectID: 2, Title: "a", Status: domain.TaskStatusPending})

	filter := domain.TaskFilter{TeamID: 1, SubjectID: 2}
	page, err := r.ListTasks(ctx, filter)
	require.NoError(t, err)
	require.Len(t, page.Tasks, 1)
	assert.Equal(t, 1, gw.Calls("tasks.list"))

	_, err = backend.Get(ctx, cache.ListKey(1, 2, domain.StatusFilterAll, 1, 5))
	require.NoError(t, err)
	_, err = backend.Get(ctx, cache.CountKey(1, 2, domain.StatusFilterAll))
	require.NoError(t, err)

	page, err = r.ListTasks(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 1, gw.Calls("tasks.list"), "second read is served from cache")
}

func TestReaderListTasksRequiresBothKeys(t *testing.T) {
	ctx := context.Background()
	r, backend, gw := newReader(t)
	gw.Seed(&domain.Task{TeamID: 1, SubjectID: 2, Title: "a", Status: domain.TaskStatusPending})

	filter := domain.TaskFilter{TeamID: 1, SubjectID: 2}
	_, err := r.ListTasks(ctx, filter)
	require.NoError(t, err)
	require.NoError(t, backend.Delete(ctx, cache.CountKey(1, 2, domain.StatusFilterAll)))

	_, err = r.ListTasks(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 2, gw.Calls("tasks.list"))
}

func TestReaderEmptyPageNotCached(t *testing.T) {
	ctx := context.Background()
	r, backend, gw := newReader(t)

	page, err := r.ListTasks(ctx, domain.TaskFilter{TeamID: 1, SubjectID: 2})
	require.NoError(t, err)
	assert.Empty(t, page.Tasks)

	keys, err := backend.Scan(ctx, "*")
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = r.ListTasks(ctx, domain.TaskFilter{TeamID: 1, SubjectID: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, gw.Calls("tasks.list"))
}

func TestReaderSearchBypassesCache(t *testing.T) {
	ctx := context.Background()
	r, backend, gw := newReader(t)
	gw.Seed(&domain.Task{TeamID: 1, SubjectID: 2, Title: "report", Status: domain.TaskStatusPending})

	page, err := r.ListTasks(ctx, domain.TaskFilter{TeamID: 1, SubjectID: 2, Search: "rep"})
	require.NoError(t, err)
	assert.Len(t, page.Tasks, 1)

	keys, err := backend.Scan(ctx, "*")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestReaderCreateThenListAfterInvalidation(t *testing.T) {
	ctx := context.Background()
	r, backend, gw := newReader(t)
	inv := cache.NewInvalidator(cache.NewStore(backend, 0, nil), nil)
	gw.Seed(&domain.Task{TeamID: 1, SubjectID: 2, Title: "first", Status: domain.TaskStatusPending})

	filter := domain.TaskFilter{TeamID: 1, SubjectID: 2}
	_, err := r.ListTasks(ctx, filter)
	require.NoError(t, err)

	created := &domain.Task{TeamID: 1, SubjectID: 2, Title: "second", Status: domain.TaskStatusPending}
	require.NoError(t, gw.Tasks().Create(ctx, created))
	inv.InvalidateTask(ctx, 1, 2, 0)

	page, err := r.ListTasks(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	ids := []int64{page.Tasks[0].ID, page.Tasks[1].ID}
	assert.Contains(t, ids, created.ID)
}

func TestReaderGetTask(t *testing.T) {
	ctx := context.Background()
	r, _, gw := newReader(t)
	task := &domain.Task{TeamID: 1, SubjectID: 2, Title: "a", Status: domain.TaskStatusPending}
	gw.Seed(task)

	got, err := r.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Title)

	got, err = r.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, 1, gw.Calls("tasks.get"))

	_, err = r.GetTask(ctx, 999)
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestReaderValidatesFilter(t *testing.T) {
	r, _, _ := newReader(t)
	_, err := r.ListTasks(context.Background(), domain.TaskFilter{SubjectID: 2})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

// ttlBackend records the TTL of every write.
type ttlBackend struct {
	*cache.MemoryBackend
	mu   sync.Mutex
	ttls map[string]time.Duration
}

func (b *ttlBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	b.ttls[key] = ttl
	b.mu.Unlock()
	return b.MemoryBackend.Set(ctx, key, value, ttl)
}

func TestReaderFillTTL(t *testing.T) {
	ctx := context.Background()
	gw := mocks.NewMockGateway()
	gw.Seed(&domain.Task{TeamID: 1, SubjectID: 2, Title: "a", Status: domain.TaskStatusPending})

	t.Run("read misses use the fill ttl", func(t *testing.T) {
		backend := &ttlBackend{MemoryBackend: cache.NewMemoryBackend(), ttls: map[string]time.Duration{}}
		r := cache.NewReader(cache.NewStore(backend, time.Hour, nil), gw.Tasks(), nil, cache.WithFillTTL(time.Minute))

		page, err := r.ListTasks(ctx, domain.TaskFilter{TeamID: 1, SubjectID: 2})
		require.NoError(t, err)
		_, err = r.GetTask(ctx, page.Tasks[0].ID)
		require.NoError(t, err)

		assert.Equal(t, time.Minute, backend.ttls[cache.ListKey(1, 2, domain.StatusFilterAll, 1, 5)])
		assert.Equal(t, time.Minute, backend.ttls[cache.CountKey(1, 2, domain.StatusFilterAll)])
		assert.Equal(t, time.Minute, backend.ttls[cache.TaskKey(page.Tasks[0].ID)])

		_, err = r.Refresh(ctx, domain.TaskFilter{TeamID: 1, SubjectID: 2})
		require.NoError(t, err)
		assert.Equal(t, time.Hour, backend.ttls[cache.ListKey(1, 2, domain.StatusFilterAll, 1, 5)],
			"warming refreshes keep the store ttl")
	})

	t.Run("zero keeps the store ttl", func(t *testing.T) {
		backend := &ttlBackend{MemoryBackend: cache.NewMemoryBackend(), ttls: map[string]time.Duration{}}
		r := cache.NewReader(cache.NewStore(backend, time.Hour, nil), gw.Tasks(), nil, cache.WithFillTTL(0))

		_, err := r.ListTasks(ctx, domain.TaskFilter{TeamID: 1, SubjectID: 2})
		require.NoError(t, err)
		assert.Equal(t, time.Hour, backend.ttls[cache.ListKey(1, 2, domain.StatusFilterAll, 1, 5)])
	})
}
