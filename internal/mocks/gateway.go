package mocks

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/phrazzld/taskflow/internal/domain"
	"github.com/phrazzld/taskflow/internal/store"
)

type completionKey struct {
	taskID int64
	userID int64
}

type gatewayState struct {
	tasks          map[int64]domain.Task
	completions    map[completionKey]domain.Completion
	ledger         map[string]time.Time
	nextTaskID     int64
	nextCompletion int64
}

func (s gatewayState) clone() gatewayState {
	c := gatewayState{
		tasks:          make(map[int64]domain.Task, len(s.tasks)),
		completions:    make(map[completionKey]domain.Completion, len(s.completions)),
		ledger:         make(map[string]time.Time, len(s.ledger)),
		nextTaskID:     s.nextTaskID,
		nextCompletion: s.nextCompletion,
	}
	for k, v := range s.tasks {
		c.tasks[k] = v
	}
	for k, v := range s.completions {
		c.completions[k] = v
	}
	for k, v := range s.ledger {
		c.ledger[k] = v
	}
	return c
}

type injectedFault struct {
	err       error
	remaining int
}

// MockGateway implements store.Gateway in memory. InTx rolls back every
// change made by the callback when it returns an error.
type MockGateway struct {
	// PingFn overrides Ping when set.
	PingFn func(ctx context.Context) error

	mu     sync.Mutex
	txMu   sync.Mutex
	state  gatewayState
	faults map[string]*injectedFault
	calls  map[string]int
}

var _ store.Gateway = (*MockGateway)(nil)

// NewMockGateway creates an empty in-memory gateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		state: gatewayState{
			tasks:       make(map[int64]domain.Task),
			completions: make(map[completionKey]domain.Completion),
			ledger:      make(map[string]time.Time),
		},
		faults: make(map[string]*injectedFault),
		calls:  make(map[string]int),
	}
}

// FailWith makes the next times calls of op return err. Operation names are
// "tx", "ping", "tasks.create", "tasks.get", "tasks.update", "tasks.delete",
// "tasks.list", "completions.find", "completions.create",
// "completions.delete", "ledger.record", "ledger.seen" and "ledger.prune".
// A negative times fails every call.
func (m *MockGateway) FailWith(op string, err error, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[op] = &injectedFault{err: err, remaining: times}
}

// Calls returns how many times op was invoked, failed calls included.
func (m *MockGateway) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Seed inserts tasks directly, assigning IDs to those without one.
func (m *MockGateway) Seed(tasks ...*domain.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tasks {
		if t.ID == 0 {
			m.state.nextTaskID++
			t.ID = m.state.nextTaskID
		} else if t.ID > m.state.nextTaskID {
			m.state.nextTaskID = t.ID
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now().UTC()
		}
		m.state.tasks[t.ID] = *t
	}
}

// TaskCount returns the number of stored tasks.
func (m *MockGateway) TaskCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.tasks)
}

// CompletionCount returns the number of stored completions.
func (m *MockGateway) CompletionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.completions)
}

// LedgerSize returns the number of recorded fingerprints.
func (m *MockGateway) LedgerSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.ledger)
}

// enter records a call of op and returns the injected fault, if any.
// The caller must hold m.mu.
func (m *MockGateway) enter(op string) error {
	m.calls[op]++
	f, ok := m.faults[op]
	if !ok || f.remaining == 0 {
		return nil
	}
	if f.remaining > 0 {
		f.remaining--
	}
	return f.err
}

// Tasks implements store.Gateway.
func (m *MockGateway) Tasks() store.TaskStore { return mockTaskStore{m} }

// Completions implements store.Gateway.
func (m *MockGateway) Completions() store.CompletionStore { return mockCompletionStore{m} }

// Ledger implements store.Gateway.
func (m *MockGateway) Ledger() store.LedgerStore { return mockLedgerStore{m} }

// InTx implements store.Gateway. Transactions are serialized.
func (m *MockGateway) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Gateway) error) error {
	if inTx(ctx) {
		return fn(ctx, m)
	}

	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	if err := m.enter("tx"); err != nil {
		m.mu.Unlock()
		return err
	}
	snapshot := m.state.clone()
	m.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true), m); err != nil {
		m.mu.Lock()
		m.state = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

// Ping implements store.Gateway.
func (m *MockGateway) Ping(ctx context.Context) error {
	if m.PingFn != nil {
		return m.PingFn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enter("ping")
}

type txKey struct{}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

type mockTaskStore struct{ m *MockGateway }

func (s mockTaskStore) Create(_ context.Context, task *domain.Task) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter("tasks.create"); err != nil {
		return err
	}
	if err := task.Validate(); err != nil {
		return err
	}
	s.m.state.nextTaskID++
	task.ID = s.m.state.nextTaskID
	task.CreatedAt = time.Now().UTC()
	s.m.state.tasks[task.ID] = *task
	return nil
}

func (s mockTaskStore) GetByID(_ context.Context, id int64) (*domain.Task, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter("tasks.get"); err != nil {
		return nil, err
	}
	t, ok := s.m.state.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return &t, nil
}

func (s mockTaskStore) Update(_ context.Context, task *domain.Task) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter("tasks.update"); err != nil {
		return err
	}
	if err := task.Validate(); err != nil {
		return err
	}
	if _, ok := s.m.state.tasks[task.ID]; !ok {
		return store.ErrTaskNotFound
	}
	s.m.state.tasks[task.ID] = *task
	return nil
}

func (s mockTaskStore) Delete(_ context.Context, id int64) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter("tasks.delete"); err != nil {
		return err
	}
	if _, ok := s.m.state.tasks[id]; !ok {
		return store.ErrTaskNotFound
	}
	for k := range s.m.state.completions {
		if k.taskID == id {
			return store.ErrInvalidEntity
		}
	}
	delete(s.m.state.tasks, id)
	return nil
}

func (s mockTaskStore) List(_ context.Context, filter domain.TaskFilter) (*domain.TaskPage, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter("tasks.list"); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	filter = filter.Normalize()
	filter.Search = strings.TrimSpace(filter.Search)

	matched := make([]*domain.Task, 0)
	for _, t := range s.m.state.tasks {
		t := t
		if filter.Matches(&t) {
			matched = append(matched, &t)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page := &domain.TaskPage{Tasks: []*domain.Task{}, Total: len(matched), Page: filter.Page, Limit: filter.Limit}
	start := filter.Offset()
	if start < len(matched) {
		end := start + filter.Limit
		if end > len(matched) {
			end = len(matched)
		}
		page.Tasks = matched[start:end]
	}
	return page, nil
}

type mockCompletionStore struct{ m *MockGateway }

func (s mockCompletionStore) Find(_ context.Context, taskID, userID int64) (*domain.Completion, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter("completions.find"); err != nil {
		return nil, err
	}
	c, ok := s.m.state.completions[completionKey{taskID, userID}]
	if !ok {
		return nil, store.ErrCompletionNotFound
	}
	return &c, nil
}

func (s mockCompletionStore) Create(_ context.Context, c *domain.Completion) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter("completions.create"); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	if _, ok := s.m.state.tasks[c.TaskID]; !ok {
		return store.ErrTaskNotFound
	}
	key := completionKey{c.TaskID, c.UserID}
	if _, ok := s.m.state.completions[key]; ok {
		return store.ErrAlreadySubmitted
	}
	s.m.state.nextCompletion++
	c.ID = s.m.state.nextCompletion
	s.m.state.completions[key] = *c
	return nil
}

func (s mockCompletionStore) DeleteByTask(_ context.Context, taskID int64) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter("completions.delete"); err != nil {
		return 0, err
	}
	var n int64
	for k := range s.m.state.completions {
		if k.taskID == taskID {
			delete(s.m.state.completions, k)
			n++
		}
	}
	return n, nil
}

type mockLedgerStore struct{ m *MockGateway }

func (s mockLedgerStore) Record(_ context.Context, fingerprint, _ string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter("ledger.record"); err != nil {
		return err
	}
	if _, ok := s.m.state.ledger[fingerprint]; ok {
		return store.ErrAlreadyProcessed
	}
	s.m.state.ledger[fingerprint] = time.Now().UTC()
	return nil
}

func (s mockLedgerStore) Seen(_ context.Context, fingerprint string) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter("ledger.seen"); err != nil {
		return false, err
	}
	_, ok := s.m.state.ledger[fingerprint]
	return ok, nil
}

func (s mockLedgerStore) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if err := s.m.enter("ledger.prune"); err != nil {
		return 0, err
	}
	var n int64
	for fp, at := range s.m.state.ledger {
		if at.Before(cutoff) {
			delete(s.m.state.ledger, fp)
			n++
		}
	}
	return n, nil
}
