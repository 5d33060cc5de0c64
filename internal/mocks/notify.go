package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/taskflow/internal/domain"
	"github.com/phrazzld/taskflow/internal/notify"
)

// Emitted is one call recorded by MockNotifier.
type Emitted struct {
	Event     notify.EventType
	TeamID    int64
	SubjectID int64
	TaskID    int64
	UserID    int64
	Task      *domain.Task
}

// MockNotifier records every notification.
type MockNotifier struct {
	mu     sync.Mutex
	events []Emitted
}

var _ notify.Notifier = (*MockNotifier)(nil)

func (n *MockNotifier) record(e Emitted) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

// Events returns the recorded notifications in order.
func (n *MockNotifier) Events() []Emitted {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Emitted(nil), n.events...)
}

// EmitCreated implements notify.Notifier.
func (n *MockNotifier) EmitCreated(_ context.Context, teamID, subjectID int64, task *domain.Task) {
	n.record(Emitted{Event: notify.EventTaskCreated, TeamID: teamID, SubjectID: subjectID, TaskID: task.ID, Task: task})
}

// EmitUpdated implements notify.Notifier.
func (n *MockNotifier) EmitUpdated(_ context.Context, teamID, subjectID int64, task *domain.Task) {
	n.record(Emitted{Event: notify.EventTaskUpdated, TeamID: teamID, SubjectID: subjectID, TaskID: task.ID, Task: task})
}

// EmitDeleted implements notify.Notifier.
func (n *MockNotifier) EmitDeleted(_ context.Context, teamID, subjectID, taskID int64) {
	n.record(Emitted{Event: notify.EventTaskDeleted, TeamID: teamID, SubjectID: subjectID, TaskID: taskID})
}

// EmitSubmitted implements notify.Notifier.
func (n *MockNotifier) EmitSubmitted(_ context.Context, teamID, subjectID, taskID, userID int64) {
	n.record(Emitted{Event: notify.EventTaskSubmitted, TeamID: teamID, SubjectID: subjectID, TaskID: taskID, UserID: userID})
}

// Invalidation is one call recorded by MockInvalidator.
type Invalidation struct {
	TeamID    int64
	SubjectID int64
	TaskID    int64
	Keys      []string
}

// MockInvalidator records cache invalidations.
type MockInvalidator struct {
	mu    sync.Mutex
	calls []Invalidation
}

// InvalidateTask records a task invalidation.
func (c *MockInvalidator) InvalidateTask(_ context.Context, teamID, subjectID, taskID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Invalidation{TeamID: teamID, SubjectID: subjectID, TaskID: taskID})
}

// InvalidateKeys records a key invalidation.
func (c *MockInvalidator) InvalidateKeys(_ context.Context, keys []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Invalidation{Keys: keys})
}

// Calls returns the recorded invalidations in order.
func (c *MockInvalidator) Calls() []Invalidation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Invalidation(nil), c.calls...)
}
