package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/phrazzld/taskflow/internal/domain"
)

// EventType names a live event.
type EventType string

// Task events emitted to rooms.
const (
	EventTaskCreated   EventType = "task:created"
	EventTaskUpdated   EventType = "task:updated"
	EventTaskDeleted   EventType = "task:deleted"
	EventTaskSubmitted EventType = "task:submitted"
)

// Room control frames exchanged with websocket clients.
const (
	EventJoinRoom   EventType = "join:room"
	EventLeaveRoom  EventType = "leave:room"
	EventRoomJoined EventType = "room:joined"
	EventRoomLeft   EventType = "room:left"
	EventError      EventType = "error"
)

// IsTaskEvent reports whether t is one of the four task events.
func IsTaskEvent(t EventType) bool {
	switch t {
	case EventTaskCreated, EventTaskUpdated, EventTaskDeleted, EventTaskSubmitted:
		return true
	default:
		return false
	}
}

// EventData is the payload of a task event.
type EventData struct {
	TeamID    int64        `json:"teamId"`
	SubjectID int64        `json:"subjectId"`
	TaskID    int64        `json:"taskId,omitempty"`
	Task      *domain.Task `json:"task,omitempty"`
	UserID    int64        `json:"userId,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// Event is a task event as sent to clients and over the broker.
type Event struct {
	Type EventType `json:"event"`
	Data EventData `json:"data"`
}

// Room returns the room the event is addressed to.
func (e Event) Room() Room {
	return Room{TeamID: e.Data.TeamID, SubjectID: e.Data.SubjectID}
}

// RoutingKey is the task_events routing key for the event, e.g. task.created.
func (e Event) RoutingKey() string {
	return strings.Replace(string(e.Type), ":", ".", 1)
}

// Validate checks the event type and room.
func (e Event) Validate() error {
	if !IsTaskEvent(e.Type) {
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if !e.Room().Valid() {
		return fmt.Errorf("invalid room %s", e.Room().Name())
	}
	return nil
}

func newEvent(t EventType, teamID, subjectID int64) Event {
	return Event{
		Type: t,
		Data: EventData{
			TeamID:    teamID,
			SubjectID: subjectID,
			Timestamp: time.Now().UTC(),
		},
	}
}

// CreatedEvent builds a task:created event carrying the new task.
func CreatedEvent(teamID, subjectID int64, task *domain.Task) Event {
	e := newEvent(EventTaskCreated, teamID, subjectID)
	e.Data.Task = task
	if task != nil {
		e.Data.TaskID = task.ID
	}
	return e
}

// UpdatedEvent builds a task:updated event carrying the updated task.
func UpdatedEvent(teamID, subjectID int64, task *domain.Task) Event {
	e := newEvent(EventTaskUpdated, teamID, subjectID)
	e.Data.Task = task
	if task != nil {
		e.Data.TaskID = task.ID
	}
	return e
}

// DeletedEvent builds a task:deleted event.
func DeletedEvent(teamID, subjectID, taskID int64) Event {
	e := newEvent(EventTaskDeleted, teamID, subjectID)
	e.Data.TaskID = taskID
	return e
}

// SubmittedEvent builds a task:submitted event.
func SubmittedEvent(teamID, subjectID, taskID, userID int64) Event {
	e := newEvent(EventTaskSubmitted, teamID, subjectID)
	e.Data.TaskID = taskID
	e.Data.UserID = userID
	return e
}
