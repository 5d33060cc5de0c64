package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/phrazzld/taskflow/internal/domain"
)

// Room partitions live events by team and subject.
type Room struct {
	TeamID    int64 `json:"teamId"`
	SubjectID int64 `json:"subjectId"`
}

// Name is the room's wire name, team:{t}:subject:{s}.
func (r Room) Name() string {
	return fmt.Sprintf("team:%d:subject:%d", r.TeamID, r.SubjectID)
}

// Valid reports whether both ids are positive.
func (r Room) Valid() bool {
	return r.TeamID > 0 && r.SubjectID > 0
}

// Subscriber is a room member. Deliver must not block; it reports whether
// the event was accepted.
type Subscriber interface {
	ID() string
	Deliver(Event) bool
}

// RoomRegistry tracks which subscribers are in which rooms and emits
// events to them. It is safe for concurrent use.
type RoomRegistry struct {
	mu     sync.RWMutex
	rooms  map[Room]map[string]Subscriber
	joined map[string]map[Room]struct{}
	logger *slog.Logger
}

var _ Notifier = (*RoomRegistry)(nil)

// NewRoomRegistry creates an empty registry.
func NewRoomRegistry(logger *slog.Logger) *RoomRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoomRegistry{
		rooms:  make(map[Room]map[string]Subscriber),
		joined: make(map[string]map[Room]struct{}),
		logger: logger.With(slog.String("component", "room_registry")),
	}
}

// Join adds s to room. Joining twice is a no-op.
func (r *RoomRegistry) Join(room Room, s Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]Subscriber)
		r.rooms[room] = members
	}
	members[s.ID()] = s

	rooms, ok := r.joined[s.ID()]
	if !ok {
		rooms = make(map[Room]struct{})
		r.joined[s.ID()] = rooms
	}
	rooms[room] = struct{}{}

	r.logger.Debug("subscriber joined room",
		slog.String("subscriber_id", s.ID()),
		slog.String("room", room.Name()),
		slog.Int("members", len(members)))
}

// Leave removes s from room.
func (r *RoomRegistry) Leave(room Room, s Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(room, s.ID())
}

// LeaveAll removes s from every room it joined.
func (r *RoomRegistry) LeaveAll(s Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for room := range r.joined[s.ID()] {
		r.leaveLocked(room, s.ID())
	}
	delete(r.joined, s.ID())
}

func (r *RoomRegistry) leaveLocked(room Room, id string) {
	if members, ok := r.rooms[room]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	if rooms, ok := r.joined[id]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(r.joined, id)
		}
	}
}

// Members returns the number of subscribers in room.
func (r *RoomRegistry) Members(room Room) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// Emit delivers ev to every member of room and returns how many accepted it.
func (r *RoomRegistry) Emit(room Room, ev Event) int {
	r.mu.RLock()
	members := make([]Subscriber, 0, len(r.rooms[room]))
	for _, s := range r.rooms[room] {
		members = append(members, s)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, s := range members {
		if s.Deliver(ev) {
			delivered++
			continue
		}
		r.logger.Warn("dropped event for slow subscriber",
			slog.String("subscriber_id", s.ID()),
			slog.String("room", room.Name()),
			slog.String("event", string(ev.Type)))
	}

	r.logger.Debug("emitted event",
		slog.String("room", room.Name()),
		slog.String("event", string(ev.Type)),
		slog.Int("members", len(members)),
		slog.Int("delivered", delivered))
	return delivered
}

// EmitCreated implements Notifier.
func (r *RoomRegistry) EmitCreated(_ context.Context, teamID, subjectID int64, task *domain.Task) {
	r.Emit(Room{TeamID: teamID, SubjectID: subjectID}, CreatedEvent(teamID, subjectID, task))
}

// EmitUpdated implements Notifier.
func (r *RoomRegistry) EmitUpdated(_ context.Context, teamID, subjectID int64, task *domain.Task) {
	r.Emit(Room{TeamID: teamID, SubjectID: subjectID}, UpdatedEvent(teamID, subjectID, task))
}

// EmitDeleted implements Notifier.
func (r *RoomRegistry) EmitDeleted(_ context.Context, teamID, subjectID, taskID int64) {
	r.Emit(Room{TeamID: teamID, SubjectID: subjectID}, DeletedEvent(teamID, subjectID, taskID))
}

// EmitSubmitted implements Notifier.
func (r *RoomRegistry) EmitSubmitted(_ context.Context, teamID, subjectID, taskID, userID int64) {
	r.Emit(Room{TeamID: teamID, SubjectID: subjectID}, SubmittedEvent(teamID, subjectID, taskID, userID))
}
