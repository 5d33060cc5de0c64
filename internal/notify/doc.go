// Package notify fans task events out to live clients.
//
// Clients connect to the Hub over a websocket and join rooms, one room per
// (team, subject) pair. Events reach a room through the RoomRegistry, either
// directly in-process or via the task_events exchange: BrokerNotifier
// publishes there and a Relay in every API process emits what it receives
// into the local registry.
//
// Delivery is best effort. A client whose outbox is full misses the event.
package notify
