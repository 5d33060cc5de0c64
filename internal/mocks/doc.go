// Package mocks provides shared test doubles for the pipeline interfaces.
//
// MockGateway is an in-memory store.Gateway with transaction rollback and
// fault injection; MockBus, MockNotifier and MockInvalidator record what they
// were asked to send, emit or invalidate. Function fields override default behavior where a test
// needs it:
//
//	gw := mocks.NewMockGateway()
//	gw.FailWith("tasks.create", store.ErrUnavailable, 2)
package mocks
