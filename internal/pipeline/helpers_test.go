package pipeline_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/phrazzld/taskflow/internal/mocks"
	"github.com/phrazzld/taskflow/internal/pipeline"
	"github.com/phrazzld/taskflow/internal/platform/logger"
)

type harness struct {
	gw       *mocks.MockGateway
	cache    *mocks.MockInvalidator
	notifier *mocks.MockNotifier
	applier  *pipeline.Applier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log, _ := logger.NewTestLogger()
	h := &harness{
		gw:       mocks.NewMockGateway(),
		cache:    &mocks.MockInvalidator{},
		notifier: &mocks.MockNotifier{},
	}
	h.applier = pipeline.NewApplier(h.gw, h.cache, h.notifier, log)
	return h
}

func message(t *testing.T, op pipeline.Operation, payload any) *pipeline.Message {
	t.Helper()
	msg, err := pipeline.NewMessage(op, payload)
	require.NoError(t, err)
	return msg
}

func encode(t *testing.T, msg *pipeline.Message) []byte {
	t.Helper()
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	return b
}
