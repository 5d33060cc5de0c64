package pipeline

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/taskflow/internal/broker"
	"github.com/phrazzld/taskflow/internal/domain"
)

// Operation is the kind of mutation a Message carries.
type Operation string

// Supported operations.
const (
	OpCreateTask      Operation = "CREATE_TASK"
	OpUpdateTask      Operation = "UPDATE_TASK"
	OpDeleteTask      Operation = "DELETE_TASK"
	OpSubmitTask      Operation = "SUBMIT_TASK"
	OpInvalidateCache Operation = "INVALIDATE_CACHE"
)

// Valid reports whether o is a known operation.
func (o Operation) Valid() bool {
	switch o {
	case OpCreateTask, OpUpdateTask, OpDeleteTask, OpSubmitTask, OpInvalidateCache:
		return true
	default:
		return false
	}
}

// Queue returns the work queue o is sent to.
func (o Operation) Queue() string {
	switch o {
	case OpSubmitTask:
		return broker.QueueTaskSubmissions
	case OpInvalidateCache:
		return broker.QueueCacheInvalidation
	default:
		return broker.QueueTaskOperations
	}
}

// ErrMalformedMessage is returned by DecodeMessage for bodies that can never be processed.
var ErrMalformedMessage = errors.New("malformed message")

// Message is the unit of work on the work queues.
type Message struct {
	ID         string          `json:"id,omitempty"`
	Operation  Operation       `json:"operation"`
	Data       json.RawMessage `json:"data"`
	EnqueuedAt time.Time       `json:"timestamp"`
	RetryCount int             `json:"retryCount"`
}

// NewMessage builds a message for op with data encoded as its payload.
func NewMessage(op Operation, data any) (*Message, error) {
	if !op.Valid() {
		return nil, fmt.Errorf("%w: unknown operation %q", ErrMalformedMessage, op)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", op, err)
	}
	return &Message{
		ID:         uuid.NewString(),
		Operation:  op,
		Data:       raw,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// MessageID is used by the broker as the AMQP message id.
func (m *Message) MessageID() string { return m.ID }

// DecodeMessage parses and checks a message body.
func DecodeMessage(body []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if !m.Operation.Valid() {
		return nil, fmt.Errorf("%w: unknown operation %q", ErrMalformedMessage, m.Operation)
	}
	if len(bytes.TrimSpace(m.Data)) == 0 || bytes.Equal(bytes.TrimSpace(m.Data), []byte("null")) {
		return nil, fmt.Errorf("%w: missing data", ErrMalformedMessage)
	}
	if m.EnqueuedAt.IsZero() {
		return nil, fmt.Errorf("%w: missing timestamp", ErrMalformedMessage)
	}
	if m.RetryCount < 0 {
		return nil, fmt.Errorf("%w: negative retry count", ErrMalformedMessage)
	}
	return &m, nil
}

// Fingerprint identifies the mutation the message requests. It covers the
// operation, the payload with object keys sorted, and the enqueue time, so
// a retried copy of a message has the fingerprint of the original.
func (m *Message) Fingerprint() (string, error) {
	canonical, err := canonicalJSON(m.Data)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	h := sha256.New()
	h.Write([]byte(m.Operation))
	h.Write([]byte{'|'})
	h.Write(canonical)
	h.Write([]byte{'|'})
	h.Write([]byte(m.EnqueuedAt.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// canonicalJSON re-encodes raw with sorted object keys and no insignificant whitespace.
func canonicalJSON(raw json.RawMessage) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// Decode unmarshals the payload into dst.
func (m *Message) Decode(dst any) error {
	if err := json.Unmarshal(m.Data, dst); err != nil {
		return fmt.Errorf("%w: %s payload: %w", ErrMalformedMessage, m.Operation, err)
	}
	return nil
}

// CreatePayload is the data of a CREATE_TASK message.
type CreatePayload struct {
	TeamID      int64      `json:"team_id"`
	SubjectID   int64      `json:"subject_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
}

// UpdatePayload is the data of an UPDATE_TASK message.
type UpdatePayload struct {
	TaskID int64            `json:"taskId"`
	Patch  domain.TaskPatch `json:"updateData"`
}

// DeletePayload is the data of a DELETE_TASK message.
type DeletePayload struct {
	TaskID int64 `json:"taskId"`
}

// SubmitPayload is the data of a SUBMIT_TASK message.
type SubmitPayload struct {
	TaskID int64 `json:"taskId"`
	UserID int64 `json:"userId"`
}

// InvalidatePayload is the data of an INVALIDATE_CACHE message.
type InvalidatePayload struct {
	CacheKeys []string `json:"cacheKeys"`
}
