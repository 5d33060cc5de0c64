package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/phrazzld/taskflow/internal/domain"
	"github.com/phrazzld/taskflow/internal/store"
)

// FaultKind classifies a failed apply.
type FaultKind int

const (
	// FaultConnectivity means the store could not be reached. The message is
	// requeued and retried without limit.
	FaultConnectivity FaultKind = iota + 1
	// FaultDomain means the message can never succeed, e.g. submitting a
	// task that does not exist. The message is dead-lettered.
	FaultDomain
)

func (k FaultKind) String() string {
	switch k {
	case FaultConnectivity:
		return "connectivity"
	case FaultDomain:
		return "domain"
	default:
		return "unknown"
	}
}

// Fault is a classified apply error.
type Fault struct {
	Kind FaultKind
	Op   Operation
	Err  error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s %s fault: %v", f.Op, f.Kind, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// IsConnectivityError reports whether err means the store was unreachable.
func IsConnectivityError(err error) bool {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind == FaultConnectivity
	}
	return store.IsUnavailableError(err)
}

// IsDomainError reports whether err can never succeed on retry.
func IsDomainError(err error) bool {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind == FaultDomain
	}
	return false
}

// classify tags err with a FaultKind when it has one. Other errors are
// returned wrapped but untagged.
func classify(op Operation, err error) error {
	if err == nil {
		return nil
	}
	var f *Fault
	if errors.As(err, &f) {
		return err
	}
	switch {
	case store.IsUnavailableError(err):
		return &Fault{Kind: FaultConnectivity, Op: op, Err: err}
	case errors.Is(err, ErrMalformedMessage),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, store.ErrTaskNotFound):
		return &Fault{Kind: FaultDomain, Op: op, Err: err}
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
