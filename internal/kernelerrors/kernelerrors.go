// Package kernelerrors defines the typed error kinds the kernel core
// surfaces across package boundaries (spec §7), and the Fatal helper used
// for internal-consistency violations that are programming errors rather
// than recoverable conditions.
package kernelerrors

import (
	"errors"
	"fmt"

	"github.com/nachos-go/kernel/internal/logger"
)

// Kind is one of the error kinds named in spec §7. Callers compare against
// these with errors.Is, never by inspecting message text.
type Kind struct {
	name string
}

func (k *Kind) Error() string { return k.name }

var (
	// NotFound: a path, handle, or sector number does not resolve to a
	// live object.
	NotFound = &Kind{"not found"}

	// AlreadyExists: a create/mkdir collided with an existing name.
	AlreadyExists = &Kind{"already exists"}

	// NoSpace: the bitmap is exhausted or an inode's indirect capacity
	// would be exceeded.
	NoSpace = &Kind{"no space"}

	// Busy: an operation (typically remove-while-open) was accepted but
	// deferred; this is not a failure, callers treat it as success with
	// deferred semantics per spec §7.
	Busy = &Kind{"busy"}

	// BadHandle: a syscall referenced an invalid or closed file handle.
	BadHandle = &Kind{"bad handle"}

	// BadPath: a syscall path argument failed validation (too long,
	// empty component, not absolute).
	BadPath = &Kind{"bad path"}
)

// wrapped pairs a Kind with a specific, human-readable detail message while
// remaining comparable via errors.Is(err, kernelerrors.NotFound).
type wrapped struct {
	kind *Kind
	msg  string
}

func (w *wrapped) Error() string { return w.msg }
func (w *wrapped) Is(target error) bool {
	k, ok := target.(*Kind)
	return ok && k == w.kind
}
func (w *wrapped) Unwrap() error { return w.kind }

// New builds an error of the given kind with a formatted detail message.
func New(kind *Kind, format string, args ...interface{}) error {
	return &wrapped{kind: kind, msg: fmt.Sprintf("%s: %s", kind.name, fmt.Sprintf(format, args...))}
}

// Is reports whether err (or anything it wraps) is of the given kind.
func Is(err error, kind *Kind) bool {
	return errors.Is(err, kind)
}

// Fatal reports an internal-consistency violation: a disagreement between
// the bitmap and an inode, a lock released by a thread that does not hold
// it, a coremap entry with no matching frame, and the like. These are
// programming errors that must never be recovered from.
//
// exitOnViolation mirrors the original kernel's ASSERT macro aborting the
// whole simulator: true terminates the process (suitable for a running
// kernel), false panics (suitable for tests, which want to recover and
// assert on it).
func Fatal(exitOnViolation bool, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if exitOnViolation {
		logger.Fatalf("fatal: %s", msg)
		return
	}
	logger.Errorf("fatal: %s", msg)
	panic("kernelerrors: fatal: " + msg)
}
