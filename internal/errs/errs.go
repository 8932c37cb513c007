// Package errs defines the error taxonomy shared across checkpoint's core
// packages. Each kind wraps github.com/juju/errors so call sites keep full
// annotation/trace chains while still being able to test for a specific
// kind with the Is* helpers, the same pattern juju/errors itself uses for
// NotFound, AlreadyExists and friends.
package errs

import (
	"github.com/juju/errors"
)

type kind struct {
	errors.Err
}

// InputError constructors: invalid suffix, invalid remote path, invalid
// checkpoint id, invalid metadata key.

type inputError struct{ kind }

func NewInput(format string, args ...interface{}) error {
	return &inputError{kind{mustErr(format, args...)}}
}

func IsInput(err error) bool {
	_, ok := errors.Cause(err).(*inputError)
	return ok
}

// EnvironmentError: missing external tool, unreadable source, unwritable
// root, insufficient space.

type environmentError struct{ kind }

func NewEnvironment(format string, args ...interface{}) error {
	return &environmentError{kind{mustErr(format, args...)}}
}

func IsEnvironment(err error) bool {
	_, ok := errors.Cause(err).(*environmentError)
	return ok
}

// LockError: LockTimeout, LockStolen.

type lockTimeoutError struct{ kind }

func NewLockTimeout(format string, args ...interface{}) error {
	return &lockTimeoutError{kind{mustErr(format, args...)}}
}

func IsLockTimeout(err error) bool {
	_, ok := errors.Cause(err).(*lockTimeoutError)
	return ok
}

type lockStolenError struct{ kind }

func NewLockStolen(format string, args ...interface{}) error {
	return &lockStolenError{kind{mustErr(format, args...)}}
}

func IsLockStolen(err error) bool {
	_, ok := errors.Cause(err).(*lockStolenError)
	return ok
}

// IntegrityError: VerifyMismatch.

type verifyMismatchError struct{ kind }

func NewVerifyMismatch(format string, args ...interface{}) error {
	return &verifyMismatchError{kind{mustErr(format, args...)}}
}

func IsVerifyMismatch(err error) bool {
	_, ok := errors.Cause(err).(*verifyMismatchError)
	return ok
}

// PublishError: PublishFailed.

type publishFailedError struct{ kind }

func NewPublishFailed(format string, args ...interface{}) error {
	return &publishFailedError{kind{mustErr(format, args...)}}
}

func IsPublishFailed(err error) bool {
	_, ok := errors.Cause(err).(*publishFailedError)
	return ok
}

// PartialResultError: PartialRestore, PartialComparison.

type partialRestoreError struct{ kind }

func NewPartialRestore(format string, args ...interface{}) error {
	return &partialRestoreError{kind{mustErr(format, args...)}}
}

func IsPartialRestore(err error) bool {
	_, ok := errors.Cause(err).(*partialRestoreError)
	return ok
}

type partialComparisonError struct{ kind }

func NewPartialComparison(format string, args ...interface{}) error {
	return &partialComparisonError{kind{mustErr(format, args...)}}
}

func IsPartialComparison(err error) bool {
	_, ok := errors.Cause(err).(*partialComparisonError)
	return ok
}

// RemoteError: transport failure, auth refused, remote verb failure.

type remoteError struct{ kind }

func NewRemote(format string, args ...interface{}) error {
	return &remoteError{kind{mustErr(format, args...)}}
}

func IsRemote(err error) bool {
	_, ok := errors.Cause(err).(*remoteError)
	return ok
}

// Cancelled: signal or timeout during interactive prompt.

type cancelledError struct{ kind }

func NewCancelled(format string, args ...interface{}) error {
	return &cancelledError{kind{mustErr(format, args...)}}
}

func IsCancelled(err error) bool {
	_, ok := errors.Cause(err).(*cancelledError)
	return ok
}

func mustErr(format string, args ...interface{}) errors.Err {
	err := errors.NewErr(format, args...)
	err.SetLocation(2)
	return err
}
