package main

import (
	"context"
	"errors"
	"fmt"
)

// errUsage wraps a validation/user-input error so Execute can map it to
// exit code 1 per §6's CLI surface, distinct from a runtime failure (2).
type errUsage struct{ err error }

func (e *errUsage) Error() string { return e.err.Error() }
func (e *errUsage) Unwrap() error { return e.err }

func usageErrorf(format string, args ...any) error {
	return &errUsage{err: fmt.Errorf(format, args...)}
}

// exitCode maps an error returned from the root command to the process
// exit code §6 reserves: 0 success, 1 user/validation error, 2 runtime
// failure, 130 cancelled (SIGINT/context cancellation).
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) {
		return 130
	}
	var usage *errUsage
	if errors.As(err, &usage) {
		return 1
	}
	return 2
}
