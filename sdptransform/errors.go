/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package sdptransform

import (
	"errors"
	"fmt"
)

var (
	// ErrFormat is matched by all errors which are returned because the input
	// is not a usable session description.
	ErrFormat = errors.New("invalid session description")

	// ErrPolicyNotApplicable is used as Result.Reason when a policy did not
	// apply to a session description. It is never returned as error.
	ErrPolicyNotApplicable = errors.New("policy not applicable")

	// ErrInvalidPolicy is returned for policies which cannot be used.
	ErrInvalidPolicy = errors.New("invalid policy")
)

// FormatError describes why a session description was rejected.
type FormatError struct {
	Reason string
	Err    error
}

func newFormatError(reason string, err error) *FormatError {
	return &FormatError{
		Reason: reason,
		Err:    err,
	}
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrFormat, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrFormat, e.Reason)
}

// Is makes errors.Is(err, ErrFormat) work for all format errors.
func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

func (e *FormatError) Unwrap() error {
	return e.Err
}
