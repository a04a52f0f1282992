/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package api

import (
	"errors"
)

const (
	ErrorCodeUnspecifiedError = "ErrorUnspecifiedError"
	ErrorCodeBadRequest       = "ErrorBadRequest"
	ErrorCodeNotFound         = "ErrorNotFound"
	ErrorCodeFormat           = "ErrorFormat"
	ErrorCodeInvalidPolicy    = "ErrorInvalidPolicy"
	ErrorCodeLimitReached     = "ErrorLimitReached"
	ErrorCodeConflict         = "ErrorConflict"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrBadRequest   = errors.New("bad request")
	ErrLimitReached = errors.New("limit reached")
	ErrConflict     = errors.New("conflict")
)
