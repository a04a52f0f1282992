/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"stash.kopano.io/kwm/kwmsdp/sdptransform"
)

// MaxRequestBodySize limits the size of JSON request bodies.
const MaxRequestBodySize = 1024 * 1024

func WriteResourceAsJSON(rw http.ResponseWriter, resource interface{}) error {
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	encoder := json.NewEncoder(rw)
	encoder.SetIndent("", "  ")
	return encoder.Encode(resource)
}

func WriteErrorAsJSON(rw http.ResponseWriter, err error) error {
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	encoder := json.NewEncoder(rw)
	encoder.SetIndent("", "  ")

	if err == nil {
		panic("writing nil error")
	}

	status, code := http.StatusInternalServerError, ErrorCodeUnspecifiedError
	switch {
	case errors.Is(err, ErrNotFound):
		status, code = http.StatusNotFound, ErrorCodeNotFound
	case errors.Is(err, sdptransform.ErrFormat):
		status, code = http.StatusBadRequest, ErrorCodeFormat
	case errors.Is(err, sdptransform.ErrInvalidPolicy):
		status, code = http.StatusBadRequest, ErrorCodeInvalidPolicy
	case errors.Is(err, ErrBadRequest):
		status, code = http.StatusBadRequest, ErrorCodeBadRequest
	case errors.Is(err, ErrConflict):
		status, code = http.StatusConflict, ErrorCodeConflict
	case errors.Is(err, ErrLimitReached):
		status, code = http.StatusServiceUnavailable, ErrorCodeLimitReached
	}
	rw.WriteHeader(status)

	var e *ErrorWithCodeAndMessage
	if !errors.As(err, &e) {
		message := err.Error()
		if status == http.StatusInternalServerError {
			message = fmt.Errorf("unspecified error: %w", err).Error()
		}
		e = NewErrorWithCodeAndMessage(code, message, err)
	}
	return encoder.Encode(e)
}

// DecodeJSONRequest decodes the JSON body of req into v. Errors wrap
// ErrBadRequest.
func DecodeJSONRequest(req *http.Request, v interface{}) error {
	decoder := json.NewDecoder(io.LimitReader(req.Body, MaxRequestBodySize))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

func GetRequestVars(req *http.Request) map[string]string {
	return mux.Vars(req)
}

func GetRequestVar(req *http.Request, name string) (string, bool) {
	value, found := GetRequestVars(req)[name]
	return value, found
}
