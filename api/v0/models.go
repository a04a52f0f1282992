/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package api

import (
	"fmt"

	"stash.kopano.io/kwm/kwmsdp/sdptransform"
)

// SessionDescription is the JSON form of a session description as used by
// browsers.
type SessionDescription struct {
	Type string `json:"type,omitempty"`
	SDP  string `json:"sdp"`
}

type TransformRequest struct {
	SessionDescription
	Policy *sdptransform.Policy `json:"policy,omitempty"`
}

type TransformResponse struct {
	SessionDescription

	Applicable  bool     `json:"applicable"`
	Reason      string   `json:"reason,omitempty"`
	PayloadType *int     `json:"payloadType,omitempty"`
	Changes     []string `json:"changes,omitempty"`
	Skipped     []string `json:"skipped,omitempty"`
}

// NewTransformResponse creates the response for result, sdpType is passed
// through.
func NewTransformResponse(sdpType string, result *sdptransform.Result) *TransformResponse {
	response := &TransformResponse{
		SessionDescription: SessionDescription{
			Type: sdpType,
			SDP:  result.SDP,
		},
		Applicable: result.Applicable,
		Changes:    result.Changes,
		Skipped:    result.Skipped,
	}
	if result.Reason != nil {
		response.Reason = result.Reason.Error()
	}
	if result.PayloadType != sdptransform.NotFound {
		pt := result.PayloadType
		response.PayloadType = &pt
	}
	return response
}

type CodecsRequest struct {
	SDP string `json:"sdp"`
}

type CodecsResponse struct {
	Media []sdptransform.MediaCodecs `json:"media"`
}

type RelayCreateRequest struct {
	Policy *sdptransform.Policy `json:"policy,omitempty"`
}

type RelayResource struct {
	ID     string               `json:"id"`
	Peers  int                  `json:"peers"`
	State  string               `json:"state"`
	Policy *sdptransform.Policy `json:"policy,omitempty"`
}

type ErrorWithCodeAndMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	innerError error
}

func NewErrorWithCodeAndMessage(code string, message string, err error) *ErrorWithCodeAndMessage {
	return &ErrorWithCodeAndMessage{
		Code:    code,
		Message: message,

		innerError: err,
	}
}

func (err *ErrorWithCodeAndMessage) Error() string {
	code := err.Code
	message := err.Message
	if message == "" && err.innerError != nil {
		message = err.innerError.Error()
	}

	return fmt.Sprintf("%s: %s", code, message)
}

func (err *ErrorWithCodeAndMessage) Unwrap() error {
	return err.innerError
}
