/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package signaling

import (
	"encoding/json"
)

// Message types exchanged between relay peers.
const (
	TypeOffer     = "offer"
	TypeAnswer    = "answer"
	TypeCandidate = "candidate"
	TypeBye       = "bye"
	TypeError     = "error"
	TypeReady     = "ready"
)

// Message is the JSON envelope sent over relay websocket connections.
type Message struct {
	Type      string          `json:"type"`
	SDP       string          `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Message   string          `json:"message,omitempty"`

	// Set by the relay.
	Source string `json:"source,omitempty"`
}

// IsDescription returns true if the accociated message carries a session
// description.
func (m *Message) IsDescription() bool {
	return m.Type == TypeOffer || m.Type == TypeAnswer
}

// NewErrorMessage creates an error message with the provided text.
func NewErrorMessage(text string) *Message {
	return &Message{
		Type:    TypeError,
		Message: text,
	}
}
