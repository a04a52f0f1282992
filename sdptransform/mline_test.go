/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package sdptransform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetDefaultPayload(t *testing.T) {
	for _, tc := range []struct {
		line string
		pt   int
		want string
	}{
		{"m=audio 9 UDP/TLS/RTP/SAVPF 111 103 104", 103, "m=audio 9 UDP/TLS/RTP/SAVPF 103 111 104"},
		{"m=audio 9 UDP/TLS/RTP/SAVPF 111 103 104", 104, "m=audio 9 UDP/TLS/RTP/SAVPF 104 111 103"},
		{"m=audio 9 UDP/TLS/RTP/SAVPF 111 103 104", 111, "m=audio 9 UDP/TLS/RTP/SAVPF 111 103 104"},
		{"m=audio 9 UDP/TLS/RTP/SAVPF 111 103 104", 0, "m=audio 9 UDP/TLS/RTP/SAVPF 111 103 104"},
		{"m=audio 9 UDP/TLS/RTP/SAVPF 111 103 104", 10, "m=audio 9 UDP/TLS/RTP/SAVPF 111 103 104"},
		{"m=audio 5004 RTP/AVP 8 0 101", 0, "m=audio 5004 RTP/AVP 0 8 101"},
		{"m=audio 9 RTP/AVP", 0, "m=audio 9 RTP/AVP"},
		{"", 0, ""},
	} {
		assert.Equal(t, tc.want, SetDefaultPayload(tc.line, tc.pt), "%s %d", tc.line, tc.pt)
	}
}

func TestSetDefaultPayloadKeepsOrder(t *testing.T) {
	line := "m=audio 9 UDP/TLS/RTP/SAVPF 111 103 104 9 0 8 126"
	for _, pt := range PayloadTypes(line) {
		out := SetDefaultPayload(line, mustAtoi(t, pt))
		got := PayloadTypes(out)
		assert.Equal(t, pt, got[0])

		rest := make([]string, 0)
		for _, p := range PayloadTypes(line) {
			if p != pt {
				rest = append(rest, p)
			}
		}
		assert.Equal(t, rest, got[1:])
		assert.Equal(t, out, SetDefaultPayload(out, mustAtoi(t, pt)))
	}
}

func TestPayloadTypes(t *testing.T) {
	assert.Equal(t, []string{"96", "97"}, PayloadTypes("m=video 9 UDP/TLS/RTP/SAVPF 96 97"))
	assert.Nil(t, PayloadTypes("m=video 9 UDP/TLS/RTP/SAVPF"))
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			t.Fatalf("not a number: %q", s)
		}
		n = n*10 + int(c-'0')
	}
	return n
}
