/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package sdptransform

import (
	"strings"
)

var offerLines = []string{
	"v=0",
	"o=- 4611731400430051336 2 IN IP4 127.0.0.1",
	"s=-",
	"t=0 0",
	"a=group:BUNDLE 0 1",
	"a=msid-semantic: WMS",
	"m=audio 9 UDP/TLS/RTP/SAVPF 111 103 104 9 0 8 126",
	"c=IN IP4 0.0.0.0",
	"a=rtcp:9 IN IP4 0.0.0.0",
	"a=ice-ufrag:Mc7T",
	"a=ice-pwd:Wd3yOzbbd1VjU2VO1hxXKgm5",
	"a=setup:actpass",
	"a=mid:0",
	"a=sendrecv",
	"a=rtcp-mux",
	"a=rtpmap:111 opus/48000/2",
	"a=rtcp-fb:111 transport-cc",
	"a=fmtp:111 minptime=10;useinbandfec=1",
	"a=rtpmap:103 ISAC/16000",
	"a=rtpmap:104 ISAC/32000",
	"a=rtpmap:9 G722/8000",
	"a=rtpmap:0 PCMU/8000",
	"a=rtpmap:8 PCMA/8000",
	"a=rtpmap:126 telephone-event/8000",
	"m=video 9 UDP/TLS/RTP/SAVPF 96 97",
	"c=IN IP4 0.0.0.0",
	"a=mid:1",
	"a=sendrecv",
	"a=rtpmap:96 VP8/90000",
	"a=rtpmap:97 rtx/90000",
	"a=fmtp:97 apt=96",
	"",
}

// offer is a browser like offer with an audio and a video section.
var offer = strings.Join(offerLines, "\r\n")

// minimal only has what is needed to locate a codec.
const minimal = "m=audio 9 UDP/TLS/RTP/SAVPF 111 103 104\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n" +
	"a=fmtp:111 minptime=10;useinbandfec=1\r\n" +
	"a=rtpmap:103 ISAC/16000\r\n" +
	"a=rtpmap:104 ISAC/32000\r\n"

func linesOf(text string) []string {
	var out []string
	for _, line := range NewLines(text).All() {
		out = append(out, line)
	}
	return out
}

func countPrefix(text string, prefix string) int {
	n := 0
	for _, line := range NewLines(text).All() {
		if strings.HasPrefix(line, prefix) {
			n++
		}
	}
	return n
}
