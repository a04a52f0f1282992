/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package sdptransform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocateCodec(t *testing.T) {
	lines := NewLines(offer)

	for _, tc := range []struct {
		media string
		codec string
		pt    int
		found bool
	}{
		{"audio", "ISAC/16000", 103, true},
		{"audio", "isac/32000", 104, true},
		{"audio", "opus/48000", 111, true},
		{"audio", "telephone-event/8000", 126, true},
		// First match in document order wins.
		{"audio", "ISAC", 103, true},
		// Substring matching, the short name also matches telephone-event.
		{"audio", "event", 126, true},
		{"audio", "VP8", NotFound, false},
		{"audio", "", NotFound, false},
		{"video", "VP8/90000", 96, true},
		{"video", "opus", NotFound, false},
		{"application", "opus", NotFound, false},
	} {
		pt, found := LocateCodec(lines, tc.media, tc.codec)
		assert.Equal(t, tc.found, found, "%s %s", tc.media, tc.codec)
		assert.Equal(t, tc.pt, pt, "%s %s", tc.media, tc.codec)
	}
}

func TestPayloadTypeOf(t *testing.T) {
	pt, ok := PayloadTypeOf("a=rtpmap:111 opus/48000/2")
	assert.True(t, ok)
	assert.Equal(t, 111, pt)

	pt, ok = PayloadTypeOf("a=rtpmap:126 telephone-event/8000")
	assert.True(t, ok)
	assert.Equal(t, 126, pt)

	for _, line := range []string{
		"a=rtpmap:x opus/48000",
		"a=rtpmap:111 opus",
		"a=fmtp:111 minptime=10",
		"",
	} {
		_, ok = PayloadTypeOf(line)
		assert.False(t, ok, line)
	}
}

func TestParseCodecMatcher(t *testing.T) {
	m, err := ParseCodecMatcher("opus/48000/2")
	require.NoError(t, err)
	assert.Equal(t, CodecMatcher{Name: "opus", ClockRate: 48000, Channels: "2"}, m)
	assert.Equal(t, "opus/48000/2", m.String())

	m, err = ParseCodecMatcher(" PCMU ")
	require.NoError(t, err)
	assert.Equal(t, CodecMatcher{Name: "PCMU"}, m)
	assert.Equal(t, "PCMU", m.String())

	for _, s := range []string{"", "/8000", "opus/fast", "opus/48000/two", "a/1/2/3"} {
		_, err = ParseCodecMatcher(s)
		assert.Error(t, err, s)
	}
}

func TestLocateCodecStrict(t *testing.T) {
	for _, tc := range []struct {
		media   string
		matcher CodecMatcher
		pt      int
		found   bool
	}{
		{"audio", CodecMatcher{Name: "ISAC", ClockRate: 16000}, 103, true},
		{"audio", CodecMatcher{Name: "isac", ClockRate: 32000}, 104, true},
		{"audio", CodecMatcher{Name: "ISAC"}, 103, true},
		{"audio", CodecMatcher{Name: "opus", ClockRate: 48000, Channels: "2"}, 111, true},
		{"audio", CodecMatcher{Name: "opus", ClockRate: 48000, Channels: "1"}, NotFound, false},
		{"audio", CodecMatcher{Name: "opus", Fmtp: "minptime=10;useinbandfec=1"}, 111, true},
		{"audio", CodecMatcher{Name: "opus", Fmtp: "minptime=10"}, NotFound, false},
		// No substring matching in strict mode.
		{"audio", CodecMatcher{Name: "event"}, NotFound, false},
		{"audio", CodecMatcher{Name: "telephone-event", ClockRate: 8000}, 126, true},
		{"video", CodecMatcher{Name: "VP8", ClockRate: 90000}, 96, true},
		{"video", CodecMatcher{Name: "ISAC"}, NotFound, false},
	} {
		pt, found, err := LocateCodecStrict(offer, tc.media, tc.matcher)
		require.NoError(t, err)
		assert.Equal(t, tc.found, found, "%s %s", tc.media, tc.matcher)
		assert.Equal(t, tc.pt, pt, "%s %s", tc.media, tc.matcher)
	}
}

func TestLocateCodecStrictFormatError(t *testing.T) {
	_, _, err := LocateCodecStrict(minimal, "audio", CodecMatcher{Name: "opus"})
	require.Error(t, err)
	assert.True(t, IsFormatError(err))

	_, _, err = LocateCodecStrict("", "audio", CodecMatcher{Name: "opus"})
	assert.True(t, IsFormatError(err))
}

func TestCodecs(t *testing.T) {
	media, err := Codecs(offer)
	require.NoError(t, err)
	require.Len(t, media, 2)

	audio := media[0]
	assert.Equal(t, "audio", audio.Type)
	require.Len(t, audio.Codecs, 7)
	assert.Equal(t, CodecDescriptor{
		PayloadType: 111,
		Name:        "opus",
		ClockRate:   48000,
		Channels:    "2",
		Fmtp:        "minptime=10;useinbandfec=1",
	}, audio.Codecs[0])
	assert.Equal(t, uint8(103), audio.Codecs[1].PayloadType)
	assert.Equal(t, "ISAC", audio.Codecs[1].Name)
	assert.Equal(t, uint32(16000), audio.Codecs[1].ClockRate)

	video := media[1]
	assert.Equal(t, "video", video.Type)
	require.Len(t, video.Codecs, 2)
	assert.Equal(t, "VP8", video.Codecs[0].Name)
	assert.Equal(t, "apt=96", video.Codecs[1].Fmtp)
}

func TestCodecsFormatError(t *testing.T) {
	for _, text := range []string{"", "v=0\r\ns=-\r\n", minimal} {
		_, err := Codecs(text)
		assert.True(t, IsFormatError(err), "%q", text)
	}
}
