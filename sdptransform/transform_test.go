/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package sdptransform

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var transformPolicies = []*Policy{
	{},
	{PreferredCodec: "ISAC/16000"},
	{PreferredCodec: "opus/48000", MaxBitrateKbps: 32, EnableDTX: true},
	{PreferredCodec: "PCMU/8000", EnableFEC: Bool(false), Ptime: 20},
	{PreferredCodec: "opus/48000/2", StrictCodecMatch: true, EnableDTX: true, EnableFEC: Bool(false)},
	{MaxBitrateKbps: 64, StripLines: []string{"a=rtcp-fb:"}},
	{MediaType: "video", PreferredCodec: "rtx", MaxBitrateKbps: 1000},
}

func TestTransformPreferredCodec(t *testing.T) {
	result, err := Transform(minimal, &Policy{PreferredCodec: "ISAC/16000"})
	require.NoError(t, err)

	assert.True(t, result.Applicable)
	assert.NoError(t, result.Reason)
	assert.Equal(t, 103, result.PayloadType)
	assert.Equal(t, []string{"payload 103 first"}, result.Changes)
	assert.Equal(t, "m=audio 9 UDP/TLS/RTP/SAVPF 103 111 104", linesOf(result.SDP)[0])
	assert.Equal(t, strings.Replace(minimal, "111 103 104", "103 111 104", 1), result.SDP)
}

func TestTransformPreferredCodecOtherIdentifiersKeepOrder(t *testing.T) {
	result, err := Transform(offer, &Policy{PreferredCodec: "PCMA/8000"})
	require.NoError(t, err)

	lines := linesOf(result.SDP)
	assert.Equal(t, "m=audio 9 UDP/TLS/RTP/SAVPF 8 111 103 104 9 0 126", lines[6])
	// Video is not affected.
	assert.Equal(t, "m=video 9 UDP/TLS/RTP/SAVPF 96 97", lines[24])
}

func TestTransformCodecNotFoundIsIdentity(t *testing.T) {
	for _, policy := range []*Policy{
		{PreferredCodec: "G729/8000"},
		{PreferredCodec: "G729/8000", MaxBitrateKbps: 64, EnableDTX: true, EnableFEC: Bool(false)},
		{PreferredCodec: "VP8"},
		{PreferredCodec: "opus/48000/1", StrictCodecMatch: true},
		{MediaType: "application", MaxBitrateKbps: 64},
	} {
		result, err := Transform(offer, policy)
		require.NoError(t, err)

		assert.False(t, result.Applicable)
		assert.True(t, errors.Is(result.Reason, ErrPolicyNotApplicable))
		assert.Equal(t, NotFound, result.PayloadType)
		assert.Equal(t, offer, result.SDP)
		assert.Empty(t, result.Changes)
	}
}

func TestTransformIdempotent(t *testing.T) {
	for _, policy := range transformPolicies {
		once, err := Transform(offer, policy)
		require.NoError(t, err)
		twice, err := Transform(once.SDP, policy)
		require.NoError(t, err)

		assert.Equal(t, once.SDP, twice.SDP, "%+v", policy)
		assert.Empty(t, twice.Changes, "%+v", policy)
	}
}

func TestTransformRoundTrip(t *testing.T) {
	for _, text := range []string{offer, minimal, strings.ReplaceAll(offer, "\r\n", "\n")} {
		result, err := Transform(text, &Policy{})
		require.NoError(t, err)
		assert.True(t, result.Applicable)
		assert.Equal(t, text, result.SDP)
	}

	result, err := Transform(offer, nil)
	require.NoError(t, err)
	assert.Equal(t, offer, result.SDP)
}

func TestTransformBitrate(t *testing.T) {
	result, err := Transform(offer, &Policy{MaxBitrateKbps: 64})
	require.NoError(t, err)
	assert.Equal(t, 1, countPrefix(result.SDP, "b=AS:"))
	assert.Contains(t, result.SDP, "\r\nb=AS:64\r\n")

	result, err = Transform(result.SDP, &Policy{MaxBitrateKbps: 32})
	require.NoError(t, err)
	assert.Equal(t, 1, countPrefix(result.SDP, "b=AS:"))
	assert.Contains(t, result.SDP, "\r\nb=AS:32\r\n")
}

func TestTransformFECDisable(t *testing.T) {
	result, err := Transform(offer, &Policy{EnableFEC: Bool(false)})
	require.NoError(t, err)

	assert.True(t, result.Applicable)
	assert.Contains(t, result.SDP, "\r\na=fmtp:111 minptime=10;useinbandfec=0\r\n")
	assert.NotContains(t, result.SDP, "useinbandfec=1")
}

func TestTransformDTXWithoutFECLineIsReported(t *testing.T) {
	text := strings.Replace(offer, "a=fmtp:111 minptime=10;useinbandfec=1\r\n", "", 1)

	result, err := Transform(text, &Policy{PreferredCodec: "opus", EnableDTX: true})
	require.NoError(t, err)

	assert.True(t, result.Applicable)
	assert.Equal(t, []string{"dtx: no fmtp line with useinbandfec"}, result.Skipped)
	assert.Equal(t, text, result.SDP)
}

func TestTransformStripLines(t *testing.T) {
	text := strings.Replace(offer, "a=mid:0", "b=TIAS:64000\r\na=mid:0", 1)

	result, err := Transform(text, &Policy{StripLines: []string{"b=TIAS:"}})
	require.NoError(t, err)
	assert.Equal(t, offer, result.SDP)
	assert.Equal(t, []string{"stripped 1 lines"}, result.Changes)
}

func TestTransformFormatError(t *testing.T) {
	for _, text := range []string{
		"",
		"v=0\r\no=- 1 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n",
		"not a session description",
	} {
		result, err := Transform(text, &Policy{PreferredCodec: "opus"})
		require.Error(t, err, "%q", text)
		assert.Nil(t, result)
		assert.True(t, errors.Is(err, ErrFormat))

		var formatErr *FormatError
		assert.True(t, errors.As(err, &formatErr))
	}

	// Strict matching needs a fully parseable description.
	_, err := Transform(minimal, &Policy{PreferredCodec: "opus", StrictCodecMatch: true})
	assert.True(t, IsFormatError(err))
}

func TestTransformInvalidPolicy(t *testing.T) {
	for _, policy := range []*Policy{
		{MediaType: "audio video"},
		{PreferredCodec: "opus\r\na=evil"},
		{PreferredCodec: "opus/fast", StrictCodecMatch: true},
		{StripLines: []string{"m=video"}},
		{StripLines: []string{"m"}},
		{StripLines: []string{""}},
		{PreferredCodec: "opus", StripLines: []string{"a=fmtp:", "m"}},
	} {
		_, err := Transform(offer, policy)
		assert.True(t, errors.Is(err, ErrInvalidPolicy), "%+v", policy)
		assert.False(t, IsFormatError(err))
	}
}

func TestTransformStrictFmtp(t *testing.T) {
	text := strings.Replace(offer, "a=rtpmap:103 ISAC/16000", "a=rtpmap:103 opus/48000/2\r\na=fmtp:103 minptime=10;useinbandfec=0", 1)

	result, err := Transform(text, &Policy{PreferredCodec: "opus/48000/2", StrictCodecMatch: true, PreferredCodecFmtp: "minptime=10;useinbandfec=0"})
	require.NoError(t, err)
	assert.Equal(t, 103, result.PayloadType)
	assert.Contains(t, result.SDP, "m=audio 9 UDP/TLS/RTP/SAVPF 103 111 104 9 0 8 126\r\n")

	// Loose matching takes the first opus line.
	result, err = Transform(text, &Policy{PreferredCodec: "opus/48000/2"})
	require.NoError(t, err)
	assert.Equal(t, 111, result.PayloadType)
}

func TestTransformConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		policy := transformPolicies[i%len(transformPolicies)]
		want, err := Transform(offer, policy)
		require.NoError(t, err)

		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				got, err := Transform(offer, policy)
				if err != nil || got.SDP != want.SDP {
					t.Errorf("concurrent transform mismatch for %+v", policy)
					return
				}
			}
		}()
	}
	wg.Wait()
}
