/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package sdptransform

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
)

const rtpmapPrefix = "a=rtpmap"

var rtpmapPayloadTypeRegexp = regexp.MustCompile(`^a=rtpmap:(\d+) [^/\s]+/\d+`)

// CodecDescriptor describes one codec of a media section.
type CodecDescriptor struct {
	PayloadType uint8  `json:"payloadType"`
	Name        string `json:"name"`
	ClockRate   uint32 `json:"clockRate"`
	Channels    string `json:"channels,omitempty"`
	Fmtp        string `json:"fmtp,omitempty"`
}

// MediaCodecs lists the codecs of one media section in payload list order.
type MediaCodecs struct {
	Type   string            `json:"type"`
	Codecs []CodecDescriptor `json:"codecs"`
}

// CodecMatcher matches codecs exactly. Zero values match everything.
type CodecMatcher struct {
	Name      string
	ClockRate uint32
	Channels  string
	Fmtp      string
}

// ParseCodecMatcher parses NAME[/RATE[/CHANNELS]].
func ParseCodecMatcher(s string) (CodecMatcher, error) {
	var m CodecMatcher
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) > 3 || parts[0] == "" {
		return m, fmt.Errorf("invalid codec %q, expected NAME[/RATE[/CHANNELS]]", s)
	}
	m.Name = parts[0]
	if len(parts) > 1 {
		rate, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil {
			return m, fmt.Errorf("invalid codec clock rate in %q: %w", s, err)
		}
		m.ClockRate = uint32(rate)
	}
	if len(parts) > 2 {
		if _, err := strconv.ParseUint(parts[2], 10, 8); err != nil {
			return m, fmt.Errorf("invalid codec channels in %q: %w", s, err)
		}
		m.Channels = parts[2]
	}

	return m, nil
}

func (m CodecMatcher) String() string {
	s := m.Name
	if m.ClockRate != 0 {
		s += "/" + strconv.FormatUint(uint64(m.ClockRate), 10)
		if m.Channels != "" {
			s += "/" + m.Channels
		}
	}
	return s
}

func (m CodecMatcher) matches(codec sdp.Codec) bool {
	if !strings.EqualFold(codec.Name, m.Name) {
		return false
	}
	if m.ClockRate != 0 && codec.ClockRate != m.ClockRate {
		return false
	}
	if m.Channels != "" && codec.EncodingParameters != m.Channels {
		return false
	}
	if m.Fmtp != "" && codec.Fmtp != m.Fmtp {
		return false
	}
	return true
}

// PayloadTypeOf parses the payload type of an a=rtpmap line.
func PayloadTypeOf(rtpmapLine string) (int, bool) {
	match := rtpmapPayloadTypeRegexp.FindStringSubmatch(rtpmapLine)
	if match == nil {
		return NotFound, false
	}
	pt, err := strconv.Atoi(match[1])
	if err != nil {
		return NotFound, false
	}
	return pt, true
}

// LocateCodec returns the payload type of the first a=rtpmap line in the first
// media section of mediaType which contains codec ignoring case. Short codec
// names can match unintended lines, use LocateCodecStrict where this matters.
func LocateCodec(lines *Lines, mediaType string, codec string) (int, bool) {
	if codec == "" {
		return NotFound, false
	}
	mIndex := lines.FindMediaLine(mediaType)
	if mIndex == NotFound {
		return NotFound, false
	}
	end := lines.SectionEnd(mIndex)

	codecIndex := lines.FindInRange(mIndex+1, end, rtpmapPrefix, codec)
	if codecIndex == NotFound {
		return NotFound, false
	}

	return PayloadTypeOf(lines.At(codecIndex))
}

// LocateCodecStrict is like LocateCodec but matches the a=rtpmap and a=fmtp
// values of the media section exactly with the provided matcher. The session
// description must be fully parseable.
func LocateCodecStrict(text string, mediaType string, matcher CodecMatcher) (int, bool, error) {
	desc, err := unmarshal(text)
	if err != nil {
		return NotFound, false, err
	}

	for _, media := range desc.MediaDescriptions {
		if media.MediaName.Media != mediaType {
			continue
		}
		scoped := scopedDescription(media)
		for _, attribute := range media.Attributes {
			if attribute.Key != "rtpmap" {
				continue
			}
			pt, ok := PayloadTypeOf(rtpmapPrefix + ":" + attribute.Value)
			if !ok || pt > 0xff {
				continue
			}
			codec, codecErr := scoped.GetCodecForPayloadType(uint8(pt))
			if codecErr != nil {
				continue
			}
			if matcher.matches(codec) {
				return pt, true, nil
			}
		}
		// Only the first media section of the type counts.
		break
	}

	return NotFound, false, nil
}

// Codecs lists the codecs of all media sections of the provided session
// description.
func Codecs(text string) ([]MediaCodecs, error) {
	if !NewLines(text).HasMedia() {
		return nil, newFormatError("no media section", nil)
	}
	desc, err := unmarshal(text)
	if err != nil {
		return nil, err
	}

	result := make([]MediaCodecs, 0, len(desc.MediaDescriptions))
	for _, media := range desc.MediaDescriptions {
		scoped := scopedDescription(media)
		entry := MediaCodecs{
			Type:   media.MediaName.Media,
			Codecs: make([]CodecDescriptor, 0, len(media.MediaName.Formats)),
		}
		for _, format := range media.MediaName.Formats {
			pt, parseErr := strconv.ParseUint(format, 10, 8)
			if parseErr != nil {
				// Not RTP, for example application/webrtc-datachannel.
				continue
			}
			descriptor := CodecDescriptor{
				PayloadType: uint8(pt),
			}
			if codec, codecErr := scoped.GetCodecForPayloadType(uint8(pt)); codecErr == nil {
				descriptor.Name = codec.Name
				descriptor.ClockRate = codec.ClockRate
				descriptor.Channels = codec.EncodingParameters
				descriptor.Fmtp = codec.Fmtp
			}
			entry.Codecs = append(entry.Codecs, descriptor)
		}
		result = append(result, entry)
	}

	return result, nil
}

func unmarshal(text string) (*sdp.SessionDescription, error) {
	desc := &sdp.SessionDescription{}
	if err := desc.Unmarshal([]byte(text)); err != nil {
		return nil, newFormatError("parse failed", err)
	}
	if len(desc.MediaDescriptions) == 0 {
		return nil, newFormatError("no media section", nil)
	}
	return desc, nil
}

// scopedDescription wraps a single media description, so codec lookups do not
// see payload types of other media sections.
func scopedDescription(media *sdp.MediaDescription) *sdp.SessionDescription {
	return &sdp.SessionDescription{
		MediaDescriptions: []*sdp.MediaDescription{media},
	}
}

// IsFormatError reports if err was caused by an unusable session description.
func IsFormatError(err error) bool {
	return errors.Is(err, ErrFormat)
}
