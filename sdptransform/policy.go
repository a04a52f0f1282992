/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package sdptransform

import (
	"fmt"
	"strings"
)

// DefaultMediaType is the media type a Policy applies to when none is set.
const DefaultMediaType = "audio"

// Policy defines how a session description gets decorated. A Policy is never
// modified by the transform functions and can be shared.
type Policy struct {
	// PreferredCodec is the codec to move to the front of the payload list,
	// in NAME/RATE form like "opus/48000". Empty means no preference.
	PreferredCodec string `json:"preferredCodec,omitempty"`
	// PreferredCodecFmtp is compared with the codec format parameters when
	// StrictCodecMatch is set.
	PreferredCodecFmtp string `json:"preferredCodecFmtp,omitempty"`
	// StrictCodecMatch selects exact name, clock rate, channel and fmtp
	// matching instead of case insensitive substring matching.
	StrictCodecMatch bool `json:"strictCodecMatch,omitempty"`

	// MediaType selects the media section, defaults to DefaultMediaType.
	MediaType string `json:"mediaType,omitempty"`

	// MaxBitrateKbps sets the b=AS limit of the media section. 0 means unset.
	MaxBitrateKbps uint32 `json:"maxBitrateKbps,omitempty"`
	// EnableDTX adds usedtx=1 to the in-band FEC fmtp line.
	EnableDTX bool `json:"enableDtx,omitempty"`
	// EnableFEC set to false turns useinbandfec=1 into useinbandfec=0. Nil
	// leaves FEC as negotiated.
	EnableFEC *bool `json:"enableFec,omitempty"`
	// Ptime sets the a=ptime value of the media section. 0 means unset.
	Ptime uint32 `json:"ptime,omitempty"`

	// StripLines lists line prefixes to remove from the whole description.
	StripLines []string `json:"stripLines,omitempty"`
}

// Bool returns a pointer to the provided value, to fill optional Policy
// fields.
func Bool(v bool) *bool {
	return &v
}

// Media returns the media type the accociated policy applies to.
func (p *Policy) Media() string {
	if p.MediaType == "" {
		return DefaultMediaType
	}
	return p.MediaType
}

// FECEnabled reports if in-band FEC should stay enabled.
func (p *Policy) FECEnabled() bool {
	return p.EnableFEC == nil || *p.EnableFEC
}

// Validate checks the accociated policy for values which can never apply.
func (p *Policy) Validate() error {
	if strings.ContainsAny(p.Media(), " \r\n") {
		return fmt.Errorf("%w: media type must be a single token", ErrInvalidPolicy)
	}
	if strings.ContainsAny(p.PreferredCodec, "\r\n") {
		return fmt.Errorf("%w: preferred codec must not contain line breaks", ErrInvalidPolicy)
	}
	if p.StrictCodecMatch && p.PreferredCodec != "" {
		if _, err := ParseCodecMatcher(p.PreferredCodec); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
		}
	}
	for _, prefix := range p.StripLines {
		// Any prefix of "m=" also matches media lines.
		if strings.HasPrefix(prefix, mediaLinePrefix) || strings.HasPrefix(mediaLinePrefix, prefix) {
			return fmt.Errorf("%w: strip prefix %q matches media lines", ErrInvalidPolicy, prefix)
		}
	}

	return nil
}

// IsEmpty reports if the accociated policy would never change anything.
func (p *Policy) IsEmpty() bool {
	return p.PreferredCodec == "" &&
		p.MaxBitrateKbps == 0 &&
		!p.EnableDTX &&
		p.FECEnabled() &&
		p.Ptime == 0 &&
		len(p.StripLines) == 0
}
