/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package sdptransform

import (
	"fmt"
)

// Result is the outcome of a transform. When the policy was not applicable,
// SDP is the unchanged input and Reason wraps ErrPolicyNotApplicable.
type Result struct {
	SDP        string
	Applicable bool
	Reason     error

	// PayloadType is the payload type of the preferred codec or NotFound.
	PayloadType int

	Changes []string
	Skipped []string
}

// Transform decorates the session description text according to policy. The
// description is indexed once, the preferred codec is located, its payload
// type is moved to the front of the media line and finally the attribute
// rewrites are applied.
//
// A description without any media line is rejected with a FormatError. A
// policy whose media section or preferred codec is not found leaves the
// description untouched, this is not an error.
func Transform(text string, policy *Policy) (*Result, error) {
	if policy == nil {
		policy = &Policy{}
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	lines := NewLines(text)
	if lines.Len() == 0 {
		return nil, newFormatError("empty description", nil)
	}
	if !lines.HasMedia() {
		return nil, newFormatError("no media section", nil)
	}

	result := &Result{
		SDP:         text,
		PayloadType: NotFound,
	}
	mediaType := policy.Media()
	if lines.FindMediaLine(mediaType) == NotFound {
		result.Reason = fmt.Errorf("%w: no %s media section", ErrPolicyNotApplicable, mediaType)
		return result, nil
	}

	if policy.PreferredCodec != "" {
		var found bool
		if policy.StrictCodecMatch {
			matcher, err := ParseCodecMatcher(policy.PreferredCodec)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
			}
			matcher.Fmtp = policy.PreferredCodecFmtp
			result.PayloadType, found, err = LocateCodecStrict(text, mediaType, matcher)
			if err != nil {
				return nil, err
			}
		} else {
			result.PayloadType, found = LocateCodec(lines, mediaType, policy.PreferredCodec)
		}
		if !found {
			result.PayloadType = NotFound
			result.Reason = fmt.Errorf("%w: codec %s not found in %s media section", ErrPolicyNotApplicable, policy.PreferredCodec, mediaType)
			return result, nil
		}
	}

	if removed := lines.filter(policy.StripLines); removed > 0 {
		result.Changes = append(result.Changes, fmt.Sprintf("stripped %d lines", removed))
	}

	if result.PayloadType != NotFound {
		mIndex := lines.FindMediaLine(mediaType)
		if mIndex == NotFound {
			result.PayloadType = NotFound
			result.Changes = nil
			result.Reason = fmt.Errorf("%w: no %s media section", ErrPolicyNotApplicable, mediaType)
			return result, nil
		}
		if lines.set(mIndex, SetDefaultPayload(lines.At(mIndex), result.PayloadType)) {
			result.Changes = append(result.Changes, fmt.Sprintf("payload %d first", result.PayloadType))
		}
	}

	report := InjectAttributes(lines, result.PayloadType, policy)
	result.Changes = append(result.Changes, report.Changes...)
	result.Skipped = report.Skipped

	result.SDP = lines.String()
	result.Applicable = true

	return result, nil
}
