/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package sdptransform

import (
	"strconv"
	"strings"
)

// SetDefaultPayload returns mediaLine with payloadType moved to the front of
// its payload list. The media type, port and protocol are kept and all other
// payload types stay in their original order. When payloadType is not in the
// list, mediaLine is returned unchanged.
func SetDefaultPayload(mediaLine string, payloadType int) string {
	elements := strings.Split(mediaLine, " ")
	if len(elements) < 4 {
		return mediaLine
	}
	payload := strconv.Itoa(payloadType)

	found := false
	for _, element := range elements[3:] {
		if element == payload {
			found = true
			break
		}
	}
	if !found {
		return mediaLine
	}

	// Just copy the first three parameters, codec order starts on fourth.
	newLine := make([]string, 0, len(elements))
	newLine = append(newLine, elements[:3]...)
	newLine = append(newLine, payload)
	for _, element := range elements[3:] {
		if element != payload {
			newLine = append(newLine, element)
		}
	}

	return strings.Join(newLine, " ")
}

// PayloadTypes returns the payload list of mediaLine.
func PayloadTypes(mediaLine string) []string {
	elements := strings.Split(mediaLine, " ")
	if len(elements) < 4 {
		return nil
	}
	return elements[3:]
}
