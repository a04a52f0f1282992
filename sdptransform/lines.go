/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package sdptransform

import (
	"iter"
	"strings"
)

// NotFound is returned by searches which did not match any line.
const NotFound = -1

const (
	crlf = "\r\n"
	lf   = "\n"

	mediaLinePrefix = "m="
)

// Lines is an ordered index over the records of a session description. The
// line terminator found in the source text is remembered so that String
// reproduces the source byte for byte when nothing was changed.
type Lines struct {
	lines []string
	eol   string
}

// NewLines splits the provided session description text into its lines. The
// provided text is never modified. An empty text results in an empty index.
func NewLines(text string) *Lines {
	l := &Lines{
		eol: crlf,
	}
	if text == "" {
		return l
	}
	if !strings.Contains(text, crlf) && strings.Contains(text, lf) {
		l.eol = lf
	}
	l.lines = strings.Split(text, l.eol)

	return l
}

// Len returns the number of lines.
func (l *Lines) Len() int {
	return len(l.lines)
}

// At returns the line at index i.
func (l *Lines) At(i int) string {
	return l.lines[i]
}

// EOL returns the line terminator used by the accociated lines.
func (l *Lines) EOL() string {
	return l.eol
}

// All returns a sequence of all lines together with their index. The sequence
// can be iterated any number of times.
func (l *Lines) All() iter.Seq2[int, string] {
	return func(yield func(int, string) bool) {
		for i, line := range l.lines {
			if !yield(i, line) {
				return
			}
		}
	}
}

// String joins the lines using the original line terminator.
func (l *Lines) String() string {
	return strings.Join(l.lines, l.eol)
}

// FindFirst returns the index of the first line which starts with prefix and,
// if substr is not empty, contains substr ignoring case.
func (l *Lines) FindFirst(prefix, substr string) int {
	return l.FindInRange(0, -1, prefix, substr)
}

// FindInRange is like FindFirst but only considers lines[start:end]. An end
// of -1 means until the last line.
func (l *Lines) FindInRange(start, end int, prefix, substr string) int {
	if end < 0 || end > len(l.lines) {
		end = len(l.lines)
	}
	if start < 0 {
		start = 0
	}
	substr = strings.ToLower(substr)
	for i := start; i < end; i++ {
		line := l.lines[i]
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		if substr == "" || strings.Contains(strings.ToLower(line), substr) {
			return i
		}
	}

	return NotFound
}

// FindMediaLine returns the index of the first media line of the provided
// media type. The media type must match exactly.
func (l *Lines) FindMediaLine(mediaType string) int {
	return l.FindFirst(mediaLinePrefix+mediaType+" ", "")
}

// HasMedia reports if there is at least one media line.
func (l *Lines) HasMedia() bool {
	return l.FindFirst(mediaLinePrefix, "") != NotFound
}

// SectionEnd returns the end (exclusive) of the media section started by the
// media line at index start. The empty remainder after a final line terminator
// is never part of a section.
func (l *Lines) SectionEnd(start int) int {
	end := l.FindInRange(start+1, -1, mediaLinePrefix, "")
	if end != NotFound {
		return end
	}
	end = len(l.lines)
	if end > start+1 && l.lines[end-1] == "" {
		end--
	}

	return end
}

func (l *Lines) set(i int, line string) bool {
	if l.lines[i] == line {
		return false
	}
	l.lines[i] = line
	return true
}

func (l *Lines) insert(i int, line string) {
	l.lines = append(l.lines, "")
	copy(l.lines[i+1:], l.lines[i:])
	l.lines[i] = line
}

func (l *Lines) remove(i int) {
	l.lines = append(l.lines[:i], l.lines[i+1:]...)
}

// filter removes all lines starting with any of the provided prefixes and
// returns the number of removed lines.
func (l *Lines) filter(prefixes []string) int {
	if len(prefixes) == 0 {
		return 0
	}
	out := l.lines[:0]
	removed := 0
	for _, line := range l.lines {
		drop := false
		for _, prefix := range prefixes {
			if prefix != "" && strings.HasPrefix(line, prefix) {
				drop = true
				break
			}
		}
		if drop {
			removed++
			continue
		}
		out = append(out, line)
	}
	l.lines = out

	return removed
}
