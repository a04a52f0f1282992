/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package sdptransform

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	bitratePrefix = "b=AS:"
	ptimePrefix   = "a=ptime:"
	fmtpPrefix    = "a=fmtp:"

	fecParam = "useinbandfec"
	dtxParam = "usedtx"
)

// Report lists the rewrites of an injection run. Skipped rewrites were
// requested by the policy but had nothing to apply to.
type Report struct {
	Changes []string
	Skipped []string
}

func (r *Report) changed(format string, args ...interface{}) {
	r.Changes = append(r.Changes, fmt.Sprintf(format, args...))
}

func (r *Report) skipped(format string, args ...interface{}) {
	r.Skipped = append(r.Skipped, fmt.Sprintf(format, args...))
}

// InjectAttributes applies the bitrate, ptime, DTX and FEC settings of policy
// to the media section of policy.Media() in lines. The fmtp rewrites target
// payloadType, or the first fmtp line with in-band FEC of the section when
// payloadType is NotFound. Every rewrite is idempotent and independent of the
// others. The provided lines are modified in place.
func InjectAttributes(lines *Lines, payloadType int, policy *Policy) *Report {
	report := &Report{}

	mIndex := lines.FindMediaLine(policy.Media())
	if mIndex == NotFound {
		report.skipped("no %s media section", policy.Media())
		return report
	}

	if policy.MaxBitrateKbps > 0 {
		if setBitrate(lines, mIndex, policy.MaxBitrateKbps) {
			report.changed("bitrate %d kbps", policy.MaxBitrateKbps)
		}
	}
	if policy.Ptime > 0 {
		if setPtime(lines, mIndex, policy.Ptime) {
			report.changed("ptime %d ms", policy.Ptime)
		}
	}

	if !policy.EnableDTX && policy.FECEnabled() {
		return report
	}
	fmtpIndex := findFECFmtpLine(lines, mIndex, payloadType)
	if fmtpIndex == NotFound {
		if policy.EnableDTX {
			report.skipped("dtx: no fmtp line with %s", fecParam)
		}
		if !policy.FECEnabled() {
			report.skipped("fec: no fmtp line with %s", fecParam)
		}
		return report
	}

	fmtp := parseFmtp(lines.At(fmtpIndex))
	if policy.EnableDTX {
		if value, ok := fmtp.get(dtxParam); !ok || value != "1" {
			fmtp.set(dtxParam, "1")
		}
	}
	if !policy.FECEnabled() {
		if value, ok := fmtp.get(fecParam); ok && value == "1" {
			fmtp.set(fecParam, "0")
		}
	}
	if lines.set(fmtpIndex, fmtp.String()) {
		report.changed("fmtp %s", fmtp.payloadType())
	}

	return report
}

// bandwidthIndex returns where a b= line of the media section started at
// mIndex belongs, right after the media line and its i= and c= lines.
func bandwidthIndex(lines *Lines, mIndex int, end int) int {
	i := mIndex + 1
	for ; i < end; i++ {
		line := lines.At(i)
		if !strings.HasPrefix(line, "i=") && !strings.HasPrefix(line, "c=") {
			break
		}
	}
	return i
}

func setBitrate(lines *Lines, mIndex int, kbps uint32) bool {
	return setSingleLine(lines, mIndex, bitratePrefix, bitratePrefix+strconv.FormatUint(uint64(kbps), 10), bandwidthIndex)
}

func setPtime(lines *Lines, mIndex int, ptime uint32) bool {
	return setSingleLine(lines, mIndex, ptimePrefix, ptimePrefix+strconv.FormatUint(uint64(ptime), 10), func(_ *Lines, _ int, end int) int {
		return end
	})
}

// setSingleLine makes sure that the media section at mIndex contains exactly
// one line with prefix and that line is want. New lines are inserted at the
// index returned by position.
func setSingleLine(lines *Lines, mIndex int, prefix string, want string, position func(*Lines, int, int) int) bool {
	changed := false
	found := false
	end := lines.SectionEnd(mIndex)
	for i := mIndex + 1; i < end; {
		if !strings.HasPrefix(lines.At(i), prefix) {
			i++
			continue
		}
		if !found {
			found = true
			if lines.set(i, want) {
				changed = true
			}
			i++
			continue
		}
		lines.remove(i)
		end--
		changed = true
	}
	if !found {
		lines.insert(position(lines, mIndex, end), want)
		changed = true
	}

	return changed
}

func findFECFmtpLine(lines *Lines, mIndex int, payloadType int) int {
	prefix := fmtpPrefix
	if payloadType != NotFound {
		prefix = fmtpPrefix + strconv.Itoa(payloadType) + " "
	}
	return lines.FindInRange(mIndex+1, lines.SectionEnd(mIndex), prefix, fecParam+"=")
}

type fmtpLine struct {
	head   string
	params []string
}

func parseFmtp(line string) *fmtpLine {
	head, params, ok := strings.Cut(line, " ")
	f := &fmtpLine{
		head: head,
	}
	if ok && params != "" {
		f.params = strings.Split(params, ";")
	}
	return f
}

func (f *fmtpLine) payloadType() string {
	return strings.TrimPrefix(f.head, fmtpPrefix)
}

func (f *fmtpLine) find(key string) int {
	for i, param := range f.params {
		k, _, _ := strings.Cut(param, "=")
		if strings.EqualFold(strings.TrimSpace(k), key) {
			return i
		}
	}
	return NotFound
}

func (f *fmtpLine) get(key string) (string, bool) {
	i := f.find(key)
	if i == NotFound {
		return "", false
	}
	_, value, _ := strings.Cut(f.params[i], "=")
	return strings.TrimSpace(value), true
}

func (f *fmtpLine) set(key string, value string) {
	i := f.find(key)
	if i == NotFound {
		if n := len(f.params); n > 0 && strings.TrimSpace(f.params[n-1]) == "" {
			// Trailing separator.
			f.params[n-1] = key + "=" + value
			return
		}
		f.params = append(f.params, key+"="+value)
		return
	}
	k, _, _ := strings.Cut(f.params[i], "=")
	f.params[i] = k + "=" + value
}

func (f *fmtpLine) String() string {
	if len(f.params) == 0 {
		return f.head
	}
	return f.head + " " + strings.Join(f.params, ";")
}
