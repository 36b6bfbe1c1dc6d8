package smartedit

import (
	"strings"
)

// match is one located occurrence of a search string within content, as
// byte offsets so the caller can splice in a literal replacement without
// re-deriving it from a (possibly normalised) variant of the string.
type match struct {
	start, end int
	matched    string
}

// cascadeMatch runs the five-strategy cascade from spec.md §4.6 step 3 in
// order, returning the match set and the name of the first strategy that
// produced exactly one match. An ambiguous (>1) or empty result at one
// strategy falls through to the next; when no strategy finds a unique match,
// the first ambiguous result (if any) is returned with its strategy name.
func cascadeMatch(content, needle string) ([]match, string) {
	strategies := []struct {
		name string
		fn   func(string, string) []match
	}{
		{"exact", matchExact},
		{"trimmed", matchTrimmed},
		{"whitespace_normalized", matchWhitespaceNormalized},
		{"indentation_aware", matchIndentationAware},
		{"block_anchor", matchBlockAnchor},
	}
	var first []match
	var firstName string
	for _, s := range strategies {
		ms := s.fn(content, needle)
		if len(ms) == 1 {
			return ms, s.name
		}
		if first == nil && len(ms) > 1 {
			first, firstName = ms, s.name
		}
	}
	return first, firstName
}

// matchExact finds every literal, byte-for-byte occurrence of needle.
func matchExact(content, needle string) []match {
	if needle == "" {
		return nil
	}
	var out []match
	start := 0
	for {
		idx := strings.Index(content[start:], needle)
		if idx < 0 {
			break
		}
		abs := start + idx
		out = append(out, match{start: abs, end: abs + len(needle), matched: needle})
		start = abs + len(needle)
	}
	return out
}

// matchTrimmed matches needle with leading/trailing whitespace on each line
// trimmed from both sides before comparison, re-anchored on the untrimmed
// content so byte offsets stay exact.
func matchTrimmed(content, needle string) []match {
	trimmedNeedle := trimLines(needle)
	if trimmedNeedle == "" {
		return nil
	}
	return matchByLineTransform(content, needle, trimLines)
}

// matchWhitespaceNormalized collapses runs of whitespace to a single space
// on both sides before comparison.
func matchWhitespaceNormalized(content, needle string) []match {
	normNeedle := normalizeWhitespace(needle)
	if normNeedle == "" {
		return nil
	}
	return matchByLineTransform(content, needle, normalizeWhitespace)
}

// matchIndentationAware compares lines after stripping leading indentation
// uniformly (the minimum common indent across the needle's lines), so a
// block pasted at a different nesting depth still matches.
func matchIndentationAware(content, needle string) []match {
	needleLines := strings.Split(needle, "\n")
	dedented := dedent(needleLines)
	dedentedNeedle := strings.Join(dedented, "\n")
	if strings.TrimSpace(dedentedNeedle) == "" {
		return nil
	}

	contentLines := strings.Split(content, "\n")
	var out []match
	offsets := lineByteOffsets(content, contentLines)
	for i := 0; i+len(needleLines) <= len(contentLines); i++ {
		window := dedent(contentLines[i : i+len(needleLines)])
		if strings.Join(window, "\n") != dedentedNeedle {
			continue
		}
		startOff := offsets[i]
		endLine := i + len(needleLines) - 1
		endOff := offsets[endLine] + len(contentLines[endLine])
		out = append(out, match{start: startOff, end: endOff, matched: content[startOff:endOff]})
	}
	return out
}

// matchBlockAnchor matches on the first and last non-blank line of needle
// only, tolerating arbitrary drift in the lines between — useful when the
// model reproduced a block's edges correctly but drifted in the body.
func matchBlockAnchor(content, needle string) []match {
	lines := strings.Split(strings.TrimRight(needle, "\n"), "\n")
	var first, last string
	firstIdx, lastIdx := -1, -1
	for i, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		if firstIdx < 0 {
			firstIdx = i
			first = strings.TrimSpace(l)
		}
		lastIdx = i
		last = strings.TrimSpace(l)
	}
	if firstIdx < 0 || firstIdx == lastIdx {
		return nil // needs at least two distinct anchor lines
	}

	contentLines := strings.Split(content, "\n")
	offsets := lineByteOffsets(content, contentLines)
	var out []match
	for i, l := range contentLines {
		if strings.TrimSpace(l) != first {
			continue
		}
		for j := i + 1; j < len(contentLines); j++ {
			if strings.TrimSpace(contentLines[j]) == last {
				startOff := offsets[i]
				endOff := offsets[j] + len(contentLines[j])
				out = append(out, match{start: startOff, end: endOff, matched: content[startOff:endOff]})
				break
			}
		}
	}
	return out
}

func matchByLineTransform(content, needle string, transform func(string) string) []match {
	needleLines := strings.Split(needle, "\n")
	transformedNeedle := make([]string, len(needleLines))
	for i, l := range needleLines {
		transformedNeedle[i] = transform(l)
	}
	wantJoined := strings.Join(transformedNeedle, "\n")

	contentLines := strings.Split(content, "\n")
	offsets := lineByteOffsets(content, contentLines)
	var out []match
	for i := 0; i+len(needleLines) <= len(contentLines); i++ {
		got := make([]string, len(needleLines))
		for j := 0; j < len(needleLines); j++ {
			got[j] = transform(contentLines[i+j])
		}
		if strings.Join(got, "\n") != wantJoined {
			continue
		}
		startOff := offsets[i]
		endLine := i + len(needleLines) - 1
		endOff := offsets[endLine] + len(contentLines[endLine])
		out = append(out, match{start: startOff, end: endOff, matched: content[startOff:endOff]})
	}
	return out
}

func trimLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.Join(lines, "\n")
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// dedent strips the minimum common leading-whitespace prefix from every
// non-blank line.
func dedent(lines []string) []string {
	min := -1
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		n := len(l) - len(strings.TrimLeft(l, " \t"))
		if min < 0 || n < min {
			min = n
		}
	}
	if min <= 0 {
		return lines
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		if len(l) >= min {
			out[i] = l[min:]
		} else {
			out[i] = strings.TrimLeft(l, " \t")
		}
	}
	return out
}

// lineByteOffsets returns, for each line in lines (as split by "\n" from
// the original string s), the byte offset at which it starts in s.
func lineByteOffsets(s string, lines []string) []int {
	offsets := make([]int, len(lines))
	pos := 0
	for i, l := range lines {
		offsets[i] = pos
		pos += len(l) + 1 // +1 for the "\n" separator consumed by Split
	}
	return offsets
}
