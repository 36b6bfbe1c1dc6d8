// Package patch implements the apply_patch wire grammar from spec.md §6: a
// small unified-diff-like format with explicit Add/Update/Delete File
// sections, parsed and applied independent of any particular tool so both
// the Function and Freeform tool variants (spec.md §4.1 step 1) can share
// one implementation.
package patch

import (
	"fmt"
	"strings"
)

// OpKind tags the variant of a patch Operation.
type OpKind string

const (
	OpAddFile    OpKind = "add_file"
	OpUpdateFile OpKind = "update_file"
	OpDeleteFile OpKind = "delete_file"
)

// LineKind tags one line of an Update hunk.
type LineKind string

const (
	LineContext LineKind = " "
	LineAdd     LineKind = "+"
	LineRemove  LineKind = "-"
)

// HunkLine is one line of an Update File hunk, in the order it appeared in
// the patch text.
type HunkLine struct {
	Kind LineKind
	Text string
}

// Hunk is one `@@`-delimited block of a Update File section.
type Hunk struct {
	Lines []HunkLine
}

// Operation is one `*** Add/Update/Delete File:` section.
type Operation struct {
	Kind OpKind
	Path string

	// AddLines holds the `+`-prefixed content lines for an OpAddFile section.
	AddLines []string

	// Hunks holds the `@@` blocks for an OpUpdateFile section, applied in
	// order against the file's current content.
	Hunks []Hunk
}

// Patch is a fully parsed `*** Begin Patch` ... `*** End Patch` document.
type Patch struct {
	Operations []Operation
}

const (
	beginMarker  = "*** Begin Patch"
	endMarker    = "*** End Patch"
	addPrefix    = "*** Add File: "
	updatePrefix = "*** Update File: "
	deletePrefix = "*** Delete File: "
	hunkMarker   = "@@"
)

// Parse decodes the apply_patch grammar from spec.md §6 into a Patch.
func Parse(text string) (*Patch, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != beginMarker {
		return nil, fmt.Errorf("patch: missing %q header", beginMarker)
	}
	if strings.TrimSpace(lines[len(lines)-1]) != endMarker {
		return nil, fmt.Errorf("patch: missing %q footer", endMarker)
	}
	body := lines[1 : len(lines)-1]

	p := &Patch{}
	var cur *Operation
	var curHunk *Hunk

	flushHunk := func() {
		if cur != nil && curHunk != nil {
			cur.Hunks = append(cur.Hunks, *curHunk)
			curHunk = nil
		}
	}
	flushOp := func() {
		flushHunk()
		if cur != nil {
			p.Operations = append(p.Operations, *cur)
			cur = nil
		}
	}

	for _, line := range body {
		switch {
		case strings.HasPrefix(line, addPrefix):
			flushOp()
			path := strings.TrimPrefix(line, addPrefix)
			cur = &Operation{Kind: OpAddFile, Path: path}
		case strings.HasPrefix(line, updatePrefix):
			flushOp()
			path := strings.TrimPrefix(line, updatePrefix)
			cur = &Operation{Kind: OpUpdateFile, Path: path}
		case strings.HasPrefix(line, deletePrefix):
			flushOp()
			path := strings.TrimPrefix(line, deletePrefix)
			cur = &Operation{Kind: OpDeleteFile, Path: path}
			flushOp()
		case line == hunkMarker || strings.HasPrefix(line, hunkMarker+" "):
			if cur == nil || cur.Kind != OpUpdateFile {
				return nil, fmt.Errorf("patch: %q outside an Update File section", hunkMarker)
			}
			flushHunk()
			curHunk = &Hunk{}
		default:
			if cur == nil {
				if strings.TrimSpace(line) == "" {
					continue
				}
				return nil, fmt.Errorf("patch: unexpected line outside any section: %q", line)
			}
			switch cur.Kind {
			case OpAddFile:
				cur.AddLines = append(cur.AddLines, strings.TrimPrefix(line, "+"))
			case OpUpdateFile:
				if curHunk == nil {
					return nil, fmt.Errorf("patch: hunk line before %q: %q", hunkMarker, line)
				}
				if line == "" {
					curHunk.Lines = append(curHunk.Lines, HunkLine{Kind: LineContext, Text: ""})
					continue
				}
				kind := LineKind(line[0:1])
				switch kind {
				case LineAdd, LineRemove, LineContext:
					curHunk.Lines = append(curHunk.Lines, HunkLine{Kind: kind, Text: line[1:]})
				default:
					return nil, fmt.Errorf("patch: invalid hunk line prefix: %q", line)
				}
			case OpDeleteFile:
				return nil, fmt.Errorf("patch: Delete File section may not contain body lines")
			}
		}
	}
	flushOp()

	if len(p.Operations) == 0 {
		return nil, fmt.Errorf("patch: no operations found")
	}
	return p, nil
}

// detectNewline reports the line ending used by content, preferring CRLF iff
// any "\r\n" occurs (spec.md §4.6 precondition rule, reused here since
// Update File "preserves line endings" per spec.md §6).
func detectNewline(content string) string {
	if strings.Contains(content, "\r\n") {
		return "\r\n"
	}
	return "\n"
}

// ApplyUpdate applies op's hunks in order against current, returning the new
// content. Hunks are matched by their context/remove lines against the
// remaining unconsumed suffix of current, in hunk order — a straightforward
// single-pass unified-diff apply, since spec.md does not call for fuzzy
// matching at the patch-grammar layer (that is agent/smartedit's job).
func ApplyUpdate(op Operation, current string) (string, error) {
	if op.Kind != OpUpdateFile {
		return "", fmt.Errorf("patch: ApplyUpdate called on %s operation", op.Kind)
	}
	nl := detectNewline(current)
	srcLines, trailingNewline := splitLines(current)
	var out []string
	pos := 0

	for _, h := range op.Hunks {
		// Build the "before" sequence (context + remove lines) this hunk
		// expects to find starting at some offset >= pos.
		var before []string
		for _, l := range h.Lines {
			if l.Kind == LineContext || l.Kind == LineRemove {
				before = append(before, l.Text)
			}
		}
		idx, err := findSubsequence(srcLines, before, pos)
		if err != nil {
			return "", fmt.Errorf("patch: hunk did not match %s: %w", op.Path, err)
		}
		out = append(out, srcLines[pos:idx]...)
		cursor := idx
		for _, l := range h.Lines {
			switch l.Kind {
			case LineContext:
				out = append(out, srcLines[cursor])
				cursor++
			case LineRemove:
				cursor++
			case LineAdd:
				out = append(out, l.Text)
			}
		}
		pos = cursor
	}
	out = append(out, srcLines[pos:]...)
	result := strings.Join(out, nl)
	if trailingNewline {
		result += nl
	}
	return result, nil
}

// splitLines splits s on newlines and reports whether s ended in one, so
// ApplyUpdate can restore it after rejoining (spec.md §6: "Update preserves
// line endings").
func splitLines(s string) (lines []string, trailingNewline bool) {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	if s == "" {
		return nil, false
	}
	trailingNewline = strings.HasSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n"), trailingNewline
}

func findSubsequence(haystack, needle []string, from int) (int, error) {
	if len(needle) == 0 {
		return from, nil
	}
	for i := from; i+len(needle) <= len(haystack); i++ {
		match := true
		for j, n := range needle {
			if haystack[i+j] != n {
				match = false
				break
			}
		}
		if match {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no match for hunk context starting at line %d", from+1)
}

// AddContent renders an OpAddFile operation's lines back into file content,
// terminated with a trailing newline (the grammar's `+`-prefixed lines carry
// no original line-ending information to preserve).
func AddContent(op Operation) string {
	if len(op.AddLines) == 0 {
		return ""
	}
	return strings.Join(op.AddLines, "\n") + "\n"
}
