// Package smartedit implements the Smart-Edit Engine from spec.md §4.6: a
// multi-strategy fuzzy search/replace that applies a requested textual edit
// to a file given an old_string/new_string/instruction triple, falling back
// to LLM-assisted correction when every strategy fails or is ambiguous.
package smartedit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"regexp"
	"strings"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
)

// ReadTracker answers whether path has been Read earlier in the session, the
// precondition spec.md §4.6 step 1 requires before any edit is accepted.
// Grounded on the dispatcher's ModifierFileRead bookkeeping (agent/dispatch);
// this package depends on the narrow interface rather than agent/dispatch
// itself to avoid a dispatch<->smartedit import cycle (dispatch will wire an
// EditTool that calls into this package).
type ReadTracker interface {
	WasRead(path string) bool
}

// CorrectionClient sends a failed-match correction request to an LLM and
// parses its XML response (spec.md §4.6 step 4's `<correction>` contract).
// Implementations typically wrap an agent/provider.Client; which model it
// targets is up to the implementation, as this package has no setting for
// a correction model.
type CorrectionClient interface {
	Correct(ctx context.Context, instruction, content, oldString, newString string) (*Correction, error)
}

// Correction is the parsed `<correction>` XML payload.
type Correction struct {
	Search            string `xml:"search"`
	Replace           string `xml:"replace"`
	Explanation       string `xml:"explanation"`
	NoChangesRequired bool   `xml:"no_changes_required"`
}

// ParseCorrectionXML decodes the XML shape spec.md §4.6 step 4 documents.
func ParseCorrectionXML(raw string) (*Correction, error) {
	var c Correction
	if err := xml.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("smartedit: invalid correction XML: %w", err)
	}
	return &c, nil
}

// Request describes one requested edit.
type Request struct {
	Path        string
	OldString   string
	NewString   string
	Instruction string

	// ExpectedHash, when non-empty, is the SHA-256 hex digest of the file's
	// content as last observed by the caller (spec.md §4.6 step 1: "Hash
	// file content... to detect concurrent modification"). Empty skips the
	// check.
	ExpectedHash string
}

// Result is the outcome of a successful Apply.
type Result struct {
	NewContent string
	Diff       string // unified diff, for ApprovalRequest.Description / ToolEnd{preview}
	NoChange   bool   // true when correction reported no_changes_required
	Strategy   string // which cascade strategy matched, or "llm_correction"
	NewHash    string
}

// ErrConcurrentModification signals a hash mismatch (spec.md step 1).
var ErrConcurrentModification = fmt.Errorf("smartedit: file was modified since it was last read")

// ErrNotRead signals the precondition failure (spec.md step 1).
var ErrNotRead = fmt.Errorf("smartedit: file must be read before it can be edited")

// Engine applies Requests against file content using the strategy cascade,
// falling back to LLM correction (spec.md §4.6).
type Engine struct {
	Reads      ReadTracker
	Correction CorrectionClient // nil disables step 4
}

// Hash returns the SHA-256 hex digest of content, as used for the
// concurrent-modification check and the post-edit "hash differs" invariant
// (spec.md §8 invariant 9).
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// DetectNewline reports the line ending used by content ("\r\n" iff any
// CRLF occurs, else "\n"), per spec.md §4.6 step 1.
func DetectNewline(content string) string {
	if strings.Contains(content, "\r\n") {
		return "\r\n"
	}
	return "\n"
}

var unescapePattern = regexp.MustCompile("\\\\+(n|t|r|'|\"|`|\\\\|\n)")

// Unescape canonicalises over-escaped LLM input (spec.md §4.6 step 2):
// collapses a whole run of one or more backslashes followed by a known
// escape character into that real character in a single replacement (e.g.
// `\n`, `\\n` and `\\\\n` all become a newline), then re-scans the result
// until nothing more changes.
func Unescape(s string) string {
	for {
		replaced := unescapePattern.ReplaceAllStringFunc(s, func(m string) string {
			last := m[len(m)-1]
			switch last {
			case 'n':
				return "\n"
			case 't':
				return "\t"
			case 'r':
				return "\r"
			case '\'':
				return "'"
			case '"':
				return "\""
			case '`':
				return "`"
			case '\\':
				return "\\"
			case '\n':
				return "\n"
			default:
				return m
			}
		})
		if replaced == s {
			return s
		}
		s = replaced
	}
}

// Apply runs the full pipeline: preconditions, unescape, strategy cascade,
// optional LLM correction, and literal replacement.
func (e *Engine) Apply(ctx context.Context, req Request, content string) (*Result, error) {
	if e.Reads != nil && !e.Reads.WasRead(req.Path) {
		return nil, ErrNotRead
	}
	if req.ExpectedHash != "" && Hash(content) != req.ExpectedHash {
		return nil, ErrConcurrentModification
	}

	oldString := Unescape(req.OldString)
	newString := Unescape(req.NewString)

	matches, strategy := cascadeMatch(content, oldString)
	if len(matches) == 1 {
		return e.finish(req.Path, content, matches[0], oldString, newString, strategy)
	}

	if e.Correction == nil {
		if len(matches) == 0 {
			return nil, fmt.Errorf("smartedit: no match for old_string in %s and no correction configured", req.Path)
		}
		return nil, fmt.Errorf("smartedit: ambiguous match (%d occurrences) in %s and no correction configured", len(matches), req.Path)
	}

	corr, err := e.Correction.Correct(ctx, req.Instruction, content, oldString, newString)
	if err != nil {
		return nil, fmt.Errorf("smartedit: correction failed: %w", err)
	}
	if corr.NoChangesRequired {
		return &Result{NewContent: content, Diff: "", NoChange: true, Strategy: "llm_correction", NewHash: Hash(content)}, nil
	}

	corrMatches, corrStrategy := cascadeMatch(content, Unescape(corr.Search))
	if len(corrMatches) != 1 {
		return nil, fmt.Errorf("smartedit: correction search string still does not match uniquely in %s (%d occurrences)", req.Path, len(corrMatches))
	}
	return e.finish(req.Path, content, corrMatches[0], Unescape(corr.Search), Unescape(corr.Replace), corrStrategy)
}

func (e *Engine) finish(path, content string, m match, oldString, newString, strategy string) (*Result, error) {
	newline := DetectNewline(content)
	trailingNewline := strings.HasSuffix(content, newline)

	// The literal replacement spans m.start:m.end, the *actual* matched
	// substring found by the cascade strategy (which may be a
	// whitespace/indentation-normalised variant of the caller's oldString),
	// never a regex substitution.
	newContent := content[:m.start] + newString + content[m.end:]

	if trailingNewline && !strings.HasSuffix(newContent, newline) {
		newContent += newline
	}

	if Hash(newContent) == Hash(content) {
		return nil, fmt.Errorf("smartedit: edit to %s produced no change", path)
	}

	uri := span.URIFromPath(path)
	edits := myers.ComputeEdits(uri, content, newContent)
	diff := fmt.Sprint(gotextdiff.ToUnified(path, path, content, edits))

	return &Result{NewContent: newContent, Diff: diff, Strategy: strategy, NewHash: Hash(newContent)}, nil
}

// FileReadModifier is the shape smartedit reports back to the caller so it
// can thread a ModifierFileRead context modifier for the post-edit content
// (spec.md §4.6 step 5: "emit a FileRead context modifier for the post-edit
// content"), without smartedit importing agent/dispatch directly.
type FileReadModifier struct {
	Path string
}

// EmitFileRead is a small helper so tool wrappers don't need to hand-roll
// the modifier shape; it is intentionally just a constructor since the
// concrete ContextModifier type is owned by agent/dispatch.
func EmitFileRead(path string) FileReadModifier {
	return FileReadModifier{Path: path}
}

// PlanModeBlocked reports whether, under plan mode, an edit to path should
// be rejected (spec.md §4.6: "Plan mode: blocks edits to any path except the
// active plan file").
func PlanModeBlocked(planActive bool, planFile, path string) bool {
	return planActive && path != planFile
}
