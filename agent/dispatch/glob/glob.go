// Package glob implements the workspace-relative glob tool from spec.md §4.2
// (the glob/find style read-only tool), including the .gitignore exclusion
// behavior exercised by scenario S5 in spec.md §8. Pattern matching uses
// github.com/bmatcuk/doublestar/v4, the library the retrieval pack's other
// coding-agent-shaped Go repos (other_examples manifests) converge on for
// `**`-aware globbing; .gitignore parsing is hand-rolled below since no
// gitignore-pattern library appears anywhere in the retrieval pack, even
// transitively (DESIGN.md notes this as the one stdlib-only piece here).
package glob

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Ignorer reports whether a workspace-relative path should be excluded from
// glob results, per the workspace root's .gitignore. Nested .gitignore
// files below the root are not read.
type Ignorer struct {
	root     string
	patterns []ignorePattern
}

type ignorePattern struct {
	raw      string
	negate   bool
	anchored bool // pattern contained a '/' before its final segment
}

// LoadIgnorer reads root/.gitignore (if present) and builds an Ignorer.
// A missing .gitignore yields an Ignorer that excludes nothing.
func LoadIgnorer(root string) (*Ignorer, error) {
	ig := &Ignorer{root: root}
	f, err := os.Open(filepath.Join(root, ".gitignore"))
	if os.IsNotExist(err) {
		return ig, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p := ignorePattern{raw: line}
		if strings.HasPrefix(line, "!") {
			p.negate = true
			p.raw = line[1:]
		}
		p.anchored = strings.Contains(strings.TrimSuffix(p.raw, "/"), "/")
		ig.patterns = append(ig.patterns, p)
	}
	return ig, scanner.Err()
}

// Ignored reports whether relPath (workspace-relative, forward-slash
// separated) is excluded. Later patterns override earlier ones, matching
// git's own precedence rule, so the result is the verdict of the last
// matching pattern.
func (ig *Ignorer) Ignored(relPath string) bool {
	ignored := false
	base := filepath.Base(relPath)
	for _, p := range ig.patterns {
		var matched bool
		if p.anchored {
			matched, _ = doublestar.Match(strings.TrimPrefix(p.raw, "/"), relPath)
		} else {
			matched, _ = doublestar.Match(p.raw, base)
			if !matched {
				matched, _ = doublestar.Match("**/"+p.raw, relPath)
			}
		}
		if matched {
			ignored = !p.negate
		}
	}
	return ignored
}

// Glob matches pattern against every file under root (directories are not
// returned), filtering out paths root/.gitignore excludes, and returns
// workspace-relative paths in sorted order. Matches spec.md S5: pattern
// "**/*" over {src/main.rs, src/lib.rs, debug.log} with .gitignore="*.log"
// excludes debug.log and yields src/main.rs and src/lib.rs; the .gitignore
// file itself is matched like any other file and is returned too.
func Glob(root, pattern string) ([]string, error) {
	ig, err := LoadIgnorer(root)
	if err != nil {
		return nil, err
	}

	fsys := os.DirFS(root)
	matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if ig.Ignored(m) {
			continue
		}
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}
