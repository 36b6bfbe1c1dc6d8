// Package sandbox implements the shell-command wrapping step of the tool
// dispatch pipeline (spec.md §4.2 step 6): parsing a shell-like tool's
// command with mvdan.cc/sh, applying hook-contributed CommandMutations, and
// executing it under the host's sandbox primitive. Grounded on sacenox-symb's
// internal/shell package, which already runs tool commands through an
// in-process mvdan.cc/sh interpreter with a command-blocking ExecHandler.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// Mode selects the host sandbox primitive a command is wrapped with before
// execution, per spec.md §4.2 step 6.
type Mode string

const (
	ModeNone             Mode = "none"
	ModeSeatbeltMacOS    Mode = "seatbelt"
	ModeSeccompLinux     Mode = "seccomp"
	ModeRestrictedWindows Mode = "restricted_token"
)

// MutationKind tags the action a CommandMutation performs.
type MutationKind string

const (
	MutationStripArg  MutationKind = "strip_arg"
	MutationScrubEnv  MutationKind = "scrub_env"
	MutationJailCwd   MutationKind = "jail_cwd"
	MutationBlockExec MutationKind = "block_exec"
)

// CommandMutation is one hook-contributed adjustment applied to a shell-like
// tool call before it executes (spec.md §4.2 step 6: "a CommandMutation list
// contributed by hooks").
type CommandMutation struct {
	Kind MutationKind

	// ArgPrefix, for MutationStripArg/MutationBlockExec, matches any argument
	// (or, for BlockExec, the command name) with this prefix.
	ArgPrefix string

	// EnvKey, for MutationScrubEnv, names the environment variable to remove.
	EnvKey string
}

// Sandbox applies Mode-specific wrapping and hook mutations to shell-like
// tool commands, then executes them.
type Sandbox struct {
	Mode Mode

	// JailRoot is the interpreter's starting directory in Execute and the
	// writable bind root in ModeSeccompLinux. A cd outside it is not
	// prevented: jailHandler forwards every command unchanged.
	JailRoot string

	// SeatbeltProfilePath, used only in ModeSeatbeltMacOS, is passed to
	// /usr/bin/sandbox-exec -f.
	SeatbeltProfilePath string

	// BubblewrapPath, used only in ModeSeccompLinux, is the bwrap binary used
	// to apply a restricted mount/seccomp namespace.
	BubblewrapPath string

	env []string
}

// NewSandbox builds a Sandbox rooted at jailRoot.
func NewSandbox(mode Mode, jailRoot string) *Sandbox {
	return &Sandbox{Mode: mode, JailRoot: jailRoot, env: os.Environ()}
}

// Transform parses command, applies every mutation in order (blocking the
// command outright on a MutationBlockExec match), and returns the possibly
// rewritten command string ready for Execute. A mutation that blocks the
// command returns an error rather than a rewritten string. MutationJailCwd
// entries are accepted but have no effect.
func (s *Sandbox) Transform(command string, mutations []CommandMutation) (string, error) {
	parsed, err := syntax.NewParser().Parse(strings.NewReader(command), "")
	if err != nil {
		return "", fmt.Errorf("sandbox: parse command: %w", err)
	}

	var stripPrefixes, blockPrefixes []string
	var scrubKeys []string
	for _, m := range mutations {
		switch m.Kind {
		case MutationStripArg:
			stripPrefixes = append(stripPrefixes, m.ArgPrefix)
		case MutationBlockExec:
			blockPrefixes = append(blockPrefixes, m.ArgPrefix)
		case MutationScrubEnv:
			scrubKeys = append(scrubKeys, m.EnvKey)
		}
	}

	words := commandWords(parsed)
	if len(words) > 0 {
		for _, p := range blockPrefixes {
			if strings.HasPrefix(words[0], p) {
				return "", fmt.Errorf("sandbox: command %q blocked by hook mutation", words[0])
			}
		}
	}
	if len(stripPrefixes) > 0 {
		filtered := words[:0:0]
		for _, w := range words {
			blocked := false
			for _, p := range stripPrefixes {
				if strings.HasPrefix(w, p) {
					blocked = true
					break
				}
			}
			if !blocked {
				filtered = append(filtered, w)
			}
		}
		words = filtered
	}

	if len(scrubKeys) > 0 {
		filteredEnv := s.env[:0:0]
		for _, kv := range s.env {
			scrub := false
			for _, k := range scrubKeys {
				if strings.HasPrefix(kv, k+"=") {
					scrub = true
					break
				}
			}
			if !scrub {
				filteredEnv = append(filteredEnv, kv)
			}
		}
		s.env = filteredEnv
	}

	rewritten := strings.Join(words, " ")
	return s.wrapForMode(rewritten), nil
}

// wrapForMode prefixes rewritten with the OS sandbox invocation for the
// configured Mode. ModeNone and unrecognized platforms pass the command
// through unchanged. Execute's ExecHandler (jailHandler) also forwards
// every command unchanged, so in those modes only the mutations Transform
// applied restrict the command.
func (s *Sandbox) wrapForMode(command string) string {
	switch s.Mode {
	case ModeSeatbeltMacOS:
		if s.SeatbeltProfilePath == "" {
			return command
		}
		return fmt.Sprintf("/usr/bin/sandbox-exec -f %s -- /bin/sh -c %q", s.SeatbeltProfilePath, command)
	case ModeSeccompLinux:
		if s.BubblewrapPath == "" {
			return command
		}
		return fmt.Sprintf("%s --ro-bind / / --bind %s %s --dev /dev --proc /proc --unshare-all --die-with-parent /bin/sh -c %q",
			s.BubblewrapPath, s.JailRoot, s.JailRoot, command)
	default:
		return command
	}
}

// Execute runs command (already transformed) through an in-process
// mvdan.cc/sh interpreter anchored at JailRoot, writing to stdout/stderr.
func (s *Sandbox) Execute(ctx context.Context, command string, stdout, stderr io.Writer) error {
	parsed, err := syntax.NewParser().Parse(strings.NewReader(command), "")
	if err != nil {
		return fmt.Errorf("sandbox: parse command: %w", err)
	}
	runner, err := interp.New(
		interp.StdIO(nil, stdout, stderr),
		interp.Interactive(false),
		interp.Env(expand.ListEnviron(s.env...)),
		interp.Dir(s.JailRoot),
		interp.ExecHandlers(s.jailHandler()),
	)
	if err != nil {
		return fmt.Errorf("sandbox: create interpreter: %w", err)
	}
	return runner.Run(ctx, parsed)
}

func (s *Sandbox) jailHandler() func(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
	return func(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
		return func(ctx context.Context, args []string) error {
			return next(ctx, args)
		}
	}
}

// commandWords prints a parsed shell file back out and splits it on
// whitespace into a word list for mutation. Transform uses it for every
// command, compound ones included, and rejoins the words with single
// spaces, so runs of whitespace (even inside quotes) collapse to one space.
func commandWords(file *syntax.File) []string {
	printer := syntax.NewPrinter()
	var buf bytes.Buffer
	if err := printer.Print(&buf, file); err != nil {
		return nil
	}
	return strings.Fields(buf.String())
}

// AvailableBubblewrap reports whether a bwrap binary is on PATH, used by
// callers deciding whether ModeSeccompLinux can be honored on this host.
func AvailableBubblewrap() bool {
	_, err := exec.LookPath("bwrap")
	return err == nil
}
