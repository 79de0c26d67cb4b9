// Package fingerprint derives a stable identity for an error, independent of
// incidental variation such as paths, timestamps, PIDs, addresses, and UUIDs.
// Two errors that differ only in those dimensions hash to the same value.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"mendgate/internal/types"
)

// Typed error extraction heuristics, tried in order. First match wins.
var (
	reExceptionName = regexp.MustCompile(`\b([A-Z][A-Za-z0-9]*(?:Error|Exception|Warning|Fault))\b`)
	reRustError     = regexp.MustCompile(`error\[(E\d{4})\]`)
	reGoPanic       = regexp.MustCompile(`(?m)^panic:`)
	reBareError     = regexp.MustCompile(`(?m)^\s*Error:`)
)

// substitution is one normalization rule. Order matters: path rewriting must
// run before file:line collapsing, and timestamps before bare hex.
type substitution struct {
	re   *regexp.Regexp
	repl string
}

var substitutions = []substitution{
	// Absolute file paths -> <path>/basename.
	{regexp.MustCompile(`(?:[A-Za-z]:)?(?:/[\w.\-]+){2,}/([\w.\-]+)`), "<path>/$1"},
	// file:line -> file:<line>.
	{regexp.MustCompile(`([\w.\-]+\.[A-Za-z]{1,4}):\d+`), "$1:<line>"},
	// UUIDs.
	{regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`), "<uuid>"},
	// ISO and space-separated timestamps.
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?`), "<timestamp>"},
	// Hex addresses.
	{regexp.MustCompile(`0x[0-9a-fA-F]{4,}`), "<addr>"},
	// pid=N.
	{regexp.MustCompile(`pid[=:]\s*\d+`), "pid=<pid>"},
	// Temp-dir paths.
	{regexp.MustCompile(`(?:/tmp|/var/tmp|/private/tmp|[A-Za-z]:\\Temp)[\w./\\\-]*[/\\]`), "<tmpdir>/"},
	// Long quoted strings carry payload, not identity.
	{regexp.MustCompile(`"[^"]{20,}"`), `"<string>"`},
}

// reStackFrame matches a "file:line in function"-shaped frame across the
// common traceback formats (Python "File ...", Go "pkg.fn(...)\n\tfile:line",
// generic "at fn (file:line)").
var reStackFrame = regexp.MustCompile(`(?m)(?:File "([^"]+)", line \d+, in (\w+)|at (\w[\w.$]*) \(([^):]+):\d+|^\s*([\w./\-]+\.go):\d+)`)

// Fingerprint computes the fine 16-hex-char identity of an error.
// It is a pure function of (normalized type, normalized message, top frame).
func Fingerprint(ev *types.ErrorEvent) string {
	errType := ExtractErrorType(ev)
	msg := NormalizeMessage(ev.Description)
	// Truncate on rune boundaries so multi-byte text never splits mid-rune.
	if runes := []rune(msg); len(runes) > 200 {
		msg = string(runes[:200])
	}
	frame := topFrame(ev.StackTrace)
	sum := sha256.Sum256([]byte(errType + "|" + msg + "|" + frame))
	return hex.EncodeToString(sum[:])[:16]
}

// FingerprintCoarse computes the 8-hex-char coarse bucket, keyed by error
// type alone so related errors with differing messages group together.
func FingerprintCoarse(ev *types.ErrorEvent) string {
	sum := sha256.Sum256([]byte("coarse:" + ExtractErrorType(ev)))
	return hex.EncodeToString(sum[:])[:8]
}

// Apply stamps both fingerprints onto the event.
func Apply(ev *types.ErrorEvent) {
	ev.Fingerprint = Fingerprint(ev)
	ev.FingerprintCoarse = FingerprintCoarse(ev)
}

// ExtractErrorType pulls a type token out of the event using ordered
// heuristics. An explicit ErrorType on the event short-circuits them.
func ExtractErrorType(ev *types.ErrorEvent) string {
	if ev.ErrorType != "" {
		return ev.ErrorType
	}
	text := ev.Description
	if m := reExceptionName.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if reGoPanic.MatchString(text) {
		return "GoPanic"
	}
	if m := reRustError.FindStringSubmatch(text); m != nil {
		return "RustError_" + m[1]
	}
	if reBareError.MatchString(text) {
		return "Error"
	}
	return "UnknownError"
}

// NormalizeMessage applies the substitution rules in fixed order.
func NormalizeMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	for _, s := range substitutions {
		msg = s.re.ReplaceAllString(msg, s.repl)
	}
	return msg
}

// topFrame extracts the first stack frame as "basename:function". Returns ""
// when no frame can be recognized.
func topFrame(stack string) string {
	if stack == "" {
		return ""
	}
	m := reStackFrame.FindStringSubmatch(stack)
	if m == nil {
		return ""
	}
	switch {
	case m[1] != "": // Python: File "path", line N, in fn
		return fmt.Sprintf("%s:%s", filepath.Base(m[1]), m[2])
	case m[3] != "": // JS/Java: at fn (file:line)
		return fmt.Sprintf("%s:%s", filepath.Base(m[4]), m[3])
	case m[5] != "": // Go: \tfile.go:line
		return filepath.Base(m[5])
	}
	return ""
}
