// Package safety classifies a candidate change's blast radius from its diff.
// The categorizer is a pure function over the diff text: no I/O, deterministic,
// and it never defaults to SAFE.
package safety

import (
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"mendgate/internal/types"
)

// Assessment is the categorizer's full verdict.
type Assessment struct {
	Category              types.SafetyCategory
	Reasons               []string
	ProtectedPathsMatched []string
}

// Categorizer holds the configured protected-path globs.
type Categorizer struct {
	protectedGlobs []string
}

// New creates a categorizer. Globs match against both the full path and the
// base name, so "go.mod" protects go.mod at any depth.
func New(protectedGlobs []string) *Categorizer {
	return &Categorizer{protectedGlobs: protectedGlobs}
}

var (
	reFuncDef = regexp.MustCompile(`^\s*(?:def\s+(\w+)\s*\(|(?:pub\s+)?fn\s+(\w+)\s*[(<]|func\s+(?:\([^)]*\)\s*)?(\w+)\s*\(|(?:public|private|protected|static|\s)*[\w<>\[\]]+\s+(\w+)\s*\([^;]*\)\s*\{)`)
	reDDL     = regexp.MustCompile(`(?i)\b(delete\s+from|drop\s+table|alter\s+table|truncate)\b`)
	// Substring match on purpose: `_` is a word character, so \b anchors
	// would miss API_TOKEN, AUTH_HEADER, set_password and the like.
	reSecret  = regexp.MustCompile(`(?i)(password|secret|token|credential|auth)`)
	reImport  = regexp.MustCompile(`^\s*(import\s|from\s+[\w.]+\s+import\s|use\s+[\w:]+|#include\s|require\s*\(|const\s+\w+\s*=\s*require\()`)
	reComment = regexp.MustCompile(`^\s*(//|#|/\*|\*|--|"""|''')`)
	reControl = regexp.MustCompile(`\b(if|else|elif|switch|case|match|for|while|loop|try|except|catch|finally|rescue|recover)\b`)
	// Type annotations in parameter lists and returns: ": int", "-> str".
	reAnnotation = regexp.MustCompile(`(:\s*[\w\[\]., |&<>']+|->\s*[\w\[\]., |&<>']+)`)
)

// Categorize classifies the change. affectedFiles supplements the paths found
// in the diff headers; decision order is fixed and first match wins.
func (c *Categorizer) Categorize(diffText string, affectedFiles []string) Assessment {
	paths := unionPaths(DiffFiles(diffText), affectedFiles)

	// 1. Protected paths dominate everything, including an empty diff.
	if matched := c.matchProtected(paths); len(matched) > 0 {
		return Assessment{
			Category:              types.SafetyRisky,
			Reasons:               []string{"touches protected path"},
			ProtectedPathsMatched: matched,
		}
	}

	// 2. An empty diff changes nothing.
	removed, added := changedLines(diffText)
	if len(removed) == 0 && len(added) == 0 {
		return Assessment{Category: types.SafetySafe, Reasons: []string{"empty diff"}}
	}

	// 3. Risky signals.
	if reason := riskySignal(removed, added); reason != "" {
		return Assessment{Category: types.SafetyRisky, Reasons: []string{reason}}
	}

	// 4. Trivial-only diffs.
	if reason := trivialOnly(removed, added); reason != "" {
		return Assessment{Category: types.SafetySafe, Reasons: []string{reason}}
	}

	// 5. Control-flow changes need more scrutiny than trivia, less than risk.
	for _, line := range append(append([]string{}, removed...), added...) {
		if reControl.MatchString(line) {
			return Assessment{Category: types.SafetyModerate, Reasons: []string{"modifies control flow or error handling"}}
		}
	}

	// 6. Unknown shapes are moderate, never safe.
	return Assessment{Category: types.SafetyModerate, Reasons: []string{"unclassified change"}}
}

// DiffFiles returns the file paths named by the diff headers.
func DiffFiles(diffText string) []string {
	fds, err := diff.ParseMultiFileDiff([]byte(diffText))
	if err != nil {
		return nil
	}
	var out []string
	for _, fd := range fds {
		name := fd.NewName
		if name == "" || name == "/dev/null" {
			name = fd.OrigName
		}
		name = strings.TrimPrefix(name, "a/")
		name = strings.TrimPrefix(name, "b/")
		if name != "" && name != "/dev/null" {
			out = append(out, name)
		}
	}
	return out
}

// CountChangedLines returns the number of added plus removed lines.
func CountChangedLines(diffText string) int {
	removed, added := changedLines(diffText)
	return len(removed) + len(added)
}

func (c *Categorizer) matchProtected(paths []string) []string {
	var matched []string
	for _, p := range paths {
		for _, glob := range c.protectedGlobs {
			full, _ := path.Match(glob, p)
			base, _ := path.Match(glob, filepath.Base(p))
			// Globs like ".github/*" should also catch deeper nesting.
			prefix := strings.HasSuffix(glob, "/*") && strings.HasPrefix(p, strings.TrimSuffix(glob, "*"))
			if full || base || prefix {
				matched = append(matched, p)
				break
			}
		}
	}
	return matched
}

// changedLines extracts removed and added lines, without the +/- markers.
// Input that does not parse as a unified diff is treated as all-added so the
// conservative branches still see it.
func changedLines(diffText string) (removed, added []string) {
	if strings.TrimSpace(diffText) == "" {
		return nil, nil
	}
	fds, err := diff.ParseMultiFileDiff([]byte(diffText))
	if err != nil || len(fds) == 0 {
		for _, line := range strings.Split(diffText, "\n") {
			if strings.TrimSpace(line) != "" {
				added = append(added, line)
			}
		}
		return removed, added
	}
	for _, fd := range fds {
		for _, h := range fd.Hunks {
			for _, line := range strings.Split(string(h.Body), "\n") {
				switch {
				case strings.HasPrefix(line, "+"):
					added = append(added, line[1:])
				case strings.HasPrefix(line, "-"):
					removed = append(removed, line[1:])
				}
			}
		}
	}
	return removed, added
}

func riskySignal(removed, added []string) string {
	// Signature or return-type change: the same function defined on both
	// sides of the diff with a materially different header line. Annotation
	// additions alone are not a signature change (rule 4 handles them).
	removedDefs := funcDefs(removed)
	for name, oldLine := range removedDefs {
		for _, line := range added {
			m := reFuncDef.FindStringSubmatch(line)
			if m == nil || defName(m) != name {
				continue
			}
			oldRet, newRet := returnType(oldLine), returnType(line)
			if oldRet != "" && newRet != "" && oldRet != newRet {
				return "changes a return type"
			}
			if stripAnnotations(line) != stripAnnotations(oldLine) {
				return "changes a function signature"
			}
		}
	}
	for _, line := range append(append([]string{}, removed...), added...) {
		if reDDL.MatchString(line) {
			return "contains a destructive SQL statement"
		}
	}
	for _, line := range added {
		if reSecret.MatchString(line) {
			return "touches security-sensitive code"
		}
	}
	return ""
}

func funcDefs(lines []string) map[string]string {
	defs := make(map[string]string)
	for _, line := range lines {
		if m := reFuncDef.FindStringSubmatch(line); m != nil {
			if name := defName(m); name != "" {
				defs[name] = line
			}
		}
	}
	return defs
}

func defName(m []string) string {
	for _, g := range m[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}

// trivialOnly reports a SAFE reason when every changed line is whitespace,
// imports, comments, or the pairs differ only in type annotations.
func trivialOnly(removed, added []string) string {
	all := append(append([]string{}, removed...), added...)

	whitespaceOnly := true
	for i := range removed {
		if i >= len(added) || stripSpace(removed[i]) != stripSpace(added[i]) {
			whitespaceOnly = false
			break
		}
	}
	if whitespaceOnly && len(removed) == len(added) && len(all) > 0 {
		return "whitespace-only change"
	}

	importsOnly := true
	for _, line := range all {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !reImport.MatchString(line) {
			importsOnly = false
			break
		}
	}
	if importsOnly {
		return "import-only change"
	}

	commentsOnly := true
	for _, line := range all {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !reComment.MatchString(line) {
			commentsOnly = false
			break
		}
	}
	if commentsOnly {
		return "comment-only change"
	}

	if len(removed) == len(added) && len(removed) > 0 {
		annotationOnly := true
		for i := range removed {
			if stripAnnotations(removed[i]) != stripAnnotations(added[i]) {
				annotationOnly = false
				break
			}
		}
		if annotationOnly {
			return "type-annotation-only change"
		}
	}

	return ""
}

var reReturnType = regexp.MustCompile(`->\s*([\w\[\]., |&<>']+)`)

// returnType extracts a declared arrow return type, "" when absent.
func returnType(s string) string {
	m := reReturnType.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func stripAnnotations(s string) string {
	return stripSpace(reAnnotation.ReplaceAllString(s, ""))
}

func unionPaths(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, p := range append(append([]string{}, a...), b...) {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
