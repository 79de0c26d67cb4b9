package judge

import (
	"fmt"
	"strings"

	"mendgate/internal/types"
)

// BuildPrompt renders the review request sent to every judge on the panel.
// The response contract is a single JSON object so the vote parser stays
// vendor-agnostic.
func BuildPrompt(event *types.ErrorEvent, fix *types.SuggestedFix, category types.SafetyCategory) string {
	var b strings.Builder

	b.WriteString("You are reviewing an automated code fix before it is applied.\n\n")

	b.WriteString("## Error\n")
	fmt.Fprintf(&b, "Source: %s\n", event.Source)
	if event.ErrorType != "" {
		fmt.Fprintf(&b, "Type: %s\n", event.ErrorType)
	}
	fmt.Fprintf(&b, "Description: %s\n", event.Description)
	if event.FilePath != "" {
		fmt.Fprintf(&b, "Location: %s:%d\n", event.FilePath, event.Line)
	}
	if event.StackTrace != "" {
		fmt.Fprintf(&b, "Stack trace:\n%s\n", truncate(event.StackTrace, 2000))
	}

	b.WriteString("\n## Proposed fix\n")
	fmt.Fprintf(&b, "Summary: %s\n", fix.Summary)
	fmt.Fprintf(&b, "Safety category: %s\n", category)
	fmt.Fprintf(&b, "Files affected: %s\n", strings.Join(fix.Action.AffectedFiles, ", "))
	fmt.Fprintf(&b, "Diff:\n%s\n", truncate(fix.Action.Diff, 6000))

	if p := fix.Pattern; p != nil {
		b.WriteString("\n## Precedent\n")
		fmt.Fprintf(&b, "This fix pattern has %d successes and %d failures across %d projects.\n",
			p.SuccessCount, p.FailureCount, p.ProjectCount)
	}

	b.WriteString(`
## Your task
Decide whether this fix is safe and correct to apply automatically.
Respond with ONLY a JSON object, no prose:
{
  "approved": true or false,
  "confidence": 0.0 to 1.0,
  "reasoning": "one or two sentences",
  "issues": ["specific concerns, empty if none"]
}
`)
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n... (truncated)"
}
