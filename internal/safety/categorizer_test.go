package safety

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"mendgate/internal/types"
)

func unified(file string, body string) string {
	return "--- a/" + file + "\n+++ b/" + file + "\n" + body
}

func TestCategorize_ProtectedPathIsAlwaysRisky(t *testing.T) {
	c := New([]string{"*.yml", ".github/*", "go.mod"})

	d := unified(".github/workflows/ci.yml", "@@ -1,1 +1,1 @@\n-# old comment\n+# new comment\n")
	got := c.Categorize(d, nil)
	assert.Equal(t, types.SafetyRisky, got.Category)
	assert.NotEmpty(t, got.ProtectedPathsMatched)

	// Explicit affected files are matched even with an empty diff.
	got = c.Categorize("", []string{"deploy/go.mod"})
	assert.Equal(t, types.SafetyRisky, got.Category)
	if diff := cmp.Diff([]string{"deploy/go.mod"}, got.ProtectedPathsMatched); diff != "" {
		assert.Fail(t, "protected paths mismatch", diff)
	}
}

func TestCategorize_EmptyDiffIsSafe(t *testing.T) {
	c := New(nil)
	got := c.Categorize("", nil)
	assert.Equal(t, types.SafetySafe, got.Category)
}

func TestCategorize_RiskySignals(t *testing.T) {
	c := New(nil)

	t.Run("parameter list change", func(t *testing.T) {
		d := unified("app.py", "@@ -1,2 +1,2 @@\n-def handle(req):\n+def handle(req, retries):\n")
		got := c.Categorize(d, nil)
		assert.Equal(t, types.SafetyRisky, got.Category)
		assert.Contains(t, got.Reasons[0], "signature")
	})

	t.Run("return type change", func(t *testing.T) {
		d := unified("app.py", "@@ -1,1 +1,1 @@\n-def total(items) -> int:\n+def total(items) -> str:\n")
		got := c.Categorize(d, nil)
		assert.Equal(t, types.SafetyRisky, got.Category)
		assert.Contains(t, got.Reasons[0], "return type")
	})

	t.Run("ddl statement", func(t *testing.T) {
		d := unified("migrate.sql", "@@ -1,1 +1,1 @@\n-select 1;\n+drop table users;\n")
		got := c.Categorize(d, nil)
		assert.Equal(t, types.SafetyRisky, got.Category)
	})

	t.Run("secret token in added line", func(t *testing.T) {
		d := unified("settings.py", "@@ -1,1 +1,2 @@\n select 1\n+API_TOKEN = load()\n")
		got := c.Categorize(d, nil)
		assert.Equal(t, types.SafetyRisky, got.Category)
	})

	// Underscore-joined identifiers are the common shape in real diffs.
	t.Run("secret inside snake_case identifiers", func(t *testing.T) {
		for _, line := range []string{
			"+API_TOKEN = load()",
			"+AUTH_HEADER = x",
			"+set_password(p)",
		} {
			d := unified("settings.py", "@@ -1,1 +1,2 @@\n select 1\n"+line+"\n")
			got := c.Categorize(d, nil)
			assert.Equal(t, types.SafetyRisky, got.Category, "line %q", line)
			assert.Contains(t, got.Reasons[0], "security-sensitive")
		}
	})
}

func TestCategorize_TrivialDiffsAreSafe(t *testing.T) {
	c := New(nil)

	t.Run("import only", func(t *testing.T) {
		d := unified("main.py", "@@ -1,1 +1,2 @@\n import sys\n+import os\n")
		got := c.Categorize(d, nil)
		assert.Equal(t, types.SafetySafe, got.Category)
	})

	t.Run("comment only", func(t *testing.T) {
		d := unified("main.go", "@@ -1,1 +1,2 @@\n var x int\n+// explain the invariant\n")
		got := c.Categorize(d, nil)
		assert.Equal(t, types.SafetySafe, got.Category)
	})

	t.Run("type annotation only", func(t *testing.T) {
		d := unified("svc.py", "@@ -1,1 +1,1 @@\n-def total(items):\n+def total(items: list) -> int:\n")
		// Signature check sees identical stripped lines; annotation branch wins.
		got := c.Categorize(d, nil)
		assert.Equal(t, types.SafetySafe, got.Category)
	})

	t.Run("whitespace only", func(t *testing.T) {
		d := unified("fmt.go", "@@ -1,1 +1,1 @@\n-x:=1\n+x := 1\n")
		got := c.Categorize(d, nil)
		assert.Equal(t, types.SafetySafe, got.Category)
	})
}

func TestCategorize_ControlFlowIsModerate(t *testing.T) {
	c := New(nil)
	d := unified("worker.py", "@@ -1,1 +1,4 @@\n do_work()\n+try:\n+    retry()\n+except ValueError:\n")
	got := c.Categorize(d, nil)
	assert.Equal(t, types.SafetyModerate, got.Category)
}

func TestCategorize_DefaultIsModerateNeverSafe(t *testing.T) {
	c := New(nil)
	d := unified("calc.py", "@@ -1,1 +1,1 @@\n-total = a + b\n+total = a + b + c\n")
	got := c.Categorize(d, nil)
	assert.Equal(t, types.SafetyModerate, got.Category)
}

func TestDiffFiles(t *testing.T) {
	d := unified("pkg/x.go", "@@ -1,1 +1,1 @@\n-a\n+b\n") + unified("pkg/y.go", "@@ -1,1 +1,1 @@\n-c\n+d\n")
	assert.ElementsMatch(t, []string{"pkg/x.go", "pkg/y.go"}, DiffFiles(d))
}

func TestCountChangedLines(t *testing.T) {
	d := unified("a.txt", "@@ -1,2 +1,2 @@\n-one\n-two\n+uno\n+dos\n")
	assert.Equal(t, 4, CountChangedLines(d))
}
