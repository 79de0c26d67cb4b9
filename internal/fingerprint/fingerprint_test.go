package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mendgate/internal/types"
)

func event(desc string) *types.ErrorEvent {
	return &types.ErrorEvent{Source: types.SourceLog, Description: desc}
}

func TestExtractErrorType(t *testing.T) {
	tests := []struct {
		name string
		desc string
		want string
	}{
		{"python exception", "ModuleNotFoundError: No module named 'requests'", "ModuleNotFoundError"},
		{"js type error", "TypeError: cannot read property 'x' of undefined", "TypeError"},
		{"go panic", "panic: runtime error: index out of range", "GoPanic"},
		{"rust error code", "error[E0382]: borrow of moved value", "RustError_E0382"},
		{"bare error", "Error: something broke", "Error"},
		{"unknown", "everything is on fire", "UnknownError"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractErrorType(event(tt.desc)))
		})
	}
}

func TestNormalizeMessage(t *testing.T) {
	t.Run("absolute paths keep basename", func(t *testing.T) {
		got := NormalizeMessage("open /home/alice/project/src/main.py failed")
		assert.Equal(t, "open <path>/main.py failed", got)
	})

	t.Run("file line collapses", func(t *testing.T) {
		got := NormalizeMessage("at main.py:120")
		assert.Equal(t, "at main.py:<line>", got)
	})

	t.Run("uuid", func(t *testing.T) {
		got := NormalizeMessage("request 123e4567-e89b-42d3-a456-426614174000 failed")
		assert.Equal(t, "request <uuid> failed", got)
	})

	t.Run("timestamp", func(t *testing.T) {
		got := NormalizeMessage("at 2026-08-24T10:11:12Z boom")
		assert.Equal(t, "at <timestamp> boom", got)
	})

	t.Run("hex address", func(t *testing.T) {
		got := NormalizeMessage("segfault at 0xdeadbeef")
		assert.Equal(t, "segfault at <addr>", got)
	})

	t.Run("pid", func(t *testing.T) {
		got := NormalizeMessage("worker pid=4242 exited")
		assert.Equal(t, "worker pid=<pid> exited", got)
	})

	t.Run("long quoted string", func(t *testing.T) {
		got := NormalizeMessage(`bad value "aaaaaaaaaaaaaaaaaaaaaaaaaaaaa" rejected`)
		assert.Equal(t, `bad value "<string>" rejected`, got)
	})
}

// Errors that differ only in incidental noise must share a fingerprint.
func TestFingerprintStability(t *testing.T) {
	pairs := [][2]string{
		{
			"FileNotFoundError: /home/alice/app/config.yaml missing",
			"FileNotFoundError: /var/lib/jenkins/app/config.yaml missing",
		},
		{
			"Error: crash at 2026-08-24T09:00:00Z",
			"Error: crash at 2025-01-01 23:59:59",
		},
		{
			"OSError: worker pid=101 died",
			"OSError: worker pid=99182 died",
		},
		{
			"panic: invalid pointer 0x00c42000",
			"panic: invalid pointer 0xdeadbeefcafe",
		},
		{
			"KeyError: session 123e4567-e89b-42d3-a456-426614174000 expired",
			"KeyError: session 00000000-1111-4222-8333-444444444444 expired",
		},
	}
	for _, p := range pairs {
		a, b := event(p[0]), event(p[1])
		assert.Equal(t, Fingerprint(a), Fingerprint(b), "events %q vs %q", p[0], p[1])
	}
}

func TestFingerprintShape(t *testing.T) {
	ev := event("ModuleNotFoundError: No module named 'requests'")
	Apply(ev)
	require.Len(t, ev.Fingerprint, 16)
	require.Len(t, ev.FingerprintCoarse, 8)
	assert.Regexp(t, "^[0-9a-f]{16}$", ev.Fingerprint)
	assert.Regexp(t, "^[0-9a-f]{8}$", ev.FingerprintCoarse)
}

func TestFingerprintDistinguishesTypes(t *testing.T) {
	a := event("TypeError: bad argument")
	b := event("ValueError: bad argument")
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
	assert.NotEqual(t, FingerprintCoarse(a), FingerprintCoarse(b))
}

func TestCoarseGroupsByType(t *testing.T) {
	a := event("ImportError: cannot import name 'foo'")
	b := event("ImportError: cannot import name 'bar'")
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))
	assert.Equal(t, FingerprintCoarse(a), FingerprintCoarse(b))
}

// Only the first 200 characters of the normalized message carry identity,
// counted in runes so multi-byte text truncates cleanly.
func TestFingerprintTruncatesMessageAtRuneBoundary(t *testing.T) {
	prefix := "Error: "
	for len([]rune(prefix)) < 200 {
		prefix += "é"
	}
	a := event(prefix + " tail one")
	b := event(prefix + " a completely different tail")
	assert.Equal(t, Fingerprint(a), Fingerprint(b), "divergence past 200 runes is ignored")

	c := event(prefix[:len(prefix)-len("é")] + "x")
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c), "divergence inside the first 200 runes counts")
}

func TestEmptyInputBucketsAsUnknown(t *testing.T) {
	ev := event("")
	assert.Equal(t, "UnknownError", ExtractErrorType(ev))
	assert.Len(t, Fingerprint(ev), 16)
}

func TestTopFrameInFingerprint(t *testing.T) {
	withFrame := event("ZeroDivisionError: division by zero")
	withFrame.StackTrace = "Traceback (most recent call last):\n  File \"/app/src/calc.py\", line 9, in divide\n    return a / b"
	without := event("ZeroDivisionError: division by zero")
	assert.NotEqual(t, Fingerprint(withFrame), Fingerprint(without))

	// Same frame from a different absolute path is identical.
	other := event("ZeroDivisionError: division by zero")
	other.StackTrace = "Traceback (most recent call last):\n  File \"/home/ci/work/src/calc.py\", line 9, in divide\n    return a / b"
	assert.Equal(t, Fingerprint(withFrame), Fingerprint(other))
}
