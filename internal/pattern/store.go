// Package pattern persists learned (fingerprint -> fix) associations and
// their trust statistics.
package pattern

import (
	"context"

	"mendgate/internal/types"
)

// Store is the pattern persistence contract the validation core consumes.
type Store interface {
	// LookupPattern returns the record for an exact fingerprint, or nil when
	// none is stored.
	LookupPattern(ctx context.Context, fingerprint string) (*types.PatternRecord, error)

	// LookupPatternsScored returns candidate records for a fingerprint,
	// widened by language and error category when the exact fingerprint has
	// no match. Relevance scoring happens in the caller.
	LookupPatternsScored(ctx context.Context, fingerprint, language, category string) ([]*types.PatternRecord, error)

	// GetCauses walks the causal graph from a fingerprint up to depth hops
	// and returns the fingerprints of upstream causes, nearest first.
	GetCauses(ctx context.Context, fingerprint string, depth int) ([]string, error)

	// RecordFixResult updates a pattern's aggregate success/failure counters.
	RecordFixResult(ctx context.Context, fingerprint string, success bool) error

	// RecordPatternApplication records one application of a pattern in a
	// project, updating both aggregate and per-project statistics.
	RecordPatternApplication(ctx context.Context, fingerprint, projectID string, success bool, pctx *types.PatternContext) error

	// GetPatternProjectIDs returns every project the pattern has been
	// applied in.
	GetPatternProjectIDs(ctx context.Context, fingerprint string) ([]string, error)

	// GetProjectShareSetting reports whether a project shares its patterns
	// with other projects. Unknown projects share by default.
	GetProjectShareSetting(ctx context.Context, projectID string) (bool, error)
}
