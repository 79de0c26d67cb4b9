package pattern

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"mendgate/internal/types"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// NewSQLiteStore opens (creating if needed) the database at path and ensures
// the schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	patternsTable := `
	CREATE TABLE IF NOT EXISTS patterns (
		fingerprint TEXT PRIMARY KEY,
		fix_template TEXT,
		success_count INTEGER DEFAULT 0,
		failure_count INTEGER DEFAULT 0,
		context_json TEXT,
		last_success_at DATETIME,
		last_failure_at DATETIME,
		risk_level TEXT DEFAULT 'low',
		verified_by_human INTEGER DEFAULT 0,
		evergreen INTEGER DEFAULT 0,
		pre_seeded INTEGER DEFAULT 0,
		verified_applies INTEGER DEFAULT 0,
		human_corrections INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	applicationsTable := `
	CREATE TABLE IF NOT EXISTS pattern_applications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		fingerprint TEXT NOT NULL,
		project_id TEXT NOT NULL,
		success_count INTEGER DEFAULT 0,
		failure_count INTEGER DEFAULT 0,
		last_applied_at DATETIME,
		UNIQUE(fingerprint, project_id)
	);
	CREATE INDEX IF NOT EXISTS idx_applications_fingerprint ON pattern_applications(fingerprint);
	`

	causesTable := `
	CREATE TABLE IF NOT EXISTS pattern_causes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		fingerprint TEXT NOT NULL,
		cause_fingerprint TEXT NOT NULL,
		UNIQUE(fingerprint, cause_fingerprint)
	);
	CREATE INDEX IF NOT EXISTS idx_causes_fingerprint ON pattern_causes(fingerprint);
	`

	projectsTable := `
	CREATE TABLE IF NOT EXISTS project_settings (
		project_id TEXT PRIMARY KEY,
		share_patterns INTEGER DEFAULT 1,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	for _, table := range []string{patternsTable, applicationsTable, causesTable, projectsTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SavePattern inserts or replaces a full pattern record. Used for seeding and
// imports; incremental updates go through RecordFixResult.
func (s *SQLiteStore) SavePattern(ctx context.Context, p *types.PatternRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ctxJSON []byte
	if p.Context != nil {
		var err error
		ctxJSON, err = json.Marshal(p.Context)
		if err != nil {
			return fmt.Errorf("failed to encode context: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patterns (
			fingerprint, fix_template, success_count, failure_count,
			context_json, last_success_at, last_failure_at, risk_level,
			verified_by_human, evergreen, pre_seeded, verified_applies,
			human_corrections, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			fix_template = excluded.fix_template,
			success_count = excluded.success_count,
			failure_count = excluded.failure_count,
			context_json = excluded.context_json,
			last_success_at = excluded.last_success_at,
			last_failure_at = excluded.last_failure_at,
			risk_level = excluded.risk_level,
			verified_by_human = excluded.verified_by_human,
			evergreen = excluded.evergreen,
			pre_seeded = excluded.pre_seeded,
			verified_applies = excluded.verified_applies,
			human_corrections = excluded.human_corrections,
			updated_at = excluded.updated_at`,
		p.Fingerprint, p.FixTemplate, p.SuccessCount, p.FailureCount,
		nullableString(ctxJSON), nullableTime(p.LastSuccessAt), nullableTime(p.LastFailureAt),
		string(p.RiskLevel), boolToInt(p.VerifiedByHuman), boolToInt(p.Evergreen),
		boolToInt(p.PreSeeded), p.VerifiedApplies, p.HumanCorrections, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save pattern: %w", err)
	}
	return nil
}

// LookupPattern returns the record for an exact fingerprint, or nil.
func (s *SQLiteStore) LookupPattern(ctx context.Context, fingerprint string) (*types.PatternRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT fingerprint, fix_template, success_count, failure_count,
		       context_json, last_success_at, last_failure_at, risk_level,
		       verified_by_human, evergreen, pre_seeded, verified_applies,
		       human_corrections
		FROM patterns WHERE fingerprint = ?`, fingerprint)

	p, err := scanPattern(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up pattern: %w", err)
	}
	if err := s.fillProjectCountLocked(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// LookupPatternsScored returns the exact match when one exists, otherwise
// widens to patterns whose context matches the given language and category.
func (s *SQLiteStore) LookupPatternsScored(ctx context.Context, fingerprint, language, category string) ([]*types.PatternRecord, error) {
	exact, err := s.LookupPattern(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if exact != nil {
		return []*types.PatternRecord{exact}, nil
	}
	if language == "" && category == "" {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint, fix_template, success_count, failure_count,
		       context_json, last_success_at, last_failure_at, risk_level,
		       verified_by_human, evergreen, pre_seeded, verified_applies,
		       human_corrections
		FROM patterns
		WHERE context_json IS NOT NULL
		ORDER BY success_count DESC
		LIMIT 50`)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()

	var out []*types.PatternRecord
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			continue
		}
		if p.Context == nil {
			continue
		}
		if language != "" && p.Context.Language != language {
			continue
		}
		if category != "" && p.Context.ErrorCategory != category {
			continue
		}
		if err := s.fillProjectCountLocked(ctx, p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AddCause records a causal edge: cause happened upstream of fingerprint.
func (s *SQLiteStore) AddCause(ctx context.Context, fingerprint, causeFingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO pattern_causes (fingerprint, cause_fingerprint) VALUES (?, ?)",
		fingerprint, causeFingerprint)
	if err != nil {
		return fmt.Errorf("failed to add cause: %w", err)
	}
	return nil
}

// GetCauses walks the causal graph breadth-first up to depth hops. Each
// fingerprint appears once, nearest first.
func (s *SQLiteStore) GetCauses(ctx context.Context, fingerprint string, depth int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if depth <= 0 {
		depth = 1
	}

	seen := map[string]bool{fingerprint: true}
	frontier := []string{fingerprint}
	var causes []string

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, fp := range frontier {
			rows, err := s.db.QueryContext(ctx,
				"SELECT cause_fingerprint FROM pattern_causes WHERE fingerprint = ?", fp)
			if err != nil {
				return nil, fmt.Errorf("failed to query causes: %w", err)
			}
			for rows.Next() {
				var cause string
				if err := rows.Scan(&cause); err != nil {
					rows.Close()
					return nil, err
				}
				if seen[cause] {
					continue
				}
				seen[cause] = true
				causes = append(causes, cause)
				next = append(next, cause)
			}
			if err := rows.Err(); err != nil {
				rows.Close()
				return nil, err
			}
			rows.Close()
		}
		frontier = next
	}
	return causes, nil
}

// RecordFixResult bumps the aggregate counters for a fingerprint, creating
// the pattern row when it is new.
func (s *SQLiteStore) RecordFixResult(ctx context.Context, fingerprint string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordResultLocked(ctx, fingerprint, success)
}

func (s *SQLiteStore) recordResultLocked(ctx context.Context, fingerprint string, success bool) error {
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO patterns (fingerprint) VALUES (?)", fingerprint)
	if err != nil {
		return fmt.Errorf("failed to ensure pattern row: %w", err)
	}

	if success {
		_, err = s.db.ExecContext(ctx, `
			UPDATE patterns
			SET success_count = success_count + 1, last_success_at = ?, updated_at = ?
			WHERE fingerprint = ?`, now, now, fingerprint)
	} else {
		_, err = s.db.ExecContext(ctx, `
			UPDATE patterns
			SET failure_count = failure_count + 1, last_failure_at = ?, updated_at = ?
			WHERE fingerprint = ?`, now, now, fingerprint)
	}
	if err != nil {
		return fmt.Errorf("failed to record fix result: %w", err)
	}
	return nil
}

// RecordPatternApplication updates aggregate counters plus the per-project
// application row, and stores the context when the pattern has none yet.
func (s *SQLiteStore) RecordPatternApplication(ctx context.Context, fingerprint, projectID string, success bool, pctx *types.PatternContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.recordResultLocked(ctx, fingerprint, success); err != nil {
		return err
	}

	now := s.now().UTC()
	succ, fail := 0, 0
	if success {
		succ = 1
	} else {
		fail = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pattern_applications (fingerprint, project_id, success_count, failure_count, last_applied_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint, project_id) DO UPDATE SET
			success_count = success_count + excluded.success_count,
			failure_count = failure_count + excluded.failure_count,
			last_applied_at = excluded.last_applied_at`,
		fingerprint, projectID, succ, fail, now)
	if err != nil {
		return fmt.Errorf("failed to record application: %w", err)
	}

	if pctx != nil && !pctx.IsEmpty() {
		ctxJSON, err := json.Marshal(pctx)
		if err != nil {
			return fmt.Errorf("failed to encode context: %w", err)
		}
		_, err = s.db.ExecContext(ctx, `
			UPDATE patterns SET context_json = ?, updated_at = ?
			WHERE fingerprint = ? AND context_json IS NULL`,
			string(ctxJSON), now, fingerprint)
		if err != nil {
			return fmt.Errorf("failed to store context: %w", err)
		}
	}
	return nil
}

// GetPatternProjectIDs lists every project the pattern was applied in.
func (s *SQLiteStore) GetPatternProjectIDs(ctx context.Context, fingerprint string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT project_id FROM pattern_applications WHERE fingerprint = ? ORDER BY project_id", fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to query project ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetProjectShareSetting records whether a project shares its patterns.
func (s *SQLiteStore) SetProjectShareSetting(ctx context.Context, projectID string, share bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_settings (project_id, share_patterns, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			share_patterns = excluded.share_patterns,
			updated_at = excluded.updated_at`,
		projectID, boolToInt(share), s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set share setting: %w", err)
	}
	return nil
}

// GetProjectShareSetting reports the sharing flag; unknown projects share.
func (s *SQLiteStore) GetProjectShareSetting(ctx context.Context, projectID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var share int
	err := s.db.QueryRowContext(ctx,
		"SELECT share_patterns FROM project_settings WHERE project_id = ?", projectID).Scan(&share)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read share setting: %w", err)
	}
	return share != 0, nil
}

func (s *SQLiteStore) fillProjectCountLocked(ctx context.Context, p *types.PatternRecord) error {
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pattern_applications WHERE fingerprint = ?",
		p.Fingerprint).Scan(&p.ProjectCount)
	if err != nil {
		return fmt.Errorf("failed to count projects: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPattern(row rowScanner) (*types.PatternRecord, error) {
	var p types.PatternRecord
	var fixTemplate, ctxJSON, riskLevel sql.NullString
	var lastSuccess, lastFailure sql.NullTime
	var verified, evergreen, preSeeded int

	err := row.Scan(
		&p.Fingerprint, &fixTemplate, &p.SuccessCount, &p.FailureCount,
		&ctxJSON, &lastSuccess, &lastFailure, &riskLevel,
		&verified, &evergreen, &preSeeded, &p.VerifiedApplies,
		&p.HumanCorrections,
	)
	if err != nil {
		return nil, err
	}

	p.FixTemplate = fixTemplate.String
	p.RiskLevel = types.RiskLevel(riskLevel.String)
	p.VerifiedByHuman = verified != 0
	p.Evergreen = evergreen != 0
	p.PreSeeded = preSeeded != 0
	if lastSuccess.Valid {
		t := lastSuccess.Time
		p.LastSuccessAt = &t
	}
	if lastFailure.Valid {
		t := lastFailure.Time
		p.LastFailureAt = &t
	}
	if ctxJSON.Valid && ctxJSON.String != "" {
		var pc types.PatternContext
		if err := json.Unmarshal([]byte(ctxJSON.String), &pc); err == nil {
			p.Context = &pc
		}
	}
	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
