package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/runnerr0/tracescope/internal/filter"
)

// ErrProfileNotFound is returned when a named profile does not exist.
var ErrProfileNotFound = errors.New("profile not found")

// Store defines the interface for tracescope's persisted data.
type Store interface {
	SaveProfile(ctx context.Context, p *Profile) error
	GetProfile(ctx context.Context, name string) (*Profile, error)
	ListProfiles(ctx context.Context) ([]Profile, error)
	DeleteProfile(ctx context.Context, name string) error
	RecordLoad(ctx context.Context, load *TraceLoad) error
	ListLoads(ctx context.Context, limit int) ([]TraceLoad, error)
	CountLoads(ctx context.Context, olderThan time.Time) (int64, error)
	PruneLoads(ctx context.Context, olderThan time.Time) (int64, error)
	PurgeAll(ctx context.Context) error
	GetStats(ctx context.Context) (*Stats, error)
	Close() error
}

// SQLiteStore implements Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB

	// Prepared statements
	getProfile    *sql.Stmt
	getRules      *sql.Stmt
	deleteProfile *sql.Stmt
	insertLoad    *sql.Stmt
}

// NewSQLiteStore creates a new SQLiteStore from an already-opened and migrated database.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}

	if err := s.prepareStatements(); err != nil {
		return nil, fmt.Errorf("prepare statements: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.getProfile, err = s.db.Prepare(`
		SELECT name, description, created_at, updated_at
		FROM filter_profiles WHERE name = ?
	`)
	if err != nil {
		return err
	}

	s.getRules, err = s.db.Prepare(`
		SELECT kind, value FROM profile_rules WHERE profile = ? ORDER BY kind, value
	`)
	if err != nil {
		return err
	}

	s.deleteProfile, err = s.db.Prepare(`DELETE FROM filter_profiles WHERE name = ?`)
	if err != nil {
		return err
	}

	s.insertLoad, err = s.db.Prepare(`
		INSERT INTO trace_history (path, loaded_at, events, vertices, edges, start_ts, end_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}

	return nil
}

// parseTimestamp tries several common SQLite timestamp formats.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05.999999999-07:00",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp: %s", s)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ruleRows flattens rules into (kind, value) pairs.
func ruleRows(r filter.Rules) [][2]string {
	var rows [][2]string
	for _, c := range r.Classes {
		rows = append(rows, [2]string{RuleClass, c})
	}
	for _, m := range r.Methods {
		rows = append(rows, [2]string{RuleMethod, m.String()})
	}
	for _, p := range r.Packages {
		rows = append(rows, [2]string{RulePackage, strings.TrimSuffix(p, ".")})
	}
	return rows
}

// SaveProfile creates or replaces the named profile and all of its rules in a
// single transaction. CreatedAt is kept when the profile already exists.
func (s *SQLiteStore) SaveProfile(ctx context.Context, p *Profile) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("profile name is required")
	}

	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO filter_profiles (name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			updated_at  = excluded.updated_at
	`, p.Name, p.Description, formatTimestamp(p.CreatedAt), formatTimestamp(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM profile_rules WHERE profile = ?", p.Name); err != nil {
		return fmt.Errorf("clear rules: %w", err)
	}

	for _, row := range ruleRows(p.Rules) {
		_, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO profile_rules (profile, kind, value) VALUES (?, ?, ?)",
			p.Name, row[0], row[1],
		)
		if err != nil {
			return fmt.Errorf("insert %s rule %q: %w", row[0], row[1], err)
		}
	}

	return tx.Commit()
}

// GetProfile retrieves a profile with its rules.
func (s *SQLiteStore) GetProfile(ctx context.Context, name string) (*Profile, error) {
	var p Profile
	var createdStr, updatedStr string

	err := s.getProfile.QueryRowContext(ctx, name).Scan(&p.Name, &p.Description, &createdStr, &updatedStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	p.CreatedAt, _ = parseTimestamp(createdStr)
	p.UpdatedAt, _ = parseTimestamp(updatedStr)

	rules, err := s.loadRules(ctx, name)
	if err != nil {
		return nil, err
	}
	p.Rules = rules

	return &p, nil
}

func (s *SQLiteStore) loadRules(ctx context.Context, name string) (filter.Rules, error) {
	var r filter.Rules

	rows, err := s.getRules.QueryContext(ctx, name)
	if err != nil {
		return r, fmt.Errorf("get rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, value string
		if err := rows.Scan(&kind, &value); err != nil {
			return r, fmt.Errorf("scan rule: %w", err)
		}
		switch kind {
		case RuleClass:
			r.Classes = append(r.Classes, value)
		case RuleMethod:
			m, ok := filter.ParseMethodRule(value)
			if !ok {
				return r, fmt.Errorf("profile %s: malformed method rule %q", name, value)
			}
			r.Methods = append(r.Methods, m)
		case RulePackage:
			r.Packages = append(r.Packages, value)
		}
	}
	if err := rows.Err(); err != nil {
		return r, err
	}

	sort.Slice(r.Methods, func(i, j int) bool { return r.Methods[i].String() < r.Methods[j].String() })
	return r, nil
}

// ListProfiles returns every profile ordered by name.
func (s *SQLiteStore) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM filter_profiles ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, err
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	profiles := make([]Profile, 0, len(names))
	for _, name := range names {
		p, err := s.GetProfile(ctx, name)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	return profiles, nil
}

// DeleteProfile removes a profile and, through the foreign key, its rules.
func (s *SQLiteStore) DeleteProfile(ctx context.Context, name string) error {
	res, err := s.deleteProfile.ExecContext(ctx, name)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	return nil
}

// RecordLoad appends a trace load to the history and fills in its ID.
func (s *SQLiteStore) RecordLoad(ctx context.Context, load *TraceLoad) error {
	if load.LoadedAt.IsZero() {
		load.LoadedAt = time.Now()
	}

	res, err := s.insertLoad.ExecContext(ctx,
		load.Path, formatTimestamp(load.LoadedAt), load.Events, load.Vertices, load.Edges, load.Start, load.End,
	)
	if err != nil {
		return fmt.Errorf("insert load: %w", err)
	}

	load.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert load: %w", err)
	}
	return nil
}

// ListLoads returns the most recent loads first. A non-positive limit
// defaults to 20.
func (s *SQLiteStore) ListLoads(ctx context.Context, limit int) ([]TraceLoad, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, loaded_at, events, vertices, edges, start_ts, end_ts
		FROM trace_history
		ORDER BY loaded_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list loads: %w", err)
	}
	defer rows.Close()

	var loads []TraceLoad
	for rows.Next() {
		var l TraceLoad
		var tsStr string
		if err := rows.Scan(&l.ID, &l.Path, &tsStr, &l.Events, &l.Vertices, &l.Edges, &l.Start, &l.End); err != nil {
			return nil, fmt.Errorf("scan load: %w", err)
		}
		l.LoadedAt, _ = parseTimestamp(tsStr)
		loads = append(loads, l)
	}
	return loads, rows.Err()
}

// CountLoads counts history entries recorded before olderThan.
func (s *SQLiteStore) CountLoads(ctx context.Context, olderThan time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM trace_history WHERE loaded_at < ?", formatTimestamp(olderThan),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count loads: %w", err)
	}
	return n, nil
}

// PruneLoads deletes history entries recorded before olderThan.
func (s *SQLiteStore) PruneLoads(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM trace_history WHERE loaded_at < ?", formatTimestamp(olderThan),
	)
	if err != nil {
		return 0, fmt.Errorf("prune loads: %w", err)
	}
	return res.RowsAffected()
}

// PurgeAll deletes every profile, rule and history entry.
func (s *SQLiteStore) PurgeAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{"profile_rules", "filter_profiles", "trace_history"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("purge %s: %w", table, err)
		}
	}

	return tx.Commit()
}

// GetStats returns aggregate counts, the database size and the most loaded traces.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM filter_profiles").Scan(&stats.TotalProfiles)
	if err != nil {
		return nil, fmt.Errorf("count profiles: %w", err)
	}

	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM profile_rules").Scan(&stats.TotalRules)
	if err != nil {
		return nil, fmt.Errorf("count rules: %w", err)
	}

	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM trace_history").Scan(&stats.TotalLoads)
	if err != nil {
		return nil, fmt.Errorf("count loads: %w", err)
	}

	if stats.TotalLoads > 0 {
		var lastStr string
		err = s.db.QueryRowContext(ctx, "SELECT MAX(loaded_at) FROM trace_history").Scan(&lastStr)
		if err != nil {
			return nil, fmt.Errorf("last load: %w", err)
		}
		stats.LastLoad, _ = parseTimestamp(lastStr)
	}

	// In-memory databases report page_count 0 until something is written.
	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err == nil {
			stats.DatabaseSizeBytes = pageCount * pageSize
		}
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT path, COUNT(*) AS cnt FROM trace_history GROUP BY path ORDER BY cnt DESC, path LIMIT 10",
	)
	if err != nil {
		return nil, fmt.Errorf("top traces: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pc PathCount
		if err := rows.Scan(&pc.Path, &pc.Count); err != nil {
			return nil, err
		}
		stats.TopTraces = append(stats.TopTraces, pc)
	}

	return stats, rows.Err()
}

// Close releases all prepared statements. The underlying *sql.DB is not
// closed; that is the caller's responsibility.
func (s *SQLiteStore) Close() error {
	stmts := []*sql.Stmt{
		s.getProfile, s.getRules, s.deleteProfile, s.insertLoad,
	}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}
	return nil
}
