package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Repository handles database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// InsertRun stores one analysis run
func (r *Repository) InsertRun(ctx context.Context, run *AnalysisRun) error {
	stmt, err := r.db.GetPreparedStatement(stmtInsertRun)
	if err != nil {
		return err
	}

	_, err = stmt.ExecContext(ctx,
		run.ID, run.Filename, run.ContentType, run.SizeBytes, run.VideoHash, run.Source,
		run.Posture, run.Confidence, run.EyeContact, run.Average, run.DurationMs,
		nullString(run.ClientIP), nullString(run.Subject), run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis run: %w", err)
	}
	return nil
}

// RecentRuns returns the newest runs first
func (r *Repository) RecentRuns(ctx context.Context, limit int) ([]AnalysisRun, error) {
	stmt, err := r.db.GetPreparedStatement(stmtRecentRuns)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis runs: %w", err)
	}
	defer rows.Close()

	runs := make([]AnalysisRun, 0, limit)
	for rows.Next() {
		var run AnalysisRun
		var subject sql.NullString
		if err := rows.Scan(
			&run.ID, &run.Filename, &run.ContentType, &run.SizeBytes, &run.VideoHash, &run.Source,
			&run.Posture, &run.Confidence, &run.EyeContact, &run.Average, &run.DurationMs,
			&subject, &run.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan analysis run: %w", err)
		}
		run.Subject = subject.String
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read analysis runs: %w", err)
	}
	return runs, nil
}

// CountBySource returns how many runs came from each result source
func (r *Repository) CountBySource(ctx context.Context) (map[string]int64, error) {
	stmt, err := r.db.GetPreparedStatement(stmtSourceCounts)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count analysis runs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var source string
		var n int64
		if err := rows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("failed to scan source count: %w", err)
		}
		counts[source] = n
	}
	return counts, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
