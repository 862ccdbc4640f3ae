// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package storage persists finished spans in a local SQLite database so
// executions can be inspected without a collector.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a trace has no stored spans.
var ErrNotFound = errors.New("trace not found")

// SpanStore is the read/write contract of the local span store.
type SpanStore interface {
	StoreSpan(ctx context.Context, span *Span) error
	GetTraceSpans(ctx context.Context, traceID string) ([]*Span, error)
	ListTraces(ctx context.Context, filter TraceFilter) ([]TraceSummary, error)
	Close() error
}

// SQLiteStore provides SQLite-backed storage for spans.
type SQLiteStore struct {
	db *sql.DB
}

// Config contains SQLite storage configuration.
type Config struct {
	// Path is the filesystem path to the SQLite database file.
	// Special value ":memory:" creates an in-memory database.
	Path string

	// MaxOpenConns sets the maximum number of open connections.
	MaxOpenConns int
}

// New opens (and migrates) a SQLite span store.
func New(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	connStr := cfg.Path
	if cfg.Path != ":memory:" {
		connStr += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxConns := cfg.MaxOpenConns
	if maxConns == 0 {
		maxConns = 5
	}
	// Every connection to ":memory:" is a distinct database.
	if cfg.Path == ":memory:" {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS spans (
			trace_id TEXT NOT NULL,
			span_id TEXT NOT NULL,
			parent_id TEXT,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			start_time INTEGER NOT NULL,
			end_time INTEGER,
			status_code INTEGER NOT NULL,
			status_message TEXT,
			attributes TEXT,
			events TEXT,
			PRIMARY KEY (trace_id, span_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_spans_trace_id ON spans(trace_id)`,
		`CREATE INDEX IF NOT EXISTS idx_spans_start_time ON spans(start_time)`,

		`CREATE TABLE IF NOT EXISTS traces (
			trace_id TEXT PRIMARY KEY,
			root_span_id TEXT,
			name TEXT,
			start_time INTEGER NOT NULL,
			duration_ns INTEGER,
			status_code INTEGER,
			span_count INTEGER DEFAULT 0,
			error_count INTEGER DEFAULT 0,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_traces_start_time ON traces(start_time)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// StoreSpan upserts a span and refreshes its trace summary.
func (s *SQLiteStore) StoreSpan(ctx context.Context, span *Span) error {
	if span == nil {
		return fmt.Errorf("span is nil")
	}
	if span.TraceID == "" {
		return fmt.Errorf("span trace_id is required")
	}
	if span.SpanID == "" {
		return fmt.Errorf("span span_id is required")
	}

	attributesJSON, err := json.Marshal(span.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}
	eventsJSON, err := json.Marshal(span.Events)
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}

	var endTime *int64
	if !span.EndTime.IsZero() {
		et := span.EndTime.UnixNano()
		endTime = &et
	}
	var parentID *string
	if span.ParentID != "" {
		parentID = &span.ParentID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO spans (trace_id, span_id, parent_id, name, kind, start_time, end_time,
			status_code, status_message, attributes, events)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trace_id, span_id) DO UPDATE SET
			parent_id = excluded.parent_id,
			name = excluded.name,
			kind = excluded.kind,
			end_time = excluded.end_time,
			status_code = excluded.status_code,
			status_message = excluded.status_message,
			attributes = excluded.attributes,
			events = excluded.events`,
		span.TraceID, span.SpanID, parentID, span.Name, string(span.Kind),
		span.StartTime.UnixNano(), endTime, int(span.Status.Code), span.Status.Message,
		string(attributesJSON), string(eventsJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to store span: %w", err)
	}

	// Spans of one trace arrive in end order, children first, so the
	// summary is recomputed from scratch on every insert.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO traces (trace_id, root_span_id, name, start_time, duration_ns,
			status_code, span_count, error_count, updated_at)
		SELECT
			?1,
			(SELECT span_id FROM spans WHERE trace_id = ?1 AND parent_id IS NULL LIMIT 1),
			(SELECT name FROM spans WHERE trace_id = ?1 AND parent_id IS NULL LIMIT 1),
			MIN(start_time),
			CASE WHEN MAX(end_time) IS NOT NULL THEN MAX(end_time) - MIN(start_time) ELSE NULL END,
			(SELECT status_code FROM spans WHERE trace_id = ?1 AND parent_id IS NULL LIMIT 1),
			COUNT(*),
			SUM(CASE WHEN status_code = 1 THEN 1 ELSE 0 END),
			?2
		FROM spans WHERE trace_id = ?1
		ON CONFLICT(trace_id) DO UPDATE SET
			root_span_id = excluded.root_span_id,
			name = excluded.name,
			start_time = excluded.start_time,
			duration_ns = excluded.duration_ns,
			status_code = excluded.status_code,
			span_count = excluded.span_count,
			error_count = excluded.error_count,
			updated_at = excluded.updated_at`,
		span.TraceID, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to update trace summary: %w", err)
	}

	return tx.Commit()
}

// GetTraceSpans retrieves all spans of a trace ordered by start time.
func (s *SQLiteStore) GetTraceSpans(ctx context.Context, traceID string) ([]*Span, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT span_id, parent_id, name, kind, start_time, end_time,
			status_code, status_message, attributes, events
		FROM spans WHERE trace_id = ?
		ORDER BY start_time ASC, span_id ASC`, traceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query spans: %w", err)
	}
	defer rows.Close()

	var spans []*Span
	for rows.Next() {
		span := &Span{TraceID: traceID}
		var (
			parentID       sql.NullString
			statusMessage  sql.NullString
			kind           string
			startTime      int64
			endTime        sql.NullInt64
			statusCode     int
			attributesJSON sql.NullString
			eventsJSON     sql.NullString
		)

		if err := rows.Scan(&span.SpanID, &parentID, &span.Name, &kind, &startTime, &endTime,
			&statusCode, &statusMessage, &attributesJSON, &eventsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan span: %w", err)
		}

		span.ParentID = parentID.String
		span.Kind = SpanKind(kind)
		span.StartTime = time.Unix(0, startTime)
		if endTime.Valid {
			span.EndTime = time.Unix(0, endTime.Int64)
		}
		span.Status = Status{Code: StatusCode(statusCode), Message: statusMessage.String}

		if attributesJSON.Valid && attributesJSON.String != "" {
			if err := json.Unmarshal([]byte(attributesJSON.String), &span.Attributes); err != nil {
				return nil, fmt.Errorf("failed to unmarshal attributes: %w", err)
			}
		}
		if eventsJSON.Valid && eventsJSON.String != "" {
			if err := json.Unmarshal([]byte(eventsJSON.String), &span.Events); err != nil {
				return nil, fmt.Errorf("failed to unmarshal events: %w", err)
			}
		}

		spans = append(spans, span)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read spans: %w", err)
	}

	if len(spans) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, traceID)
	}
	return spans, nil
}

// TraceFilter contains filters for trace queries.
type TraceFilter struct {
	// ErrorsOnly keeps traces containing at least one error span.
	ErrorsOnly bool

	// Name filters by root span name.
	Name string

	// Since filters traces that started after this time.
	Since time.Time

	// Limit limits the number of results.
	Limit int
}

// ListTraces lists trace summaries, newest first.
func (s *SQLiteStore) ListTraces(ctx context.Context, filter TraceFilter) ([]TraceSummary, error) {
	query := `SELECT trace_id, root_span_id, name, start_time, duration_ns,
		status_code, span_count, error_count FROM traces WHERE 1=1`
	var args []any

	if filter.ErrorsOnly {
		query += " AND error_count > 0"
	}
	if filter.Name != "" {
		query += " AND name = ?"
		args = append(args, filter.Name)
	}
	if !filter.Since.IsZero() {
		query += " AND start_time >= ?"
		args = append(args, filter.Since.UnixNano())
	}

	query += " ORDER BY start_time DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list traces: %w", err)
	}
	defer rows.Close()

	var summaries []TraceSummary
	for rows.Next() {
		var (
			sum        TraceSummary
			rootSpanID sql.NullString
			name       sql.NullString
			startTime  int64
			duration   sql.NullInt64
			statusCode sql.NullInt64
		)
		if err := rows.Scan(&sum.TraceID, &rootSpanID, &name, &startTime, &duration,
			&statusCode, &sum.SpanCount, &sum.ErrorCount); err != nil {
			return nil, fmt.Errorf("failed to scan trace: %w", err)
		}
		sum.RootSpanID = rootSpanID.String
		sum.Name = name.String
		sum.StartTime = time.Unix(0, startTime)
		sum.Duration = time.Duration(duration.Int64)
		sum.Status = StatusCode(statusCode.Int64)
		summaries = append(summaries, sum)
	}

	return summaries, rows.Err()
}

// DeleteTracesOlderThan deletes traces that started before the given time.
// Returns the number of traces deleted.
func (s *SQLiteStore) DeleteTracesOlderThan(ctx context.Context, before time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	result, err := tx.ExecContext(ctx, "DELETE FROM traces WHERE start_time < ?", before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old traces: %w", err)
	}
	count, _ := result.RowsAffected()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM spans WHERE trace_id NOT IN (SELECT trace_id FROM traces)"); err != nil {
		return 0, fmt.Errorf("failed to delete orphaned spans: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ SpanStore = (*SQLiteStore)(nil)
