package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"edulink/internal/core"

	_ "modernc.org/sqlite"
)

// SyncStatus is the outbox lifecycle of an attendance write.
type SyncStatus string

const (
	SyncPending    SyncStatus = "pending"
	SyncProcessing SyncStatus = "processing"
	SyncSynced     SyncStatus = "synced"
	SyncError      SyncStatus = "error"
	SyncFailed     SyncStatus = "failed"
)

var ErrNotFound = errors.New("outbox entry not found")

// OutboxEntry is a locally stored attendance write awaiting delivery to the backend.
type OutboxEntry struct {
	ID         int64
	MessageKey string
	Entry      core.AttendanceEntry
	Version    int64
	Status     SyncStatus
	Retries    int
	LastError  string
	SheetsRef  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	SyncedAt   time.Time
}

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// DSN builds the connection string shared by the web and worker processes.
func DSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := DSN(dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) nowMillis() int64 {
	return r.now().UnixMilli()
}

// Enqueue stores e as the latest write for its student and day. A later write for the
// same pair replaces the earlier one, bumps its version and makes it pending again.
func (r *SQLiteRepository) Enqueue(ctx context.Context, e core.AttendanceEntry) (OutboxEntry, error) {
	now := r.nowMillis()
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_outbox
			(message_key, class_id, student_id, record_date, status, emoji, feedback, version, sync_status, retries, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, 'pending', 0, ?, ?)
		ON CONFLICT (student_id, record_date) DO UPDATE SET
			class_id    = excluded.class_id,
			status      = excluded.status,
			emoji       = excluded.emoji,
			feedback    = excluded.feedback,
			version     = attendance_outbox.version + 1,
			sync_status = 'pending',
			retries     = 0,
			last_error  = NULL,
			updated_at  = excluded.updated_at
		RETURNING id, message_key, version`,
		uuid.NewString(), e.ClassID, e.StudentID, e.Date.String(), string(e.Status),
		nullString(e.Emoji), nullString(e.Text), now, now)

	out := OutboxEntry{Entry: e, Status: SyncPending, CreatedAt: time.UnixMilli(now), UpdatedAt: time.UnixMilli(now)}
	if err := row.Scan(&out.ID, &out.MessageKey, &out.Version); err != nil {
		return OutboxEntry{}, fmt.Errorf("enqueue attendance: %w", err)
	}

	slog.DebugContext(ctx, "Attendance saved to outbox",
		"outbox_id", out.ID,
		"version", out.Version,
		"student_id", e.StudentID,
		"record_date", e.Date.String())
	return out, nil
}

const selectColumns = `id, message_key, class_id, student_id, record_date, status, emoji, feedback,
	version, sync_status, retries, last_error, sheets_ref, created_at, updated_at, synced_at`

func (r *SQLiteRepository) Get(ctx context.Context, id int64) (*OutboxEntry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM attendance_outbox WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get outbox entry %d: %w", id, err)
	}
	return e, nil
}

// ListPending returns entries still owed to the backend, oldest first.
func (r *SQLiteRepository) ListPending(ctx context.Context, limit, maxRetries int) ([]OutboxEntry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM attendance_outbox
		WHERE sync_status IN ('pending', 'error') AND retries < ?
		ORDER BY updated_at ASC, id ASC
		LIMIT ?`, maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var out []OutboxEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Claim moves a pending entry at the given version to processing. It reports false
// when another consumer owns it or a newer write superseded it.
func (r *SQLiteRepository) Claim(ctx context.Context, id, version int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE attendance_outbox
		SET sync_status = 'processing', updated_at = ?
		WHERE id = ? AND version = ? AND sync_status IN ('pending', 'error')`,
		r.nowMillis(), id, version)
	if err != nil {
		return false, fmt.Errorf("claim outbox entry %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim outbox entry %d: %w", id, err)
	}
	return n == 1, nil
}

// MarkSynced records delivery of the given version. A newer write keeps its pending state.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id, version int64) error {
	now := r.nowMillis()
	_, err := r.db.ExecContext(ctx, `UPDATE attendance_outbox
		SET sync_status = 'synced', synced_at = ?, updated_at = ?, last_error = NULL
		WHERE id = ? AND version = ?`, now, now, id, version)
	if err != nil {
		return fmt.Errorf("mark outbox entry synced: %w", err)
	}
	slog.InfoContext(ctx, "Attendance marked as synced", "outbox_id", id, "version", version)
	return nil
}

// MarkSyncError counts a failed delivery and returns the resulting status: error while
// retries remain, failed once maxRetries is reached.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id, version int64, cause string, maxRetries int) (SyncStatus, error) {
	row := r.db.QueryRowContext(ctx, `UPDATE attendance_outbox
		SET retries     = retries + 1,
		    last_error  = ?,
		    sync_status = CASE WHEN retries + 1 >= ? THEN 'failed' ELSE 'error' END,
		    updated_at  = ?
		WHERE id = ? AND version = ?
		RETURNING sync_status`, cause, maxRetries, r.nowMillis(), id, version)

	var status string
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// superseded by a newer write; nothing to record
			return SyncPending, nil
		}
		return "", fmt.Errorf("mark outbox entry error: %w", err)
	}
	slog.WarnContext(ctx, "Attendance sync failed", "outbox_id", id, "version", version, "sync_status", status, "error", cause)
	return SyncStatus(status), nil
}

// SetSheetsRef remembers where an entry was mirrored.
func (r *SQLiteRepository) SetSheetsRef(ctx context.Context, id int64, ref string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE attendance_outbox SET sheets_ref = ? WHERE id = ?`, ref, id); err != nil {
		return fmt.Errorf("set sheets ref: %w", err)
	}
	return nil
}

// ReleaseStale returns processing entries untouched for longer than age to pending.
func (r *SQLiteRepository) ReleaseStale(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := r.now().Add(-age).UnixMilli()
	res, err := r.db.ExecContext(ctx, `UPDATE attendance_outbox SET sync_status = 'pending'
		WHERE sync_status = 'processing' AND updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("release stale entries: %w", err)
	}
	return res.RowsAffected()
}

// CleanupSynced deletes synced entries older than age.
func (r *SQLiteRepository) CleanupSynced(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := r.now().Add(-age).UnixMilli()
	res, err := r.db.ExecContext(ctx, `DELETE FROM attendance_outbox WHERE sync_status = 'synced' AND synced_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup synced entries: %w", err)
	}
	return res.RowsAffected()
}

// Counts returns the number of entries per sync status.
func (r *SQLiteRepository) Counts(ctx context.Context) (map[SyncStatus]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT sync_status, COUNT(*) FROM attendance_outbox GROUP BY sync_status`)
	if err != nil {
		return nil, fmt.Errorf("count outbox: %w", err)
	}
	defer rows.Close()

	out := map[SyncStatus]int64{}
	for rows.Next() {
		var s string
		var n int64
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		out[SyncStatus(s)] = n
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*OutboxEntry, error) {
	var (
		e                      OutboxEntry
		date, status, syncStat string
		emoji, text, lastErr   sql.NullString
		sheetsRef              sql.NullString
		created, updated       int64
		synced                 sql.NullInt64
	)
	if err := s.Scan(&e.ID, &e.MessageKey, &e.Entry.ClassID, &e.Entry.StudentID, &date, &status,
		&emoji, &text, &e.Version, &syncStat, &e.Retries, &lastErr, &sheetsRef, &created, &updated, &synced); err != nil {
		return nil, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("stored date %q: %w", date, err)
	}
	e.Entry.Date = d
	e.Entry.Status = core.AttendanceStatus(status)
	e.Entry.Emoji = emoji.String
	e.Entry.Text = text.String
	e.Status = SyncStatus(syncStat)
	e.LastError = lastErr.String
	e.SheetsRef = sheetsRef.String
	e.CreatedAt = time.UnixMilli(created)
	e.UpdatedAt = time.UnixMilli(updated)
	if synced.Valid {
		e.SyncedAt = time.UnixMilli(synced.Int64)
	}
	return &e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
