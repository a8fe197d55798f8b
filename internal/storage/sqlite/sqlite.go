// Package sqlite provides a SQLite-backed implementation of the
// storage.Storage interface using Go's standard database/sql package.
//
// SQLite stores everything in a single file on disk: no network, no
// separate server process. It backs local development and the test
// suite; production runs on the postgres package.
//
// Importing go-sqlite3 registers the "sqlite3" driver with database/sql;
// its error type is also used to classify constraint failures.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/aanand-mishra/students-service/internal/config"
	"github.com/aanand-mishra/students-service/internal/logger"
	"github.com/aanand-mishra/students-service/internal/storage"
	"github.com/aanand-mishra/students-service/internal/types"
)

// SQLite is the concrete implementation of storage.Storage.
// It holds a *sql.DB which is a connection pool managed by database/sql.
// A single *sql.DB is safe for concurrent use by multiple goroutines.
type SQLite struct {
	Db *sql.DB

	// Now stamps created_at / updated_at. Tests replace it with a fixed clock.
	Now func() time.Time
}

// The column list is spelled out everywhere so that Scan order never
// depends on the table's physical column order.
const columns = "id, name, email, age, created_at, updated_at"

// New opens the SQLite database at cfg.Path and sizes the pool from the
// storage settings. The table is created by Migrate, not here.
func New(cfg *config.Config) (*SQLite, error) {
	// _busy_timeout makes a writer wait for a lock instead of failing
	// immediately with SQLITE_BUSY; it plays the role of the connect
	// timeout a networked store has.
	dsn := fmt.Sprintf("%s?_busy_timeout=%d", cfg.Path, cfg.ConnectTimeoutMs)

	// sql.Open does NOT open a real connection yet — it only validates
	// the driver name and DSN.
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite.New: open db: %w", err)
	}

	db.SetMaxOpenConns(cfg.PoolMax)
	db.SetConnMaxIdleTime(cfg.IdleTimeout())

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout())
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.New: ping: %w", storage.Unavailable(err))
	}

	return &SQLite{Db: db, Now: time.Now}, nil
}

// Migrate creates the students table. CREATE TABLE IF NOT EXISTS is
// idempotent — safe to run on every startup.
//
// Timestamps are declared TIMESTAMP so the driver converts them back to
// time.Time when they are scanned.
func (s *SQLite) Migrate(ctx context.Context) error {
	_, err := s.Db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS students (
			id         INTEGER   PRIMARY KEY AUTOINCREMENT,
			name       TEXT      NOT NULL CHECK (length(name) BETWEEN 1 AND 100),
			email      TEXT      NOT NULL UNIQUE CHECK (length(email) <= 100),
			age        INTEGER   NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("sqlite.Migrate: create table: %w", translate(err))
	}
	return nil
}

// Close releases every pooled connection.
func (s *SQLite) Close() error {
	return s.Db.Close()
}

func (s *SQLite) now() time.Time {
	// UTC keeps the stored text uniform so rows read back identically.
	return s.Now().UTC()
}

// ─────────────────────────────────────────────────────────────────────────────
// CreateStudent inserts a new row into the students table.
//
// Placeholders (?) keep user input out of the SQL text: the driver sends
// the statement and the values separately, so the values are only ever
// treated as data.
// ─────────────────────────────────────────────────────────────────────────────
func (s *SQLite) CreateStudent(ctx context.Context, in types.NewStudent) (types.Student, error) {
	if err := in.Validate(); err != nil {
		return types.Student{}, fmt.Errorf("CreateStudent: %w", storage.Invalid(err))
	}

	stmt, err := s.Db.PrepareContext(ctx,
		"INSERT INTO students (name, email, age, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
	)
	if err != nil {
		return types.Student{}, fmt.Errorf("CreateStudent: prepare: %w", translate(err))
	}
	defer stmt.Close()

	// One timestamp for both columns: a fresh record has
	// created_at == updated_at.
	now := s.now()
	result, err := stmt.ExecContext(ctx, in.Name, in.Email, *in.Age, now, now)
	if err != nil {
		return types.Student{}, fmt.Errorf("CreateStudent: exec: %w", translate(err))
	}

	lastID, err := result.LastInsertId()
	if err != nil {
		return types.Student{}, fmt.Errorf("CreateStudent: last insert id: %w", err)
	}

	slog.Info("student created", slog.Int64("id", lastID))

	// Re-fetch so the caller gets exactly what is stored.
	student, found, err := s.GetStudentByID(ctx, lastID)
	if err != nil {
		return types.Student{}, err
	}
	if !found {
		return types.Student{}, fmt.Errorf("CreateStudent: row %d vanished after insert", lastID)
	}
	return student, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// GetStudentByID fetches exactly one student row matched by primary key.
//
// QueryRow does not report "no rows" by itself — the sentinel
// sql.ErrNoRows surfaces when Scan is called. That case is a normal
// outcome here, not a failure.
// ─────────────────────────────────────────────────────────────────────────────
func (s *SQLite) GetStudentByID(ctx context.Context, id int64) (types.Student, bool, error) {
	stmt, err := s.Db.PrepareContext(ctx,
		"SELECT "+columns+" FROM students WHERE id = ? LIMIT 1",
	)
	if err != nil {
		return types.Student{}, false, fmt.Errorf("GetStudentByID: prepare: %w", translate(err))
	}
	defer stmt.Close()

	student, err := scanStudent(stmt.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		slog.Warn("student not found", slog.Int64("id", id))
		return types.Student{}, false, nil
	}
	if err != nil {
		return types.Student{}, false, fmt.Errorf("GetStudentByID: scan: %w", translate(err))
	}

	return student, true, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// GetStudents returns all student rows in insertion order.
//
// Query returns a cursor (*sql.Rows); rows.Next() advances it and rows.Err()
// reports anything that went wrong during iteration. rows.Close() hands the
// connection back to the pool.
// ─────────────────────────────────────────────────────────────────────────────
func (s *SQLite) GetStudents(ctx context.Context) ([]types.Student, error) {
	stmt, err := s.Db.PrepareContext(ctx,
		"SELECT "+columns+" FROM students ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("GetStudents: prepare: %w", translate(err))
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetStudents: query: %w", translate(err))
	}
	defer rows.Close()

	// Non-nil so that an empty table encodes as [] rather than null.
	students := make([]types.Student, 0)

	for rows.Next() {
		student, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("GetStudents: scan row: %w", translate(err))
		}
		students = append(students, student)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetStudents: rows iteration: %w", translate(err))
	}

	slog.Debug("students listed", slog.Int("count", len(students)))
	return students, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// UpdateStudentByID writes the fields present in patch and refreshes
// updated_at. The SET clause is assembled from a fixed set of column
// names; every value still travels as a ? parameter.
//
// updated_at takes the clock, but never less than one microsecond past its
// previous value, so it strictly advances even when the clock stands
// still or steps back. The read and the write share one transaction.
// ─────────────────────────────────────────────────────────────────────────────
func (s *SQLite) UpdateStudentByID(ctx context.Context, id int64, patch types.StudentPatch) (types.Student, bool, error) {
	if err := patch.Validate(); err != nil {
		return types.Student{}, false, fmt.Errorf("UpdateStudentByID: %w", storage.Invalid(err))
	}

	tx, err := s.Db.BeginTx(ctx, nil)
	if err != nil {
		return types.Student{}, false, fmt.Errorf("UpdateStudentByID: begin: %w", translate(err))
	}
	defer tx.Rollback()

	var previous time.Time
	err = tx.QueryRowContext(ctx, "SELECT updated_at FROM students WHERE id = ?", id).Scan(&previous)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Warn("student not found for update", slog.Int64("id", id))
		return types.Student{}, false, nil
	}
	if err != nil {
		return types.Student{}, false, fmt.Errorf("UpdateStudentByID: read updated_at: %w", translate(err))
	}

	var (
		sets []string
		args []any
	)
	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, *patch.Email)
	}
	if patch.Age != nil {
		sets = append(sets, "age = ?")
		args = append(args, *patch.Age)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, nextUpdatedAt(s.now(), previous), id)

	query := "UPDATE students SET " + strings.Join(sets, ", ") + " WHERE id = ?"

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return types.Student{}, false, fmt.Errorf("UpdateStudentByID: exec: %w", translate(err))
	}
	if err := tx.Commit(); err != nil {
		return types.Student{}, false, fmt.Errorf("UpdateStudentByID: commit: %w", translate(err))
	}

	slog.Info("student updated", slog.Int64("id", id))
	return s.GetStudentByID(ctx, id)
}

// nextUpdatedAt is now, or one microsecond past previous when the clock
// has not moved beyond it.
func nextUpdatedAt(now, previous time.Time) time.Time {
	floor := previous.Add(time.Microsecond)
	if now.Before(floor) {
		return floor.UTC()
	}
	return now
}

// ─────────────────────────────────────────────────────────────────────────────
// DeleteStudentByID removes a student row by primary key. RowsAffected
// tells a real delete apart from an id that never existed.
// ─────────────────────────────────────────────────────────────────────────────
func (s *SQLite) DeleteStudentByID(ctx context.Context, id int64) (bool, error) {
	stmt, err := s.Db.PrepareContext(ctx, "DELETE FROM students WHERE id = ?")
	if err != nil {
		return false, fmt.Errorf("DeleteStudentByID: prepare: %w", translate(err))
	}
	defer stmt.Close()

	result, err := stmt.ExecContext(ctx, id)
	if err != nil {
		return false, fmt.Errorf("DeleteStudentByID: exec: %w", translate(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("DeleteStudentByID: rows affected: %w", err)
	}
	if affected == 0 {
		slog.Warn("student not found for deletion", slog.Int64("id", id))
		return false, nil
	}

	slog.Info("student deleted", slog.Int64("id", id))
	return true, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanStudent(row scanner) (types.Student, error) {
	var student types.Student
	err := row.Scan(
		&student.ID,
		&student.Name,
		&student.Email,
		&student.Age,
		&student.CreatedAt,
		&student.UpdatedAt,
	)
	return student, err
}

// translate maps driver errors onto the storage error taxonomy. Errors it
// does not recognise are returned unchanged.
func translate(err error) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}

	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintUnique:
		return fmt.Errorf("%w: %w", storage.ErrConflict, err)
	case sqlite3.ErrConstraintNotNull, sqlite3.ErrConstraintCheck:
		return storage.Invalid(err)
	}

	switch sqliteErr.Code {
	case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen:
		slog.Error("sqlite unavailable", logger.Err(err))
		return storage.Unavailable(err)
	}
	return err
}
