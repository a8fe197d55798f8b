// Package postgres is the production implementation of storage.Storage,
// built on a pgxpool connection pool.
//
// The pool bounds the number of open connections (pool_max). When every
// connection is busy, an operation waits for one to free up for at most
// the connect timeout and then fails with storage.ErrUnavailable.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aanand-mishra/students-service/internal/config"
	"github.com/aanand-mishra/students-service/internal/logger"
	"github.com/aanand-mishra/students-service/internal/storage"
	"github.com/aanand-mishra/students-service/internal/types"
)

const columns = "id, name, email, age, created_at, updated_at"

// SQLSTATE codes this package reacts to.
const (
	codeUniqueViolation   = "23505"
	codeNotNullViolation  = "23502"
	codeCheckViolation    = "23514"
	codeStringTooLong     = "22001"
	codeNumericOutOfRange = "22003"
	codeInvalidText       = "22P02"
)

type Postgres struct {
	Pool *pgxpool.Pool

	acquireTimeout time.Duration
}

// New builds the pool and checks that the database answers before
// returning, so a bad DSN fails at startup rather than on the first request.
func New(ctx context.Context, cfg *config.Config) (*Postgres, error) {
	pcfg, err := PoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout())
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", storage.Unavailable(err))
	}

	return &Postgres{Pool: pool, acquireTimeout: cfg.ConnectTimeout()}, nil
}

// Migrate creates the students table. Safe to run on every startup.
func (p *Postgres) Migrate(ctx context.Context) error {
	conn, err := p.acquire(ctx)
	if err != nil {
		return fmt.Errorf("postgres.Migrate: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS students (
			id         SERIAL       PRIMARY KEY,
			name       VARCHAR(100) NOT NULL CHECK (length(name) > 0),
			email      VARCHAR(100) UNIQUE NOT NULL,
			age        INTEGER      NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("postgres.Migrate: create table: %w", translate(err))
	}
	return nil
}

// Close waits for acquired connections to be released and closes them all.
func (p *Postgres) Close() error {
	p.Pool.Close()
	return nil
}

// acquire takes a connection from the pool, waiting at most acquireTimeout
// when the pool is exhausted.
func (p *Postgres) acquire(ctx context.Context) (*pgxpool.Conn, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	defer cancel()

	conn, err := p.Pool.Acquire(acquireCtx)
	if err != nil {
		slog.Error("cannot acquire database connection",
			slog.Int("total", int(p.Pool.Stat().TotalConns())),
			logger.Err(err))
		return nil, storage.Unavailable(err)
	}
	return conn, nil
}

func (p *Postgres) CreateStudent(ctx context.Context, in types.NewStudent) (types.Student, error) {
	if err := in.Validate(); err != nil {
		return types.Student{}, fmt.Errorf("CreateStudent: %w", storage.Invalid(err))
	}

	conn, err := p.acquire(ctx)
	if err != nil {
		return types.Student{}, fmt.Errorf("CreateStudent: %w", err)
	}
	defer conn.Release()

	// Both timestamps default to the transaction time, so they are equal.
	rows, err := conn.Query(ctx,
		"INSERT INTO students (name, email, age) VALUES ($1, $2, $3) RETURNING "+columns,
		in.Name, in.Email, *in.Age,
	)
	if err != nil {
		return types.Student{}, fmt.Errorf("CreateStudent: query: %w", translate(err))
	}

	student, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[types.Student])
	if err != nil {
		return types.Student{}, fmt.Errorf("CreateStudent: collect: %w", translate(err))
	}

	slog.Info("student created", slog.Int64("id", student.ID))
	return student, nil
}

func (p *Postgres) GetStudents(ctx context.Context) ([]types.Student, error) {
	conn, err := p.acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetStudents: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, "SELECT "+columns+" FROM students ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("GetStudents: query: %w", translate(err))
	}

	students, err := pgx.CollectRows(rows, pgx.RowToStructByName[types.Student])
	if err != nil {
		return nil, fmt.Errorf("GetStudents: collect: %w", translate(err))
	}
	if students == nil {
		students = make([]types.Student, 0)
	}

	slog.Debug("students listed", slog.Int("count", len(students)))
	return students, nil
}

func (p *Postgres) GetStudentByID(ctx context.Context, id int64) (types.Student, bool, error) {
	conn, err := p.acquire(ctx)
	if err != nil {
		return types.Student{}, false, fmt.Errorf("GetStudentByID: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, "SELECT "+columns+" FROM students WHERE id = $1", id)
	if err != nil {
		return types.Student{}, false, fmt.Errorf("GetStudentByID: query: %w", translate(err))
	}

	student, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[types.Student])
	if errors.Is(err, pgx.ErrNoRows) {
		slog.Warn("student not found", slog.Int64("id", id))
		return types.Student{}, false, nil
	}
	if err != nil {
		return types.Student{}, false, fmt.Errorf("GetStudentByID: collect: %w", translate(err))
	}

	return student, true, nil
}

// UpdateStudentByID writes only the fields present in patch. Column names
// come from the fixed set below; values are always $n parameters.
//
// updated_at takes the wall clock, but never less than one microsecond
// past its previous value, so it strictly advances on every update.
func (p *Postgres) UpdateStudentByID(ctx context.Context, id int64, patch types.StudentPatch) (types.Student, bool, error) {
	if err := patch.Validate(); err != nil {
		return types.Student{}, false, fmt.Errorf("UpdateStudentByID: %w", storage.Invalid(err))
	}

	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Name != nil {
		set("name", *patch.Name)
	}
	if patch.Email != nil {
		set("email", *patch.Email)
	}
	if patch.Age != nil {
		set("age", *patch.Age)
	}
	sets = append(sets, "updated_at = GREATEST(clock_timestamp(), updated_at + interval '1 microsecond')")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE students SET %s WHERE id = $%d RETURNING %s",
		strings.Join(sets, ", "), len(args), columns)

	conn, err := p.acquire(ctx)
	if err != nil {
		return types.Student{}, false, fmt.Errorf("UpdateStudentByID: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return types.Student{}, false, fmt.Errorf("UpdateStudentByID: query: %w", translate(err))
	}

	student, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[types.Student])
	if errors.Is(err, pgx.ErrNoRows) {
		slog.Warn("student not found for update", slog.Int64("id", id))
		return types.Student{}, false, nil
	}
	if err != nil {
		return types.Student{}, false, fmt.Errorf("UpdateStudentByID: collect: %w", translate(err))
	}

	slog.Info("student updated", slog.Int64("id", id))
	return student, true, nil
}

func (p *Postgres) DeleteStudentByID(ctx context.Context, id int64) (bool, error) {
	conn, err := p.acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("DeleteStudentByID: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, "DELETE FROM students WHERE id = $1", id)
	if err != nil {
		return false, fmt.Errorf("DeleteStudentByID: exec: %w", translate(err))
	}
	if tag.RowsAffected() == 0 {
		slog.Warn("student not found for deletion", slog.Int64("id", id))
		return false, nil
	}

	slog.Info("student deleted", slog.Int64("id", id))
	return true, nil
}

// translate maps pgx errors onto the storage error taxonomy. Errors it
// does not recognise are returned unchanged and end up as 500s.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%w: %w", storage.ErrConflict, err)
		case codeNotNullViolation, codeCheckViolation, codeStringTooLong,
			codeNumericOutOfRange, codeInvalidText:
			return storage.Invalid(err)
		}

		// 08: connection exception, 53: insufficient resources,
		// 57P: operator intervention (shutdown, crash recovery).
		switch {
		case strings.HasPrefix(pgErr.Code, "08"),
			strings.HasPrefix(pgErr.Code, "53"),
			strings.HasPrefix(pgErr.Code, "57P"):
			return storage.Unavailable(err)
		}
		return err
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return storage.Unavailable(err)
	}
	return err
}
