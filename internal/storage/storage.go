// Package storage defines the Storage interface — a contract that any
// database backend must satisfy to work with this application — and the
// typed errors every backend reports.
//
// Handlers (HTTP layer) depend only on this interface, so the PostgreSQL
// and SQLite backends are interchangeable and tests can pass a fake.
package storage

import (
	"context"

	"github.com/aanand-mishra/students-service/internal/types"
)

// Storage is the database contract.
//
// "Not found" is a normal outcome, reported through the bool result of
// the by-ID methods and never as an error. Errors are reserved for
// failures and wrap one of ErrValidation, ErrConflict or ErrUnavailable
// when the cause is known.
type Storage interface {
	// CreateStudent validates and inserts a new student and returns the
	// stored record, including its generated ID and timestamps.
	CreateStudent(ctx context.Context, in types.NewStudent) (types.Student, error)

	// GetStudents returns every student in insertion order.
	// Returns an empty slice (not nil) if there are no students.
	GetStudents(ctx context.Context) ([]types.Student, error)

	// GetStudentByID fetches a single student by primary key.
	// The bool is false when no such student exists.
	GetStudentByID(ctx context.Context, id int64) (types.Student, bool, error)

	// UpdateStudentByID writes only the fields present in patch and
	// refreshes updated_at. The bool is false when no such student exists.
	UpdateStudentByID(ctx context.Context, id int64, patch types.StudentPatch) (types.Student, bool, error)

	// DeleteStudentByID removes a student permanently.
	// The bool is false when no such student existed.
	DeleteStudentByID(ctx context.Context, id int64) (bool, error)

	// Migrate creates the students table if it does not exist yet.
	Migrate(ctx context.Context) error

	// Close releases the connection pool.
	Close() error
}
