// Package types holds all shared data structures (models) used across
// the application. Keeping them in one place prevents import cycles —
// handlers, storage, and utils can all import types without depending
// on each other.
package types

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

// Student represents a student record as it is stored.
//
// Struct tags serve two purposes:
//
//  1. json:"..." — controls how the field appears when encoded to JSON.
//  2. db:"..."   — column name used by pgx.RowToStructByName when a row
//     from the students table is mapped back into this struct.
//
// ID and CreatedAt never change after creation. UpdatedAt moves forward
// on every successful update.
type Student struct {
	ID        int64     `json:"id"         db:"id"`
	Name      string    `json:"name"       db:"name"`
	Email     string    `json:"email"      db:"email"`
	Age       int       `json:"age"        db:"age"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewStudent is the payload accepted when creating a student.
// Every field is required.
//
// Age is a pointer so that an explicit 0 can be told apart from a
// missing field: "required" on a plain int would reject 0.
type NewStudent struct {
	Name  string `json:"name"  validate:"required,max=100"`
	Email string `json:"email" validate:"required,email,max=100"`
	Age   *int   `json:"age"   validate:"required,gte=0,lte=150"`
}

// StudentPatch is the field mask used by updates. A nil field is left
// untouched; a non-nil field is validated on its own and then written.
type StudentPatch struct {
	Name  *string `json:"name"  validate:"omitnil,min=1,max=100"`
	Email *string `json:"email" validate:"omitnil,email,max=100"`
	Age   *int    `json:"age"   validate:"omitnil,gte=0,lte=150"`
}

// ErrEmptyPatch is returned by StudentPatch.Validate when no field is set.
var ErrEmptyPatch = errors.New("at least one of name, email, age must be provided")

// validate is safe for concurrent use and caches struct metadata, so one
// instance is shared by the whole process.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every rule on the create payload. On failure the
// returned error is a validator.ValidationErrors.
func (s NewStudent) Validate() error {
	return validate.Struct(s)
}

// Validate checks each present field independently.
func (p StudentPatch) Validate() error {
	if p.IsEmpty() {
		return ErrEmptyPatch
	}
	return validate.Struct(p)
}

// IsEmpty reports whether the mask selects no field at all.
func (p StudentPatch) IsEmpty() bool {
	return p.Name == nil && p.Email == nil && p.Age == nil
}
