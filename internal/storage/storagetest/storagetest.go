// Package storagetest is a conformance suite every storage.Storage
// implementation runs from its own tests.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aanand-mishra/students-service/internal/storage"
	"github.com/aanand-mishra/students-service/internal/types"
)

// Opener returns an empty, migrated store. It is called once per subtest
// and is responsible for registering its own cleanup.
type Opener func(t *testing.T) storage.Storage

// Run executes the whole suite against stores produced by open.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Storage)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"UniqueIDs", testUniqueIDs},
		{"DuplicateEmail", testDuplicateEmail},
		{"CreateValidation", testCreateValidation},
		{"UpdatePartial", testUpdatePartial},
		{"UpdateEmail", testUpdateEmail},
		{"UpdateEmailConflict", testUpdateEmailConflict},
		{"UpdateEmptyPatch", testUpdateEmptyPatch},
		{"DeleteIsTerminal", testDeleteIsTerminal},
		{"ListEmpty", testListEmpty},
		{"ListLiveRecordsOnce", testListLiveRecordsOnce},
		{"MigrateIsIdempotent", testMigrateIsIdempotent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

// NewStudent is a create payload with the given email.
func NewStudent(name, email string, age int) types.NewStudent {
	return types.NewStudent{Name: name, Email: email, Age: &age}
}

// AssertSameStudent compares two records field by field, timestamps by
// instant rather than by representation.
func AssertSameStudent(t *testing.T, want, got types.Student) {
	t.Helper()
	assert.Equal(t, want.ID, got.ID, "id")
	assert.Equal(t, want.Name, got.Name, "name")
	assert.Equal(t, want.Email, got.Email, "email")
	assert.Equal(t, want.Age, got.Age, "age")
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at: want %v, got %v", want.CreatedAt, got.CreatedAt)
	assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt), "updated_at: want %v, got %v", want.UpdatedAt, got.UpdatedAt)
}

func mustCreate(t *testing.T, s storage.Storage, name, email string, age int) types.Student {
	t.Helper()
	st, err := s.CreateStudent(context.Background(), NewStudent(name, email, age))
	require.NoError(t, err)
	return st
}

func testCreateAndGet(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	created := mustCreate(t, s, "Jane", "jane@x.com", 22)
	assert.Positive(t, created.ID)
	assert.Equal(t, "Jane", created.Name)
	assert.Equal(t, "jane@x.com", created.Email)
	assert.Equal(t, 22, created.Age)
	assert.False(t, created.CreatedAt.IsZero())
	assert.True(t, created.CreatedAt.Equal(created.UpdatedAt), "created_at must equal updated_at on creation")

	got, found, err := s.GetStudentByID(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, found)
	AssertSameStudent(t, created, got)
}

func testUniqueIDs(t *testing.T, s storage.Storage) {
	seen := make(map[int64]bool)
	for _, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		st := mustCreate(t, s, "Student", email, 20)
		assert.False(t, seen[st.ID], "id %d issued twice", st.ID)
		seen[st.ID] = true
	}
}

func testDuplicateEmail(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	mustCreate(t, s, "John Doe", "duplicate@example.com", 25)

	_, err := s.CreateStudent(ctx, NewStudent("Jane Doe", "duplicate@example.com", 23))
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrConflict)

	all, err := s.GetStudents(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "conflicting insert must not leave a row behind")
	assert.Equal(t, "John Doe", all[0].Name)
}

func testCreateValidation(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	age := 1
	for name, in := range map[string]types.NewStudent{
		"missing name":    {Email: "a@x.com", Age: &age},
		"malformed email": NewStudent("A", "not-an-email", 1),
		"missing age":     {Name: "A", Email: "a@x.com"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := s.CreateStudent(ctx, in)
			assert.ErrorIs(t, err, storage.ErrValidation)
		})
	}

	all, err := s.GetStudents(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func testUpdatePartial(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	created := mustCreate(t, s, "Update Test", "update@example.com", 30)

	// Give the clock room so updated_at can move forward visibly.
	time.Sleep(5 * time.Millisecond)

	name := "Updated Name"
	updated, found, err := s.UpdateStudentByID(ctx, created.ID, types.StudentPatch{Name: &name})
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Updated Name", updated.Name)
	assert.Equal(t, created.Email, updated.Email)
	assert.Equal(t, created.Age, updated.Age)
	assert.True(t, created.CreatedAt.Equal(updated.CreatedAt), "created_at must not change")
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt), "updated_at must advance")

	got, found, err := s.GetStudentByID(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, found)
	AssertSameStudent(t, updated, got)

	// A second update keeps moving updated_at forward.
	age := 31
	again, found, err := s.UpdateStudentByID(ctx, created.ID, types.StudentPatch{Age: &age})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 31, again.Age)
	assert.Equal(t, "Updated Name", again.Name)
	assert.True(t, again.UpdatedAt.After(updated.UpdatedAt))
}

func testUpdateEmail(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	created := mustCreate(t, s, "Mail", "old@x.com", 40)

	email := "new@x.com"
	updated, found, err := s.UpdateStudentByID(ctx, created.ID, types.StudentPatch{Email: &email})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "new@x.com", updated.Email)

	// The old address is free again.
	mustCreate(t, s, "Other", "old@x.com", 41)
}

func testUpdateEmailConflict(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	first := mustCreate(t, s, "First", "first@x.com", 20)
	second := mustCreate(t, s, "Second", "second@x.com", 21)

	email := first.Email
	_, _, err := s.UpdateStudentByID(ctx, second.ID, types.StudentPatch{Email: &email})
	assert.ErrorIs(t, err, storage.ErrConflict)

	got, found, err := s.GetStudentByID(ctx, second.ID)
	require.NoError(t, err)
	require.True(t, found)
	AssertSameStudent(t, second, got)
}

func testUpdateEmptyPatch(t *testing.T, s storage.Storage) {
	created := mustCreate(t, s, "Empty", "empty@x.com", 20)

	_, _, err := s.UpdateStudentByID(context.Background(), created.ID, types.StudentPatch{})
	assert.ErrorIs(t, err, storage.ErrValidation)

	bad := "not-an-email"
	_, _, err = s.UpdateStudentByID(context.Background(), created.ID, types.StudentPatch{Email: &bad})
	assert.ErrorIs(t, err, storage.ErrValidation)
}

func testDeleteIsTerminal(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	created := mustCreate(t, s, "Delete Test", "delete@example.com", 28)

	deleted, err := s.DeleteStudentByID(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, found, err := s.GetStudentByID(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, found, "get after delete")

	name := "Ghost"
	_, found, err = s.UpdateStudentByID(ctx, created.ID, types.StudentPatch{Name: &name})
	require.NoError(t, err)
	assert.False(t, found, "update after delete")

	deleted, err = s.DeleteStudentByID(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, deleted, "delete after delete")
}

func testListEmpty(t *testing.T, s storage.Storage) {
	all, err := s.GetStudents(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func testListLiveRecordsOnce(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	a := mustCreate(t, s, "A", "a@x.com", 20)
	b := mustCreate(t, s, "B", "b@x.com", 21)
	c := mustCreate(t, s, "C", "c@x.com", 22)

	deleted, err := s.DeleteStudentByID(ctx, b.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	all, err := s.GetStudents(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	AssertSameStudent(t, a, all[0])
	AssertSameStudent(t, c, all[1])
}

func testMigrateIsIdempotent(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	created := mustCreate(t, s, "Kept", "kept@x.com", 20)

	require.NoError(t, s.Migrate(ctx))

	_, found, err := s.GetStudentByID(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, found, "migrating again must keep existing rows")
}
