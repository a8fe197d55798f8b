// Package student contains all HTTP handlers related to the Student resource.
//
// HANDLER PATTERN USED HERE — THE CLOSURE / FACTORY PATTERN:
// ────────────────────────────────────────────────────────────
// Go's router expects handler functions with the signature:
//
//	func(http.ResponseWriter, *http.Request)
//
// That signature has no room for extra parameters like a database.
// Each exported function here is a factory: it accepts the storage once at
// startup and returns the handler that runs on every request.
//
//	mux.HandleFunc("POST /api/v1/students", student.New(storage))
//
// Every handler follows the same three steps: coerce the request into
// typed input, call the storage, map the outcome to a status code.
package student

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/aanand-mishra/students-service/internal/logger"
	"github.com/aanand-mishra/students-service/internal/storage"
	"github.com/aanand-mishra/students-service/internal/types"
	"github.com/aanand-mishra/students-service/internal/utils/response"
)

// maxBodyBytes caps request bodies; a student record is a few hundred bytes.
const maxBodyBytes = 1 << 20

// ─────────────────────────────────────────────────────────────────────────────
// New handles POST /api/v1/students
//
// Request body (JSON):
//
//	{ "name": "Jane", "email": "jane@x.com", "age": 22 }
//
// Success response (201 Created) — the stored record:
//
//	{ "id": 1, "name": "Jane", "email": "jane@x.com", "age": 22,
//	  "created_at": "...", "updated_at": "..." }
//
// Error responses:
//
//	400 Bad Request  — empty body, malformed JSON, or failed validation
//	409 Conflict     — email already exists
//	500 Internal     — anything else
//
// ─────────────────────────────────────────────────────────────────────────────
func New(storage storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("creating a student")

		var in types.NewStudent
		if !decodeBody(w, r, &in) {
			return
		}

		student, err := storage.CreateStudent(r.Context(), in)
		if err != nil {
			writeStorageError(w, "create", err)
			return
		}

		response.WriteJSON(w, http.StatusCreated, student)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// GetByID handles GET /api/v1/students/{id}
//
// Success response (200 OK) — the record.
//
// Error responses:
//
//	404 Not Found — no student with that id, or id is not an integer
//	500 Internal  — storage failure
//
// ─────────────────────────────────────────────────────────────────────────────
func GetByID(storage storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		slog.Info("getting a student", slog.Int64("id", id))

		student, found, err := storage.GetStudentByID(r.Context(), id)
		if err != nil {
			writeStorageError(w, "get", err)
			return
		}
		if !found {
			notFound(w)
			return
		}

		response.WriteJSON(w, http.StatusOK, student)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// GetList handles GET /api/v1/students
//
// Success response (200 OK) — a JSON array of every student, [] when empty.
// ─────────────────────────────────────────────────────────────────────────────
func GetList(storage storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("getting all students")

		students, err := storage.GetStudents(r.Context())
		if err != nil {
			writeStorageError(w, "list", err)
			return
		}

		response.WriteJSON(w, http.StatusOK, students)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Update handles PUT and PATCH /api/v1/students/{id}
//
// Both methods are partial: only the fields present in the body change.
//
//	{ "name": "Updated Name", "age": 31 }
//
// Success response (200 OK) — the updated record.
//
// Error responses:
//
//	400 Bad Request — empty body, malformed JSON, no field, or invalid field
//	404 Not Found   — no student with that id, or id is not an integer
//	409 Conflict    — the new email belongs to another student
//	500 Internal    — anything else
//
// ─────────────────────────────────────────────────────────────────────────────
func Update(storage storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		slog.Info("updating a student", slog.Int64("id", id))

		var patch types.StudentPatch
		if !decodeBody(w, r, &patch) {
			return
		}

		student, found, err := storage.UpdateStudentByID(r.Context(), id, patch)
		if err != nil {
			writeStorageError(w, "update", err)
			return
		}
		if !found {
			notFound(w)
			return
		}

		response.WriteJSON(w, http.StatusOK, student)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Delete handles DELETE /api/v1/students/{id}
//
// Success response: 204 No Content with an empty body.
//
// Error responses:
//
//	404 Not Found — no student with that id, or id is not an integer
//	500 Internal  — storage failure
//
// ─────────────────────────────────────────────────────────────────────────────
func Delete(storage storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}
		slog.Info("deleting a student", slog.Int64("id", id))

		deleted, err := storage.DeleteStudentByID(r.Context(), id)
		if err != nil {
			writeStorageError(w, "delete", err)
			return
		}
		if !deleted {
			notFound(w)
			return
		}

		response.NoContent(w)
	}
}

// parseID reads the {id} path segment. An id that is not an integer cannot
// name any record, so it is answered like any other unknown id.
func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.PathValue("id")

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		slog.Debug("non-numeric student id", slog.String("id", raw))
		notFound(w)
		return 0, false
	}
	return id, true
}

// decodeBody fills dst from the JSON body and answers 400 itself when
// the body is missing or malformed.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		response.WriteJSON(w, http.StatusBadRequest,
			response.Error("request body is empty"))
		return false
	}
	if err != nil {
		response.WriteJSON(w, http.StatusBadRequest,
			response.Error("request body is not valid JSON: "+err.Error()))
		return false
	}
	return true
}

func notFound(w http.ResponseWriter) {
	response.WriteJSON(w, http.StatusNotFound, response.Error(response.MsgNotFound))
}

// writeStorageError maps a storage failure to its status code. Only
// validation messages reach the client; everything else is logged here
// and answered with a generic body.
func writeStorageError(w http.ResponseWriter, op string, err error) {
	var fieldErrs validator.ValidationErrors

	switch {
	case errors.As(err, &fieldErrs):
		response.WriteJSON(w, http.StatusBadRequest, response.ValidationError(fieldErrs))

	case errors.Is(err, types.ErrEmptyPatch):
		response.WriteJSON(w, http.StatusBadRequest, response.GeneralError(types.ErrEmptyPatch))

	case errors.Is(err, storage.ErrValidation):
		slog.Warn("storage rejected input", slog.String("op", op), logger.Err(err))
		response.WriteJSON(w, http.StatusBadRequest, response.Error(storage.ErrValidation.Error()))

	case errors.Is(err, storage.ErrConflict):
		slog.Warn("duplicate email", slog.String("op", op))
		response.WriteJSON(w, http.StatusConflict, response.Error(response.MsgConflict))

	case errors.Is(err, storage.ErrUnavailable):
		slog.Error("storage unavailable", slog.String("op", op), logger.Err(err))
		response.WriteJSON(w, http.StatusInternalServerError, response.InternalError())

	default:
		slog.Error("unexpected storage error", slog.String("op", op), logger.Err(err))
		response.WriteJSON(w, http.StatusInternalServerError, response.InternalError())
	}
}
