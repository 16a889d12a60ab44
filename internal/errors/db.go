package errors

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// "Key (external_id)=(abc) already exists."
	reKeyField = regexp.MustCompile(`Key \(([^)]+)\)=`)
	// "... is still referenced from table "memberships"."
	reReferencedFrom = regexp.MustCompile(`is still referenced from table "?([^"]+)"?`)
	// "... is not present in table "organizations"."
	reNotPresent = regexp.MustCompile(`is not present in table "?([^"]+)"?`)
)

// tableNames maps tables to the names shown to users.
var tableNames = map[string]string{
	"users":         "User",
	"organizations": "Organization",
	"memberships":   "Membership",
	"roles":         "Role",
	"audit_events":  "Audit event",
}

// MapDBError maps database errors to AppError instances:
//   - context deadline/cancellation → Timeout/Canceled
//   - pgx.ErrNoRows → NotFound
//   - unique violation → Conflict
//   - foreign key violation → ForeignKey
//   - check and NOT NULL violations → Validation
//
// Unrecognized errors are returned unchanged.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &AppError{Code: ErrCodeTimeout, Message: "Request timed out. Please try again.", Cause: err}
	case errors.Is(err, context.Canceled):
		return &AppError{Code: ErrCodeCanceled, Message: "Request was canceled.", Cause: err}
	case errors.Is(err, pgx.ErrNoRows):
		return &AppError{Code: ErrCodeNotFound, Message: "Resource not found", Cause: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr)
	}
	return err
}

func mapPgError(pgErr *pgconn.PgError) error {
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return mapUniqueViolation(pgErr)
	case pgerrcode.ForeignKeyViolation:
		return &AppError{Code: ErrCodeForeignKey, Message: foreignKeyMessage(pgErr), Cause: pgErr}
	case pgerrcode.CheckViolation:
		return fieldValidation(pgErr, "This field has an invalid value.", "Invalid data. Please check your input.")
	case pgerrcode.NotNullViolation:
		return fieldValidation(pgErr, "This field is required.", "Required field is missing. Please check your input.")
	default:
		return &AppError{Code: ErrCodeInternal, Message: "A database error occurred. Please try again.", Cause: pgErr}
	}
}

func mapUniqueViolation(pgErr *pgconn.PgError) error {
	field := pgErr.ColumnName
	if field == "" && pgErr.Detail != "" {
		if m := reKeyField.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
			field = m[1]
		}
	}
	if field == "" {
		field = inferFieldFromConstraint(pgErr.ConstraintName)
	}

	message := "This value already exists. Please choose a different one."
	if pgErr.ConstraintName == "memberships_active_user_org_idx" {
		message = "The user already has an active membership in this organization."
	}
	return &AppError{Code: ErrCodeConflict, Message: message, Field: field, Cause: pgErr}
}

func foreignKeyMessage(pgErr *pgconn.PgError) string {
	if pgErr.Detail != "" {
		if m := reReferencedFrom.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
			return "Cannot delete because this item is in use by " + tableDisplayName(m[1]) + "."
		}
		if m := reNotPresent.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
			return "Cannot complete operation because the referenced " + tableDisplayName(m[1]) + " does not exist."
		}
	}
	if pgErr.TableName != "" {
		return "Cannot complete operation because this item is in use by " + tableDisplayName(pgErr.TableName) + "."
	}

	constraint := strings.ToLower(pgErr.ConstraintName)
	switch {
	case strings.Contains(constraint, "organization"):
		return "Cannot complete operation because the referenced Organization does not exist."
	case strings.Contains(constraint, "role"):
		return "Cannot complete operation because the referenced Role does not exist."
	case strings.Contains(constraint, "user"):
		return "Cannot complete operation because the referenced User does not exist."
	}
	return "Cannot complete operation because this item is in use."
}

func fieldValidation(pgErr *pgconn.PgError, fieldMsg, genericMsg string) error {
	if pgErr.ColumnName != "" {
		return &AppError{Code: ErrCodeValidation, Message: fieldMsg, Field: pgErr.ColumnName, Cause: pgErr}
	}
	return &AppError{Code: ErrCodeValidation, Message: genericMsg, Cause: pgErr}
}

// inferFieldFromConstraint infers a column from names like "users_email_key".
// Multi-column and expression constraints yield "".
func inferFieldFromConstraint(constraintName string) string {
	parts := strings.Split(constraintName, "_")
	if len(parts) != 3 {
		return ""
	}
	switch parts[1] {
	case "lower", "upper", "trim", "md5":
		return ""
	}
	return parts[1]
}

// tableDisplayName maps a table to a user-facing name, falling back to a
// title-cased version of the table name.
func tableDisplayName(tableName string) string {
	tableName = strings.ToLower(strings.TrimSpace(tableName))
	if name, ok := tableNames[tableName]; ok {
		return name
	}
	words := strings.Fields(strings.ReplaceAll(tableName, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
