// Package errors turns errors into short, low-cardinality class labels for
// logs, audit metadata and metric labels.
package errors

import (
	"context"
	goerrors "errors"
	"net"
	"reflect"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	apperrors "github.com/target/waypoint/internal/errors"
)

// Class labels that are not application error codes.
const (
	ClassTimeout  = "timeout"
	ClassCanceled = "canceled"
	ClassDatabase = "database"
	ClassCache    = "cache"
	ClassNetwork  = "network"
	ClassUnknown  = "unknown"
)

// Classify returns the class label for err, or "" for nil.
//
// An *AppError anywhere in the chain yields its code (not_found, validation,
// ...). Context expiry, Postgres, Redis and network failures get fixed labels.
// Other typed errors fall back to their innermost type name, and plain
// errors.New / fmt.Errorf values are "unknown".
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var appErr *apperrors.AppError
	if goerrors.As(err, &appErr) && appErr.Code != "" {
		return string(appErr.Code)
	}

	switch {
	case goerrors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	case goerrors.Is(err, context.Canceled):
		return ClassCanceled
	}

	var pgErr *pgconn.PgError
	if goerrors.As(err, &pgErr) {
		return ClassDatabase
	}
	var redisErr redis.Error
	if goerrors.As(err, &redisErr) {
		return ClassCache
	}
	var netErr net.Error
	if goerrors.As(err, &netErr) {
		if netErr.Timeout() {
			return ClassTimeout
		}
		return ClassNetwork
	}

	return typeName(innermost(err))
}

func innermost(err error) error {
	for {
		next := goerrors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.PkgPath() == "errors" || t.PkgPath() == "fmt" {
		return ClassUnknown
	}
	name := strings.ToLower(strings.ReplaceAll(t.String(), ".", "_"))
	if name == "" {
		return ClassUnknown
	}
	return name
}
