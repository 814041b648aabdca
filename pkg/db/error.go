package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// ErrUnavailable marks a store-level failure the caller may retry.
var ErrUnavailable = errors.New("store_unavailable")

// TranslateError wraps driver and connection failures into ErrUnavailable.
// Not-found and duplicate-key errors keep their meaning and pass through.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, ErrUnavailable) || IsDuplicateKeyErr(err) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// IsDuplicateKeyErr reports whether err is a unique-constraint violation for
// any supported dialect.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return true
	}

	// MySQL 1062 and SQLite 2067 surface as plain strings through gorm.
	msg := err.Error()
	if strings.Contains(msg, "Error 1062") {
		return true
	}
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return true
	}

	return false
}
