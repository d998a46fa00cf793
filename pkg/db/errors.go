package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation = "23505"
	// class 08 connection exceptions, 53 insufficient resources, 57P admin shutdown.
	pgClassConnection = "08"
	pgClassResources  = "53"
	pgAdminShutdown   = "57P01"
	pgCannotConnect   = "57P03"
)

// IsUniqueViolation reports whether err is a unique constraint violation from
// any supported driver. When constraintName is provided, only violations of
// that constraint (or index) match.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code == pgUniqueViolation && matchesConstraint(pgxErr.ConstraintName, err, constraintName)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation && matchesConstraint(pqErr.Constraint, err, constraintName)
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	if constraintName != "" {
		// sqlite reports columns rather than index names.
		return strings.Contains(msg, constraintName) || strings.Contains(msg, "UNIQUE constraint failed")
	}
	return true
}

func matchesConstraint(reported string, err error, want string) bool {
	if want == "" {
		return true
	}
	return reported == want || strings.Contains(err.Error(), want)
}

// IsUnavailable reports whether err is a transient infrastructure failure
// where repeating the whole operation is safe.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return transientPGCode(pgxErr.Code)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return transientPGCode(string(pqErr.Code))
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "sql: database is closed")
}

func transientPGCode(code string) bool {
	if strings.HasPrefix(code, pgClassConnection) || strings.HasPrefix(code, pgClassResources) {
		return true
	}
	return code == pgAdminShutdown || code == pgCannotConnect
}
