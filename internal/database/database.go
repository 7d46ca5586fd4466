// Package database provides database connection management and utilities.
package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	apperrors "github.com/allisson/recipegraph/internal/errors"
)

// Config holds database configuration settings.
type Config struct {
	Driver             string
	ConnectionString   string
	MaxOpenConnections int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// Connect establishes a database connection with the given configuration.
func Connect(cfg Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// PostgreSQL error classes that indicate the statement may succeed when retried.
// 40001 serialization_failure, 40P01 deadlock_detected, 55P03 lock_not_available,
// 57014 query_canceled, class 08 connection exceptions.
var postgresTransientCodes = map[pq.ErrorCode]bool{
	"40001": true,
	"40P01": true,
	"55P03": true,
	"57014": true,
	"57P01": true,
}

// MySQL error numbers that indicate the statement may succeed when retried.
// 1205 lock wait timeout, 1213 deadlock, 2006 server gone away, 2013 lost connection.
var mysqlTransientNumbers = map[uint16]bool{
	1205: true,
	1213: true,
	2006: true,
	2013: true,
}

// ClassifyError tags store errors that are worth retrying with errors.ErrTransient.
// Errors that are already classified, or that are not recognized, are returned unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if apperrors.Is(err, apperrors.ErrTransient) || apperrors.IsPermanent(err) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, mysql.ErrInvalidConn) {
		return apperrors.Join(apperrors.ErrTransient, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperrors.Join(apperrors.ErrTransient, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if postgresTransientCodes[pqErr.Code] || pqErr.Code.Class() == "08" {
			return apperrors.Join(apperrors.ErrTransient, err)
		}
		return err
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlTransientNumbers[mysqlErr.Number] {
		return apperrors.Join(apperrors.ErrTransient, err)
	}

	return err
}
