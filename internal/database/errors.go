package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// ErrorCode classifies storage failures.
type ErrorCode int

const (
	ErrCodeUnknown ErrorCode = iota
	ErrCodeNotFound
	ErrCodeBusy
	ErrCodePermission
	ErrCodeIO
	ErrCodeConstraint
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeNotFound:
		return "NOT_FOUND"
	case ErrCodeBusy:
		return "BUSY"
	case ErrCodePermission:
		return "PERMISSION"
	case ErrCodeIO:
		return "IO"
	case ErrCodeConstraint:
		return "CONSTRAINT"
	default:
		return "UNKNOWN"
	}
}

// StorageError is returned by every repository operation that fails.
type StorageError struct {
	Op   string
	Code ErrorCode
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s [code=%s]: %v", e.Op, e.Code, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the next tick may succeed without intervention.
func (e *StorageError) Retryable() bool {
	return e.Code == ErrCodeBusy || e.Code == ErrCodeIO
}

// IsStorageError reports whether err wraps a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// IsNotFound reports whether err is a missing-record storage error.
func IsNotFound(err error) bool {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Code == ErrCodeNotFound
	}
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Code: codeOf(err), Err: err}
}

func codeOf(err error) ErrorCode {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrCodeNotFound
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return ErrCodeBusy
		case sqlite3.ErrPerm, sqlite3.ErrAuth, sqlite3.ErrReadonly:
			return ErrCodePermission
		case sqlite3.ErrIoErr, sqlite3.ErrCantOpen, sqlite3.ErrFull:
			return ErrCodeIO
		case sqlite3.ErrConstraint:
			return ErrCodeConstraint
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "busy"):
		return ErrCodeBusy
	case strings.Contains(msg, "permission denied"), strings.Contains(msg, "readonly"):
		return ErrCodePermission
	case strings.Contains(msg, "disk i/o"), strings.Contains(msg, "unable to open"):
		return ErrCodeIO
	case strings.Contains(msg, "constraint"):
		return ErrCodeConstraint
	}
	return ErrCodeUnknown
}
