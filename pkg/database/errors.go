package database

import (
	"fmt"
	"strings"
)

// StoreError represents a statement rejected by the backing engine
type StoreError struct {
	Statement string
	Err       error
}

func (e *StoreError) Error() string {
	statement := e.Statement
	if len(statement) > 200 {
		statement = statement[:200] + "..."
	}
	return fmt.Sprintf("store error executing %q: %v", statement, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether the engine refused the statement because of a lock
func (e *StoreError) IsTransient() bool {
	if e.Err == nil {
		return false
	}
	msg := strings.ToLower(e.Err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
}
