package models

import (
	"fmt"
	"strings"
)

// ValidationError represents a request or input that fails an invariant
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}

// ParseError represents malformed or ambiguous source text
type ParseError struct {
	File    string
	Line    int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("parse error")
	if e.File != "" {
		b.WriteString(" in ")
		b.WriteString(e.File)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " at line %d", e.Line)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsTransient returns false since re-reading the same text fails the same way
func (e *ParseError) IsTransient() bool {
	return false
}

// FileDiscoveryError represents a required filename pattern with the wrong number of matches
type FileDiscoveryError struct {
	Dir     string
	Pattern string
	Found   int
	Message string
}

func (e *FileDiscoveryError) Error() string {
	return e.Message
}

// IsTransient returns false as the directory contents must change first
func (e *FileDiscoveryError) IsTransient() bool {
	return false
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found: " + e.ID
}

// IsTransient returns false as not found errors are permanent
func (e *NotFoundError) IsTransient() bool {
	return false
}
