package types

import "errors"

// Domain errors for type validation
var (
	// Issue errors
	ErrInvalidLine   = errors.New("line must be >= 1")
	ErrInvalidColumn = errors.New("column must be >= 1")
	ErrInvalidLength = errors.New("length must be >= 1")
	ErrEmptyMessage  = errors.New("message cannot be empty")

	// Document errors
	ErrEmptyDocumentID = errors.New("document ID cannot be empty")
)
