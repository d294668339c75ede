package graph

import "fmt"

// GraphError is a contract violation detected before any write happens.
// These are never retried; the caller got the construction wrong.
type GraphError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Hash identifies the record involved, when known.
	Hash string
}

// ErrorCode categorizes graph contract errors.
type ErrorCode string

const (
	// ErrCodeEmptyChildren indicates an object was constructed with no
	// children. An object is a composite by definition.
	ErrCodeEmptyChildren ErrorCode = "EMPTY_CHILDREN"

	// ErrCodeNotAChild indicates an edit named a record that is not a
	// child of the parent being edited.
	ErrCodeNotAChild ErrorCode = "NOT_A_CHILD"

	// ErrCodeNotAnEvent indicates a category or context operation was
	// applied to a non-event record.
	ErrCodeNotAnEvent ErrorCode = "NOT_AN_EVENT"

	// ErrCodeNotASession indicates an attach or detach named a target
	// that is not a session.
	ErrCodeNotASession ErrorCode = "NOT_A_SESSION"

	// ErrCodeMissingChild indicates a referenced child hash has no
	// persisted record behind it.
	ErrCodeMissingChild ErrorCode = "MISSING_CHILD"
)

// Error implements the error interface.
func (e *GraphError) Error() string {
	if e.Hash != "" {
		return fmt.Sprintf("%s: %s (hash=%s)", e.Code, e.Message, e.Hash)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func emptyChildrenError(subType string) *GraphError {
	return &GraphError{
		Code:    ErrCodeEmptyChildren,
		Message: fmt.Sprintf("object %q needs at least one child", subType),
	}
}

func emptyIdentifiersError(subType string) *GraphError {
	return &GraphError{
		Code:    ErrCodeEmptyChildren,
		Message: fmt.Sprintf("session %q needs at least one identifier", subType),
	}
}

func notAChildError(parent, child string) *GraphError {
	return &GraphError{
		Code:    ErrCodeNotAChild,
		Message: fmt.Sprintf("record is not a child of %s", parent),
		Hash:    child,
	}
}

func notAnEventError(hash string) *GraphError {
	return &GraphError{
		Code:    ErrCodeNotAnEvent,
		Message: "operation applies to events only",
		Hash:    hash,
	}
}

func missingChildError(hash string) *GraphError {
	return &GraphError{
		Code:    ErrCodeMissingChild,
		Message: "child record not found in store",
		Hash:    hash,
	}
}
