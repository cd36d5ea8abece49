package repository

import "errors"

var (
	ErrSessionMissing = errors.New("session row missing")
	// ErrStaleDocument means the document left the state a write expected,
	// usually because it was deleted or superseded meanwhile.
	ErrStaleDocument = errors.New("document no longer in expected state")
)
