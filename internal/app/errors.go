package app

import "errors"

// Kind classifies failures for the transport layer.
type Kind int

const (
	KindProcessing Kind = iota
	KindValidation
	KindAuth
	KindNotFound
	KindConflict
	KindCapacity
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindCapacity:
		return "capacity"
	default:
		return "processing"
	}
}

type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

var (
	ErrInvalidInput        = newError(KindValidation, "invalid input")
	ErrInvalidTicket       = newError(KindAuth, "invalid upload token")
	ErrMissingTicket       = newError(KindAuth, "missing upload token")
	ErrSessionNotFound     = newError(KindNotFound, "session not found")
	ErrDocumentNotFound    = newError(KindNotFound, "document not found")
	ErrUploadClosed        = newError(KindConflict, "upload already finalized")
	ErrDuplicateCompletion = newError(KindConflict, "upload already completed")
	ErrNotProcessable      = newError(KindConflict, "document is not awaiting processing")
	ErrUploadTooLarge      = newError(KindCapacity, "max upload size exceeded")
	ErrChunkTooLarge       = newError(KindCapacity, "upload chunk too large")
	ErrUploadNotFound      = newError(KindValidation, "upload not found")
	ErrEmptyChunk          = newError(KindValidation, "empty upload chunk")
	ErrNoActiveDocument    = newError(KindValidation, "no active document for this session")
	ErrDocumentNotReady    = newError(KindValidation, "document is not ready")
	ErrNotIndexed          = newError(KindValidation, "document is not indexed yet")
	ErrLLMConfig           = newError(KindValidation, "llm provider is not configured")
	ErrProcessing          = newError(KindProcessing, "processing failed")
)

// KindOf resolves the Kind of err through wrapping. Unknown errors are
// processing failures.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindProcessing
}
