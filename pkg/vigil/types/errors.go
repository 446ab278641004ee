package types

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// Kind classifies an engine failure.
type Kind int

// Error kinds. KindUnknown is only returned by KindOf for foreign errors.
const (
	KindUnknown Kind = iota
	KindNotFound
	KindAccessDenied
	KindIOFailure
	KindNotInitialized
	KindCorruptManifest
	KindPersistFailure
)

var kindNames = map[Kind]string{
	KindUnknown:         "unknown",
	KindNotFound:        "not_found",
	KindAccessDenied:    "access_denied",
	KindIOFailure:       "io_failure",
	KindNotInitialized:  "not_initialized",
	KindCorruptManifest: "corrupt_manifest",
	KindPersistFailure:  "persist_failure",
}

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler so kinds serialize by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown error kind %q", text)
}

// Sentinel errors, one per kind. Match them with errors.Is.
var (
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrAccessDenied    = &Error{Kind: KindAccessDenied}
	ErrIOFailure       = &Error{Kind: KindIOFailure}
	ErrNotInitialized  = &Error{Kind: KindNotInitialized}
	ErrCorruptManifest = &Error{Kind: KindCorruptManifest}
	ErrPersistFailure  = &Error{Kind: KindPersistFailure}
)

// Error is a typed engine failure.
type Error struct {
	Kind Kind
	// Op is the operation that failed, e.g. "digest" or "save".
	Op string
	// Path is the file involved, if any.
	Path string
	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	switch e.Kind {
	case KindNotInitialized:
		msg = "manifest not initialized"
	case KindCorruptManifest:
		msg = "corrupt manifest"
	case KindPersistFailure:
		msg = "failed to persist manifest"
	case KindNotFound:
		msg = "not found"
	case KindAccessDenied:
		msg = "access denied"
	case KindIOFailure:
		msg = "i/o failure"
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
// This lets the sentinel values match any error of their kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds a typed error.
func NewError(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// ClassifyIO maps a filesystem error onto NotFound, AccessDenied or IOFailure.
// ENOTDIR counts as NotFound: a parent directory was replaced by a file.
func ClassifyIO(op, path string, err error) *Error {
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOTDIR):
		return NewError(KindNotFound, op, path, err)
	case errors.Is(err, fs.ErrPermission):
		return NewError(KindAccessDenied, op, path, err)
	default:
		return NewError(KindIOFailure, op, path, err)
	}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindUnknown
}
