package mogilefs

import (
	"errors"
	"fmt"
)

// Kind is the canonical lowercase token an error carries on the wire.
type Kind string

const (
	KindUnknownCommand  Kind = "unknown_command"
	KindUnknownKey      Kind = "unknown_key"
	KindKeyExists       Kind = "key_exists"
	KindDomainExists    Kind = "domain_exists"
	KindNoDomain        Kind = "no_domain"
	KindNoKey           Kind = "no_key"
	KindNoClass         Kind = "no_class"
	KindUnregDomain     Kind = "unreg_domain"
	KindNoContent       Kind = "no_content"
	KindNoPath          Kind = "no_path"
	KindNoTrackers      Kind = "no_trackers"
	KindStorageError    Kind = "storage_error"
	KindBadResponse     Kind = "bad_response"
	KindUnknownResponse Kind = "unknown_response"
	KindIO              Kind = "io"
	KindUTF8            Kind = "utf8"
	KindOther           Kind = "other"
)

// Error is the single error type of the tracker protocol. Detail is the
// human readable description sent on the wire; Err is an optional cause
// that never leaves the process.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Detail != "" && e.Err != nil:
		return fmt.Sprintf("mogilefs: %s: %s: %v", e.Kind, e.Detail, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("mogilefs: %s: %s", e.Kind, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("mogilefs: %s: %v", e.Kind, e.Err)
	default:
		return "mogilefs: " + string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrUnknownKey)
// works regardless of Detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && (t.Detail == "" || t.Detail == e.Detail)
}

// Description is the text rendered after the kind on an ERR line.
func (e *Error) Description() string {
	if e.Detail == "" && e.Err != nil {
		return e.Err.Error()
	}
	return e.Detail
}

// Kind sentinels for errors.Is.
var (
	ErrUnknownCommand = &Error{Kind: KindUnknownCommand}
	ErrUnknownKey     = &Error{Kind: KindUnknownKey}
	ErrKeyExists      = &Error{Kind: KindKeyExists}
	ErrDomainExists   = &Error{Kind: KindDomainExists}
	ErrNoDomain       = &Error{Kind: KindNoDomain}
	ErrNoKey          = &Error{Kind: KindNoKey}
	ErrUnregDomain    = &Error{Kind: KindUnregDomain}
	ErrNoContent      = &Error{Kind: KindNoContent}
	ErrNoPath         = &Error{Kind: KindNoPath}
	ErrNoTrackers     = &Error{Kind: KindNoTrackers}
	ErrStorage        = &Error{Kind: KindStorageError}
	ErrBadResponse    = &Error{Kind: KindBadResponse}
	ErrIO             = &Error{Kind: KindIO}
)

// NewError builds an *Error of the given kind.
func NewError(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// WrapError builds an *Error of the given kind around a cause.
func WrapError(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: cause}
}

// UnknownKey reports that key is not present in its domain.
func UnknownKey(key string) error { return NewError(KindUnknownKey, key) }

// KeyExists reports a rename target that is already present.
func KeyExists(key string) error { return NewError(KindKeyExists, key) }

// DomainExists reports a duplicate create_domain.
func DomainExists(name string) error { return NewError(KindDomainExists, name) }

// NoContent reports a file that has been opened but never written.
func NoContent(key string) error { return NewError(KindNoContent, key) }

// UnregDomain reports an unregistered domain in strict mode.
func UnregDomain(name string) error { return NewError(KindUnregDomain, name) }

// IOError wraps a socket error.
func IOError(err error) error { return WrapError(KindIO, "", err) }

// StorageError reports a failed transfer to or from a storage node.
func StorageError(detail string, cause error) error { return WrapError(KindStorageError, detail, cause) }

// KindOf returns the protocol kind of err. Errors that are not *Error map
// to KindOther; nil maps to "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindOther
}

// AsError converts any error to an *Error, wrapping foreign errors as
// KindOther.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var me *Error
	if errors.As(err, &me) {
		return me
	}
	return WrapError(KindOther, err.Error(), err)
}
