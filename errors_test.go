package mogilefs

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestErrorString(t *testing.T) {
	cases := []struct {
		err  *Error
		want string
	}{
		{NewError(KindUnknownKey, "k"), "mogilefs: unknown_key: k"},
		{NewError(KindNoDomain, ""), "mogilefs: no_domain"},
		{WrapError(KindIO, "", io.EOF), "mogilefs: io: EOF"},
		{WrapError(KindStorageError, "put", io.ErrUnexpectedEOF), "mogilefs: storage_error: put: unexpected EOF"},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Errorf("got %q want %q", got, tc.want)
		}
	}
}

func TestErrorsIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("lookup: %w", UnknownKey("a/b"))
	if !errors.Is(err, ErrUnknownKey) {
		t.Fatal("kind sentinel must match")
	}
	if errors.Is(err, ErrKeyExists) {
		t.Fatal("different kind must not match")
	}
	if !errors.Is(err, NewError(KindUnknownKey, "a/b")) || errors.Is(err, NewError(KindUnknownKey, "x")) {
		t.Fatal("a target with detail must match on detail too")
	}
	if !errors.Is(IOError(io.EOF), io.EOF) {
		t.Fatal("cause must be reachable through Unwrap")
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(nil) != "" {
		t.Fatal("nil has no kind")
	}
	if KindOf(errors.New("plain")) != KindOther {
		t.Fatal("foreign errors are other")
	}
	if KindOf(fmt.Errorf("x: %w", DomainExists("td"))) != KindDomainExists {
		t.Fatal("wrapped kind lost")
	}
}

func TestAsErrorAndDescription(t *testing.T) {
	if AsError(nil) != nil {
		t.Fatal("nil in, nil out")
	}
	foreign := errors.New("disk on fire")
	e := AsError(foreign)
	if e.Kind != KindOther || e.Description() != "disk on fire" || !errors.Is(e, foreign) {
		t.Fatalf("got %+v", e)
	}
	if d := WrapError(KindIO, "", io.EOF).Description(); d != "EOF" {
		t.Fatalf("description falls back to the cause, got %q", d)
	}
	if d := NoContent("k").(*Error).Description(); d != "k" {
		t.Fatalf("description=%q", d)
	}
}
