// Package wire implements the tracker line protocol framing.
//
//	request:  OP SP ARGS CRLF  (or OP CRLF when there are no args)
//	success:  OK SP ARGS CRLF
//	failure:  ERR SP KIND SP DESCRIPTION CRLF
//
// ARGS is a form body (k1=v1&k2=v2). DESCRIPTION is form-encoded text.
package wire

import (
	"bytes"
	"net/url"
	"strings"
)

const (
	okToken  = "OK"
	errToken = "ERR"
)

var crlf = []byte("\r\n")

// Field is a single key/value pair of a form body.
type Field struct {
	Key   string
	Value string
}

// Args is an ordered form body. Order is kept so rendering is deterministic.
type Args []Field

// Add appends a field.
func (a *Args) Add(key, value string) {
	*a = append(*a, Field{Key: key, Value: value})
}

// Get returns the value for key. With duplicate keys the last value wins.
func (a Args) Get(key string) (string, bool) {
	for i := len(a) - 1; i >= 0; i-- {
		if a[i].Key == key {
			return a[i].Value, true
		}
	}
	return "", false
}

// Value is Get without the presence flag.
func (a Args) Value(key string) string {
	v, _ := a.Get(key)
	return v
}

// Map collapses the body to a map (last value wins).
func (a Args) Map() map[string]string {
	m := make(map[string]string, len(a))
	for _, f := range a {
		m[f.Key] = f.Value
	}
	return m
}

// Encode renders the body as k=v pairs joined by '&'.
func (a Args) Encode() string {
	if len(a) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, f := range a {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(Escape(f.Key))
		sb.WriteByte('=')
		sb.WriteString(Escape(f.Value))
	}
	return sb.String()
}

// ParseArgs decodes a form body. Parsing never fails: empty segments are
// skipped and malformed escapes are kept literally.
func ParseArgs(b []byte) Args {
	if len(b) == 0 {
		return nil
	}
	var out Args
	for _, seg := range bytes.Split(b, []byte{'&'}) {
		if len(seg) == 0 {
			continue
		}
		k, v, _ := bytes.Cut(seg, []byte{'='})
		out = append(out, Field{Key: Unescape(string(k)), Value: Unescape(string(v))})
	}
	return out
}

// Escape form-encodes s: spaces become '+', reserved bytes are percent-encoded.
func Escape(s string) string {
	return url.QueryEscape(s)
}

// Unescape reverses Escape. Invalid percent sequences are left as they are.
func Unescape(s string) string {
	if out, err := url.QueryUnescape(s); err == nil {
		return out
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '+':
			sb.WriteByte(' ')
		case c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]):
			sb.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// TrimEOL strips one trailing "\r\n" (or a lone "\n" or "\r").
func TrimEOL(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte{'\n'})
	return bytes.TrimSuffix(line, []byte{'\r'})
}

// SplitOp splits a request line on its first space into the op token and
// the raw form body.
func SplitOp(line []byte) (op, args []byte) {
	op, args, _ = bytes.Cut(line, []byte{' '})
	return op, args
}

// RequestLine renders a request, CRLF included.
func RequestLine(op string, args Args) []byte {
	body := args.Encode()
	b := make([]byte, 0, len(op)+len(body)+3)
	b = append(b, op...)
	if body != "" {
		b = append(b, ' ')
		b = append(b, body...)
	}
	return append(b, crlf...)
}

// OKLine renders a success response, CRLF included. An empty body still
// carries the separating space ("OK \r\n").
func OKLine(args Args) []byte {
	body := args.Encode()
	b := make([]byte, 0, len(okToken)+len(body)+3)
	b = append(b, okToken...)
	b = append(b, ' ')
	b = append(b, body...)
	return append(b, crlf...)
}

// ErrLine renders a failure response, CRLF included.
func ErrLine(kind, description string) []byte {
	desc := Escape(description)
	b := make([]byte, 0, len(errToken)+len(kind)+len(desc)+4)
	b = append(b, errToken...)
	b = append(b, ' ')
	b = append(b, kind...)
	b = append(b, ' ')
	b = append(b, desc...)
	return append(b, crlf...)
}

// Status classifies a parsed response line.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusOK
	StatusErr
)

// Response is a parsed response line.
type Response struct {
	Status Status
	// Args is set for StatusOK.
	Args Args
	// Kind and Description are set for StatusErr.
	Kind        string
	Description string
	// Token holds the decoded first token for StatusUnknown.
	Token string
}

// ParseResponse parses one response line; a trailing CRLF is ignored.
func ParseResponse(line []byte) Response {
	line = TrimEOL(line)
	head, rest := SplitOp(line)
	switch string(head) {
	case okToken:
		return Response{Status: StatusOK, Args: ParseArgs(rest)}
	case errToken:
		kind, desc := SplitOp(rest)
		return Response{Status: StatusErr, Kind: string(kind), Description: Unescape(string(desc))}
	default:
		return Response{Status: StatusUnknown, Token: Unescape(string(head))}
	}
}
