package mogilefs

import (
	"context"
	"fmt"

	"github.com/unkn0wn-root/mogilefs/internal/wire"
)

// Tracker decodes request lines, dispatches them to a TrackerBackend and
// encodes the result. It holds no state of its own and is safe for
// concurrent use as long as the backend is.
type Tracker struct {
	backend TrackerBackend
	log     Logger
}

// NewTracker returns a Tracker over backend. A nil logger disables logging.
func NewTracker(backend TrackerBackend, log Logger) *Tracker {
	return &Tracker{backend: backend, log: LoggerOrNop(log)}
}

// Backend returns the backend requests are dispatched to.
func (t *Tracker) Backend() TrackerBackend { return t.backend }

// HandleLine handles one request line (trailing CRLF optional) and returns
// the full response line, CRLF included. It never fails: every problem is
// rendered as an ERR line.
func (t *Tracker) HandleLine(ctx context.Context, line []byte) (out []byte) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("tracker: panic in handler", Fields{"panic": fmt.Sprint(r)})
			out = wire.ErrLine(string(KindOther), "internal error")
		}
	}()

	resp, err := t.Handle(ctx, line)
	if err != nil {
		e := AsError(err)
		return wire.ErrLine(string(e.Kind), e.Description())
	}
	return wire.OKLine(resp.Args())
}

// Handle decodes and dispatches one request line.
func (t *Tracker) Handle(ctx context.Context, line []byte) (Response, error) {
	req, err := ParseRequest(line)
	if err != nil {
		t.log.Debug("tracker: bad request", Fields{"err": err})
		return nil, err
	}
	resp, err := t.Dispatch(ctx, req)
	if err != nil {
		t.log.Debug("tracker: request failed", Fields{"op": req.Op(), "kind": string(KindOf(err)), "err": err})
		return nil, err
	}
	return resp, nil
}

// Dispatch runs a decoded request against the backend.
func (t *Tracker) Dispatch(ctx context.Context, req Request) (Response, error) {
	b := t.backend
	switch r := req.(type) {
	case *Noop:
		return Empty{}, nil
	case *CreateDomain:
		return nonNil(b.CreateDomain(ctx, r))
	case *CreateClass:
		return nonNil(b.CreateClass(ctx, r))
	case *CreateOpen:
		resp, err := b.CreateOpen(ctx, r)
		if err != nil {
			return nil, err
		}
		if len(resp.Paths) == 0 {
			return nil, NewError(KindNoPath, r.Key)
		}
		return resp, nil
	case *CreateClose:
		return Empty{}, b.CreateClose(ctx, r)
	case *GetPaths:
		return nonNil(b.GetPaths(ctx, r))
	case *FileInfo:
		return nonNil(b.FileInfo(ctx, r))
	case *Rename:
		return Empty{}, b.Rename(ctx, r)
	case *UpdateClass:
		return Empty{}, b.UpdateClass(ctx, r)
	case *Delete:
		return Empty{}, b.Delete(ctx, r)
	case *ListKeys:
		return nonNil(b.ListKeys(ctx, r))
	default:
		return nil, NewError(KindUnknownCommand, req.Op())
	}
}

// nonNil keeps typed nil pointers out of the Response interface.
func nonNil[R Response](resp R, err error) (Response, error) {
	if err != nil {
		return nil, err
	}
	return resp, nil
}
