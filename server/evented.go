package server

import "context"

// job is one request waiting for the dispatch loop.
type job struct {
	ctx   context.Context
	line  []byte
	reply chan []byte
}

// eventLoop is the single goroutine that runs the handler in evented mode.
// Connection goroutines park on socket reads and writes and on their reply
// channel; only this loop ever touches the handler.
func (s *Server) eventLoop() {
	defer s.wg.Done()
	for {
		select {
		case j := <-s.jobs:
			j.reply <- s.handler.HandleLine(j.ctx, j.line)
		case <-s.ctx.Done():
			return
		}
	}
}

// submit queues line for the dispatch loop and waits for its response.
// It returns nil once the server is stopping.
func (s *Server) submit(ctx context.Context, line []byte) []byte {
	j := job{ctx: ctx, line: line, reply: make(chan []byte, 1)}
	select {
	case s.jobs <- j:
	case <-s.ctx.Done():
		return nil
	}
	select {
	case resp := <-j.reply:
		return resp
	case <-s.ctx.Done():
		return nil
	}
}
