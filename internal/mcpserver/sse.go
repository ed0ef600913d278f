package mcpserver

import (
	"context"
	"fmt"
	"net/http"
)

// SSEStream is a server-sent-events connection bound to one MCP session
// (spec.md §4.9's GET verb), adapted from the teacher's sse.go. It only
// holds the connection open today — this server has no server-initiated
// notification source to push over it yet, so the teacher's message-
// framing write path isn't carried here.
type SSEStream struct {
	w         http.ResponseWriter
	flusher   http.Flusher
	sessionID string
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewSSEStream prepares w for an event-stream response scoped to
// sessionID, returning an error if the ResponseWriter cannot be flushed
// incrementally.
func NewSSEStream(ctx context.Context, w http.ResponseWriter, sessionID string) (*SSEStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("mcpserver: response writer does not support flushing")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	streamCtx, cancel := context.WithCancel(ctx)
	return &SSEStream{w: w, flusher: flusher, sessionID: sessionID, ctx: streamCtx, cancel: cancel}, nil
}

// Close cancels the stream's context, unblocking anything selecting on Done.
func (s *SSEStream) Close() {
	s.cancel()
}

// Done reports the stream's cancellation, e.g. for a select loop pushing
// server-initiated notifications until the peer disconnects.
func (s *SSEStream) Done() <-chan struct{} {
	return s.ctx.Done()
}
