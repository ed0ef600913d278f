package mcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/rs/zerolog/log"
)

// maxStdioLine bounds a single JSON-RPC message read from stdin, well
// above anything this server's tool/resource/prompt surface would produce.
const maxStdioLine = 1 << 20

// RunStdio serves a single MCP peer over newline-delimited JSON-RPC on r/w
// until EOF or ctx is cancelled (spec.md §4.9's stdio transport). The
// stdio peer is inherently a single trusted local process, so write tools
// are always authenticated on this transport — there is no bearer token
// to carry over a pipe.
func RunStdio(ctx context.Context, server *Server, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStdioLine)

	enc := json.NewEncoder(w)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req JSONRPCRequest
		if err := json.Unmarshal(line, &req); err != nil {
			_ = enc.Encode(newError(nil, CodeParseError, "invalid JSON-RPC message: "+err.Error(), nil))
			continue
		}

		resp := server.Dispatch(ctx, &req, true)
		if resp == nil {
			continue
		}
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		log.Error().Err(err).Msg("mcpserver: stdio transport read error")
		return err
	}
	return nil
}
