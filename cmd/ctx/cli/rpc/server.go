// Package rpc implements the stdio JSON-RPC server that exposes project
// memory to editor clients. One client at a time, requests handled in order.
// The wire framing (header-framed or line-delimited) follows whatever the
// client sends first.
package rpc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/contextmemory/ctx/cmd/ctx/cli/logging"
	"github.com/contextmemory/ctx/cmd/ctx/cli/store"
)

// JSON-RPC error codes. CodeNoActiveSession is the one application-defined
// code; the rest are standard.
const (
	CodeParse           = -32700
	CodeMethodNotFound  = -32601
	CodeInvalidParams   = -32602
	CodeInternal        = -32603
	CodeNoActiveSession = -32010
)

const (
	protocolVersion = "2024-11-05"
	serverName      = "ctx-memory"
	serverVersion   = "0.1.0"
)

// Error is a JSON-RPC error with a protocol code.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string { return e.Message }

// Server serves memory tools over stdio for a single client.
type Server struct {
	store *store.Store
	in    *bufio.Reader
	out   io.Writer
	mode  framingMode
}

// New builds a server reading requests from in and writing responses to out.
func New(st *store.Store, in io.Reader, out io.Writer) *Server {
	return &Server{
		store: st,
		in:    bufferedReader(in),
		out:   out,
		mode:  framingAuto,
	}
}

// Serve processes requests until the input stream ends or ctx is cancelled.
// Malformed requests are answered with an error response and the loop
// continues; only unexpected internal failures end the conversation.
func (s *Server) Serve(ctx context.Context) error {
	ctx = logging.WithProject(ctx, s.store.ProjectPath())
	logging.Info(ctx, "rpc server started")

	for {
		if ctx.Err() != nil {
			return nil
		}
		message, err := s.readMessage()
		if errors.Is(err, io.EOF) {
			logging.Info(ctx, "rpc client disconnected")
			return nil
		}
		if err != nil {
			if rpcErr, ok := err.(*Error); ok {
				if werr := s.writeMessage(errorResponse(nil, rpcErr)); werr != nil {
					return werr
				}
				continue
			}
			return err
		}

		response := s.handleRequest(ctx, message)
		if response == nil || message["id"] == nil {
			continue
		}
		if err := s.writeMessage(response); err != nil {
			return err
		}
	}
}

// handleRequest dispatches one request and always produces a response map
// (nil only for notifications).
func (s *Server) handleRequest(ctx context.Context, request map[string]any) map[string]any {
	method, _ := request["method"].(string)
	requestID := request["id"]

	result, err := s.dispatch(ctx, method, request)
	if err != nil {
		rpcErr, ok := err.(*Error)
		if !ok {
			logging.Error(ctx, "rpc internal error", "method", method, "error", err.Error())
			rpcErr = &Error{Code: CodeInternal, Message: fmt.Sprintf("internal error: %v", err)}
		}
		return errorResponse(requestID, rpcErr)
	}
	if result == nil {
		return nil
	}
	return map[string]any{"jsonrpc": "2.0", "id": requestID, "result": result}
}

func (s *Server) dispatch(ctx context.Context, method string, request map[string]any) (map[string]any, error) {
	params, _ := request["params"].(map[string]any)

	switch method {
	case "notifications/initialized":
		return nil, nil
	case "initialize":
		return map[string]any{
			"protocolVersion": protocolVersion,
			"serverInfo":      map[string]any{"name": serverName, "version": serverVersion},
			"capabilities":    map[string]any{"tools": map[string]any{}},
		}, nil
	case "ping":
		return map[string]any{"ok": true}, nil
	case "tools/list":
		return map[string]any{"tools": toolSpecs()}, nil
	case "tools/call":
		name, ok := params["name"].(string)
		if !ok {
			return nil, &Error{Code: CodeInvalidParams, Message: "tools/call requires tool name"}
		}
		arguments := map[string]any{}
		if raw, present := params["arguments"]; present && raw != nil {
			arguments, ok = raw.(map[string]any)
			if !ok {
				return nil, &Error{Code: CodeInvalidParams, Message: "tools/call arguments must be object"}
			}
		}
		logging.Debug(ctx, "tool call", "tool", name)
		return s.handleTool(name, arguments)
	}
	if isNotification(method) {
		return nil, nil
	}
	return nil, &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("Method not found: %s", method)}
}

func isNotification(method string) bool {
	return len(method) > len("notifications/") && method[:len("notifications/")] == "notifications/"
}

func errorResponse(requestID any, rpcErr *Error) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      requestID,
		"error":   map[string]any{"code": rpcErr.Code, "message": rpcErr.Message},
	}
}

func heartbeatDetail(prefix string) string {
	return prefix + " " + time.Now().UTC().Truncate(time.Second).Format("2006-01-02T15:04:05Z")
}
