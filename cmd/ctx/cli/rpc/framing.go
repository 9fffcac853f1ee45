package rpc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/contextmemory/ctx/cmd/ctx/cli/jsonutil"
)

// Framing is detected from the first line the client sends and then locked in
// for the rest of the conversation.
type framingMode int

const (
	framingAuto framingMode = iota
	framingHeaders
	framingLines
)

const contentLengthPrefix = "Content-Length:"

// readMessage reads one JSON-RPC message in whichever framing the client
// speaks. Returns io.EOF when the stream ends cleanly.
func (s *Server) readMessage() (map[string]any, error) {
	firstLine, err := s.in.ReadBytes('\n')
	if len(firstLine) == 0 && err != nil {
		return nil, io.EOF
	}

	line := bytes.TrimSpace(firstLine)
	if strings.HasPrefix(string(line), contentLengthPrefix) {
		if s.mode == framingAuto {
			s.mode = framingHeaders
		}
		return s.readFramedBody(string(line))
	}

	if s.mode == framingAuto {
		s.mode = framingLines
	}
	var payload map[string]any
	if err := json.Unmarshal(line, &payload); err != nil {
		return nil, &Error{Code: CodeParse, Message: fmt.Sprintf("invalid JSON line payload: %v", err)}
	}
	return payload, nil
}

// readFramedBody consumes the remaining headers up to the blank line and then
// exactly Content-Length bytes of body.
func (s *Server) readFramedBody(lengthHeader string) (map[string]any, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(lengthHeader, contentLengthPrefix))
	length, err := strconv.Atoi(raw)
	if err != nil || length < 0 {
		return nil, &Error{Code: CodeParse, Message: fmt.Sprintf("invalid Content-Length header: %q", raw)}
	}

	for {
		header, err := s.in.ReadBytes('\n')
		if err != nil {
			return nil, &Error{Code: CodeParse, Message: "unexpected EOF while reading headers"}
		}
		if bytes.Equal(header, []byte("\r\n")) || bytes.Equal(header, []byte("\n")) {
			break
		}
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(s.in, body); err != nil {
		return nil, io.EOF
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &Error{Code: CodeParse, Message: fmt.Sprintf("invalid JSON payload: %v", err)}
	}
	return payload, nil
}

// writeMessage emits one response in the detected framing.
func (s *Server) writeMessage(payload map[string]any) error {
	encoded, err := jsonutil.MarshalCompact(payload)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	if s.mode == framingLines {
		encoded = append(encoded, '\n')
		_, err = s.out.Write(encoded)
		return err
	}
	if _, err := fmt.Fprintf(s.out, "%s %d\r\n\r\n", contentLengthPrefix, len(encoded)); err != nil {
		return err
	}
	_, err = s.out.Write(encoded)
	return err
}

func bufferedReader(r io.Reader) *bufio.Reader {
	if br, ok := r.(*bufio.Reader); ok {
		return br
	}
	return bufio.NewReader(r)
}
