package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/contextmemory/ctx/cmd/ctx/cli/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// serveLines runs the server over line-delimited input and returns one
// decoded response per output line.
func serveLines(t *testing.T, s *store.Store, requests ...string) []map[string]any {
	t.Helper()
	input := strings.Join(requests, "\n") + "\n"
	var out bytes.Buffer
	server := New(s, strings.NewReader(input), &out)
	require.NoError(t, server.Serve(context.Background()))

	var responses []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var decoded map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &decoded))
		responses = append(responses, decoded)
	}
	return responses
}

func result(t *testing.T, response map[string]any) map[string]any {
	t.Helper()
	res, ok := response["result"].(map[string]any)
	require.True(t, ok, "expected result in %v", response)
	return res
}

func rpcErrorCode(t *testing.T, response map[string]any) float64 {
	t.Helper()
	errObj, ok := response["error"].(map[string]any)
	require.True(t, ok, "expected error in %v", response)
	return errObj["code"].(float64)
}

// structured pulls the structuredContent payload out of a tool-call result.
func structured(t *testing.T, response map[string]any) map[string]any {
	t.Helper()
	res := result(t, response)
	payload, ok := res["structuredContent"].(map[string]any)
	require.True(t, ok, "expected structuredContent in %v", res)
	return payload
}

func TestServe_Initialize(t *testing.T) {
	s := openTestStore(t)
	responses := serveLines(t, s, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	require.Len(t, responses, 1)

	res := result(t, responses[0])
	require.Equal(t, "2024-11-05", res["protocolVersion"])
	info := res["serverInfo"].(map[string]any)
	require.Equal(t, "ctx-memory", info["name"])
}

func TestServe_NotificationGetsNoResponse(t *testing.T) {
	s := openTestStore(t)
	responses := serveLines(t, s,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"ping"}`,
	)
	require.Len(t, responses, 1)
	require.Equal(t, true, result(t, responses[0])["ok"])
}

func TestServe_ToolsList(t *testing.T) {
	s := openTestStore(t)
	responses := serveLines(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	tools := result(t, responses[0])["tools"].([]any)
	require.Len(t, tools, 5)

	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.(map[string]any)["name"].(string))
	}
	require.ElementsMatch(t, []string{"get_context", "append_event", "start_chat_session", "stop_chat_session", "ping"}, names)
}

func TestServe_UnknownMethod(t *testing.T) {
	s := openTestStore(t)
	responses := serveLines(t, s, `{"jsonrpc":"2.0","id":1,"method":"bogus/thing"}`)
	require.EqualValues(t, CodeMethodNotFound, rpcErrorCode(t, responses[0]))
}

func TestServe_UnknownTool(t *testing.T) {
	s := openTestStore(t)
	responses := serveLines(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"nope","arguments":{}}}`)
	require.EqualValues(t, CodeMethodNotFound, rpcErrorCode(t, responses[0]))
}

func TestServe_ParseErrorKeepsServing(t *testing.T) {
	s := openTestStore(t)
	responses := serveLines(t, s,
		`this is not json`,
		`{"jsonrpc":"2.0","id":2,"method":"ping"}`,
	)
	require.Len(t, responses, 2)
	require.EqualValues(t, CodeParse, rpcErrorCode(t, responses[0]))
	require.Equal(t, true, result(t, responses[1])["ok"])
}

func TestToolPing_RequiresKnownClient(t *testing.T) {
	s := openTestStore(t)
	responses := serveLines(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"ping","arguments":{"client":"emacs"}}}`)
	require.EqualValues(t, CodeInvalidParams, rpcErrorCode(t, responses[0]))
}

func TestToolPing_NoSession(t *testing.T) {
	s := openTestStore(t)
	responses := serveLines(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"ping","arguments":{"client":"claude"}}}`)
	payload := structured(t, responses[0])
	require.Equal(t, true, payload["pong"])
	require.Equal(t, "claude", payload["client"])
	require.Nil(t, payload["session_id"])
}

func TestToolAppendEvent_NoActiveSession(t *testing.T) {
	s := openTestStore(t)
	responses := serveLines(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"append_event","arguments":{"summary":"x"}}}`)
	require.EqualValues(t, CodeNoActiveSession, rpcErrorCode(t, responses[0]))
}

func TestToolAppendEvent_MissingSummary(t *testing.T) {
	s := openTestStore(t)
	_, err := s.CreateSession("claude", "")
	require.NoError(t, err)

	responses := serveLines(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"append_event","arguments":{"summary":"   "}}}`)
	require.EqualValues(t, CodeInvalidParams, rpcErrorCode(t, responses[0]))
}

func TestToolAppendEvent_FilesTouchedMustBeArray(t *testing.T) {
	s := openTestStore(t)
	_, err := s.CreateSession("claude", "")
	require.NoError(t, err)

	responses := serveLines(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"append_event","arguments":{"summary":"x","files_touched":"retry.go"}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"append_event","arguments":{"summary":"x","files_touched":["retry.go",7]}}}`,
	)
	require.Len(t, responses, 2)
	require.EqualValues(t, CodeInvalidParams, rpcErrorCode(t, responses[0]))
	require.EqualValues(t, CodeInvalidParams, rpcErrorCode(t, responses[1]))
}

func TestToolAppendEvent_SourceDetailTruncatesOnRunes(t *testing.T) {
	s := openTestStore(t)
	_, err := s.CreateSession("claude", "")
	require.NoError(t, err)

	detail := strings.Repeat("é", 50)
	request := fmt.Sprintf(
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"append_event","arguments":{"summary":"unicode detail","client":"claude","source_detail":%q}}}`,
		detail,
	)
	responses := serveLines(t, s, request)
	require.Equal(t, true, structured(t, responses[0])["ok"])

	events, err := s.RecentEvents(1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.True(t, utf8.ValidString(events[0].Source))
	require.Equal(t, "mcp:claude:"+strings.Repeat("é", 40), events[0].Source)
}

func TestChatSessionFlow(t *testing.T) {
	s := openTestStore(t)
	responses := serveLines(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"start_chat_session","arguments":{"client":"claude","external_session_ref":"abc-123"}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"append_event","arguments":{"summary":"Implemented retry logic","event_type":"code_change","client":"claude","files_touched":["retry.go"]}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"get_context","arguments":{"max_events":10}}}`,
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"stop_chat_session","arguments":{"session_id":1}}}`,
	)
	require.Len(t, responses, 4)

	start := structured(t, responses[0])
	require.EqualValues(t, 1, start["session_id"])

	appended := structured(t, responses[1])
	require.Equal(t, true, appended["ok"])
	require.EqualValues(t, 1, appended["session_id"])

	contextPayload := structured(t, responses[2])
	events := contextPayload["recent_events"].([]any)
	require.NotEmpty(t, events)
	first := events[0].(map[string]any)
	require.Equal(t, "code_change", first["event_type"])
	require.Equal(t, "Implemented retry logic", first["summary"])
	require.Equal(t, "mcp:claude", first["source"])

	stopped := structured(t, responses[3])
	require.Equal(t, true, stopped["stopped"])

	active, err := s.ActiveSession()
	require.NoError(t, err)
	require.Nil(t, active)
}

func TestStartChatSession_ReusesActiveSession(t *testing.T) {
	s := openTestStore(t)
	existing, err := s.CreateSession("cursor", "")
	require.NoError(t, err)

	responses := serveLines(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"start_chat_session","arguments":{"client":"claude","external_session_ref":"ref-9"}}}`)
	payload := structured(t, responses[0])
	require.EqualValues(t, existing, payload["session_id"])

	session, err := s.Session(existing)
	require.NoError(t, err)
	require.Equal(t, "ref-9", session.ExternalSessionRef)
}

func TestGetContext_ClampsMaxEvents(t *testing.T) {
	s := openTestStore(t)
	sessionID, err := s.CreateSession("claude", "")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := s.InsertEvent(store.EventInput{
			SessionID:   sessionID,
			Type:        store.EventTaskStatus,
			Summary:     fmt.Sprintf("step %d complete", i),
			Source:      "test",
			IsEffective: true,
		})
		require.NoError(t, err)
	}

	responses := serveLines(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"get_context","arguments":{"max_events":-5}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"get_context","arguments":{"include_effective_state":false}}}`,
	)

	clamped := structured(t, responses[0])
	require.Len(t, clamped["recent_events"].([]any), 1)
	require.Contains(t, clamped, "effective_changed_files")

	noState := structured(t, responses[1])
	require.NotContains(t, noState, "effective_changed_files")
}

func TestServe_HeaderFraming(t *testing.T) {
	s := openTestStore(t)
	body := `{"jsonrpc":"2.0","id":1,"method":"ping"}`
	input := fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body)

	var out bytes.Buffer
	server := New(s, strings.NewReader(input), &out)
	require.NoError(t, server.Serve(context.Background()))

	response := out.String()
	require.True(t, strings.HasPrefix(response, "Content-Length: "), "got %q", response)
	require.Contains(t, response, "\r\n\r\n")
	require.Contains(t, response, `"ok":true`)
}
