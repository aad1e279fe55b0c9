package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/hupe1980/todomesh/core"
	"github.com/hupe1980/todomesh/flow"
	"github.com/hupe1980/todomesh/tool"
)

// Frame types sent over the websocket.
const (
	FrameDelta  = "delta"
	FrameTool   = "tool"
	FrameResult = "result"
	FrameError  = "error"
)

// Frame is one server-to-client websocket message.
type Frame struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Text      string      `json:"text,omitempty"`
	Tool      string      `json:"tool,omitempty"`
	Answer    string      `json:"answer,omitempty"`
	Items     []core.Item `json:"items,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// handleWebsocket upgrades the connection and processes one instruction per
// text message, in order. Streamed text and tool results are pushed as they
// happen; every instruction ends with a result or error frame.
func (h *Handler) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("httpapi.ws.upgrade_failed", "error", err.Error())
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	send := func(f Frame) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(f)
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("httpapi.ws.read_failed", "error", err.Error())
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		text, msgSession := parseWebsocketInstruction(data)
		if text == "" {
			if err := send(Frame{Type: FrameError, Error: "description is required"}); err != nil {
				return
			}
			continue
		}

		sessionID := sessionIDFrom(r, msgSession)
		reply, err := h.mesh.Handle(r.Context(), sessionID, text, func(o *flow.RunOptions) {
			o.OnPartial = func(delta string) { _ = send(Frame{Type: FrameDelta, Text: delta}) }
			o.OnToolResult = func(res tool.Result) { _ = send(Frame{Type: FrameTool, Tool: res.Name, Text: res.Content}) }
		})
		if err != nil {
			h.logger.Error("httpapi.ws.instruction_failed", "session_id", sessionID, "error", err.Error())
			if err := send(Frame{Type: FrameError, Error: err.Error()}); err != nil {
				return
			}
			continue
		}

		if err := send(Frame{Type: FrameResult, SessionID: reply.SessionID, Answer: reply.Answer, Items: nonNil(reply.Items)}); err != nil {
			return
		}
	}
}

// parseWebsocketInstruction accepts either a JSON instruction body or raw text.
// A JSON body may name its session; the connection's header or query session
// still takes precedence, as for POST /.
func parseWebsocketInstruction(data []byte) (text, sessionID string) {
	var req instructionRequest
	if err := json.Unmarshal(data, &req); err == nil {
		return strings.TrimSpace(req.text()), req.SessionID
	}
	return strings.TrimSpace(string(data)), ""
}
