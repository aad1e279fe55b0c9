// Package httpapi is the thin HTTP front-end of todomesh. It accepts an
// instruction, runs it through the orchestrator and returns the current list.
//
// Routes:
//
//	POST /        {"description": "add buy milk"} -> list (or answer + list)
//	GET  /items   current list
//	GET  /ws      websocket, one instruction per text message
//	GET  /healthz liveness
//
// The conversation is chosen with the X-Session-ID header (or the session
// query parameter); it defaults to a single shared session.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/hupe1980/todomesh"
	"github.com/hupe1980/todomesh/core"
	"github.com/hupe1980/todomesh/flow"
	"github.com/hupe1980/todomesh/logging"
)

// Response modes.
const (
	ModeList   = "list"
	ModeAnswer = "answer"
)

// SessionHeader selects the conversation.
const SessionHeader = "X-Session-ID"

// maxBodyBytes bounds instruction payloads.
const maxBodyBytes = 1 << 20

// Instructor is the part of *todomesh.TodoMesh the handler needs.
type Instructor interface {
	Handle(ctx context.Context, sessionID, instruction string, optFns ...func(o *flow.RunOptions)) (*todomesh.Reply, error)
	Items(ctx context.Context) ([]core.Item, error)
}

// Options configures the Handler.
type Options struct {
	// Mode is ModeList (bare item array, default) or ModeAnswer.
	Mode string
	// Auth enables bearer token checks when non-nil.
	Auth   *Authenticator
	Logger logging.Logger
}

// Handler serves the HTTP routes.
type Handler struct {
	mesh     Instructor
	opts     Options
	logger   logging.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// New creates a Handler for mesh.
func New(mesh Instructor, optFns ...func(o *Options)) *Handler {
	opts := Options{Mode: ModeList, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &Handler{
		mesh:   mesh,
		opts:   opts,
		logger: logging.OrNoOp(opts.Logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		mux: http.NewServeMux(),
	}

	protected := http.NewServeMux()
	protected.HandleFunc("POST /{$}", h.handleInstruction)
	protected.HandleFunc("GET /items", h.handleItems)
	protected.HandleFunc("GET /ws", h.handleWebsocket)

	h.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	h.mux.Handle("/", opts.Auth.Middleware(protected))
	return h
}

// ServeHTTP implements http.Handler with permissive CORS.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+SessionHeader)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.mux.ServeHTTP(w, r)
}

// instructionRequest accepts the original {"description"} body and the more
// explicit {"instruction"}.
type instructionRequest struct {
	Description string `json:"description"`
	Instruction string `json:"instruction"`
	SessionID   string `json:"session_id"`
}

func (r instructionRequest) text() string {
	if r.Instruction != "" {
		return r.Instruction
	}
	return r.Description
}

type answerResponse struct {
	SessionID string      `json:"session_id"`
	Answer    string      `json:"answer"`
	Items     []core.Item `json:"items"`
	Rounds    int         `json:"rounds"`
}

func (h *Handler) handleInstruction(w http.ResponseWriter, r *http.Request) {
	var req instructionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	text := strings.TrimSpace(req.text())
	if text == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}

	sessionID := sessionIDFrom(r, req.SessionID)
	reply, err := h.mesh.Handle(r.Context(), sessionID, text)
	if err != nil {
		h.writeRunError(w, sessionID, err)
		return
	}

	if h.opts.Mode == ModeAnswer {
		writeJSON(w, http.StatusOK, toAnswer(reply))
		return
	}
	writeJSON(w, http.StatusOK, nonNil(reply.Items))
}

func (h *Handler) handleItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.mesh.Items(r.Context())
	if err != nil {
		h.writeRunError(w, "", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(items))
}

func (h *Handler) writeRunError(w http.ResponseWriter, sessionID string, err error) {
	status := StatusFor(err)
	h.logger.Error("httpapi.request.failed", "session_id", sessionID, "status", status, "error", err.Error())
	writeError(w, status, http.StatusText(status))
}

// StatusFor maps the error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	var (
		pErr *core.ProviderError
		sErr *core.StoreError
	)
	switch {
	case errors.As(err, &pErr):
		return http.StatusBadGateway
	case errors.As(err, &sErr):
		return http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func toAnswer(reply *todomesh.Reply) answerResponse {
	rounds := 0
	if reply.Result != nil {
		rounds = reply.Result.Rounds
	}
	return answerResponse{SessionID: reply.SessionID, Answer: reply.Answer, Items: nonNil(reply.Items), Rounds: rounds}
}

func sessionIDFrom(r *http.Request, fallback string) string {
	if id := r.Header.Get(SessionHeader); id != "" {
		return id
	}
	if id := r.URL.Query().Get("session"); id != "" {
		return id
	}
	return fallback
}

func nonNil(items []core.Item) []core.Item {
	if items == nil {
		return []core.Item{}
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
