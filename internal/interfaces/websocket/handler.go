// Package websocket delivers streaming generation chunks over a
// gorilla/websocket connection (spec §6 streaming boundary), grounded on
// internal/interfaces/websocket/handler.go's upgrade/read/write-pump shape,
// narrowed from a general chat hub down to one-request-per-connection
// generation streaming.
package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/localagent/runtime/internal/application/orchestrator"
	"github.com/localagent/runtime/internal/domain/entity"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// generateRequest is the single inbound message a client sends after
// connecting: the generation request to stream.
type generateRequest struct {
	SessionID   string   `json:"session_id"`
	MaxTokens   *int     `json:"max_tokens"`
	Temperature *float64 `json:"temperature"`
	TopP        *float64 `json:"top_p"`
	StopTokens  []string `json:"stop_tokens"`
}

// outboundChunk mirrors entity.StreamChunk for the wire.
type outboundChunk struct {
	Text       string `json:"text,omitempty"`
	IsComplete bool   `json:"is_complete"`
	TokenCount int    `json:"token_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Handler upgrades one HTTP connection to a websocket, reads exactly one
// generate request, and streams chunks back until completion or error.
type Handler struct {
	orch   *orchestrator.Orchestrator
	logger *zap.Logger
}

func NewHandler(orch *orchestrator.Orchestrator, logger *zap.Logger) *Handler {
	return &Handler{orch: orch, logger: logger}
}

func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetReadLimit(64 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	var req generateRequest
	if err := conn.ReadJSON(&req); err != nil {
		h.writeError(conn, "malformed generate request: "+err.Error())
		return
	}

	chunks, err := h.orch.GenerateStream(r.Context(), entity.GenerationRequest{
		SessionID:   entity.SessionID(req.SessionID),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		StopTokens:  req.StopTokens,
	})
	if err != nil {
		h.writeError(conn, err.Error())
		return
	}

	for chunk := range chunks {
		out := outboundChunk{Text: chunk.Text, IsComplete: chunk.IsComplete, TokenCount: chunk.TokenCount}
		if chunk.Err != nil {
			out.Error = chunk.Err.Error()
		}
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(out); err != nil {
			h.logger.Debug("websocket write failed, abandoning stream", zap.Error(err))
			return
		}
	}
}

func (h *Handler) writeError(conn *websocket.Conn, message string) {
	_ = conn.WriteJSON(outboundChunk{IsComplete: true, Error: message})
}
