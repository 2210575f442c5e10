package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/atmo-climate/atmo/internal/chain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsRequest is the incoming WebSocket message format.
type wsRequest struct {
	Type      string  `json:"type" validate:"required,oneof=ask"`
	SessionID string  `json:"session_id" validate:"omitempty,max=128"`
	Content   *string `json:"content" validate:"required,max=8000"`
}

// wsResponse is the outgoing WebSocket message format. Type is a fragment
// kind, or "error" for request problems.
type wsResponse struct {
	Type       string `json:"type"`
	SessionID  string `json:"session_id"`
	Content    string `json:"content,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// handleWebSocket answers questions over a WebSocket, one JSON message per
// fragment. Questions on one connection are answered in order.
func handleWebSocket(g *Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			g.logger.Warn("websocket upgrade", zap.Error(err))
			return
		}
		defer conn.Close()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					g.logger.Warn("websocket read", zap.Error(err))
				}
				return
			}

			var req wsRequest
			if err := json.Unmarshal(msg, &req); err != nil {
				if !sendWS(g, conn, wsResponse{Type: string(chain.KindError), Content: "invalid message format"}) {
					return
				}
				continue
			}
			if err := validateStruct(req); err != nil {
				if !sendWS(g, conn, wsResponse{Type: string(chain.KindError), SessionID: req.SessionID, Content: err.Error()}) {
					return
				}
				continue
			}

			turn, err := g.Begin(r.Context(), req.SessionID, *req.Content)
			if err != nil {
				resp := wsResponse{Type: string(chain.KindError), Content: err.Error()}
				if setup, ok := err.(*SetupError); ok {
					resp.SessionID = setup.SessionID
				}
				if !sendWS(g, conn, resp) {
					return
				}
				continue
			}

			for f := range turn.Fragments() {
				resp := wsResponse{
					Type:       string(f.Kind),
					SessionID:  turn.SessionID,
					Content:    f.Text,
					Transcript: f.Transcript,
				}
				if !sendWS(g, conn, resp) {
					return
				}
			}
		}
	}
}

func sendWS(g *Gateway, conn *websocket.Conn, resp wsResponse) bool {
	if err := conn.WriteJSON(resp); err != nil {
		g.logger.Info("websocket write", zap.Error(err))
		return false
	}
	return true
}
