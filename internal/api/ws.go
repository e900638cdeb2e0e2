package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
)

// wsError is sent over the socket when a message cannot be answered.
type wsError struct {
	Detail string `json:"detail"`
	Status int    `json:"status"`
}

// handleWebSocket answers chat frames on one conversation. Each text
// frame is a MessageRequest; each reply is a MessageResponse or a
// wsError. Frames are handled in order.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.lookup(w, r, id); !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "conversation", id, "error", err)
		return
	}
	defer conn.Close()

	log := s.logger.With("conversation", id, "remote", r.RemoteAddr)
	log.Info("websocket connected")

	ctx := r.Context()
	for {
		var req MessageRequest
		if err := conn.ReadJSON(&req); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				if err := conn.WriteJSON(wsError{Detail: "invalid request body", Status: http.StatusBadRequest}); err != nil {
					return
				}
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("websocket read failed", "error", err)
			}
			log.Info("websocket disconnected")
			return
		}

		resp, code, err := s.answer(ctx, id, req)
		if err != nil {
			if err := conn.WriteJSON(wsError{Detail: err.Error(), Status: code}); err != nil {
				log.Debug("websocket write failed", "error", err)
				return
			}
			continue
		}
		if err := conn.WriteJSON(resp); err != nil {
			log.Debug("websocket write failed", "error", err)
			return
		}
	}
}
