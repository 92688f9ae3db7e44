package handlers

import (
	"net/http"

	"github.com/dom/neighbor-group/internal/api/middleware"
	"github.com/dom/neighbor-group/internal/service"
	"github.com/dom/neighbor-group/internal/websocket"
	"github.com/go-chi/chi/v5"
	ws "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type WebSocketHandler struct {
	hub        *websocket.Hub
	membership *service.MembershipAuthorizer
	log        *logrus.Logger
}

func NewWebSocketHandler(hub *websocket.Hub, membership *service.MembershipAuthorizer, log *logrus.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:        hub,
		membership: membership,
		log:        log,
	}
}

// Handle upgrades a member's connection to a group's live feed. The caller
// is identified by the session cookie (or Bearer header) like any other
// request.
func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	slug := chi.URLParam(r, "slug")
	group, err := h.membership.Gate(r.Context(), slug, userID)
	if err != nil {
		if status := respondError(w, err); status >= http.StatusInternalServerError {
			h.log.WithError(err).Error("[WebSocketHandler.Handle] membership gate")
		}
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("[WebSocketHandler.Handle] upgrade failed")
		return
	}

	client := websocket.NewClient(h.hub, conn, group.ID, userID)
	h.hub.Register(client)

	if msg, err := websocket.NewMessage(websocket.MessageTypeConnected, websocket.ConnectedPayload{
		GroupID: group.ID,
		Slug:    group.Slug,
		UserID:  userID,
	}); err == nil {
		client.Send(msg)
	}

	go client.WritePump()
	go client.ReadPump()
}
