package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/dom/neighbor-group/internal/api/middleware"
	"github.com/dom/neighbor-group/internal/domain"
	"github.com/dom/neighbor-group/internal/service"
	"github.com/dom/neighbor-group/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

type GroupHandler struct {
	groups     *service.GroupService
	membership *service.MembershipAuthorizer
	hub        *websocket.Hub
	log        *logrus.Logger
}

func NewGroupHandler(groups *service.GroupService, membership *service.MembershipAuthorizer, hub *websocket.Hub, log *logrus.Logger) *GroupHandler {
	return &GroupHandler{
		groups:     groups,
		membership: membership,
		hub:        hub,
		log:        log,
	}
}

type CreateGroupRequest struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

type PostMessageRequest struct {
	Body string `json:"body"`
}

type GroupResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

type MessageResponse struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

type GroupViewResponse struct {
	Group       GroupResponse     `json:"group"`
	Messages    []MessageResponse `json:"messages"`
	MemberCount int64             `json:"memberCount"`
}

type MembershipResponse struct {
	Group  GroupResponse `json:"group"`
	Member bool          `json:"member"`
}

// JoinPromptResponse is the 403 body for signed-in non-members.
type JoinPromptResponse struct {
	ErrorResponse
	Join string `json:"join"`
}

func newGroupResponse(g *domain.Group) GroupResponse {
	return GroupResponse{
		ID:          g.ID,
		Name:        g.Name,
		Slug:        g.Slug,
		Description: g.Description,
	}
}

func newMessageResponse(m *domain.Message) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		UserID:    m.UserID,
		Body:      m.Body,
		CreatedAt: m.CreatedAt,
	}
}

func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	groups, err := h.groups.List(r.Context())
	if err != nil {
		h.fail(w, r, "List", err)
		return
	}

	resp := make([]GroupResponse, 0, len(groups))
	for _, g := range groups {
		resp = append(resp, newGroupResponse(g))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}

	group, err := h.groups.Create(r.Context(), middleware.UserID(r.Context()), service.NewGroup{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
	})
	if err != nil {
		h.fail(w, r, "Create", err)
		return
	}
	writeJSON(w, http.StatusCreated, newGroupResponse(group))
}

func (h *GroupHandler) View(w http.ResponseWriter, r *http.Request) {
	view, err := h.groups.View(r.Context(), chi.URLParam(r, "slug"), middleware.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, "View", err)
		return
	}

	messages := make([]MessageResponse, 0, len(view.Messages))
	for _, m := range view.Messages {
		messages = append(messages, newMessageResponse(m))
	}
	writeJSON(w, http.StatusOK, GroupViewResponse{
		Group:       newGroupResponse(view.Group),
		Messages:    messages,
		MemberCount: view.MemberCount,
	})
}

func (h *GroupHandler) Join(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.CurrentUser(r.Context())
	group, err := h.membership.JoinBySlug(r.Context(), chi.URLParam(r, "slug"), middleware.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, "Join", err)
		return
	}

	if msg, err := websocket.NewMessage(websocket.MessageTypeMemberJoined, websocket.MembershipPayload{
		GroupID: group.ID,
		UserID:  user.ID,
		Name:    user.Name,
		Slug:    user.Slug,
	}); err == nil {
		h.hub.Broadcast(group.ID, msg)
	}
	writeJSON(w, http.StatusOK, MembershipResponse{Group: newGroupResponse(group), Member: true})
}

func (h *GroupHandler) Leave(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.CurrentUser(r.Context())
	group, err := h.membership.LeaveBySlug(r.Context(), chi.URLParam(r, "slug"), middleware.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, "Leave", err)
		return
	}

	h.hub.Disconnect(group.ID, user.ID)
	if msg, err := websocket.NewMessage(websocket.MessageTypeMemberLeft, websocket.MembershipPayload{
		GroupID: group.ID,
		UserID:  user.ID,
		Name:    user.Name,
		Slug:    user.Slug,
	}); err == nil {
		h.hub.Broadcast(group.ID, msg)
	}
	writeJSON(w, http.StatusOK, MembershipResponse{Group: newGroupResponse(group), Member: false})
}

func (h *GroupHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request body")
		return
	}

	user, _ := middleware.CurrentUser(r.Context())
	message, err := h.groups.PostMessage(r.Context(), chi.URLParam(r, "slug"), middleware.UserID(r.Context()), req.Body)
	if err != nil {
		h.fail(w, r, "PostMessage", err)
		return
	}

	if msg, err := websocket.NewMessage(websocket.MessageTypeMessagePosted, websocket.MessagePostedPayload{
		ID:         message.ID,
		GroupID:    message.GroupID,
		UserID:     message.UserID,
		AuthorName: user.Name,
		AuthorSlug: user.Slug,
		Body:       message.Body,
		CreatedAt:  message.CreatedAt,
	}); err == nil {
		h.hub.Broadcast(message.GroupID, msg)
	}
	writeJSON(w, http.StatusCreated, newMessageResponse(message))
}

// fail renders group errors. Anonymous callers are sent to the login page
// with a redirect back; non-members get a join prompt.
func (h *GroupHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		target := "/login?redirect=" + url.QueryEscape(groupPath(chi.URLParam(r, "slug")))
		http.Redirect(w, r, target, http.StatusSeeOther)
	case errors.Is(err, domain.ErrForbidden):
		slug := chi.URLParam(r, "slug")
		writeJSON(w, http.StatusForbidden, JoinPromptResponse{
			ErrorResponse: ErrorResponse{
				Error: "You are not a member of this group. Join it to see its messages.",
				Code:  "NOT_A_MEMBER",
			},
			Join: "/api/v1/groups/" + url.PathEscape(slug) + "/join",
		})
	default:
		if status := respondError(w, err); status >= http.StatusInternalServerError {
			h.log.WithError(err).Errorf("[GroupHandler.%s] unexpected error", op)
		}
	}
}

func groupPath(slug string) string {
	if slug == "" {
		return "/"
	}
	return "/" + url.PathEscape(slug)
}
