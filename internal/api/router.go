// Package api is the REST surface of the chat service.
package api

import (
	"context"
	"net/http"

	"chatter/internal/account"
	"chatter/internal/chat"
	"chatter/internal/groups"
	"chatter/internal/models"

	"github.com/gorilla/mux"
)

type TokenValidator interface {
	Validate(token string) (models.Identity, error)
}

type Accounts interface {
	Register(ctx context.Context, req account.RegisterRequest) (*models.User, error)
	Login(ctx context.Context, email, password string) (string, *models.User, error)
}

type Groups interface {
	Create(ctx context.Context, who models.Identity, req groups.CreateRequest) (*models.Group, error)
	Leave(ctx context.Context, who models.Identity, groupId string) (*models.Group, error)
	ChangeOwner(ctx context.Context, who models.Identity, groupId, newOwnerId string) (*models.Group, error)
	MemberGroups(ctx context.Context, who models.Identity) ([]*models.Group, error)
	OwnedGroups(ctx context.Context, who models.Identity) ([]*models.Group, error)
	Members(ctx context.Context, groupId string) ([]models.Member, error)
}

type Messages interface {
	SendText(ctx context.Context, connId string, who models.Identity, groupId, content string) (*models.MessageView, error)
	SendImage(ctx context.Context, connId string, who models.Identity, groupId, caption string, img chat.Image) (*models.MessageView, error)
	History(ctx context.Context, who models.Identity, groupId string) ([]models.MessageView, error)
	DeleteMessage(ctx context.Context, who models.Identity, messageId string) error
	SmartReplies(ctx context.Context, who models.Identity, groupId string) ([]string, error)
}

// Realtime is the view of the gateway the chat endpoints need.
type Realtime interface {
	ClientCount() int
	IsUserConnected(userId string) bool
	BroadcastAll(eventType string, data any)
}

type Deps struct {
	Tokens   TokenValidator
	Accounts Accounts
	Groups   Groups
	Messages Messages
	Realtime Realtime

	// WebSocket upgrades and signed media downloads are mounted as given.
	WebSocket http.Handler
	Media     http.Handler
}

type Handler struct {
	Deps
}

// NewRouter builds every route of the service.
func NewRouter(deps Deps) *mux.Router {
	h := &Handler{Deps: deps}
	r := mux.NewRouter()

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	if deps.WebSocket != nil {
		r.Handle("/ws", deps.WebSocket)
	}
	if deps.Media != nil {
		r.PathPrefix("/media/").Handler(deps.Media).Methods(http.MethodGet, http.MethodHead)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(requestLogger)

	api.HandleFunc("/auth/register", h.Register).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)
	api.HandleFunc("/chat/status", h.ChatStatus).Methods(http.MethodGet)

	authed := api.NewRoute().Subrouter()
	authed.Use(h.requireAuth)

	authed.HandleFunc("/groups/create", h.CreateGroup).Methods(http.MethodPost)
	authed.HandleFunc("/groups/leave/{groupId}", h.LeaveGroup).Methods(http.MethodPost)
	authed.HandleFunc("/groups/change-owner", h.ChangeOwner).Methods(http.MethodPost)
	authed.HandleFunc("/groups/member-groups", h.MemberGroups).Methods(http.MethodGet)
	authed.HandleFunc("/groups/owned-groups", h.OwnedGroups).Methods(http.MethodGet)
	authed.HandleFunc("/groups/{groupId}/members", h.GroupMembers).Methods(http.MethodGet)

	authed.HandleFunc("/messages/group/{groupId}", h.GroupMessages).Methods(http.MethodGet)
	authed.HandleFunc("/messages/text", h.PostText).Methods(http.MethodPost)
	authed.HandleFunc("/messages/image", h.PostImage).Methods(http.MethodPost)
	authed.HandleFunc("/messages/smart-replies", h.SmartReplies).Methods(http.MethodPost)
	authed.HandleFunc("/messages/{messageId}", h.DeleteMessage).Methods(http.MethodDelete)

	authed.HandleFunc("/chat/users/{userId}/connected", h.UserConnected).Methods(http.MethodGet)
	authed.HandleFunc("/chat/broadcast", h.Broadcast).Methods(http.MethodPost)

	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
