package api

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"go.brokerconsole.dev/internal/broker"
)

// UserClient is the part of the broker client used for user management
type UserClient interface {
	ListUsers(ctx context.Context) ([]broker.User, error)
	CreateUser(ctx context.Context, req broker.CreateUserRequest) (*broker.User, error)
	RemoveUser(ctx context.Context, username string) error
}

// Broker user types
const (
	UserTypeManagement  = "management"
	UserTypeApplication = "application"
)

// minSearchLen is the shortest search term that filters the user list
const minSearchLen = 2

// UsersHandler manages broker users
type UsersHandler struct {
	client UserClient
}

// NewUsersHandler creates a users handler
func NewUsersHandler(client UserClient) *UsersHandler {
	return &UsersHandler{client: client}
}

// RegisterRoutes registers user routes
func (h *UsersHandler) RegisterRoutes(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Delete("/{username}", h.Remove)
	})
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	UserType string `json:"user_type"`
	AvatarID int    `json:"avatar_id"`
}

// List returns users oldest first, filtered by ?search= on username or
// user type
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.client.ListUsers(r.Context())
	if err != nil {
		WriteBrokerError(w, "list users", err)
		return
	}

	sort.SliceStable(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})

	WriteJSON(w, http.StatusOK, filterUsers(users, r.URL.Query().Get("search")))
}

func filterUsers(users []broker.User, search string) []broker.User {
	term := strings.ToLower(strings.TrimSpace(search))
	if len(term) < minSearchLen {
		return users
	}
	matched := make([]broker.User, 0, len(users))
	for _, u := range users {
		if strings.Contains(strings.ToLower(u.Username), term) ||
			strings.Contains(strings.ToLower(u.UserType), term) {
			matched = append(matched, u)
		}
	}
	return matched
}

// Create adds a broker user
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteBadRequest(w, "Invalid request body: "+err.Error())
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.UserType = strings.ToLower(strings.TrimSpace(req.UserType))
	if req.Username == "" {
		WriteBadRequest(w, "username is required")
		return
	}
	if req.UserType != UserTypeManagement && req.UserType != UserTypeApplication {
		WriteBadRequest(w, "user_type must be management or application")
		return
	}

	user, err := h.client.CreateUser(r.Context(), broker.CreateUserRequest{
		Username: req.Username,
		Password: req.Password,
		UserType: req.UserType,
		AvatarID: req.AvatarID,
	})
	if err != nil {
		WriteBrokerError(w, "create user", err)
		return
	}
	WriteJSON(w, http.StatusCreated, user)
}

// Remove deletes a broker user
func (h *UsersHandler) Remove(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if err := h.client.RemoveUser(r.Context(), username); err != nil {
		WriteBrokerError(w, "remove user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
