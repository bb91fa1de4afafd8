package handler

import (
	"net/http"

	"github.com/Dan9191/card-service/internal/metrics"
	"github.com/Dan9191/card-service/internal/middleware"
	"github.com/Dan9191/card-service/internal/models"
	"github.com/gorilla/mux"
)

// NewRouter wires the API routes.
func NewRouter(h *Handler, auth middleware.Authenticator) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(h.log))

	// Public routes
	r.HandleFunc("/api/auth/registration", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login", h.Login).Methods(http.MethodPost)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// Protected routes
	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.AuthMiddleware(auth, h.log))
	api.HandleFunc("/users/{id:[0-9]+}", h.GetUser).Methods(http.MethodGet)
	api.HandleFunc("/cards", h.ListUserCards).Methods(http.MethodGet)
	api.HandleFunc("/cards/create", h.RequestCard).Methods(http.MethodPost)
	api.HandleFunc("/cards/{id:[0-9]+}/balance", h.GetBalance).Methods(http.MethodGet)
	api.HandleFunc("/cards/{id:[0-9]+}/block", h.RequestBlock).Methods(http.MethodPost)
	api.HandleFunc("/cards/{id:[0-9]+}/transfer", h.Transfer).Methods(http.MethodPost)

	// Admin routes
	admin := api.PathPrefix("/admin/cards").Subrouter()
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	admin.HandleFunc("/all", h.ListAllCards).Methods(http.MethodGet)
	admin.HandleFunc("/{id:[0-9]+}/approve", h.ApproveCard).Methods(http.MethodPost)
	admin.HandleFunc("/{id:[0-9]+}/block", h.ConfirmBlock).Methods(http.MethodPost)
	admin.HandleFunc("/{id:[0-9]+}/activate", h.ActivateCard).Methods(http.MethodPost)
	admin.HandleFunc("/{id:[0-9]+}/delete", h.DeleteCard).Methods(http.MethodDelete)

	return r
}
