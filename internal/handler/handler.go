package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Dan9191/card-service/internal/idempotency"
	"github.com/Dan9191/card-service/internal/middleware"
	"github.com/Dan9191/card-service/internal/models"
	"github.com/Dan9191/card-service/internal/service"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// IdempotencyHeader names the optional transfer retry key.
const IdempotencyHeader = "Idempotency-Key"

// Handler serves the card API
type Handler struct {
	cards   *service.CardService
	auth    *service.AuthService
	idem    idempotency.Store
	idemTTL time.Duration
	log     *logrus.Logger
}

// NewHandler creates a handler. idem may be nil, which disables idempotency keys.
func NewHandler(cards *service.CardService, auth *service.AuthService, idem idempotency.Store, idemTTL time.Duration, log *logrus.Logger) *Handler {
	return &Handler{cards: cards, auth: auth, idem: idem, idemTTL: idemTTL, log: log}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type balanceResponse struct {
	ID      int64           `json:"id"`
	Balance decimal.Decimal `json:"balance"`
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, models.ErrInvalidRequest)
		return
	}
	user, err := h.auth.Register(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, user)
}

// Login handles user authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, models.ErrInvalidRequest)
		return
	}
	token, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// GetUser returns a user profile
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	user, err := h.auth.GetUser(r.Context(), principal(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}

// RequestCard handles a card issue request
func (h *Handler) RequestCard(w http.ResponseWriter, r *http.Request) {
	card, err := h.cards.RequestCard(r.Context(), principal(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, card)
}

// ListUserCards lists the caller's cards
func (h *Handler) ListUserCards(w http.ResponseWriter, r *http.Request) {
	page, ok := h.pageRequest(w, r)
	if !ok {
		return
	}
	result, err := h.cards.ListUserCards(r.Context(), principal(r), page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// GetBalance returns the balance of the caller's card
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	balance, err := h.cards.GetBalance(r.Context(), principal(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, balanceResponse{ID: id, Balance: balance})
}

// RequestBlock handles a block request by the card owner
func (h *Handler) RequestBlock(w http.ResponseWriter, r *http.Request) {
	h.cardAction(w, r, h.cards.RequestBlock)
}

// Transfer moves funds between two of the caller's cards
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req models.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, models.ErrInvalidRequest)
		return
	}
	p := principal(r)

	var key string
	if h.idem != nil && r.Header.Get(IdempotencyHeader) != "" {
		key = fmt.Sprintf("transfer:%d:%s", p.UserID, r.Header.Get(IdempotencyHeader))
		reserved, err := h.idem.Reserve(r.Context(), key, h.idemTTL)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if !reserved {
			h.writeError(w, r, models.ErrDuplicateRequest)
			return
		}
	}

	if err := h.cards.Transfer(r.Context(), p, id, req); err != nil {
		if key != "" {
			if rerr := h.idem.Release(r.Context(), key); rerr != nil {
				h.log.WithError(rerr).Error("Failed to release idempotency key")
			}
		}
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApproveCard activates a requested card
func (h *Handler) ApproveCard(w http.ResponseWriter, r *http.Request) {
	h.cardAction(w, r, h.cards.ApproveCard)
}

// ConfirmBlock blocks a card awaiting block
func (h *Handler) ConfirmBlock(w http.ResponseWriter, r *http.Request) {
	h.cardAction(w, r, h.cards.ConfirmBlock)
}

// ActivateCard unblocks a blocked card
func (h *Handler) ActivateCard(w http.ResponseWriter, r *http.Request) {
	h.cardAction(w, r, h.cards.ActivateCard)
}

// ListAllCards lists every card
func (h *Handler) ListAllCards(w http.ResponseWriter, r *http.Request) {
	page, ok := h.pageRequest(w, r)
	if !ok {
		return
	}
	result, err := h.cards.ListAllCards(r.Context(), principal(r), page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// DeleteCard removes a card
func (h *Handler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.cards.DeleteCard(r.Context(), principal(r), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type cardOperation func(ctx context.Context, p models.Principal, cardID int64) (models.CardResponse, error)

func (h *Handler) cardAction(w http.ResponseWriter, r *http.Request, op cardOperation) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	card, err := op(r.Context(), principal(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, card)
}

func principal(r *http.Request) models.Principal {
	p, _ := middleware.PrincipalFrom(r.Context())
	return p
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		middleware.WriteError(w, r, http.StatusBadRequest, "Invalid card ID")
		return 0, false
	}
	return id, true
}

func (h *Handler) pageRequest(w http.ResponseWriter, r *http.Request) (models.PageRequest, bool) {
	var page models.PageRequest
	q := r.URL.Query()
	for name, dst := range map[string]*int{"page": &page.Number, "size": &page.Size} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			middleware.WriteError(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid %s parameter", name))
			return models.PageRequest{}, false
		}
		*dst = v
	}
	return page, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.WithError(err).Error("Failed to write JSON response")
	}
}
