package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"live-shopping-platform/internal/models"
	"live-shopping-platform/internal/repositories"
	"live-shopping-platform/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// SessionHandler handles the live session mutation endpoints
type SessionHandler struct {
	sessions services.SessionServiceInterface
	cart     services.CartServiceInterface
	timeouts services.TimeoutManagerInterface
	orders   services.OrderServiceInterface
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(
	sessions services.SessionServiceInterface,
	cart services.CartServiceInterface,
	timeouts services.TimeoutManagerInterface,
	orders services.OrderServiceInterface,
) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		cart:     cart,
		timeouts: timeouts,
		orders:   orders,
	}
}

// RegisterRoutes mounts the session API on the router
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Get("/", h.ListSessions)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Post("/status", h.UpdateStatus)
			r.Post("/cart", h.AddToCart)
			r.Get("/cart/by-status", h.GetItemsByStatus)
			r.Patch("/cart/{itemID}", h.UpdateCartQuantity)
			r.Delete("/cart/{itemID}", h.RemoveFromCart)
			r.Post("/cart/{itemID}/status", h.UpdateItemStatus)
			r.Post("/cart/{itemID}/sample", h.ToggleSample)
			r.Post("/price-override", h.SetOverridePrice)
			r.Post("/highlight", h.HighlightProduct)
			r.Post("/extend", h.ExtendTimeout)
			r.Post("/end", h.EndSession)
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// writeError maps the error taxonomy onto HTTP status codes
func writeError(w http.ResponseWriter, err error) {
	var validationErr *models.ValidationError
	var transitionErr *models.InvalidTransitionError
	var conversionErr *models.ConversionError

	switch {
	case errors.As(err, &validationErr),
		errors.Is(err, models.ErrBatchNotFound),
		errors.Is(err, models.ErrInsufficientStock):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.As(err, &transitionErr),
		errors.Is(err, models.ErrSessionClosed):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, models.ErrSessionNotFound),
		errors.Is(err, models.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.As(err, &conversionErr):
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), Retryable: true})
	default:
		log.Printf("Unhandled error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func sessionIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, models.NewValidationError("session_id", "invalid session id")
	}
	return id, nil
}

func itemIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, models.NewValidationError("item_id", "invalid cart item id")
	}
	return id, nil
}

func decodeBody(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return models.NewValidationError("body", "invalid JSON body")
	}
	return nil
}

// CreateSession opens a new live session
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req models.SessionCreateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	session, err := h.sessions.CreateSession(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// ListSessions lists sessions with optional status/client filters
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	filters := repositories.SessionFilters{
		Status: models.SessionStatus(r.URL.Query().Get("status")),
	}
	if clientID := r.URL.Query().Get("client_id"); clientID != "" {
		id, err := strconv.ParseInt(clientID, 10, 64)
		if err != nil {
			writeError(w, models.NewValidationError("client_id", "invalid client id"))
			return
		}
		filters.ClientID = id
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			writeError(w, models.NewValidationError("limit", "invalid limit"))
			return
		}
		filters.Limit = n
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil {
			writeError(w, models.NewValidationError("offset", "invalid offset"))
			return
		}
		filters.Offset = n
	}

	sessions, err := h.sessions.ListSessions(r.Context(), filters)
	if err != nil {
		writeError(w, err)
		return
	}
	if sessions == nil {
		sessions = []*models.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

type sessionDetail struct {
	*models.Session
	Cart *models.CartState `json:"cart"`
}

// GetSession returns a session together with its current cart
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	session, err := h.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	cart, err := h.cart.GetCart(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionDetail{Session: session, Cart: cart})
}

// UpdateStatus moves a session along its state machine
func (h *SessionHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Status models.SessionStatus `json:"status"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	session, err := h.sessions.UpdateStatus(r.Context(), sessionID, req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// AddToCart adds a batch to the session cart
func (h *SessionHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		BatchID    int64             `json:"batch_id"`
		Quantity   decimal.Decimal   `json:"quantity"`
		ItemStatus models.ItemStatus `json:"item_status"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	var cart *models.CartState
	if req.ItemStatus != "" {
		cart, err = h.cart.AddItemWithStatus(r.Context(), sessionID, req.BatchID, req.Quantity, req.ItemStatus)
	} else {
		cart, err = h.cart.AddItem(r.Context(), sessionID, req.BatchID, req.Quantity)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// UpdateItemStatus moves a cart line along the three-status workflow
func (h *SessionHandler) UpdateItemStatus(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	itemID, err := itemIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Status models.ItemStatus `json:"status"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	cart, err := h.cart.UpdateItemStatus(r.Context(), sessionID, itemID, req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// ToggleSample flags or unflags a cart line as a physical sample
func (h *SessionHandler) ToggleSample(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	itemID, err := itemIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		IsSample bool `json:"is_sample"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	cart, err := h.cart.ToggleSample(r.Context(), sessionID, itemID, req.IsSample)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// GetItemsByStatus returns the cart grouped by workflow status
func (h *SessionHandler) GetItemsByStatus(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	groups, err := h.cart.ItemsByStatus(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// UpdateCartQuantity replaces a cart line's quantity
func (h *SessionHandler) UpdateCartQuantity(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	itemID, err := itemIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Quantity decimal.Decimal `json:"quantity"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	cart, err := h.cart.UpdateQuantity(r.Context(), sessionID, itemID, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// RemoveFromCart deletes a cart line; removing an absent line succeeds
func (h *SessionHandler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	itemID, err := itemIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	cart, err := h.cart.RemoveItem(r.Context(), sessionID, itemID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// SetOverridePrice records a staff price override
func (h *SessionHandler) SetOverridePrice(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		CartItemID int64           `json:"cart_item_id"`
		ProductID  int64           `json:"product_id"`
		Price      decimal.Decimal `json:"price"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ref := services.PriceOverrideRef{CartItemID: req.CartItemID, ProductID: req.ProductID}
	cart, err := h.cart.SetOverridePrice(r.Context(), sessionID, ref, req.Price)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// HighlightProduct highlights one cart line and clears all others
func (h *SessionHandler) HighlightProduct(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		BatchID       int64 `json:"batch_id"`
		IsHighlighted bool  `json:"is_highlighted"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	cart, err := h.cart.HighlightItem(r.Context(), sessionID, req.BatchID, req.IsHighlighted)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// ExtendTimeout resets a live session's expiry clock
func (h *SessionHandler) ExtendTimeout(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		NewExpiresAt time.Time `json:"new_expires_at"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	session, err := h.timeouts.Extend(r.Context(), sessionID, req.NewExpiresAt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// EndSession ends a session, optionally converting its cart to an order
func (h *SessionHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := sessionIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		ConvertToOrder bool `json:"convert_to_order"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.orders.EndSession(r.Context(), sessionID, req.ConvertToOrder)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
