package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/marketplace/internal/api/middleware"
	"github.com/example/marketplace/internal/domain/cart"
	"github.com/example/marketplace/internal/domain/category"
	"github.com/example/marketplace/internal/domain/discount"
	"github.com/example/marketplace/internal/domain/favorites"
	"github.com/example/marketplace/internal/domain/order"
	"github.com/example/marketplace/internal/domain/product"
	"github.com/example/marketplace/internal/identity"
)

// Handlers adapts the domain services to HTTP. Request bodies decode
// straight into the services' request types; authorization decisions stay
// inside the services, this layer only translates errors to status codes.
type Handlers struct {
	categories *category.Service
	products   *product.Service
	discounts  *discount.Service
	orders     *order.Service
	carts      *cart.Service
	favorites  *favorites.Service
}

func NewHandlers(categories *category.Service, products *product.Service, discounts *discount.Service, orders *order.Service, carts *cart.Service, favs *favorites.Service) *Handlers {
	return &Handlers{
		categories: categories,
		products:   products,
		discounts:  discounts,
		orders:     orders,
		carts:      carts,
		favorites:  favs,
	}
}

// Category Handlers

func (h *Handlers) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req category.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	c, err := h.categories.Register(r.Context(), middleware.GetPrincipal(r.Context()), req)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (h *Handlers) GetCategory(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/categories/")
	c, err := h.categories.FindByID(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// Product Handlers

func (h *Handlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req product.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p, err := h.products.Register(r.Context(), middleware.GetPrincipal(r.Context()), req)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (h *Handlers) GetProducts(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 0)
	size := queryInt(r, "size", 20)
	products, err := h.products.List(r.Context(), page*size, size)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/products/")
	p, err := h.products.FindByID(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handlers) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/products/")
	if err := h.products.Delete(r.Context(), middleware.GetPrincipal(r.Context()), id); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Product deleted"})
}

// Discount Handlers

func (h *Handlers) CreateDiscount(w http.ResponseWriter, r *http.Request) {
	var req discount.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	d, err := h.discounts.Register(r.Context(), middleware.GetPrincipal(r.Context()), req)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, d)
}

func (h *Handlers) GetDiscount(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/discounts/")
	d, err := h.discounts.FindByID(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (h *Handlers) DeleteDiscount(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/discounts/")
	if err := h.discounts.Delete(r.Context(), middleware.GetPrincipal(r.Context()), id); err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Discount deleted"})
}

// Cart Handlers

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), middleware.GetPrincipal(r.Context()))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"product_id"`
		Quantity  int64  `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.carts.AddProduct(r.Context(), middleware.GetPrincipal(r.Context()), req.ProductID, req.Quantity); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	productID := extractPathParam(r.URL.Path, "/cart/items/")
	if err := h.carts.RemoveProduct(r.Context(), middleware.GetPrincipal(r.Context()), productID); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Clear(r.Context(), middleware.GetPrincipal(r.Context())); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ShippingAddress string `json:"shipping_address"`
		PromoCode       string `json:"promo_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	o, err := h.carts.Checkout(r.Context(), middleware.GetPrincipal(r.Context()), req.ShippingAddress, req.PromoCode)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, o)
}

// Favorites Handlers

func (h *Handlers) GetFavorites(w http.ResponseWriter, r *http.Request) {
	list, err := h.favorites.Get(r.Context(), middleware.GetPrincipal(r.Context()))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *Handlers) AddFavorite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"product_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.favorites.Add(r.Context(), middleware.GetPrincipal(r.Context()), req.ProductID); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	productID := extractPathParam(r.URL.Path, "/favorites/items/")
	if err := h.favorites.Remove(r.Context(), middleware.GetPrincipal(r.Context()), productID); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Order Handlers

func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req order.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	o, err := h.orders.Register(r.Context(), middleware.GetPrincipal(r.Context()), req)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, o)
}

func (h *Handlers) QuoteOrder(w http.ResponseWriter, r *http.Request) {
	var req order.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	lines, err := h.orders.Quote(r.Context(), req)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, lines)
}

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())
	page, err := h.orders.ListByOwner(r.Context(), principal.AccountID, queryInt(r, "page", 0), queryInt(r, "size", 20))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/orders/")
	o, err := h.orders.FindByID(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	principal := middleware.GetPrincipal(r.Context())
	if o.OwnerID != principal.AccountID && !principal.IsAdmin() {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/orders/")
	id := strings.TrimSuffix(path, "/cancel")

	o, err := h.orders.Cancel(r.Context(), middleware.GetPrincipal(r.Context()), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) ChangeOrderStatus(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/orders/")
	id := strings.TrimSuffix(path, "/status")

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	o, err := h.orders.ChangeStatus(r.Context(), middleware.GetPrincipal(r.Context()), id, order.Status(req.Status))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondDomainError maps domain errors onto HTTP status codes
func respondDomainError(w http.ResponseWriter, err error) {
	var missing *product.MissingCharacteristicsError

	switch {
	case errors.Is(err, identity.ErrAccessDenied):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, category.ErrNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, discount.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, cart.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, order.ErrInsufficientStock):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &missing),
		errors.Is(err, category.ErrInvalidName),
		errors.Is(err, product.ErrInvalidName),
		errors.Is(err, product.ErrInvalidPrice),
		errors.Is(err, product.ErrNoCategories),
		errors.Is(err, discount.ErrInvalidPercent),
		errors.Is(err, discount.ErrInvalidKind),
		errors.Is(err, discount.ErrNoTargets),
		errors.Is(err, discount.ErrBlankCode),
		errors.Is(err, order.ErrEmptyOrder),
		errors.Is(err, order.ErrInvalidQuantity),
		errors.Is(err, order.ErrBlankShippingAddress),
		errors.Is(err, order.ErrUnrecognizedStatus),
		errors.Is(err, cart.ErrEmptyCart):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func extractPathParam(path, prefix string) string {
	return strings.TrimPrefix(path, prefix)
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
