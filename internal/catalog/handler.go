package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/storekeeper-erp/storekeeper-erp/internal/ledger"
	"github.com/storekeeper-erp/storekeeper-erp/internal/platform/httpx"
	"github.com/storekeeper-erp/storekeeper-erp/internal/rbac"
	"github.com/storekeeper-erp/storekeeper-erp/internal/shared"
)

// Handler wires HTTP endpoints for the product catalog.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs catalog handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.CapCatalogView))
		r.Get("/products", h.handleList)
		r.Get("/products/low-stock", h.handleLowStock)
		r.Get("/products/{product}", h.handleGet)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.CapCatalogManage))
		r.Post("/products", h.handleCreate)
		r.Put("/products/{product}/stock", h.handleSetStock)
	})
}

type createProductRequest struct {
	Name           string `json:"product_name" validate:"required,max=120"`
	Category       string `json:"category" validate:"required,max=120"`
	ThresholdPoint int64  `json:"threshold_point" validate:"gte=0"`
	OpeningStock   int64  `json:"opening_stock" validate:"gte=0"`
}

type setStockRequest struct {
	NewStock int64 `json:"new_stock" validate:"gte=0"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}
	identity := shared.IdentityFromContext(r.Context())
	product, err := h.service.Create(r.Context(), CreateInput{
		Name:           req.Name,
		Category:       req.Category,
		ThresholdPoint: req.ThresholdPoint,
		OpeningStock:   req.OpeningStock,
		ActorID:        identity.ID,
	})
	if err != nil {
		h.logger.Error("catalog create", slog.String("name", req.Name), slog.String("error", err.Error()))
		httpx.RespondError(w, mapDomainError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

// handleGet accepts either a numeric id or a product name in the path.
// A purely numeric name loses to the id lookup.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "product")
	var product Product
	var err error
	if id, perr := strconv.ParseInt(key, 10, 64); perr == nil && id > 0 {
		product, err = h.service.Get(r.Context(), id)
	} else {
		product, err = h.service.GetByName(r.Context(), key)
	}
	if err != nil {
		httpx.RespondError(w, mapDomainError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("catalog list", slog.String("error", err.Error()))
		httpx.RespondError(w, mapDomainError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": products})
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.LowStock(r.Context())
	if err != nil {
		h.logger.Error("catalog low stock", slog.String("error", err.Error()))
		httpx.RespondError(w, mapDomainError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": products})
}

func (h *Handler) handleSetStock(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "product")
	var req setStockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}
	identity := shared.IdentityFromContext(r.Context())
	product, err := h.service.SetStock(r.Context(), name, req.NewStock, identity.ID)
	if err != nil {
		h.logger.Error("catalog set stock", slog.String("name", name), slog.String("error", err.Error()))
		httpx.RespondError(w, mapDomainError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func mapDomainError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ledger.ErrProductNotFound):
		return fmt.Errorf("%w: %s", httpx.ErrNotFound, err.Error())
	case errors.Is(err, ErrDuplicateName):
		return fmt.Errorf("%w: %s", httpx.ErrDuplicate, err.Error())
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ledger.ErrNegativeStock):
		return fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error())
	default:
		return err
	}
}
