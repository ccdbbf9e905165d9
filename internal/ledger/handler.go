package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/storekeeper-erp/storekeeper-erp/internal/platform/httpx"
	"github.com/storekeeper-erp/storekeeper-erp/internal/rbac"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler constructs ledger handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.CapLedgerView))
		r.Get("/products/{product}/transactions", h.handleListByProduct)
		r.Get("/departments/{department}/transactions", h.handleListByDepartment)
	})
}

func (h *Handler) handleListByProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "product"), 10, 64)
	if err != nil || productID <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid product id", httpx.ErrValidation))
		return
	}
	txs, err := h.service.ListByProduct(r.Context(), productID, parseLimit(r))
	if err != nil {
		h.logger.Error("ledger list by product", slog.Int64("product_id", productID), slog.String("error", err.Error()))
		httpx.RespondError(w, mapDomainError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (h *Handler) handleListByDepartment(w http.ResponseWriter, r *http.Request) {
	department := chi.URLParam(r, "department")
	if department == "" {
		httpx.RespondError(w, fmt.Errorf("%w: department required", httpx.ErrValidation))
		return
	}
	txs, err := h.service.ListByDepartment(r.Context(), department, parseLimit(r))
	if err != nil {
		h.logger.Error("ledger list by department", slog.String("department", department), slog.String("error", err.Error()))
		httpx.RespondError(w, mapDomainError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func parseLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

func mapDomainError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrProductNotFound):
		return fmt.Errorf("%w: %s", httpx.ErrNotFound, err.Error())
	case errors.Is(err, ErrNegativeStock), errors.Is(err, ErrNegativeChange), errors.Is(err, ErrInvalidType):
		return fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error())
	default:
		return err
	}
}
