package orders

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/storekeeper-erp/storekeeper-erp/internal/catalog"
	"github.com/storekeeper-erp/storekeeper-erp/internal/ledger"
	"github.com/storekeeper-erp/storekeeper-erp/internal/platform/httpx"
	"github.com/storekeeper-erp/storekeeper-erp/internal/rbac"
	"github.com/storekeeper-erp/storekeeper-erp/internal/shared"
)

// Handler wires HTTP endpoints for the order workflow.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler constructs orders handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.CapOrdersCreate))
		r.Post("/orders", h.handleCreate)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.CapOrdersView))
		r.Get("/orders", h.handleList)
		r.Get("/orders/{orderID}", h.handleGet)
		r.Get("/orders/{orderID}/approvals", h.handleApprovals)
		r.Get("/departments/{department}/orders", h.handleListByDepartment)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.CapOrdersManagerReview))
		r.Post("/orders/{orderID}/manager-review", h.handleManagerReview)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(rbac.CapOrdersRegistrarReview))
		r.Post("/orders/{orderID}/registrar-review", h.handleRegistrarReview)
	})
}

type createOrderItemRequest struct {
	ProductName    string `json:"product_name" validate:"required,max=120"`
	DemandQuantity int64  `json:"demand_quantity" validate:"gte=0"`
}

type createOrderRequest struct {
	OrderName     string                   `json:"order_name" validate:"required,max=200"`
	DeptID        string                   `json:"dept_id" validate:"required,max=64"`
	DeptAdminName string                   `json:"dept_admin_name" validate:"max=120"`
	Items         []createOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type managerAllotmentRequest struct {
	ItemID   int64  `json:"item_id" validate:"required,gt=0"`
	Quantity int64  `json:"manager_alloted_quantity" validate:"gte=0"`
	Comment  string `json:"comment" validate:"max=500"`
}

type managerReviewRequest struct {
	Approve    *bool                     `json:"approve" validate:"required"`
	Note       string                    `json:"note" validate:"max=500"`
	Allotments []managerAllotmentRequest `json:"allotments" validate:"dive"`
}

type registrarAllotmentRequest struct {
	ItemID   int64  `json:"item_id" validate:"required,gt=0"`
	Quantity int64  `json:"register_alloted_quantity" validate:"gte=0"`
	Comment  string `json:"comment" validate:"max=500"`
}

type registrarReviewRequest struct {
	Approve    *bool                       `json:"approve" validate:"required"`
	Note       string                      `json:"note" validate:"max=500"`
	Allotments []registrarAllotmentRequest `json:"allotments" validate:"dive"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}
	identity := shared.IdentityFromContext(r.Context())
	input := CreateInput{
		Name:          req.OrderName,
		DeptID:        req.DeptID,
		DeptAdminName: req.DeptAdminName,
		ActorID:       identity.ID,
	}
	if req.DeptAdminName == "" {
		input.DeptAdminName = identity.Name
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, CreateItemInput{ProductName: item.ProductName, DemandQuantity: item.DemandQuantity})
	}
	order, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.logger.Error("orders create", slog.String("dept_id", req.DeptID), slog.String("error", err.Error()))
		httpx.RespondError(w, mapDomainError(err))
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid order id", httpx.ErrValidation))
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, mapDomainError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleApprovals(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid order id", httpx.ErrValidation))
		return
	}
	trail, err := h.service.Approvals(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, mapDomainError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"approvals": trail})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.Error("orders list", slog.String("error", err.Error()))
		httpx.RespondError(w, mapDomainError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": list})
}

func (h *Handler) handleListByDepartment(w http.ResponseWriter, r *http.Request) {
	dept := chi.URLParam(r, "department")
	list, err := h.service.ListByDepartment(r.Context(), dept, parseLimit(r))
	if err != nil {
		h.logger.Error("orders list by department", slog.String("dept_id", dept), slog.String("error", err.Error()))
		httpx.RespondError(w, mapDomainError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"orders": list})
}

func (h *Handler) handleManagerReview(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid order id", httpx.ErrValidation))
		return
	}
	var req managerReviewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}
	identity := shared.IdentityFromContext(r.Context())
	input := ReviewInput{OrderID: id, Approve: *req.Approve, Note: req.Note, ReviewerName: identity.Name, ActorID: identity.ID}
	for _, a := range req.Allotments {
		input.Allotments = append(input.Allotments, AllotmentInput{ItemID: a.ItemID, Quantity: a.Quantity, Comment: a.Comment})
	}
	order, err := h.service.ManagerReview(r.Context(), input)
	if err != nil {
		h.logger.Error("orders manager review", slog.String("order_id", id.String()), slog.String("error", err.Error()))
		httpx.RespondError(w, mapDomainError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleRegistrarReview(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid order id", httpx.ErrValidation))
		return
	}
	var req registrarReviewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}
	identity := shared.IdentityFromContext(r.Context())
	input := ReviewInput{OrderID: id, Approve: *req.Approve, Note: req.Note, ReviewerName: identity.Name, ActorID: identity.ID}
	for _, a := range req.Allotments {
		input.Allotments = append(input.Allotments, AllotmentInput{ItemID: a.ItemID, Quantity: a.Quantity, Comment: a.Comment})
	}
	order, err := h.service.RegistrarReview(r.Context(), input)
	if err != nil {
		h.logger.Error("orders registrar review", slog.String("order_id", id.String()), slog.String("error", err.Error()))
		httpx.RespondError(w, mapDomainError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, order)
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
	case errors.Is(err, ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		return fmt.Errorf("%w: %s", httpx.ErrNotFound, err.Error())
	case errors.Is(err, ErrAlreadyReviewed), errors.Is(err, ErrManagerPending), errors.Is(err, ErrManagerDeclined), errors.Is(err, shared.ErrIdempotencyConflict):
		return fmt.Errorf("%w: %s", httpx.ErrConflict, err.Error())
	case errors.Is(err, ErrAllotmentBounds), errors.Is(err, ErrItemMismatch), errors.Is(err, ErrNoItems), errors.Is(err, ErrInvalidInput), errors.Is(err, ledger.ErrNegativeStock):
		return fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error())
	default:
		return err
	}
}
