package orders

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ApprovalState is the explicit review outcome for one stage. New
// orders start PENDING on both stages and each stage is decided at
// most once.
type ApprovalState string

const (
	// ApprovalPending means the stage has not been reviewed yet.
	ApprovalPending ApprovalState = "PENDING"
	// ApprovalApproved means the reviewer accepted the stage.
	ApprovalApproved ApprovalState = "APPROVED"
	// ApprovalDeclined means the reviewer rejected the stage.
	ApprovalDeclined ApprovalState = "DECLINED"
)

// Item is one requested product line on an order. Each review stage
// may attach a free-text comment alongside its allotment.
type Item struct {
	ID              int64     `json:"id"`
	OrderID         uuid.UUID `json:"order_id"`
	ProductID       int64     `json:"product_id"`
	ProductName     string    `json:"product_name"`
	DemandQuantity  int64     `json:"demand_quantity"`
	ManagerAlloted  *int64    `json:"manager_alloted_quantity"`
	RegisterAlloted *int64    `json:"register_alloted_quantity"`
	ManagerComment  string    `json:"manager_comment,omitempty"`
	RegisterComment string    `json:"register_comment,omitempty"`
}

// Order is a departmental supply requisition moving through the
// two-stage review. Each decided stage records who reviewed it and
// when.
type Order struct {
	ID                 uuid.UUID     `json:"id"`
	InvoiceNo          string        `json:"invoice_no"`
	Name               string        `json:"order_name"`
	DeptID             string        `json:"dept_id"`
	DeptAdminName      string        `json:"dept_admin_name"`
	ManagerState       ApprovalState `json:"manager_approval_state"`
	RegisterState      ApprovalState `json:"register_approval_state"`
	StoreManagerName   string        `json:"store_manager_name,omitempty"`
	RegisterName       string        `json:"register_name,omitempty"`
	ManagerReviewedAt  *time.Time    `json:"manager_reviewed_at,omitempty"`
	RegisterReviewedAt *time.Time    `json:"register_reviewed_at,omitempty"`
	Items              []Item        `json:"items"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// CreateItemInput is one requested line, addressed by product name at
// the boundary.
type CreateItemInput struct {
	ProductName    string
	DemandQuantity int64
}

// CreateInput carries the fields needed to submit an order.
type CreateInput struct {
	Name          string
	DeptID        string
	DeptAdminName string
	ActorID       int64
	Items         []CreateItemInput
}

// AllotmentInput assigns a quantity and an optional comment to one
// item during review. Items without an allotment keep their prior
// value.
type AllotmentInput struct {
	ItemID   int64
	Quantity int64
	Comment  string
}

// ReviewInput carries one stage decision.
type ReviewInput struct {
	OrderID      uuid.UUID
	Approve      bool
	Note         string
	ReviewerName string
	ActorID      int64
	Allotments   []AllotmentInput
}

var (
	// ErrNotFound indicates a missing order.
	ErrNotFound = errors.New("orders: order not found")
	// ErrAlreadyReviewed indicates a stage that was decided before.
	ErrAlreadyReviewed = errors.New("orders: stage already reviewed")
	// ErrManagerPending indicates a registrar review before the manager decision.
	ErrManagerPending = errors.New("orders: manager review still pending")
	// ErrManagerDeclined indicates a registrar review on a declined order.
	ErrManagerDeclined = errors.New("orders: order was declined by manager")
	// ErrAllotmentBounds indicates an allotment outside its upper bound.
	ErrAllotmentBounds = errors.New("orders: allotment exceeds allowed quantity")
	// ErrItemMismatch indicates an allotment referencing an unknown or duplicated item.
	ErrItemMismatch = errors.New("orders: allotments do not match order items")
	// ErrNoItems indicates an order without lines.
	ErrNoItems = errors.New("orders: at least one item required")
	// ErrInvalidInput indicates a field that fails domain validation.
	ErrInvalidInput = errors.New("orders: invalid input")
)
