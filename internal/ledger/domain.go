package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// TransactionType enumerates supported stock movements.
type TransactionType string

const (
	// TransactionTypeIn represents replenishment.
	TransactionTypeIn TransactionType = "IN"
	// TransactionTypeOut represents issuance against a requisition.
	TransactionTypeOut TransactionType = "OUT"
)

// Transaction is one immutable stock movement record. It is appended
// once and never mutated or deleted; the product's current stock must
// always equal the NewStock of its most recent transaction.
type Transaction struct {
	ID            int64           `json:"id"`
	ProductID     int64           `json:"product_id"`
	ProductName   string          `json:"product_name"`
	OrderID       *uuid.UUID      `json:"order_id,omitempty"`
	Department    *string         `json:"department,omitempty"`
	PreviousStock int64           `json:"previous_stock"`
	NewStock      int64           `json:"new_stock"`
	ChangeStock   int64           `json:"change_stock"`
	Type          TransactionType `json:"transaction_type"`
	Note          string          `json:"note,omitempty"`
	PostedAt      time.Time       `json:"posted_at"`
}

// PostInput describes one movement to record. Change is signed for
// inbound movements: a stock correction downwards posts IN with a
// negative amount rather than flipping to OUT. Outbound amounts are
// always non-negative.
type PostInput struct {
	ProductID  int64
	OrderID    *uuid.UUID
	Department *string
	Change     int64
	Type       TransactionType
	Note       string
	ActorID    int64
}

// ProductStock is the slice of the product row the ledger is allowed
// to read and write.
type ProductStock struct {
	ID           int64
	Name         string
	CurrentStock int64
	Threshold    int64
}

var (
	// ErrNegativeStock triggered when a movement would drive stock below zero.
	ErrNegativeStock = errors.New("ledger: stock cannot go negative")
	// ErrInvalidType indicates a transaction type outside IN/OUT.
	ErrInvalidType = errors.New("ledger: invalid transaction type")
	// ErrNegativeChange indicates a negative amount on an outbound movement.
	ErrNegativeChange = errors.New("ledger: outbound movement amount cannot be negative")
	// ErrProductNotFound indicates a missing product row.
	ErrProductNotFound = errors.New("ledger: product not found")
)
