package catalog

import (
	"errors"
	"time"
)

// Product is one catalog row. ID is the stable key; Name is unique and
// only used for lookups at the HTTP boundary.
type Product struct {
	ID             int64     `json:"id"`
	Name           string    `json:"product_name"`
	Category       string    `json:"category"`
	ThresholdPoint int64     `json:"threshold_point"`
	CurrentStock   int64     `json:"current_stock"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CreateInput carries the fields needed to register a product.
type CreateInput struct {
	Name           string
	Category       string
	ThresholdPoint int64
	OpeningStock   int64
	ActorID        int64
}

var (
	// ErrNotFound indicates a missing product.
	ErrNotFound = errors.New("catalog: product not found")
	// ErrDuplicateName indicates a name collision on create.
	ErrDuplicateName = errors.New("catalog: product name already exists")
	// ErrInvalidInput indicates a field that fails domain validation.
	ErrInvalidInput = errors.New("catalog: invalid input")
)
