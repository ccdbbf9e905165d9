package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/storekeeper-erp/storekeeper-erp/internal/catalog"
)

// ProductSource lists products at or below their reorder threshold.
type ProductSource interface {
	LowStock(ctx context.Context) ([]catalog.Product, error)
}

// LowStockScanJob reports every product whose stock fell to the
// reorder threshold so storekeepers can restock before orders starve.
type LowStockScanJob struct {
	Source ProductSource
	Logger *slog.Logger
}

// NewLowStockScanJob initialises the scan handler.
func NewLowStockScanJob(source ProductSource, logger *slog.Logger) *LowStockScanJob {
	return &LowStockScanJob{Source: source, Logger: logger}
}

// Handle executes the scan.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Source == nil {
		return errors.New("lowstock scan: handler not configured")
	}
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	products, err := j.Source.LowStock(ctx)
	if err != nil {
		j.logger().Error("lowstock scan failed", slog.Any("error", err))
		return err
	}
	for _, p := range products {
		j.logger().Warn("product below reorder threshold",
			slog.Int64("product_id", p.ID),
			slog.String("product", p.Name),
			slog.Int64("current_stock", p.CurrentStock),
			slog.Int64("threshold_point", p.ThresholdPoint),
		)
	}
	j.logger().Info("lowstock scan finished", slog.Int("flagged", len(products)))
	return nil
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
