package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/mesledger/internal/domain"
	"github.com/aryan0dhankhar/mesledger/internal/observability/metrics"
	"github.com/aryan0dhankhar/mesledger/internal/repository"
)

const scanPageSize = 200

// StockWorker periodically refreshes tool stock gauges and reports
// issuances that are overdue for return.
type StockWorker struct {
	tools     *repository.Collection[domain.Tool]
	issuances *repository.Collection[domain.ToolIssuance]
	logger    *slog.Logger
	interval  time.Duration
	now       func() time.Time
}

// ScanResult summarizes one pass over the ledger.
type ScanResult struct {
	Tools    int
	LowStock []string
	Overdue  []string
}

// NewStockWorker creates a new stock worker
func NewStockWorker(store domain.Store, logger *slog.Logger, interval time.Duration) *StockWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &StockWorker{
		tools:     repository.NewCollection[domain.Tool](store, domain.KindTool),
		issuances: repository.NewCollection[domain.ToolIssuance](store, domain.KindToolIssuance),
		logger:    logger,
		interval:  interval,
		now:       time.Now,
	}
}

// Start runs a scan immediately and then on every tick until ctx is done.
func (w *StockWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("stock worker started", slog.Duration("interval", w.interval))

	for {
		if _, err := w.Scan(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("stock scan failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			w.logger.Info("stock worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// Scan walks every tool and open issuance once.
func (w *StockWorker) Scan(ctx context.Context) (*ScanResult, error) {
	res := &ScanResult{}
	now := w.now()

	err := w.tools.Each(ctx, scanPageSize, func(t *domain.Tool) error {
		res.Tools++
		metrics.SetToolStock(t.ToolCode, t.QuantityAvailable)
		if t.LowStock() {
			res.LowStock = append(res.LowStock, t.ToolCode)
		}
		return nil
	})
	if err != nil {
		metrics.ObserveStockScan("error", 0, 0)
		return nil, err
	}

	err = w.issuances.Each(ctx, scanPageSize, func(iss *domain.ToolIssuance) error {
		if iss.Status == domain.IssuanceFullyReturned || iss.ExpectedReturnDate == nil {
			return nil
		}
		if now.After(*iss.ExpectedReturnDate) {
			res.Overdue = append(res.Overdue, iss.IssueNumber)
			w.logger.Warn("tool issuance overdue",
				slog.String("issue_number", iss.IssueNumber),
				slog.String("employee_id", iss.EmployeeID),
				slog.Int64("outstanding", iss.Outstanding()),
				slog.Time("expected_return_date", *iss.ExpectedReturnDate),
			)
		}
		return nil
	})
	if err != nil {
		metrics.ObserveStockScan("error", 0, 0)
		return nil, err
	}

	metrics.ObserveStockScan("success", len(res.LowStock), len(res.Overdue))
	w.logger.Debug("stock scan complete",
		slog.Int("tools", res.Tools),
		slog.Int("low_stock", len(res.LowStock)),
		slog.Int("overdue", len(res.Overdue)),
	)
	return res, nil
}
