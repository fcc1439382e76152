package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/exp/constraints"

	"github.com/aryan0dhankhar/mesledger/internal/domain"
	"github.com/aryan0dhankhar/mesledger/internal/repository"
	"github.com/aryan0dhankhar/mesledger/internal/security"
)

const recentWorkOrders = 5

// Rate returns n/d as a percentage rounded to one decimal; a zero
// denominator yields 0.
func Rate[N constraints.Integer | constraints.Float](n, d N) float64 {
	if d == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(d)*1000) / 10
}

// DashboardStats is the operational summary shown on the dashboard.
type DashboardStats struct {
	WorkOrdersOpen        int64      `json:"work_orders_open"`
	TotalWorkOrders       int64      `json:"total_work_orders"`
	PendingInspections    int64      `json:"pending_inspections"`
	LowStockTools         int64      `json:"low_stock_tools"`
	ActiveEmployees       int64      `json:"active_employees"`
	ActiveMachines        int64      `json:"active_machines"`
	PendingPurchaseOrders int64      `json:"pending_purchase_orders"`
	RecentWorkOrders      []Document `json:"recent_work_orders"`
	GeneratedAt           time.Time  `json:"generated_at"`
}

type ProductionStats struct {
	CompletionRate float64 `json:"completion_rate"`
	Completed      int64   `json:"completed"`
	InProgress     int64   `json:"in_progress"`
	Total          int64   `json:"total"`
}

type QualityStats struct {
	PassRate float64 `json:"pass_rate"`
	Passed   int64   `json:"passed"`
	Failed   int64   `json:"failed"`
	Total    int64   `json:"total"`
}

type InventoryStats struct {
	StockHealth   float64 `json:"stock_health"`
	LowStockTools int64   `json:"low_stock_tools"`
	TotalTools    int64   `json:"total_tools"`
}

type ProcurementStats struct {
	FulfillmentRate float64 `json:"fulfillment_rate"`
	PendingPOs      int64   `json:"pending_pos"`
	Total           int64   `json:"total"`
}

// ReportStats groups the rates shown on the reports page.
type ReportStats struct {
	Production  ProductionStats  `json:"production"`
	Quality     QualityStats     `json:"quality"`
	Inventory   InventoryStats   `json:"inventory"`
	Procurement ProcurementStats `json:"procurement"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// StatsService aggregates counts across kinds. Every call reads fresh.
type StatsService struct {
	store  domain.Store
	tools  *repository.Collection[domain.Tool]
	authz  *security.AuthorizationService
	now    func() time.Time
	logger *slog.Logger
}

// NewStatsService creates a new stats service
func NewStatsService(store domain.Store, authz *security.AuthorizationService, logger *slog.Logger) *StatsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsService{
		store:  store,
		tools:  repository.NewCollection[domain.Tool](store, domain.KindTool),
		authz:  authz,
		now:    time.Now,
		logger: logger,
	}
}

// counter accumulates the first count error so a batch of counts reads
// linearly.
type counter struct {
	ctx   context.Context
	store domain.Store
	err   error
}

func (c *counter) count(kind domain.Kind, filter domain.Filter) int64 {
	if c.err != nil {
		return 0
	}
	n, err := c.store.Count(c.ctx, kind, filter)
	if err != nil {
		c.err = fmt.Errorf("failed to count %s: %w", kind, err)
	}
	return n
}

func (s *StatsService) lowStock(ctx context.Context) (low, total int64, err error) {
	err = s.tools.Each(ctx, 200, func(t *domain.Tool) error {
		total++
		if t.LowStock() {
			low++
		}
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to scan tools: %w", err)
	}
	return low, total, nil
}

// Dashboard computes DashboardStats.
func (s *StatsService) Dashboard(ctx context.Context, actor domain.Actor) (*DashboardStats, error) {
	if err := s.authz.CanRead(actor, domain.KindWorkOrder); err != nil {
		return nil, err
	}

	c := &counter{ctx: ctx, store: s.store}
	stats := &DashboardStats{GeneratedAt: s.now().UTC()}
	stats.TotalWorkOrders = c.count(domain.KindWorkOrder, nil)
	closed := c.count(domain.KindWorkOrder, domain.Filter{"status": domain.WorkOrderCompleted}) +
		c.count(domain.KindWorkOrder, domain.Filter{"status": domain.WorkOrderCancelled})
	stats.WorkOrdersOpen = stats.TotalWorkOrders - closed
	stats.PendingInspections = c.count(domain.KindInspection, domain.Filter{"status": domain.InspectionPending})
	stats.ActiveEmployees = c.count(domain.KindEmployee, domain.Filter{"is_active": true})
	stats.ActiveMachines = c.count(domain.KindMachine, domain.Filter{"is_active": true})
	stats.PendingPurchaseOrders = c.count(domain.KindPurchaseOrder, domain.Filter{"status": domain.PurchaseOrderPending})
	if c.err != nil {
		return nil, c.err
	}

	low, _, err := s.lowStock(ctx)
	if err != nil {
		return nil, err
	}
	stats.LowStockTools = low

	recent, err := s.store.List(ctx, domain.KindWorkOrder, domain.ListOptions{
		OrderBy: "created_at", Desc: true, Limit: recentWorkOrders,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list recent work orders: %w", err)
	}
	stats.RecentWorkOrders = make([]Document, 0, len(recent))
	for _, rec := range recent {
		stats.RecentWorkOrders = append(stats.RecentWorkOrders, NewDocument(rec))
	}
	return stats, nil
}

// Reports computes ReportStats.
func (s *StatsService) Reports(ctx context.Context, actor domain.Actor) (*ReportStats, error) {
	if err := s.authz.CanRead(actor, domain.KindWorkOrder); err != nil {
		return nil, err
	}

	c := &counter{ctx: ctx, store: s.store}
	var r ReportStats
	r.GeneratedAt = s.now().UTC()

	r.Production.Total = c.count(domain.KindWorkOrder, nil)
	r.Production.Completed = c.count(domain.KindWorkOrder, domain.Filter{"status": domain.WorkOrderCompleted})
	r.Production.InProgress = c.count(domain.KindWorkOrder, domain.Filter{"status": domain.WorkOrderInProgress})
	r.Production.CompletionRate = Rate(r.Production.Completed, r.Production.Total)

	r.Quality.Total = c.count(domain.KindInspection, nil)
	r.Quality.Passed = c.count(domain.KindInspection, domain.Filter{"status": domain.InspectionPassed})
	r.Quality.Failed = c.count(domain.KindInspection, domain.Filter{"status": domain.InspectionFailed})
	r.Quality.PassRate = Rate(r.Quality.Passed, r.Quality.Total)

	r.Procurement.Total = c.count(domain.KindPurchaseOrder, nil)
	r.Procurement.PendingPOs = c.count(domain.KindPurchaseOrder, domain.Filter{"status": domain.PurchaseOrderPending})
	fulfilled := c.count(domain.KindPurchaseOrder, domain.Filter{"status": domain.PurchaseOrderDelivered}) +
		c.count(domain.KindPurchaseOrder, domain.Filter{"status": domain.PurchaseOrderClosed})
	r.Procurement.FulfillmentRate = Rate(fulfilled, r.Procurement.Total)
	if c.err != nil {
		return nil, c.err
	}

	low, total, err := s.lowStock(ctx)
	if err != nil {
		return nil, err
	}
	r.Inventory.LowStockTools = low
	r.Inventory.TotalTools = total
	r.Inventory.StockHealth = Rate(total-low, total)
	return &r, nil
}

// ExportReports renders ReportStats and the low-stock tool list as an
// XLSX workbook.
func (s *StatsService) ExportReports(ctx context.Context, actor domain.Actor) ([]byte, error) {
	r, err := s.Reports(ctx, actor)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("failed to close workbook", slog.String("error", err.Error()))
		}
	}()

	const summary = "Summary"
	if err := f.SetSheetName("Sheet1", summary); err != nil {
		return nil, fmt.Errorf("failed to build workbook: %w", err)
	}
	rows := [][]any{
		{"Section", "Metric", "Value"},
		{"Production", "Completion rate (%)", r.Production.CompletionRate},
		{"Production", "Completed", r.Production.Completed},
		{"Production", "In progress", r.Production.InProgress},
		{"Production", "Total work orders", r.Production.Total},
		{"Quality", "Pass rate (%)", r.Quality.PassRate},
		{"Quality", "Passed", r.Quality.Passed},
		{"Quality", "Failed", r.Quality.Failed},
		{"Quality", "Total inspections", r.Quality.Total},
		{"Inventory", "Stock health (%)", r.Inventory.StockHealth},
		{"Inventory", "Low stock tools", r.Inventory.LowStockTools},
		{"Inventory", "Total tools", r.Inventory.TotalTools},
		{"Procurement", "Fulfillment rate (%)", r.Procurement.FulfillmentRate},
		{"Procurement", "Pending POs", r.Procurement.PendingPOs},
		{"Procurement", "Total POs", r.Procurement.Total},
		{"Generated at", "", r.GeneratedAt.Format(time.RFC3339)},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summary, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write summary row: %w", err)
		}
	}

	const lowStock = "Low Stock"
	if _, err := f.NewSheet(lowStock); err != nil {
		return nil, fmt.Errorf("failed to build workbook: %w", err)
	}
	if err := f.SetSheetRow(lowStock, "A1", &[]any{"Tool code", "Name", "Available", "Minimum"}); err != nil {
		return nil, fmt.Errorf("failed to write low stock header: %w", err)
	}
	line := 2
	err = s.tools.Each(ctx, 200, func(t *domain.Tool) error {
		if !t.LowStock() {
			return nil
		}
		minimum := int64(1)
		if t.MinimumStock != nil {
			minimum = *t.MinimumStock
		}
		cell, _ := excelize.CoordinatesToCellName(1, line)
		line++
		return f.SetSheetRow(lowStock, cell, &[]any{t.ToolCode, t.Name, t.QuantityAvailable, minimum})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write low stock rows: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}
