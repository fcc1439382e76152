package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/aryan0dhankhar/mesledger/internal/domain"
	"github.com/aryan0dhankhar/mesledger/internal/observability/metrics"
	"github.com/aryan0dhankhar/mesledger/internal/observability/tracing"
	"github.com/aryan0dhankhar/mesledger/internal/repository"
	"github.com/aryan0dhankhar/mesledger/internal/security"
	"github.com/aryan0dhankhar/mesledger/internal/security/audit"
)

const stockField = "quantity_available"

// IssuanceService is the tool ledger. It is the only writer of tool stock
// and of tool issuances.
type IssuanceService struct {
	store      domain.Store
	tools      *repository.Collection[domain.Tool]
	issuances  *repository.Collection[domain.ToolIssuance]
	codes      *CodeGenerator
	authz      *security.AuthorizationService
	audit      *audit.Logger
	compensate bool
	now        func() time.Time
	logger     *slog.Logger
}

// NewIssuanceService creates the ledger. When the store cannot run atomic
// transactions, failed steps are undone by compensating writes.
func NewIssuanceService(store domain.Store, codes *CodeGenerator, authz *security.AuthorizationService, auditLog *audit.Logger, logger *slog.Logger) *IssuanceService {
	if logger == nil {
		logger = slog.Default()
	}
	compensate := false
	if t, ok := store.(interface{ Transactional() bool }); ok && !t.Transactional() {
		compensate = true
		logger.Warn("store transactions disabled, tool ledger will compensate failed writes")
	}
	return &IssuanceService{
		store:      store,
		tools:      repository.NewCollection[domain.Tool](store, domain.KindTool),
		issuances:  repository.NewCollection[domain.ToolIssuance](store, domain.KindToolIssuance),
		codes:      codes,
		authz:      authz,
		audit:      auditLog,
		compensate: compensate,
		now:        time.Now,
		logger:     logger,
	}
}

func (s *IssuanceService) observe(op string, units int64, start time.Time, err error) {
	result := "success"
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		result = "insufficient_stock"
	case errors.Is(err, domain.ErrOverReturn):
		result = "over_return"
	case errors.Is(err, domain.ErrUnauthorized):
		result = "denied"
	case err != nil:
		result = "error"
	}
	metrics.ObserveLedger(op, result, units, time.Since(start))
}

// tool loads the tool being issued. Stock is the only gate; is_active is
// informational and does not block issuance.
func (s *IssuanceService) tool(ctx context.Context, id string) (*domain.Tool, error) {
	tool, err := s.tools.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("tool_id: %w", err)
	}
	return tool, nil
}

// Issue checks out units of a tool to an employee. Stock is decremented and
// the issuance created together, or neither happens.
func (s *IssuanceService) Issue(ctx context.Context, actor domain.Actor, req domain.IssueRequest) (issuance *domain.ToolIssuance, err error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "ledger.issue",
		attribute.String("tool_id", req.ToolID),
		attribute.Int64("quantity", req.Quantity),
	)
	defer func() {
		s.observe("issue", req.Quantity, start, err)
		tracing.End(span, err)
	}()

	if err := s.authz.Require(actor, domain.RolesStores, "issue tool"); err != nil {
		return nil, err
	}
	if err := validateModel(&req); err != nil {
		return nil, err
	}

	issueDate := s.now().UTC()
	if req.IssueDate != nil {
		issueDate = req.IssueDate.UTC()
	}

	var remaining int64
	var toolCode string
	_, err = s.codes.Assign(ctx, domain.KindToolIssuance, s.now(), func(ctx context.Context, code string) error {
		return s.store.RunInTx(ctx, func(ctx context.Context) error {
			tool, err := s.tool(ctx, req.ToolID)
			if err != nil {
				return err
			}
			toolCode = tool.ToolCode

			candidate := &domain.ToolIssuance{
				IssueNumber:        code,
				ToolID:             req.ToolID,
				EmployeeID:         req.EmployeeID,
				WorkOrderID:        req.WorkOrderID,
				QuantityIssued:     req.Quantity,
				IssueDate:          issueDate,
				ExpectedReturnDate: req.ExpectedReturnDate,
				Status:             domain.IssuanceIssued,
				IssuedBy:           actor.UserID,
			}
			if err := resolveReferences(ctx, s.store, candidate); err != nil {
				return err
			}

			rec, err := s.store.Increment(ctx, domain.KindTool, req.ToolID, stockField, -req.Quantity, 0)
			if errors.Is(err, domain.ErrGuard) {
				return fmt.Errorf("tool %s has %d available, %d requested: %w",
					tool.ToolCode, tool.QuantityAvailable, req.Quantity, domain.ErrInsufficientStock)
			}
			if err != nil {
				return err
			}

			created, err := s.issuances.Create(ctx, candidate)
			if err != nil {
				s.undo(ctx, "issue", func(ctx context.Context) error {
					_, err := s.store.Increment(ctx, domain.KindTool, req.ToolID, stockField, req.Quantity, 0)
					return err
				})
				return err
			}
			remaining, _ = toInt64Attr(rec.Attrs[stockField])
			issuance = created
			return nil
		})
	})
	if err != nil {
		s.audit.LogLedger(ctx, actor, "issue", "", "failed", err.Error())
		return nil, err
	}

	metrics.SetToolStock(toolCode, remaining)
	s.audit.LogLedger(ctx, actor, "issue", issuance.ID, "success",
		fmt.Sprintf("%s x%d of %s to %s", issuance.IssueNumber, req.Quantity, toolCode, req.EmployeeID))
	s.logger.Info("tool issued",
		slog.String("issue_number", issuance.IssueNumber),
		slog.String("tool_code", toolCode),
		slog.Int64("quantity", req.Quantity),
		slog.Int64("remaining", remaining),
	)
	return issuance, nil
}

// ReturnUnits records units coming back against an issuance.
func (s *IssuanceService) ReturnUnits(ctx context.Context, actor domain.Actor, issuanceID string, quantity int64) (issuance *domain.ToolIssuance, err error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "ledger.return",
		attribute.String("issuance_id", issuanceID),
		attribute.Int64("quantity", quantity),
	)
	defer func() {
		s.observe("return", quantity, start, err)
		tracing.End(span, err)
	}()

	if err := s.authz.Require(actor, domain.RolesStores, "return tool"); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, domain.Invalid("quantity", "must be greater than 0")
	}

	var remaining int64
	var toolCode string
	err = s.store.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.issuances.Get(ctx, issuanceID)
		if err != nil {
			return err
		}
		if current.QuantityReturned+quantity > current.QuantityIssued {
			return fmt.Errorf("%s has %d outstanding, %d returned: %w",
				current.IssueNumber, current.Outstanding(), quantity, domain.ErrOverReturn)
		}

		returned := current.QuantityReturned + quantity
		status := domain.DeriveIssuanceStatus(current.QuantityIssued, returned)
		patch := domain.Attrs{"quantity_returned": returned, "status": status}
		if status == domain.IssuanceFullyReturned {
			patch["actual_return_date"] = s.now().UTC()
		}
		expect := domain.Attrs{"quantity_returned": current.QuantityReturned}
		rec, err := s.store.CompareAndSet(ctx, domain.KindToolIssuance, issuanceID, expect, patch)
		if err != nil {
			return err
		}

		toolRec, err := s.store.Increment(ctx, domain.KindTool, current.ToolID, stockField, quantity, 0)
		if err != nil {
			s.undo(ctx, "return", func(ctx context.Context) error {
				undo := domain.Attrs{
					"quantity_returned":  current.QuantityReturned,
					"status":             current.Status,
					"actual_return_date": current.ActualReturnDate,
				}
				_, err := s.store.CompareAndSet(ctx, domain.KindToolIssuance, issuanceID, domain.Attrs{"quantity_returned": returned}, undo)
				return err
			})
			return err
		}

		remaining, _ = toInt64Attr(toolRec.Attrs[stockField])
		toolCode, _ = toolRec.Attrs["tool_code"].(string)
		issuance = &domain.ToolIssuance{}
		return repository.DecodeInto(rec, issuance)
	})
	if err != nil {
		s.audit.LogLedger(ctx, actor, "return", issuanceID, "failed", err.Error())
		return nil, err
	}

	metrics.SetToolStock(toolCode, remaining)
	s.audit.LogLedger(ctx, actor, "return", issuanceID, "success",
		fmt.Sprintf("%d units, status %s", quantity, issuance.Status))
	s.logger.Info("tool returned",
		slog.String("issue_number", issuance.IssueNumber),
		slog.Int64("quantity", quantity),
		slog.String("status", string(issuance.Status)),
	)
	return issuance, nil
}

// Restock adds purchased or repaired units to a tool's stock.
func (s *IssuanceService) Restock(ctx context.Context, actor domain.Actor, toolID string, quantity int64) (tool *domain.Tool, err error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "ledger.restock",
		attribute.String("tool_id", toolID),
		attribute.Int64("quantity", quantity),
	)
	defer func() {
		s.observe("restock", quantity, start, err)
		tracing.End(span, err)
	}()

	if err := s.authz.Require(actor, domain.RolesStores, "restock tool"); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, domain.Invalid("quantity", "must be greater than 0")
	}

	rec, err := s.store.Increment(ctx, domain.KindTool, toolID, stockField, quantity, 0)
	if err != nil {
		s.audit.LogLedger(ctx, actor, "restock", toolID, "failed", err.Error())
		return nil, err
	}
	tool = &domain.Tool{}
	if err := repository.DecodeInto(rec, tool); err != nil {
		return nil, err
	}

	metrics.SetToolStock(tool.ToolCode, tool.QuantityAvailable)
	s.audit.LogLedger(ctx, actor, "restock", toolID, "success",
		fmt.Sprintf("%s +%d now %d", tool.ToolCode, quantity, tool.QuantityAvailable))
	return tool, nil
}

// undo runs a compensating write when the store has no transactions.
func (s *IssuanceService) undo(ctx context.Context, op string, fn func(ctx context.Context) error) {
	if !s.compensate {
		return
	}
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		s.logger.Error("ledger compensation failed",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
	}
}

func toInt64Attr(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	}
	return 0, false
}
