package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/mesledger/internal/domain"
	"github.com/aryan0dhankhar/mesledger/internal/infrastructure/idgen"
	"github.com/aryan0dhankhar/mesledger/internal/repository"
	"github.com/aryan0dhankhar/mesledger/internal/security"
	"github.com/aryan0dhankhar/mesledger/internal/security/audit"
)

var (
	admin       = domain.Actor{UserID: "1", Username: "admin", Role: domain.RoleAdmin, Authenticated: true}
	manager     = domain.Actor{UserID: "2", Username: "manager", Role: domain.RoleManager, Authenticated: true}
	operator    = domain.Actor{UserID: "3", Username: "operator", Role: domain.RoleOperator, Authenticated: true}
	storekeeper = domain.Actor{UserID: "4", Username: "storekeeper", Role: domain.RoleStorekeeper, Authenticated: true}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type env struct {
	store     *repository.MemoryStore
	codes     *CodeGenerator
	records   *RecordService
	ledger    *IssuanceService
	stats     *StatsService
	authz     *security.AuthorizationService
	employee  string
	workOrder string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := discardLogger()
	store := repository.NewMemoryStore(idgen.MustNew(1), log)
	authz := security.NewAuthorizationService(log)
	codes := NewCodeGenerator(store, nil, time.Second, log)
	e := &env{
		store:   store,
		codes:   codes,
		authz:   authz,
		records: NewRecordService(store, codes, authz, log),
		ledger:  NewIssuanceService(store, codes, authz, audit.NewLogger(log), log),
		stats:   NewStatsService(store, authz, log),
	}
	e.employee = e.create(t, domain.KindEmployee, domain.Attrs{"name": "Ravi"}).ID
	product := e.create(t, domain.KindProduct, domain.Attrs{"name": "Shaft", "unit_of_measure": "pcs"})
	e.workOrder = e.create(t, domain.KindWorkOrder, domain.Attrs{"product_id": product.ID, "quantity": 10}).ID
	return e
}

func (e *env) create(t *testing.T, kind domain.Kind, attrs domain.Attrs) *domain.Record {
	t.Helper()
	rec, err := e.records.Create(context.Background(), admin, kind, attrs)
	require.NoError(t, err)
	return rec
}

// tool creates a tool and stocks it through the ledger.
func (e *env) tool(t *testing.T, name string, stock int64) *domain.Tool {
	t.Helper()
	rec := e.create(t, domain.KindTool, domain.Attrs{"name": name, "tool_type": "Cutting"})
	if stock > 0 {
		_, err := e.ledger.Restock(context.Background(), storekeeper, rec.ID, stock)
		require.NoError(t, err)
	}
	return e.getTool(t, rec.ID)
}

func (e *env) getTool(t *testing.T, id string) *domain.Tool {
	t.Helper()
	tool, err := repository.NewCollection[domain.Tool](e.store, domain.KindTool).Get(context.Background(), id)
	require.NoError(t, err)
	return tool
}
