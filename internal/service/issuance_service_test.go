package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/mesledger/internal/domain"
	"github.com/aryan0dhankhar/mesledger/internal/repository"
)

func issueReq(toolID, employeeID string, qty int64) domain.IssueRequest {
	return domain.IssueRequest{ToolID: toolID, EmployeeID: employeeID, Quantity: qty}
}

func TestIssueAndReturnLifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tool := e.tool(t, "Drill bit 6mm", 10)

	iss, err := e.ledger.Issue(ctx, storekeeper, issueReq(tool.ID, e.employee, 4))
	require.NoError(t, err)
	assert.Regexp(t, `^TI\d{8}0001$`, iss.IssueNumber)
	assert.Equal(t, domain.IssuanceIssued, iss.Status)
	assert.Equal(t, int64(6), e.getTool(t, tool.ID).QuantityAvailable)

	iss, err = e.ledger.ReturnUnits(ctx, storekeeper, iss.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.IssuancePartiallyReturned, iss.Status)
	assert.Equal(t, int64(1), iss.QuantityReturned)
	assert.Nil(t, iss.ActualReturnDate)
	assert.Equal(t, int64(7), e.getTool(t, tool.ID).QuantityAvailable)

	iss, err = e.ledger.ReturnUnits(ctx, storekeeper, iss.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, domain.IssuanceFullyReturned, iss.Status)
	assert.NotNil(t, iss.ActualReturnDate)
	assert.Equal(t, int64(10), e.getTool(t, tool.ID).QuantityAvailable)

	_, err = e.ledger.ReturnUnits(ctx, storekeeper, iss.ID, 1)
	assert.ErrorIs(t, err, domain.ErrOverReturn)
	assert.Equal(t, int64(10), e.getTool(t, tool.ID).QuantityAvailable)
}

func TestIssueInsufficientStockLeavesStateUnchanged(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tool := e.tool(t, "Tap M8", 2)

	_, err := e.ledger.Issue(ctx, storekeeper, issueReq(tool.ID, e.employee, 3))
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	assert.Equal(t, int64(2), e.getTool(t, tool.ID).QuantityAvailable)
	n, err := e.store.Count(ctx, domain.KindToolIssuance, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Issuing the exact remainder is allowed and drains stock to zero.
	_, err = e.ledger.Issue(ctx, storekeeper, issueReq(tool.ID, e.employee, 2))
	require.NoError(t, err)
	assert.Zero(t, e.getTool(t, tool.ID).QuantityAvailable)
}

func TestIssueValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tool := e.tool(t, "Reamer", 5)

	_, err := e.ledger.Issue(ctx, storekeeper, issueReq(tool.ID, e.employee, 0))
	assert.ErrorIs(t, err, domain.ErrValidationFailed)

	_, err = e.ledger.Issue(ctx, storekeeper, issueReq("missing", e.employee, 1))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = e.ledger.Issue(ctx, storekeeper, issueReq(tool.ID, "missing", 1))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	req := issueReq(tool.ID, e.employee, 1)
	req.WorkOrderID = "missing"
	_, err = e.ledger.Issue(ctx, storekeeper, req)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	req.WorkOrderID = e.workOrder
	iss, err := e.ledger.Issue(ctx, storekeeper, req)
	require.NoError(t, err)
	assert.Equal(t, e.workOrder, iss.WorkOrderID)

	_, err = e.ledger.Issue(ctx, operator, issueReq(tool.ID, e.employee, 1))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	assert.Equal(t, int64(4), e.getTool(t, tool.ID).QuantityAvailable)
}

func TestIssueInactiveToolOnlyGuardedByStock(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tool := e.tool(t, "Reamer", 10)

	_, err := e.records.Update(ctx, admin, domain.KindTool, tool.ID, domain.Attrs{"is_active": false})
	require.NoError(t, err)

	_, err = e.ledger.Issue(ctx, storekeeper, issueReq(tool.ID, e.employee, 11))
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.NotErrorIs(t, err, domain.ErrValidationFailed)
	assert.Equal(t, int64(10), e.getTool(t, tool.ID).QuantityAvailable)

	iss, err := e.ledger.Issue(ctx, storekeeper, issueReq(tool.ID, e.employee, 10))
	require.NoError(t, err)
	assert.Equal(t, domain.IssuanceIssued, iss.Status)
	assert.Zero(t, e.getTool(t, tool.ID).QuantityAvailable)
}

func TestReturnValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tool := e.tool(t, "Gauge", 3)
	iss, err := e.ledger.Issue(ctx, storekeeper, issueReq(tool.ID, e.employee, 2))
	require.NoError(t, err)

	_, err = e.ledger.ReturnUnits(ctx, storekeeper, iss.ID, 0)
	assert.ErrorIs(t, err, domain.ErrValidationFailed)

	_, err = e.ledger.ReturnUnits(ctx, storekeeper, iss.ID, 3)
	assert.ErrorIs(t, err, domain.ErrOverReturn)

	_, err = e.ledger.ReturnUnits(ctx, storekeeper, "missing", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = e.ledger.ReturnUnits(ctx, operator, iss.ID, 1)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	assert.Equal(t, int64(1), e.getTool(t, tool.ID).QuantityAvailable)
}

func TestRestock(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tool := e.tool(t, "Chuck key", 0)

	got, err := e.ledger.Restock(ctx, manager, tool.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.QuantityAvailable)

	_, err = e.ledger.Restock(ctx, manager, tool.ID, -1)
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
	_, err = e.ledger.Restock(ctx, operator, tool.ID, 1)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = e.ledger.Restock(ctx, manager, "missing", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// stock + outstanding units stays equal to everything ever stocked.
func TestStockConservation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tool := e.tool(t, "End mill", 20)

	var ids []string
	for _, q := range []int64{3, 5, 2} {
		iss, err := e.ledger.Issue(ctx, storekeeper, issueReq(tool.ID, e.employee, q))
		require.NoError(t, err)
		ids = append(ids, iss.ID)
	}
	_, err := e.ledger.ReturnUnits(ctx, storekeeper, ids[0], 3)
	require.NoError(t, err)
	_, err = e.ledger.ReturnUnits(ctx, storekeeper, ids[1], 2)
	require.NoError(t, err)
	_, err = e.ledger.Issue(ctx, storekeeper, issueReq(tool.ID, e.employee, 50))
	require.ErrorIs(t, err, domain.ErrInsufficientStock)

	issuances, err := repository.NewCollection[domain.ToolIssuance](e.store, domain.KindToolIssuance).
		Find(ctx, domain.Filter{"tool_id": tool.ID})
	require.NoError(t, err)
	require.Len(t, issuances, 3)

	var outstanding int64
	for _, iss := range issuances {
		assert.GreaterOrEqual(t, iss.QuantityReturned, int64(0))
		assert.LessOrEqual(t, iss.QuantityReturned, iss.QuantityIssued)
		assert.Equal(t, domain.DeriveIssuanceStatus(iss.QuantityIssued, iss.QuantityReturned), iss.Status)
		outstanding += iss.Outstanding()
	}
	assert.Equal(t, int64(20), e.getTool(t, tool.ID).QuantityAvailable+outstanding)
}

func TestConcurrentIssuesNeverOversell(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tool := e.tool(t, "Insert", 10)

	const workers = 25
	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, short int
	numbers := map[string]bool{}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			iss, err := e.ledger.Issue(ctx, storekeeper, issueReq(tool.ID, e.employee, 1))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
				numbers[iss.IssueNumber] = true
			case assert.ErrorIs(t, err, domain.ErrInsufficientStock):
				short++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	assert.Equal(t, workers-10, short)
	assert.Len(t, numbers, 10, "issue numbers are distinct")
	assert.Zero(t, e.getTool(t, tool.ID).QuantityAvailable)
}

func TestGenericWritesCannotBypassLedger(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tool := e.tool(t, "Hammer", 1)

	_, err := e.records.Create(ctx, admin, domain.KindToolIssuance, domain.Attrs{
		"tool_id": tool.ID, "employee_id": e.employee, "quantity_issued": 1,
	})
	assert.ErrorIs(t, err, domain.ErrValidationFailed)

	_, err = e.records.Update(ctx, admin, domain.KindTool, tool.ID, domain.Attrs{"quantity_available": 100})
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
	assert.Equal(t, int64(1), e.getTool(t, tool.ID).QuantityAvailable)
}
