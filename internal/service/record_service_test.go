package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/mesledger/internal/domain"
	"github.com/aryan0dhankhar/mesledger/internal/featureflags"
)

func TestCreateAssignsCodeAndDefaults(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	rec, err := e.records.Create(ctx, manager, domain.KindVendor, domain.Attrs{"name": "Acme"})
	require.NoError(t, err)
	assert.Regexp(t, `^VEND\d{8}0001$`, rec.Attrs["vendor_code"])
	assert.Equal(t, "India", rec.Attrs["country"])
	assert.Equal(t, true, rec.Attrs["is_active"])
	assert.NotEmpty(t, rec.ID)

	second, err := e.records.Create(ctx, manager, domain.KindVendor, domain.Attrs{"name": "Bolt Co"})
	require.NoError(t, err)
	assert.Regexp(t, `^VEND\d{8}0002$`, second.Attrs["vendor_code"])

	tool, err := e.records.Create(ctx, storekeeper, domain.KindTool, domain.Attrs{"name": "Saw", "tool_type": "Cutting"})
	require.NoError(t, err)
	assert.Equal(t, float64(1), tool.Attrs["minimum_stock"])
	assert.Equal(t, float64(0), tool.Attrs["quantity_available"])
}

func TestCreateKeepsExplicitCode(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.records.Create(ctx, storekeeper, domain.KindTool, domain.Attrs{
		"tool_code": "T-100", "name": "Saw", "tool_type": "Cutting",
	})
	require.NoError(t, err)

	_, err = e.records.Create(ctx, storekeeper, domain.KindTool, domain.Attrs{
		"tool_code": "T-100", "name": "Other saw", "tool_type": "Cutting",
	})
	var dup *domain.DuplicateKeyError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "tool_code", dup.Field)
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)
}

func TestCreateValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		kind  domain.Kind
		attrs domain.Attrs
		field string
	}{
		{"missing required", domain.KindTool, domain.Attrs{"name": "Saw"}, "tool_type"},
		{"unknown attribute", domain.KindUnit, domain.Attrs{"name": "kg", "colour": "red"}, ""},
		{"wrong type", domain.KindWorkOrder, domain.Attrs{"quantity": "ten", "product_id": "x"}, "quantity"},
		{"non-positive quantity", domain.KindMaterialIssue, domain.Attrs{"work_order_id": "x", "item_id": "y", "quantity": 0}, "quantity"},
		{"bad enum", domain.KindInspection, domain.Attrs{"inspection_type": "Random", "product_id": "x"}, "inspection_type"},
		{"bad email", domain.KindEmployee, domain.Attrs{"name": "Ravi", "email": "nope"}, "email"},
		{"supplier missing", domain.KindPurchaseOrder, domain.Attrs{"quantity": 1}, "supplier"},
		{"supplier both", domain.KindPurchaseOrder, domain.Attrs{
			"quantity": 1, "supplier": map[string]any{"vendor_id": "v", "supplier_name": "n"},
		}, "supplier"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.records.Create(ctx, admin, tc.kind, tc.attrs)
			require.ErrorIs(t, err, domain.ErrValidationFailed)
			var verr *domain.ValidationError
			require.True(t, errors.As(err, &verr))
			if tc.field != "" {
				assert.Equal(t, tc.field, verr.Field)
			}
		})
	}
}

func TestCreateResolvesReferences(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.records.Create(ctx, operator, domain.KindJobCard, domain.Attrs{
		"work_order_id": "nope", "operation_description": "Turning",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	jc, err := e.records.Create(ctx, operator, domain.KindJobCard, domain.Attrs{
		"work_order_id": e.workOrder, "operation_description": "Turning", "operator_id": e.employee,
	})
	require.NoError(t, err)
	assert.Equal(t, "Assigned", jc.Attrs["status"])

	vendor := e.create(t, domain.KindVendor, domain.Attrs{"name": "Acme"})
	po, err := e.records.Create(ctx, manager, domain.KindPurchaseOrder, domain.Attrs{
		"quantity": 5, "supplier": map[string]any{"vendor_id": vendor.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, "Pending", po.Attrs["status"])

	_, err = e.records.Create(ctx, manager, domain.KindPurchaseOrder, domain.Attrs{
		"quantity": 5, "supplier": map[string]any{"vendor_id": "ghost"},
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	inline, err := e.records.Create(ctx, manager, domain.KindPurchaseOrder, domain.Attrs{
		"quantity": 5, "supplier": map[string]any{"supplier_name": "Local hardware"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"supplier_name": "Local hardware"}, inline.Attrs["supplier"])
}

func TestWritePolicies(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.records.Create(ctx, operator, domain.KindVendor, domain.Attrs{"name": "Acme"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = e.records.Create(ctx, storekeeper, domain.KindJobCard, domain.Attrs{
		"work_order_id": e.workOrder, "operation_description": "Drilling",
	})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = e.records.Create(ctx, domain.Actor{Role: domain.RoleAdmin}, domain.KindUnit, domain.Attrs{"name": "kg"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized, "unauthenticated actors are refused")

	_, err = e.records.Create(ctx, admin, domain.KindUser, domain.Attrs{"username": "x"})
	assert.ErrorIs(t, err, domain.ErrValidationFailed)

	_, err = e.records.List(ctx, domain.Actor{}, domain.KindEmployee, domain.ListOptions{})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	recs, err := e.records.List(ctx, operator, domain.KindEmployee, domain.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	_, err = e.records.Get(ctx, operator, "widgets", "1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdatePatchesOnlySentFields(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	wo, err := e.records.Update(ctx, manager, domain.KindWorkOrder, e.workOrder, domain.Attrs{"status": "In Progress"})
	require.NoError(t, err)
	assert.Equal(t, "In Progress", wo.Attrs["status"])
	assert.Equal(t, float64(10), wo.Attrs["quantity"])

	// Any status may follow any other.
	_, err = e.records.Update(ctx, manager, domain.KindWorkOrder, e.workOrder, domain.Attrs{"status": "Created"})
	require.NoError(t, err)

	_, err = e.records.Update(ctx, manager, domain.KindWorkOrder, e.workOrder, domain.Attrs{"status": "Paused"})
	assert.ErrorIs(t, err, domain.ErrValidationFailed)

	_, err = e.records.Update(ctx, manager, domain.KindWorkOrder, "missing", domain.Attrs{"status": "Created"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = e.records.Update(ctx, manager, domain.KindWorkOrder, e.workOrder, domain.Attrs{"id": "x"})
	assert.ErrorIs(t, err, domain.ErrValidationFailed)

	a := e.create(t, domain.KindDepartment, domain.Attrs{"name": "Assembly"})
	e.create(t, domain.KindDepartment, domain.Attrs{"name": "Machining"})
	_, err = e.records.Update(ctx, manager, domain.KindDepartment, a.ID, domain.Attrs{"name": "Machining"})
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)
}

func TestInspectionTotalsFlag(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	product := e.create(t, domain.KindProduct, domain.Attrs{"name": "Gear", "unit_of_measure": "pcs"})
	attrs := domain.Attrs{
		"inspection_type": "Final", "product_id": product.ID,
		"quantity_inspected": 10, "quantity_accepted": 7, "quantity_rejected": 2,
	}

	_, err := e.records.Create(ctx, manager, domain.KindInspection, attrs)
	require.NoError(t, err)

	t.Setenv("FLAG_ENFORCE_INSPECTION_TOTALS", "true")
	require.True(t, featureflags.Enabled(domain.FlagEnforceInspectionTotals))
	_, err = e.records.Create(ctx, manager, domain.KindInspection, attrs)
	assert.ErrorIs(t, err, domain.ErrValidationFailed)

	attrs["quantity_rejected"] = 3
	_, err = e.records.Create(ctx, manager, domain.KindInspection, attrs)
	assert.NoError(t, err)
}

func TestListFiltersAndPages(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	for _, name := range []string{"kg", "m", "pcs", "l"} {
		e.create(t, domain.KindUnit, domain.Attrs{"name": name})
	}

	recs, err := e.records.List(ctx, operator, domain.KindUnit, domain.ListOptions{OrderBy: "name", Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "l", recs[0].Attrs["name"])
	assert.Equal(t, "m", recs[1].Attrs["name"])

	recs, err = e.records.List(ctx, operator, domain.KindUnit, domain.ListOptions{Filter: domain.Filter{"name": "pcs"}})
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestPreviewCode(t *testing.T) {
	e := newEnv(t)
	code, err := e.records.PreviewCode(context.Background(), operator, domain.KindEmployee)
	require.NoError(t, err)
	assert.Regexp(t, `^EMP\d{8}0002$`, code)

	_, err = e.records.PreviewCode(context.Background(), operator, domain.KindDepartment)
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
}
