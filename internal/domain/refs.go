package domain

// Reference is a non-owning foreign key held by a record.
type Reference struct {
	Field string
	Kind  Kind
	ID    string
}

// Referencer lists the references a record holds so they can be resolved
// before the record is written.
type Referencer interface {
	References() []Reference
}

func refs(candidates ...Reference) []Reference {
	out := candidates[:0]
	for _, r := range candidates {
		if r.ID != "" {
			out = append(out, r)
		}
	}
	return out
}

func (e *Employee) References() []Reference {
	return refs(Reference{"department_id", KindDepartment, e.DepartmentID})
}

func (m *Machine) References() []Reference {
	return refs(Reference{"department_id", KindDepartment, m.DepartmentID})
}

func (i *InventoryItem) References() []Reference {
	return refs(Reference{"unit_id", KindUnit, i.UnitID})
}

func (w *WorkOrder) References() []Reference {
	return refs(
		Reference{"product_id", KindProduct, w.ProductID},
		Reference{"item_id", KindInventoryItem, w.ItemID},
		Reference{"unit_id", KindUnit, w.UnitID},
	)
}

func (j *JobCard) References() []Reference {
	return refs(
		Reference{"work_order_id", KindWorkOrder, j.WorkOrderID},
		Reference{"machine_id", KindMachine, j.MachineID},
		Reference{"operator_id", KindEmployee, j.OperatorID},
	)
}

func (i *Inspection) References() []Reference {
	return refs(
		Reference{"product_id", KindProduct, i.ProductID},
		Reference{"work_order_id", KindWorkOrder, i.WorkOrderID},
		Reference{"inspector_id", KindEmployee, i.InspectorID},
	)
}

func (p *PurchaseOrder) References() []Reference {
	vendorID, _ := p.Supplier.VendorID()
	return refs(
		Reference{"supplier.vendor_id", KindVendor, vendorID},
		Reference{"item_id", KindInventoryItem, p.ItemID},
	)
}

func (s *SalesOrder) References() []Reference {
	return refs(Reference{"customer_id", KindCustomer, s.CustomerID})
}

func (g *GRN) References() []Reference {
	return refs(Reference{"vendor_id", KindVendor, g.VendorID})
}

func (p *ProductionEntry) References() []Reference {
	return refs(
		Reference{"work_order_id", KindWorkOrder, p.WorkOrderID},
		Reference{"machine_id", KindMachine, p.MachineID},
		Reference{"operator_id", KindEmployee, p.OperatorID},
		Reference{"unit_id", KindUnit, p.UnitID},
	)
}

func (m *MaterialIssue) References() []Reference {
	return refs(
		Reference{"work_order_id", KindWorkOrder, m.WorkOrderID},
		Reference{"item_id", KindInventoryItem, m.ItemID},
		Reference{"unit_id", KindUnit, m.UnitID},
		Reference{"issued_to", KindEmployee, m.IssuedTo},
	)
}

func (m *MaintenanceLog) References() []Reference {
	return refs(
		Reference{"machine_id", KindMachine, m.MachineID},
		Reference{"performed_by", KindEmployee, m.PerformedBy},
	)
}

func (t *ToolIssuance) References() []Reference {
	return refs(
		Reference{"tool_id", KindTool, t.ToolID},
		Reference{"employee_id", KindEmployee, t.EmployeeID},
		Reference{"work_order_id", KindWorkOrder, t.WorkOrderID},
	)
}
