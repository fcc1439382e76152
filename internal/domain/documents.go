package domain

import (
	"fmt"
	"time"

	"github.com/aryan0dhankhar/mesledger/internal/featureflags"
)

type WorkOrderStatus string

const (
	WorkOrderCreated    WorkOrderStatus = "Created"
	WorkOrderScheduled  WorkOrderStatus = "Scheduled"
	WorkOrderInProgress WorkOrderStatus = "In Progress"
	WorkOrderCompleted  WorkOrderStatus = "Completed"
	WorkOrderCancelled  WorkOrderStatus = "Cancelled"
)

// WorkOrderOpenStatuses are the statuses counted as open work.
var WorkOrderOpenStatuses = []WorkOrderStatus{WorkOrderCreated, WorkOrderScheduled, WorkOrderInProgress}

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityNormal Priority = "Normal"
	PriorityHigh   Priority = "High"
	PriorityUrgent Priority = "Urgent"
)

func checkPriority(p Priority) error {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return nil
	}
	return Invalid("priority", fmt.Sprintf("unknown priority %q", p))
}

// WorkOrder is a production order for a product or an inventory item.
// Status transitions are not restricted.
type WorkOrder struct {
	Base
	WorkOrderNumber  string          `json:"work_order_number"`
	ProductID        string          `json:"product_id,omitempty"`
	ItemID           string          `json:"item_id,omitempty"`
	Quantity         float64         `json:"quantity" validate:"gt=0"`
	QuantityProduced float64         `json:"quantity_produced" validate:"gte=0"`
	UnitID           string          `json:"unit_id,omitempty"`
	Priority         Priority        `json:"priority,omitempty"`
	Status           WorkOrderStatus `json:"status,omitempty"`
	PlannedStartDate *time.Time      `json:"planned_start_date,omitempty"`
	PlannedEndDate   *time.Time      `json:"planned_end_date,omitempty"`
	ActualStartDate  *time.Time      `json:"actual_start_date,omitempty"`
	ActualEndDate    *time.Time      `json:"actual_end_date,omitempty"`
	DueDate          *time.Time      `json:"due_date,omitempty"`
}

func (w *WorkOrder) ApplyDefaults(time.Time) {
	if w.Priority == "" {
		w.Priority = PriorityNormal
	}
	if w.Status == "" {
		w.Status = WorkOrderCreated
	}
}

func (w *WorkOrder) Check() error {
	if w.ProductID == "" && w.ItemID == "" {
		return Invalid("product_id", "a product or inventory item is required")
	}
	switch w.Status {
	case WorkOrderCreated, WorkOrderScheduled, WorkOrderInProgress, WorkOrderCompleted, WorkOrderCancelled:
	default:
		return Invalid("status", fmt.Sprintf("unknown status %q", w.Status))
	}
	return checkPriority(w.Priority)
}

// JobCard assigns one operation of a work order to a machine and operator.
type JobCard struct {
	Base
	JobCardNumber        string   `json:"job_card_number"`
	WorkOrderID          string   `json:"work_order_id" validate:"required"`
	MachineID            string   `json:"machine_id,omitempty"`
	OperatorID           string   `json:"operator_id,omitempty"`
	OperationDescription string   `json:"operation_description" validate:"required"`
	StandardTime         *float64 `json:"standard_time,omitempty"`
	ActualTime           *float64 `json:"actual_time,omitempty"`
	QuantityCompleted    int64    `json:"quantity_completed" validate:"gte=0"`
	Status               string   `json:"status,omitempty"`
}

func (j *JobCard) ApplyDefaults(time.Time) {
	if j.Status == "" {
		j.Status = "Assigned"
	}
}

func (j *JobCard) Check() error {
	switch j.Status {
	case "Assigned", "In Progress", "Completed":
		return nil
	}
	return Invalid("status", fmt.Sprintf("unknown status %q", j.Status))
}

type InspectionStatus string

const (
	InspectionPending InspectionStatus = "Pending"
	InspectionPassed  InspectionStatus = "Passed"
	InspectionFailed  InspectionStatus = "Failed"
)

// FlagEnforceInspectionTotals makes quantity_inspected = accepted + rejected
// a hard validation rule.
const FlagEnforceInspectionTotals = "enforce_inspection_totals"

func init() { featureflags.Register(FlagEnforceInspectionTotals) }

// Inspection records a quality check of a product.
type Inspection struct {
	Base
	InspectionNumber  string           `json:"inspection_number"`
	InspectionType    string           `json:"inspection_type" validate:"required"`
	ProductID         string           `json:"product_id" validate:"required"`
	WorkOrderID       string           `json:"work_order_id,omitempty"`
	InspectorID       string           `json:"inspector_id,omitempty"`
	QuantityInspected float64          `json:"quantity_inspected" validate:"gte=0"`
	QuantityAccepted  float64          `json:"quantity_accepted" validate:"gte=0"`
	QuantityRejected  float64          `json:"quantity_rejected" validate:"gte=0"`
	InspectionDate    *time.Time       `json:"inspection_date,omitempty"`
	Status            InspectionStatus `json:"status,omitempty"`
	Remarks           string           `json:"remarks,omitempty"`
}

func (i *Inspection) ApplyDefaults(time.Time) {
	if i.Status == "" {
		i.Status = InspectionPending
	}
}

func (i *Inspection) Check() error {
	switch i.InspectionType {
	case "Incoming", "In-Process", "Final":
	default:
		return Invalid("inspection_type", fmt.Sprintf("unknown inspection type %q", i.InspectionType))
	}
	switch i.Status {
	case InspectionPending, InspectionPassed, InspectionFailed:
	default:
		return Invalid("status", fmt.Sprintf("unknown status %q", i.Status))
	}
	if featureflags.Enabled(FlagEnforceInspectionTotals) && i.QuantityInspected != i.QuantityAccepted+i.QuantityRejected {
		return Invalid("quantity_inspected", "must equal quantity_accepted + quantity_rejected")
	}
	return nil
}

type PurchaseOrderStatus string

const (
	PurchaseOrderPending      PurchaseOrderStatus = "Pending"
	PurchaseOrderDraft        PurchaseOrderStatus = "Draft"
	PurchaseOrderSent         PurchaseOrderStatus = "Sent"
	PurchaseOrderAcknowledged PurchaseOrderStatus = "Acknowledged"
	PurchaseOrderDelivered    PurchaseOrderStatus = "Delivered"
	PurchaseOrderClosed       PurchaseOrderStatus = "Closed"
)

// PurchaseOrder is a procurement header addressed to a supplier.
type PurchaseOrder struct {
	Base
	PONumber           string              `json:"po_number"`
	Supplier           Supplier            `json:"supplier"`
	ItemID             string              `json:"item_id,omitempty"`
	Quantity           float64             `json:"quantity" validate:"gt=0"`
	OrderDate          *time.Time          `json:"order_date,omitempty"`
	ExpectedDate       *time.Time          `json:"expected_date,omitempty"`
	TotalAmount        float64             `json:"total_amount" validate:"gte=0"`
	TermsAndConditions string              `json:"terms_and_conditions,omitempty"`
	Status             PurchaseOrderStatus `json:"status,omitempty"`
	CreatedBy          string              `json:"created_by,omitempty"`
}

func (p *PurchaseOrder) ApplyDefaults(time.Time) {
	if p.Status == "" {
		p.Status = PurchaseOrderPending
	}
}

func (p *PurchaseOrder) Check() error {
	if err := p.Supplier.Check(); err != nil {
		return err
	}
	switch p.Status {
	case PurchaseOrderPending, PurchaseOrderDraft, PurchaseOrderSent,
		PurchaseOrderAcknowledged, PurchaseOrderDelivered, PurchaseOrderClosed:
		return nil
	}
	return Invalid("status", fmt.Sprintf("unknown status %q", p.Status))
}

// SalesOrder is a customer order header.
type SalesOrder struct {
	Base
	OrderNumber  string     `json:"order_number"`
	CustomerID   string     `json:"customer_id" validate:"required"`
	OrderDate    *time.Time `json:"order_date,omitempty"`
	DeliveryDate *time.Time `json:"delivery_date,omitempty"`
	TotalAmount  float64    `json:"total_amount" validate:"gte=0"`
	Priority     Priority   `json:"priority,omitempty"`
	Status       string     `json:"status,omitempty"`
	CreatedBy    string     `json:"created_by,omitempty"`
}

func (s *SalesOrder) ApplyDefaults(time.Time) {
	if s.Priority == "" {
		s.Priority = PriorityNormal
	}
	if s.Status == "" {
		s.Status = "Draft"
	}
}

func (s *SalesOrder) Check() error {
	switch s.Status {
	case "Draft", "Confirmed", "In Production", "Dispatched", "Delivered":
	default:
		return Invalid("status", fmt.Sprintf("unknown status %q", s.Status))
	}
	return checkPriority(s.Priority)
}

// GRN is a goods receipt note for material delivered by a vendor.
type GRN struct {
	Base
	GRNNumber     string     `json:"grn_number"`
	VendorID      string     `json:"vendor_id" validate:"required"`
	ReceivedDate  *time.Time `json:"received_date,omitempty"`
	InvoiceNumber string     `json:"invoice_number,omitempty" validate:"max=50"`
	TotalAmount   float64    `json:"total_amount" validate:"gte=0"`
	Status        string     `json:"status,omitempty"`
}

func (g *GRN) ApplyDefaults(now time.Time) {
	if g.Status == "" {
		g.Status = "Received"
	}
	if g.ReceivedDate == nil {
		g.ReceivedDate = &now
	}
}

func (g *GRN) Check() error {
	switch g.Status {
	case "Received", "Pending", "Approved", "Rejected":
		return nil
	}
	return Invalid("status", fmt.Sprintf("unknown status %q", g.Status))
}

// ProductionEntry is a shift-level output report.
type ProductionEntry struct {
	Base
	WorkOrderID      string     `json:"work_order_id" validate:"required"`
	MachineID        string     `json:"machine_id,omitempty"`
	OperatorID       string     `json:"operator_id,omitempty"`
	Date             *time.Time `json:"date,omitempty"`
	Shift            string     `json:"shift,omitempty" validate:"max=20"`
	QuantityProduced float64    `json:"quantity_produced" validate:"gte=0"`
	UnitID           string     `json:"unit_id,omitempty"`
	Remarks          string     `json:"remarks,omitempty"`
}

// MaterialIssue records inventory items handed out against a work order.
type MaterialIssue struct {
	Base
	WorkOrderID string     `json:"work_order_id" validate:"required"`
	ItemID      string     `json:"item_id" validate:"required"`
	Quantity    float64    `json:"quantity" validate:"gt=0"`
	UnitID      string     `json:"unit_id,omitempty"`
	IssuedTo    string     `json:"issued_to,omitempty"`
	Date        *time.Time `json:"date,omitempty"`
}

// MaintenanceLog records preventive or breakdown work on a machine.
type MaintenanceLog struct {
	Base
	MachineID       string     `json:"machine_id" validate:"required"`
	MaintenanceDate *time.Time `json:"maintenance_date,omitempty"`
	MaintenanceType string     `json:"maintenance_type,omitempty"`
	Remarks         string     `json:"remarks,omitempty"`
	PerformedBy     string     `json:"performed_by,omitempty"`
}

func (m *MaintenanceLog) Check() error {
	switch m.MaintenanceType {
	case "", "Preventive", "Breakdown":
		return nil
	}
	return Invalid("maintenance_type", fmt.Sprintf("unknown maintenance type %q", m.MaintenanceType))
}
