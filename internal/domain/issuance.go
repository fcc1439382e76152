package domain

import "time"

type IssuanceStatus string

const (
	IssuanceIssued            IssuanceStatus = "Issued"
	IssuancePartiallyReturned IssuanceStatus = "Partially Returned"
	IssuanceFullyReturned     IssuanceStatus = "Fully Returned"
)

// DeriveIssuanceStatus maps the returned/issued ratio to a status.
func DeriveIssuanceStatus(issued, returned int64) IssuanceStatus {
	switch {
	case returned <= 0:
		return IssuanceIssued
	case returned >= issued:
		return IssuanceFullyReturned
	default:
		return IssuancePartiallyReturned
	}
}

// ToolIssuance is a checkout of tool units, created and mutated only by the
// issuance ledger.
type ToolIssuance struct {
	Base
	IssueNumber        string         `json:"issue_number"`
	ToolID             string         `json:"tool_id" validate:"required"`
	EmployeeID         string         `json:"employee_id" validate:"required"`
	WorkOrderID        string         `json:"work_order_id,omitempty"`
	QuantityIssued     int64          `json:"quantity_issued" validate:"gt=0"`
	QuantityReturned   int64          `json:"quantity_returned" validate:"gte=0,ltefield=QuantityIssued"`
	IssueDate          time.Time      `json:"issue_date"`
	ExpectedReturnDate *time.Time     `json:"expected_return_date,omitempty"`
	ActualReturnDate   *time.Time     `json:"actual_return_date,omitempty"`
	Status             IssuanceStatus `json:"status"`
	IssuedBy           string         `json:"issued_by,omitempty"`
}

// Outstanding is the number of units not yet returned.
func (t *ToolIssuance) Outstanding() int64 { return t.QuantityIssued - t.QuantityReturned }

// IssueRequest is the input of an issue operation.
type IssueRequest struct {
	ToolID             string     `json:"tool_id" validate:"required"`
	EmployeeID         string     `json:"employee_id" validate:"required"`
	WorkOrderID        string     `json:"work_order_id,omitempty"`
	Quantity           int64      `json:"quantity" validate:"gt=0"`
	IssueDate          *time.Time `json:"issue_date,omitempty"`
	ExpectedReturnDate *time.Time `json:"expected_return_date,omitempty"`
}

// ReturnRequest is the input of a return operation.
type ReturnRequest struct {
	Quantity int64 `json:"quantity" validate:"gt=0"`
}
