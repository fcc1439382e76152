package domain

import "time"

// Employee is a shop-floor or office worker.
type Employee struct {
	Base
	Code         string     `json:"code"`
	Name         string     `json:"name" validate:"required,max=100"`
	Phone        string     `json:"phone,omitempty" validate:"max=20"`
	Email        string     `json:"email,omitempty" validate:"omitempty,email"`
	DepartmentID string     `json:"department_id,omitempty"`
	JoinDate     *time.Time `json:"join_date,omitempty"`
	Role         string     `json:"role,omitempty"`
	IsActive     *bool      `json:"is_active,omitempty"`
}

func (e *Employee) ApplyDefaults(time.Time) {
	if e.Role == "" {
		e.Role = string(RoleOperator)
	}
	if e.IsActive == nil {
		e.IsActive = Bool(true)
	}
}

// Machine is a piece of production equipment.
type Machine struct {
	Base
	MachineCode      string     `json:"machine_code"`
	Name             string     `json:"name" validate:"required,max=100"`
	MachineType      string     `json:"machine_type" validate:"required,max=50"`
	DepartmentID     string     `json:"department_id,omitempty"`
	Manufacturer     string     `json:"manufacturer,omitempty"`
	Model            string     `json:"model,omitempty"`
	Capacity         string     `json:"capacity,omitempty"`
	Location         string     `json:"location,omitempty"`
	PurchaseDate     *time.Time `json:"purchase_date,omitempty"`
	InstallationDate *time.Time `json:"installation_date,omitempty"`
	IsActive         *bool      `json:"is_active,omitempty"`
}

func (m *Machine) ApplyDefaults(time.Time) {
	if m.IsActive == nil {
		m.IsActive = Bool(true)
	}
}

// Tool is a stocked tool whose available quantity is consumed by issuances.
type Tool struct {
	Base
	ToolCode          string   `json:"tool_code"`
	Name              string   `json:"name" validate:"required,max=100"`
	ToolType          string   `json:"tool_type" validate:"required,max=50"`
	Specification     string   `json:"specification,omitempty"`
	QuantityAvailable int64    `json:"quantity_available" validate:"gte=0"`
	MinimumStock      *int64   `json:"minimum_stock,omitempty" validate:"omitempty,gte=0"`
	UnitPrice         *float64 `json:"unit_price,omitempty"`
	Location          string   `json:"location,omitempty"`
	IsActive          *bool    `json:"is_active,omitempty"`
}

func (t *Tool) ApplyDefaults(time.Time) {
	if t.MinimumStock == nil {
		t.MinimumStock = Int64(1)
	}
	if t.IsActive == nil {
		t.IsActive = Bool(true)
	}
}

// LowStock reports whether availability has reached the minimum threshold.
func (t *Tool) LowStock() bool {
	threshold := int64(1)
	if t.MinimumStock != nil {
		threshold = *t.MinimumStock
	}
	return t.QuantityAvailable <= threshold
}

// Party holds the contact fields shared by vendors and customers.
type Party struct {
	Name          string `json:"name" validate:"required,max=100"`
	ContactPerson string `json:"contact_person,omitempty" validate:"max=100"`
	Phone         string `json:"phone,omitempty" validate:"max=20"`
	Email         string `json:"email,omitempty" validate:"omitempty,email"`
	Address       string `json:"address,omitempty"`
	City          string `json:"city,omitempty" validate:"max=50"`
	State         string `json:"state,omitempty" validate:"max=50"`
	Country       string `json:"country,omitempty" validate:"max=50"`
	PostalCode    string `json:"postal_code,omitempty" validate:"max=10"`
	IsActive      *bool  `json:"is_active,omitempty"`
}

func (p *Party) applyPartyDefaults() {
	if p.Country == "" {
		p.Country = "India"
	}
	if p.IsActive == nil {
		p.IsActive = Bool(true)
	}
}

type Vendor struct {
	Base
	VendorCode string `json:"vendor_code"`
	Party
}

func (v *Vendor) ApplyDefaults(time.Time) { v.applyPartyDefaults() }

type Customer struct {
	Base
	CustomerCode string `json:"customer_code"`
	Party
}

func (c *Customer) ApplyDefaults(time.Time) { c.applyPartyDefaults() }

// Product is a finished good that work orders produce and inspections check.
type Product struct {
	Base
	ProductCode   string   `json:"product_code"`
	Name          string   `json:"name" validate:"required,max=100"`
	Description   string   `json:"description,omitempty"`
	UnitOfMeasure string   `json:"unit_of_measure" validate:"required,max=10"`
	StandardPrice *float64 `json:"standard_price,omitempty"`
	ProductType   string   `json:"product_type,omitempty"`
	IsActive      *bool    `json:"is_active,omitempty"`
}

func (p *Product) ApplyDefaults(time.Time) {
	if p.IsActive == nil {
		p.IsActive = Bool(true)
	}
}

type Department struct {
	Base
	Name     string `json:"name" validate:"required,max=100"`
	IsActive *bool  `json:"is_active,omitempty"`
}

func (d *Department) ApplyDefaults(time.Time) {
	if d.IsActive == nil {
		d.IsActive = Bool(true)
	}
}

type Unit struct {
	Base
	Name     string `json:"name" validate:"required,max=50"`
	IsActive *bool  `json:"is_active,omitempty"`
}

func (u *Unit) ApplyDefaults(time.Time) {
	if u.IsActive == nil {
		u.IsActive = Bool(true)
	}
}

// InventoryItem is a raw material or consumable tracked by quantity.
type InventoryItem struct {
	Base
	Code         string   `json:"code"`
	Name         string   `json:"name" validate:"required,max=100"`
	Description  string   `json:"description,omitempty"`
	UnitID       string   `json:"unit_id,omitempty"`
	CurrentStock float64  `json:"current_stock" validate:"gte=0"`
	MinimumStock float64  `json:"minimum_stock" validate:"gte=0"`
	UnitPrice    *float64 `json:"unit_price,omitempty"`
	Location     string   `json:"location,omitempty"`
	IsActive     *bool    `json:"is_active,omitempty"`
}

func (i *InventoryItem) ApplyDefaults(time.Time) {
	if i.IsActive == nil {
		i.IsActive = Bool(true)
	}
}
