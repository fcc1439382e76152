package domain

import "sort"

// Kind names an entity type. Its value doubles as the collection name.
type Kind string

const (
	KindUser            Kind = "users"
	KindEmployee        Kind = "employees"
	KindMachine         Kind = "machines"
	KindTool            Kind = "tools"
	KindVendor          Kind = "vendors"
	KindCustomer        Kind = "customers"
	KindProduct         Kind = "products"
	KindDepartment      Kind = "departments"
	KindUnit            Kind = "units"
	KindInventoryItem   Kind = "inventory_items"
	KindWorkOrder       Kind = "work_orders"
	KindJobCard         Kind = "job_cards"
	KindInspection      Kind = "inspections"
	KindToolIssuance    Kind = "tool_issuances"
	KindPurchaseOrder   Kind = "purchase_orders"
	KindSalesOrder      Kind = "sales_orders"
	KindGRN             Kind = "grns"
	KindProductionEntry Kind = "production_entries"
	KindMaterialIssue   Kind = "material_issues"
	KindMaintenanceLog  Kind = "maintenance_logs"
)

// KindSpec describes how records of a kind are stored and guarded.
type KindSpec struct {
	Kind Kind
	// CodeField is the unique business code; CodePrefix is set when the
	// code is generated.
	CodeField  string
	CodePrefix string
	Unique     []string
	Required   []string
	WriteRoles []Role
	// LedgerManaged kinds are written only by the issuance ledger.
	LedgerManaged bool
	// Protected fields may not be changed through a generic update.
	Protected []string
	New       func() any
}

var registry = map[Kind]KindSpec{
	KindUser: {
		Unique: []string{"username", "email"}, Required: []string{"username", "email", "password_hash"},
		WriteRoles: RolesAdmin, Protected: []string{"password_hash"},
		New: func() any { return &User{} },
	},
	KindEmployee: {
		CodeField: "code", CodePrefix: "EMP", Required: []string{"name"},
		WriteRoles: RolesManagement, New: func() any { return &Employee{} },
	},
	KindMachine: {
		CodeField: "machine_code", CodePrefix: "MCH", Required: []string{"name", "machine_type"},
		WriteRoles: RolesManagement, New: func() any { return &Machine{} },
	},
	KindTool: {
		CodeField: "tool_code", CodePrefix: "TOOL", Required: []string{"name", "tool_type"},
		WriteRoles: RolesStores, Protected: []string{"quantity_available"},
		New: func() any { return &Tool{} },
	},
	KindVendor: {
		CodeField: "vendor_code", CodePrefix: "VEND", Required: []string{"name"},
		WriteRoles: RolesManagement, New: func() any { return &Vendor{} },
	},
	KindCustomer: {
		CodeField: "customer_code", CodePrefix: "CUST", Required: []string{"name"},
		WriteRoles: RolesManagement, New: func() any { return &Customer{} },
	},
	KindProduct: {
		CodeField: "product_code", CodePrefix: "PROD", Required: []string{"name", "unit_of_measure"},
		WriteRoles: RolesManagement, New: func() any { return &Product{} },
	},
	KindDepartment: {
		CodeField: "name", Required: []string{"name"},
		WriteRoles: RolesManagement, New: func() any { return &Department{} },
	},
	KindUnit: {
		CodeField: "name", Required: []string{"name"},
		WriteRoles: RolesManagement, New: func() any { return &Unit{} },
	},
	KindInventoryItem: {
		CodeField: "code", CodePrefix: "ITEM", Required: []string{"name"},
		WriteRoles: RolesStores, New: func() any { return &InventoryItem{} },
	},
	KindWorkOrder: {
		CodeField: "work_order_number", CodePrefix: "WO", Required: []string{"quantity"},
		WriteRoles: RolesManagement, New: func() any { return &WorkOrder{} },
	},
	KindJobCard: {
		CodeField: "job_card_number", CodePrefix: "JC", Required: []string{"work_order_id", "operation_description"},
		WriteRoles: RolesShopFloor, New: func() any { return &JobCard{} },
	},
	KindInspection: {
		CodeField: "inspection_number", CodePrefix: "INS", Required: []string{"inspection_type", "product_id"},
		WriteRoles: RolesManagement, New: func() any { return &Inspection{} },
	},
	KindToolIssuance: {
		CodeField: "issue_number", CodePrefix: "TI",
		Required:   []string{"tool_id", "employee_id", "quantity_issued"},
		WriteRoles: RolesStores, LedgerManaged: true,
		New: func() any { return &ToolIssuance{} },
	},
	KindPurchaseOrder: {
		CodeField: "po_number", CodePrefix: "PO", Required: []string{"supplier", "quantity"},
		WriteRoles: RolesManagement, New: func() any { return &PurchaseOrder{} },
	},
	KindSalesOrder: {
		CodeField: "order_number", CodePrefix: "SO", Required: []string{"customer_id"},
		WriteRoles: RolesManagement, New: func() any { return &SalesOrder{} },
	},
	KindGRN: {
		CodeField: "grn_number", CodePrefix: "GRN", Required: []string{"vendor_id"},
		WriteRoles: RolesStores, New: func() any { return &GRN{} },
	},
	KindProductionEntry: {
		Required:   []string{"work_order_id"},
		WriteRoles: RolesShopFloor, New: func() any { return &ProductionEntry{} },
	},
	KindMaterialIssue: {
		Required:   []string{"work_order_id", "item_id", "quantity"},
		WriteRoles: RolesStores, New: func() any { return &MaterialIssue{} },
	},
	KindMaintenanceLog: {
		Required:   []string{"machine_id"},
		WriteRoles: RolesManagement, New: func() any { return &MaintenanceLog{} },
	},
}

// Lookup returns the spec registered for kind.
func Lookup(kind Kind) (KindSpec, bool) {
	spec, ok := registry[kind]
	if !ok {
		return KindSpec{}, false
	}
	spec.Kind = kind
	return spec, true
}

// Kinds lists every registered kind in name order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// UniqueFields returns the code field plus any other unique fields.
func (s KindSpec) UniqueFields() []string {
	out := make([]string, 0, len(s.Unique)+1)
	if s.CodeField != "" {
		out = append(out, s.CodeField)
	}
	for _, f := range s.Unique {
		if f != s.CodeField {
			out = append(out, f)
		}
	}
	return out
}

// IsProtected reports whether field is closed to generic updates.
func (s KindSpec) IsProtected(field string) bool {
	for _, f := range s.Protected {
		if f == field {
			return true
		}
	}
	return false
}

// RequiredFields returns the fields a stored record must carry, the code
// field included.
func (s KindSpec) RequiredFields() []string {
	out := make([]string, 0, len(s.Required)+1)
	if s.CodeField != "" {
		out = append(out, s.CodeField)
	}
	for _, f := range s.Required {
		if f != s.CodeField {
			out = append(out, f)
		}
	}
	return out
}
