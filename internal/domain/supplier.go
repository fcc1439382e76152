package domain

import (
	"encoding/json"
	"strings"
)

// Supplier is either a reference to a Vendor record or an inline supplier
// name for one-off purchases. Exactly one side is set.
type Supplier struct {
	vendorID string
	name     string
}

// VendorRef names a supplier by Vendor id.
func VendorRef(vendorID string) Supplier { return Supplier{vendorID: vendorID} }

// InlineSupplier names a supplier that has no Vendor record.
func InlineSupplier(name string) Supplier { return Supplier{name: name} }

// VendorID returns the referenced vendor id, if this is a VendorRef.
func (s Supplier) VendorID() (string, bool) { return s.vendorID, s.vendorID != "" }

// InlineName returns the supplier name, if this is an inline supplier.
func (s Supplier) InlineName() (string, bool) { return s.name, s.name != "" }

// DisplayName is the name shown in listings; vendorName is used for refs.
func (s Supplier) DisplayName(vendorName string) string {
	if s.vendorID != "" {
		return vendorName
	}
	return s.name
}

func (s Supplier) Check() error {
	switch {
	case s.vendorID == "" && s.name == "":
		return Invalid("supplier", "vendor_id or supplier_name is required")
	case s.vendorID != "" && s.name != "":
		return Invalid("supplier", "vendor_id and supplier_name are mutually exclusive")
	}
	return nil
}

type supplierWire struct {
	VendorID     string `json:"vendor_id,omitempty"`
	SupplierName string `json:"supplier_name,omitempty"`
}

func (s Supplier) MarshalJSON() ([]byte, error) {
	return json.Marshal(supplierWire{VendorID: s.vendorID, SupplierName: s.name})
}

func (s *Supplier) UnmarshalJSON(data []byte) error {
	var w supplierWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	s.vendorID = strings.TrimSpace(w.VendorID)
	s.name = strings.TrimSpace(w.SupplierName)
	return nil
}
