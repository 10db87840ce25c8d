package dispatch

import (
	"context"
)

// Location is one node of the platform's location hierarchy.
type Location struct {
	ID       int64
	ParentID int64
	Level    int
	Name     string
}

// LocationDirectory looks up the platform location hierarchy. Owned by
// the marketplace core; consumed here to walk up to a mapped ancestor
// when a leaf location has no serviceable-area row of its own.
type LocationDirectory interface {
	Location(ctx context.Context, id int64) (*Location, error)
}

// Warehouse is a vendor pickup point.
type Warehouse struct {
	LocationID  int64
	IsDefault   bool
	StoreName   string
	ContactName string
	Phone       string
	Address     string
}

// WarehouseDirectory resolves a vendor's default warehouse.
type WarehouseDirectory interface {
	DefaultWarehouse(ctx context.Context, vendorID int64) (*Warehouse, error)
}

// OrderInfo is the order aggregate projection the dispatcher needs.
type OrderInfo struct {
	OrderID         int64
	VendorID        int64
	RecipientName   string
	RecipientPhone  string
	RecipientAddr   string
	RecipientLocID  int64
	ItemDescription string
	ItemCount       int
	WeightKG        float64
	ItemValue       float64
	CODAmount       float64
}

// OrderDirectory loads the order aggregate for dispatch.
type OrderDirectory interface {
	Order(ctx context.Context, orderID int64) (*OrderInfo, error)
}
