package model

// Privilege represents a permission that can be assigned to users
type Privilege struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Code string `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"` // e.g., "sale:create"
	Name string `gorm:"type:varchar(100)" json:"name"`                     // e.g., "Register Sale"
}

const (
	PrivProductView   = "product:view"
	PrivProductCreate = "product:create"
	PrivProductUpdate = "product:update"
	PrivProductDelete = "product:delete"

	PrivCategoryCreate = "category:create"
	PrivCategoryDelete = "category:delete"

	PrivSaleView   = "sale:view"
	PrivSaleCreate = "sale:create"
	PrivSaleUpdate = "sale:update"
	PrivSaleDelete = "sale:delete"

	PrivReportView    = "report:view"
	PrivDashboardView = "dashboard:view"
)

// Default privileges for the system
var DefaultPrivileges = []Privilege{
	// Catalog
	{Code: PrivProductView, Name: "View Product"},
	{Code: PrivProductCreate, Name: "Create Product"},
	{Code: PrivProductUpdate, Name: "Update Product"},
	{Code: PrivProductDelete, Name: "Delete Product"},
	{Code: PrivCategoryCreate, Name: "Create Category"},
	{Code: PrivCategoryDelete, Name: "Delete Category"},
	// Point of sale
	{Code: PrivSaleView, Name: "View Sale"},
	{Code: PrivSaleCreate, Name: "Register Sale"},
	{Code: PrivSaleUpdate, Name: "Correct Sale"},
	{Code: PrivSaleDelete, Name: "Delete Sale"},
	// Reporting
	{Code: PrivReportView, Name: "View Reports"},
	{Code: PrivDashboardView, Name: "View Dashboard"},
}
