package model

// Role represents user roles in the system
type Role struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	Code        string      `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"` // MASTER_ADMIN, SELLER
	Name        string      `gorm:"type:varchar(100)" json:"name"`
	Description string      `gorm:"type:text" json:"description"`
	Privileges  []Privilege `gorm:"many2many:role_privileges;" json:"privileges,omitempty"`
}

// Role codes as constants
const (
	RoleMasterAdmin = "MASTER_ADMIN"
	RoleSeller      = "SELLER"
)

// DefaultRoles defines the default roles in the system
var DefaultRoles = []Role{
	{
		Code:        RoleMasterAdmin,
		Name:        "Master Administrator",
		Description: "Full back-office access including sale corrections",
	},
	{
		Code:        RoleSeller,
		Name:        "Seller",
		Description: "Point of sale access: register sales, browse catalog",
	},
}

// sellerPrivileges is the subset granted to RoleSeller.
var sellerPrivileges = map[string]bool{
	PrivProductView:    true,
	PrivCategoryCreate: true,
	PrivSaleView:       true,
	PrivSaleCreate:     true,
	PrivDashboardView:  true,
}

// PrivilegesFor filters all down to the privileges a role code receives.
func PrivilegesFor(roleCode string, all []Privilege) []Privilege {
	if roleCode == RoleMasterAdmin {
		return all
	}
	var out []Privilege
	if roleCode == RoleSeller {
		for _, p := range all {
			if sellerPrivileges[p.Code] {
				out = append(out, p)
			}
		}
	}
	return out
}
