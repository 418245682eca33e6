package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ProductStatus string

const (
	ProductActive   ProductStatus = "active"
	ProductInactive ProductStatus = "inactive"
)

// DefaultMinStock is the low-stock threshold applied when none is given.
const DefaultMinStock = 5

type Product struct {
	BaseModel
	SKU         string          `gorm:"type:varchar(50);uniqueIndex;not null" json:"sku"`
	Name        string          `gorm:"type:varchar(255);not null" json:"name"`
	CategoryID  *uuid.UUID      `gorm:"type:uuid;index" json:"categoryId,omitempty"`
	Category    *Category       `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Distributor string          `gorm:"type:varchar(255)" json:"distributor"`
	CostPrice   decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"costPrice"`
	PublicPrice decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"publicPrice"`
	Stock       int             `gorm:"not null;default:0" json:"stock"`
	MinStock    int             `gorm:"not null;default:5" json:"minStock"`
	Image       string          `gorm:"type:varchar(500)" json:"image,omitempty"`
	Status      ProductStatus   `gorm:"type:varchar(10);not null;default:'active';index" json:"status"`
}

// Margin is the per-unit difference between public and cost price.
// Percentage is relative to the public price and zero when the price is zero.
type Margin struct {
	Amount     decimal.Decimal `json:"amount"`
	Percentage decimal.Decimal `json:"percentage"`
}

func (p *Product) Margin() Margin {
	amount := p.PublicPrice.Sub(p.CostPrice)
	pct := decimal.Zero
	if p.PublicPrice.IsPositive() {
		pct = amount.Div(p.PublicPrice).Mul(decimal.NewFromInt(100)).Round(2)
	}
	return Margin{Amount: amount, Percentage: pct}
}

// IsLowStock reports whether stock has fallen to or below the threshold.
func (p *Product) IsLowStock() bool {
	return p.Stock <= p.MinStock
}

func (p *Product) IsActive() bool {
	return p.Status == ProductActive
}

// ProductView is the API representation with derived fields.
type ProductView struct {
	Product
	Margin   Margin `json:"margin"`
	LowStock bool   `json:"lowStock"`
}

func (p *Product) ToView() ProductView {
	return ProductView{Product: *p, Margin: p.Margin(), LowStock: p.IsLowStock()}
}
