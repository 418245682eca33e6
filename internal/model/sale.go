package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sale is an immutable record of a committed cart. Totals are derived from
// Items at creation and never recomputed.
type Sale struct {
	BaseModel
	ReceiptNumber int64           `gorm:"uniqueIndex;not null" json:"receiptNumber"`
	Items         []SaleItem      `gorm:"foreignKey:SaleID" json:"items"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"totalAmount"`
	TotalProfit   decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"totalProfit"`
	PaymentMethod string          `gorm:"type:varchar(30);not null;index" json:"paymentMethod"`
	Channel       string          `gorm:"type:varchar(30);not null;index" json:"channel"`
	Customer      string          `gorm:"type:varchar(255)" json:"customer,omitempty"`
	Date          time.Time       `gorm:"not null;index" json:"date"`

	// User tracking
	CreatedByUserID *uuid.UUID `gorm:"type:uuid;index" json:"createdByUserId,omitempty"`
	CreatedByUser   *User      `gorm:"foreignKey:CreatedByUserID" json:"createdByUser,omitempty"`
}

// SaleItem is one cart line. UnitCost is the product cost at sale time.
type SaleItem struct {
	ID          uuid.UUID       `gorm:"type:uuid;primary_key;" json:"id"`
	SaleID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"saleId"`
	LineNo      int             `gorm:"not null" json:"lineNo"`
	ProductID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"productId"`
	ProductName string          `gorm:"type:varchar(255)" json:"productName"`
	SKU         string          `gorm:"type:varchar(50)" json:"sku"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"unitPrice"`
	UnitCost    decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"unitCost"`
	Subtotal    decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"subtotal"`
	Profit      decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"profit"`
}

// NewSaleItem snapshots product name, sku and cost and derives the line
// subtotal and profit.
func NewSaleItem(lineNo int, product *Product, quantity int, unitPrice decimal.Decimal) SaleItem {
	qty := decimal.NewFromInt(int64(quantity))
	return SaleItem{
		ID:          uuid.New(),
		LineNo:      lineNo,
		ProductID:   product.ID,
		ProductName: product.Name,
		SKU:         product.SKU,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		UnitCost:    product.CostPrice,
		Subtotal:    unitPrice.Mul(qty),
		Profit:      unitPrice.Sub(product.CostPrice).Mul(qty),
	}
}

// ApplyTotals sets TotalAmount and TotalProfit from the current items.
func (s *Sale) ApplyTotals() {
	s.TotalAmount = decimal.Zero
	s.TotalProfit = decimal.Zero
	for _, it := range s.Items {
		s.TotalAmount = s.TotalAmount.Add(it.Subtotal)
		s.TotalProfit = s.TotalProfit.Add(it.Profit)
	}
}

// Counter backs monotonic sequences such as receipt numbers.
type Counter struct {
	Name  string `gorm:"type:varchar(50);primaryKey"`
	Value int64  `gorm:"not null;default:0"`
}

const SaleReceiptCounter = "sale_receipt"
