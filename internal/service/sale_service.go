package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"retail-backoffice/internal/cache"
	"retail-backoffice/internal/model"
	"retail-backoffice/internal/repository"
	"retail-backoffice/internal/ws"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type SaleService interface {
	CreateSale(ctx context.Context, req *CreateSaleRequest, actor Actor) (*model.Sale, error)
	GetSale(ctx context.Context, id uuid.UUID) (*model.Sale, error)
	UpdateSale(ctx context.Context, id uuid.UUID, req *UpdateSaleRequest, actor Actor) (*model.Sale, error)
	DeleteSale(ctx context.Context, id uuid.UUID, restock bool, actor Actor) error
}

// SaleLineRequest is one cart line. A nil UnitPrice charges the product's
// current public price.
type SaleLineRequest struct {
	Product   uuid.UUID        `json:"product" validate:"uuid_required"`
	Quantity  int              `json:"quantity" validate:"gt=0"`
	UnitPrice *decimal.Decimal `json:"unitPrice" validate:"omitempty,gte=0,money"`
}

type CreateSaleRequest struct {
	Products      []SaleLineRequest `json:"products" validate:"required,min=1,dive"`
	PaymentMethod string            `json:"paymentMethod" validate:"required,max=30"`
	Channel       string            `json:"channel" validate:"required,max=30"`
	Customer      string            `json:"customer" validate:"max=255"`
}

// UpdateSaleRequest corrects sale metadata. Lines and totals are immutable.
type UpdateSaleRequest struct {
	PaymentMethod *string `json:"paymentMethod" validate:"omitempty,max=30"`
	Channel       *string `json:"channel" validate:"omitempty,max=30"`
	Customer      *string `json:"customer" validate:"omitempty,max=255"`
}

type saleService struct {
	productRepo repository.ProductRepository
	saleRepo    repository.SaleRepository
	db          *gorm.DB
	wsHub       *ws.Hub
	cache       cache.Store
	now         func() time.Time
}

func NewSaleService(pRepo repository.ProductRepository, sRepo repository.SaleRepository, db *gorm.DB, hub *ws.Hub, store cache.Store) SaleService {
	return &saleService{
		productRepo: pRepo,
		saleRepo:    sRepo,
		db:          db,
		wsHub:       hub,
		cache:       store,
		now:         time.Now,
	}
}

// CreateSale commits a cart as one database transaction.
//
// Phase one locks every referenced product (in id order, so concurrent carts
// cannot deadlock) and checks the lines in input order: the first unknown
// product or short line aborts the sale. Phase two applies each deduction with
// a conditional decrement that only succeeds while stock >= quantity, so a
// stale read can never oversell. Any failure rolls back every deduction.
func (s *saleService) CreateSale(ctx context.Context, req *CreateSaleRequest, actor Actor) (*model.Sale, error) {
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	req.Channel = strings.TrimSpace(req.Channel)
	req.Customer = strings.TrimSpace(req.Customer)
	if err := validate(req); err != nil {
		return nil, err
	}

	var (
		sale     *model.Sale
		products map[uuid.UUID]*model.Product
		before   map[uuid.UUID]int
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		products, err = s.lockProducts(tx, req.Products)
		if err != nil {
			return err
		}

		// Phase 1: validate all lines before touching stock
		requested := make(map[uuid.UUID]int, len(products))
		items := make([]model.SaleItem, 0, len(req.Products))
		for i, line := range req.Products {
			p := products[line.Product]
			if p == nil {
				return notFound("product", line.Product)
			}
			if !p.IsActive() {
				return invalid(fmt.Sprintf("products[%d].product", i), "refers to an inactive product")
			}
			requested[p.ID] += line.Quantity
			if p.Stock < requested[p.ID] {
				return &InsufficientStockError{
					ProductID:   p.ID,
					ProductName: p.Name,
					Requested:   requested[p.ID],
					Available:   p.Stock,
				}
			}
			price := p.PublicPrice
			if line.UnitPrice != nil {
				price = *line.UnitPrice
			}
			items = append(items, model.NewSaleItem(i+1, p, line.Quantity, price))
		}

		// Phase 2: conditional deductions
		before = make(map[uuid.UUID]int, len(products))
		for id, p := range products {
			before[id] = p.Stock
		}
		for _, it := range items {
			ok, err := s.productRepo.DecrementIfAvailable(tx, it.ProductID, it.Quantity, actor.ID)
			if err != nil {
				return err
			}
			if !ok {
				return s.stockRaceError(tx, products[it.ProductID], requested, before)
			}
			products[it.ProductID].Stock -= it.Quantity
		}

		receipt, err := s.saleRepo.NextReceiptNumber(tx)
		if err != nil {
			return err
		}

		sale = &model.Sale{
			ReceiptNumber:   receipt,
			Items:           items,
			PaymentMethod:   req.PaymentMethod,
			Channel:         req.Channel,
			Customer:        req.Customer,
			Date:            s.now().UTC(),
			CreatedByUserID: actor.UserID(),
		}
		sale.ApplyTotals()
		sale.CreatedBy = actor.ID
		sale.UpdatedBy = actor.ID
		return s.saleRepo.Create(tx, sale)
	})
	if err != nil {
		return nil, err
	}

	invalidateDashboard(ctx, s.cache)
	s.publishSale(sale, products, before, actor)
	return sale, nil
}

// lockProducts loads the distinct products of the cart with row locks.
// Missing ids are simply absent from the returned map.
func (s *saleService) lockProducts(tx *gorm.DB, lines []SaleLineRequest) (map[uuid.UUID]*model.Product, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	seen := make(map[uuid.UUID]bool, len(lines))
	for _, line := range lines {
		if !seen[line.Product] {
			seen[line.Product] = true
			ids = append(ids, line.Product)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })

	products := make(map[uuid.UUID]*model.Product, len(ids))
	for _, id := range ids {
		p, err := s.productRepo.FindForUpdate(tx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		products[id] = p
	}
	return products, nil
}

// stockRaceError re-reads the product after a rejected decrement so the error
// reports the stock that was actually available to this cart.
func (s *saleService) stockRaceError(tx *gorm.DB, p *model.Product, requested, before map[uuid.UUID]int) error {
	available := 0
	if current, err := s.productRepo.FindForUpdate(tx, p.ID); err == nil {
		// add back what earlier lines of this cart already took
		available = current.Stock + (before[p.ID] - p.Stock)
	}
	return &InsufficientStockError{
		ProductID:   p.ID,
		ProductName: p.Name,
		Requested:   requested[p.ID],
		Available:   available,
	}
}

func (s *saleService) publishSale(sale *model.Sale, products map[uuid.UUID]*model.Product, before map[uuid.UUID]int, actor Actor) {
	if s.wsHub == nil {
		return
	}
	s.wsHub.Emit(ws.Event{
		Type: "sale_created",
		Data: map[string]interface{}{
			"id":            sale.ID,
			"receiptNumber": sale.ReceiptNumber,
			"totalAmount":   sale.TotalAmount,
			"totalProfit":   sale.TotalProfit,
			"channel":       sale.Channel,
			"paymentMethod": sale.PaymentMethod,
			"lines":         len(sale.Items),
		},
		User:    actor.wsUser(),
		Message: fmt.Sprintf("%s registered sale #%d for %s", actor.Name, sale.ReceiptNumber, sale.TotalAmount.StringFixed(2)),
	})
	for id, p := range products {
		publishStock(s.wsHub, "sale", p, before[id], actor)
	}
}

func (s *saleService) GetSale(ctx context.Context, id uuid.UUID) (*model.Sale, error) {
	sale, err := s.saleRepo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("sale", id)
	}
	return sale, err
}

func (s *saleService) UpdateSale(ctx context.Context, id uuid.UUID, req *UpdateSaleRequest, actor Actor) (*model.Sale, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{"updated_by": actor.ID}
	if req.PaymentMethod != nil {
		v := strings.TrimSpace(*req.PaymentMethod)
		if v == "" {
			return nil, invalid("paymentMethod", "must not be empty")
		}
		fields["payment_method"] = v
	}
	if req.Channel != nil {
		v := strings.TrimSpace(*req.Channel)
		if v == "" {
			return nil, invalid("channel", "must not be empty")
		}
		fields["channel"] = v
	}
	if req.Customer != nil {
		fields["customer"] = strings.TrimSpace(*req.Customer)
	}

	err := s.saleRepo.UpdateDetails(ctx, id, fields)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("sale", id)
	}
	if err != nil {
		return nil, err
	}

	invalidateDashboard(ctx, s.cache)
	sale, err := s.GetSale(ctx, id)
	if err != nil {
		return nil, err
	}
	s.wsHub.Emit(ws.Event{Type: "sale_updated", Data: map[string]interface{}{"id": sale.ID, "receiptNumber": sale.ReceiptNumber}, User: actor.wsUser()})
	return sale, nil
}

// DeleteSale removes a sale. Stock is returned to the products only when
// restock is set; otherwise inventory is left exactly as it is.
func (s *saleService) DeleteSale(ctx context.Context, id uuid.UUID, restock bool, actor Actor) error {
	var sale *model.Sale
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		sale, err = s.saleRepo.FindForUpdate(tx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("sale", id)
		}
		if err != nil {
			return err
		}
		if restock {
			for _, it := range sale.Items {
				if err := s.productRepo.IncrementStock(tx, it.ProductID, it.Quantity, actor.ID); err != nil {
					return err
				}
			}
		}
		return s.saleRepo.Delete(tx, id, actor.ID)
	})
	if err != nil {
		return err
	}

	invalidateDashboard(ctx, s.cache)
	s.wsHub.Emit(ws.Event{
		Type:    "sale_deleted",
		Data:    map[string]interface{}{"id": sale.ID, "receiptNumber": sale.ReceiptNumber, "restocked": restock},
		User:    actor.wsUser(),
		Message: fmt.Sprintf("%s deleted sale #%d", actor.Name, sale.ReceiptNumber),
	})
	return nil
}
