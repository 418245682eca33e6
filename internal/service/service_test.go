package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"retail-backoffice/internal/cache"
	"retail-backoffice/internal/model"
	"retail-backoffice/internal/repository"
	"retail-backoffice/internal/testutil"
	"retail-backoffice/internal/ws"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testActor = Actor{ID: "tester", Name: "Tester", Email: "tester@example.com"}

type fixture struct {
	db         *gorm.DB
	products   repository.ProductRepository
	categories repository.CategoryRepository
	sales      repository.SaleRepository
	hub        *ws.Hub
	store      cache.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	return &fixture{
		db:         db,
		products:   repository.NewProductRepo(db),
		categories: repository.NewCategoryRepo(db),
		sales:      repository.NewSaleRepo(db),
		hub:        ws.NewHub(),
		store:      cache.NoopStore{},
	}
}

func (f *fixture) saleService() *saleService {
	return NewSaleService(f.products, f.sales, f.db, f.hub, f.store).(*saleService)
}

// product inserts an active product with the given stock and prices.
func (f *fixture) product(t *testing.T, sku string, stock int, cost, price string) *model.Product {
	t.Helper()
	p := &model.Product{
		SKU:         sku,
		Name:        "Product " + sku,
		CostPrice:   decimal.RequireFromString(cost),
		PublicPrice: decimal.RequireFromString(price),
		Stock:       stock,
		MinStock:    model.DefaultMinStock,
		Status:      model.ProductActive,
	}
	require.NoError(t, f.products.Create(context.Background(), p))
	return p
}

func (f *fixture) stock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	p, err := f.products.FindByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

// sell registers a one-product cart at the given time.
func (f *fixture) sell(t *testing.T, at time.Time, payment, channel string, lines ...SaleLineRequest) *model.Sale {
	t.Helper()
	svc := f.saleService()
	svc.now = func() time.Time { return at }
	sale, err := svc.CreateSale(context.Background(), &CreateSaleRequest{
		Products:      lines,
		PaymentMethod: payment,
		Channel:       channel,
	}, testActor)
	require.NoError(t, err)
	return sale
}

func line(p *model.Product, qty int) SaleLineRequest {
	return SaleLineRequest{Product: p.ID, Quantity: qty}
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got.String())
}

// drainEvents returns the events queued on the hub so far.
func drainEvents(t *testing.T, h *ws.Hub) []ws.Event {
	t.Helper()
	var events []ws.Event
	for {
		select {
		case raw := <-h.Broadcast:
			var ev ws.Event
			require.NoError(t, json.Unmarshal(raw, &ev))
			events = append(events, ev)
		default:
			return events
		}
	}
}

func eventTypes(events []ws.Event) []string {
	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}
