package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"retail-backoffice/internal/model"
	"retail-backoffice/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCreateSaleDecrementsStockAndComputesTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "TSHIRT", 10, "5", "10")
	price := decimal.NewFromInt(10)

	sale, err := f.saleService().CreateSale(ctx, &CreateSaleRequest{
		Products:      []SaleLineRequest{{Product: p.ID, Quantity: 3, UnitPrice: &price}},
		PaymentMethod: "cash",
		Channel:       "in-store",
		Customer:      "  Ana  ",
	}, testActor)
	require.NoError(t, err)

	assert.Equal(t, 7, f.stock(t, p.ID))
	assertDecimal(t, "30", sale.TotalAmount)
	assertDecimal(t, "15", sale.TotalProfit)
	assert.Equal(t, int64(1), sale.ReceiptNumber)
	assert.Equal(t, "Ana", sale.Customer)
	assert.Equal(t, "tester", sale.CreatedBy)

	got, err := f.saleService().GetSale(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	item := got.Items[0]
	assert.Equal(t, p.ID, item.ProductID)
	assert.Equal(t, "TSHIRT", item.SKU)
	assert.Equal(t, 3, item.Quantity)
	assertDecimal(t, "5", item.UnitCost)
	assertDecimal(t, "30", item.Subtotal)
	assertDecimal(t, "15", item.Profit)
	assertDecimal(t, "30", got.TotalAmount)
	assertDecimal(t, "15", got.TotalProfit)
}

func TestCreateSaleTotalsMatchLines(t *testing.T) {
	f := newFixture(t)
	a := f.product(t, "A", 20, "2.50", "4")
	b := f.product(t, "B", 20, "7", "9.99")

	sale := f.sell(t, time.Now(), "card", "in-store", line(a, 3), line(b, 2))

	require.Len(t, sale.Items, 2)
	amount, profit := decimal.Zero, decimal.Zero
	for _, it := range sale.Items {
		amount = amount.Add(it.Subtotal)
		profit = profit.Add(it.Profit)
	}
	assert.True(t, amount.Equal(sale.TotalAmount))
	assert.True(t, profit.Equal(sale.TotalProfit))
	assertDecimal(t, "31.98", sale.TotalAmount)
	assertDecimal(t, "10.48", sale.TotalProfit)
	assert.Equal(t, []int{1, 2}, []int{sale.Items[0].LineNo, sale.Items[1].LineNo})
}

func TestCreateSaleStoredTotalsMatchStoredLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "CENTS", 20, "0.10", "0.15")
	odd := decimal.RequireFromString("0.07")

	sale, err := f.saleService().CreateSale(ctx, &CreateSaleRequest{
		Products:      []SaleLineRequest{line(p, 3), {Product: p.ID, Quantity: 7, UnitPrice: &odd}},
		PaymentMethod: "cash",
		Channel:       "in-store",
	}, testActor)
	require.NoError(t, err)

	got, err := f.saleService().GetSale(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	amount, profit := decimal.Zero, decimal.Zero
	for _, it := range got.Items {
		assertDecimal(t, it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))).String(), it.Subtotal)
		assert.True(t, it.Subtotal.Equal(it.Subtotal.Round(2)), "subtotal %s", it.Subtotal)
		amount = amount.Add(it.Subtotal)
		profit = profit.Add(it.Profit)
	}
	assertDecimal(t, amount.String(), got.TotalAmount)
	assertDecimal(t, profit.String(), got.TotalProfit)
	assertDecimal(t, "0.94", got.TotalAmount)
	assertDecimal(t, "-0.06", got.TotalProfit)
	assertDecimal(t, sale.TotalAmount.String(), got.TotalAmount)
}

func TestCreateSaleInsufficientStockLeavesStockUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "MUG", 2, "3", "6")

	_, err := f.saleService().CreateSale(ctx, &CreateSaleRequest{
		Products:      []SaleLineRequest{line(p, 3)},
		PaymentMethod: "cash",
		Channel:       "in-store",
	}, testActor)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientStock))

	var stockErr *InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, p.ID, stockErr.ProductID)
	assert.Equal(t, "Product MUG", stockErr.ProductName)
	assert.Equal(t, 3, stockErr.Requested)
	assert.Equal(t, 2, stockErr.Available)

	assert.Equal(t, 2, f.stock(t, p.ID))
	sales, err := f.sales.Find(ctx, repository.SaleFilter{})
	require.NoError(t, err)
	assert.Empty(t, sales)
}

func TestCreateSaleUnknownProductRollsBackEarlierLines(t *testing.T) {
	f := newFixture(t)
	a := f.product(t, "A", 10, "1", "2")
	b := f.product(t, "B", 10, "1", "2")
	missing := uuid.New()

	_, err := f.saleService().CreateSale(context.Background(), &CreateSaleRequest{
		Products: []SaleLineRequest{
			line(a, 2),
			{Product: missing, Quantity: 1},
			line(b, 1),
		},
		PaymentMethod: "cash",
		Channel:       "in-store",
	}, testActor)

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf), "got %v", err)
	assert.Equal(t, missing, nf.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, 10, f.stock(t, a.ID))
	assert.Equal(t, 10, f.stock(t, b.ID))
}

func TestCreateSaleReportsFirstFailingLine(t *testing.T) {
	f := newFixture(t)
	short := f.product(t, "SHORT", 1, "1", "2")
	missing := uuid.New()

	// the short line comes first, so it wins over the later unknown product
	_, err := f.saleService().CreateSale(context.Background(), &CreateSaleRequest{
		Products:      []SaleLineRequest{line(short, 5), {Product: missing, Quantity: 1}},
		PaymentMethod: "cash",
		Channel:       "in-store",
	}, testActor)
	assert.True(t, errors.Is(err, ErrInsufficientStock), "got %v", err)
}

func TestCreateSaleSumsRepeatedProductLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "CAP", 5, "4", "8")

	_, err := f.saleService().CreateSale(ctx, &CreateSaleRequest{
		Products:      []SaleLineRequest{line(p, 3), line(p, 3)},
		PaymentMethod: "cash",
		Channel:       "in-store",
	}, testActor)
	var stockErr *InsufficientStockError
	require.True(t, errors.As(err, &stockErr), "got %v", err)
	assert.Equal(t, 6, stockErr.Requested)
	assert.Equal(t, 5, stockErr.Available)
	assert.Equal(t, 5, f.stock(t, p.ID))

	sale := f.sell(t, time.Now(), "cash", "in-store", line(p, 2), line(p, 3))
	assert.Len(t, sale.Items, 2)
	assert.Equal(t, 0, f.stock(t, p.ID))
}

func TestCreateSaleConcurrentCartsNeverOversell(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "HOT", 10, "5", "10")
	svc := f.saleService()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CreateSale(context.Background(), &CreateSaleRequest{
				Products:      []SaleLineRequest{line(p, 6)},
				PaymentMethod: "cash",
				Channel:       "in-store",
			}, testActor)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, ErrInsufficientStock), "got %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 4, f.stock(t, p.ID))
}

// staleProductRepo serves an inflated stock figure on the first locked read of
// each product, as a read taken before a concurrent sale committed would.
type staleProductRepo struct {
	repository.ProductRepository
	served map[uuid.UUID]bool
}

func (r *staleProductRepo) FindForUpdate(tx *gorm.DB, id uuid.UUID) (*model.Product, error) {
	p, err := r.ProductRepository.FindForUpdate(tx, id)
	if err == nil && !r.served[id] {
		r.served[id] = true
		p.Stock += 100
	}
	return p, err
}

func TestCreateSaleConditionalDecrementCatchesStaleRead(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "STALE", 4, "5", "10")
	svc := NewSaleService(&staleProductRepo{ProductRepository: f.products, served: map[uuid.UUID]bool{}}, f.sales, f.db, f.hub, f.store)

	_, err := svc.CreateSale(context.Background(), &CreateSaleRequest{
		Products:      []SaleLineRequest{line(p, 6)},
		PaymentMethod: "cash",
		Channel:       "in-store",
	}, testActor)

	var stockErr *InsufficientStockError
	require.True(t, errors.As(err, &stockErr), "got %v", err)
	assert.Equal(t, 6, stockErr.Requested)
	assert.Equal(t, 4, stockErr.Available)
	assert.Equal(t, 4, f.stock(t, p.ID))
}

func TestCreateSaleValidation(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "V", 10, "1", "2")
	negative := decimal.NewFromInt(-1)
	subCent := decimal.RequireFromString("0.005")

	cases := []struct {
		name  string
		req   CreateSaleRequest
		field string
	}{
		{"no lines", CreateSaleRequest{PaymentMethod: "cash", Channel: "in-store"}, "products"},
		{"zero quantity", CreateSaleRequest{Products: []SaleLineRequest{line(p, 0)}, PaymentMethod: "cash", Channel: "in-store"}, "products[0].quantity"},
		{"negative price", CreateSaleRequest{Products: []SaleLineRequest{{Product: p.ID, Quantity: 1, UnitPrice: &negative}}, PaymentMethod: "cash", Channel: "in-store"}, "products[0].unitPrice"},
		{"sub-cent price", CreateSaleRequest{Products: []SaleLineRequest{line(p, 1), {Product: p.ID, Quantity: 1, UnitPrice: &subCent}}, PaymentMethod: "cash", Channel: "in-store"}, "products[1].unitPrice"},
		{"missing product id", CreateSaleRequest{Products: []SaleLineRequest{{Quantity: 1}}, PaymentMethod: "cash", Channel: "in-store"}, "products[0].product"},
		{"blank payment method", CreateSaleRequest{Products: []SaleLineRequest{line(p, 1)}, PaymentMethod: "  ", Channel: "in-store"}, "paymentMethod"},
		{"missing channel", CreateSaleRequest{Products: []SaleLineRequest{line(p, 1)}, PaymentMethod: "cash"}, "channel"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := tc.req
			_, err := f.saleService().CreateSale(context.Background(), &req, testActor)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tc.field, verr.Field)
			assert.True(t, errors.Is(err, ErrValidation))
		})
	}
	assert.Equal(t, 10, f.stock(t, p.ID))
}

func TestCreateSaleUnitPriceDefaultsToPublicPrice(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "P", 10, "5", "12.50")
	discount := decimal.RequireFromString("8")

	sale := f.sell(t, time.Now(), "cash", "in-store",
		line(p, 2),
		SaleLineRequest{Product: p.ID, Quantity: 2, UnitPrice: &discount},
	)

	require.Len(t, sale.Items, 2)
	assertDecimal(t, "12.5", sale.Items[0].UnitPrice)
	assertDecimal(t, "25", sale.Items[0].Subtotal)
	assertDecimal(t, "15", sale.Items[0].Profit)
	assertDecimal(t, "16", sale.Items[1].Subtotal)
	assertDecimal(t, "6", sale.Items[1].Profit)
	assertDecimal(t, "41", sale.TotalAmount)
	assertDecimal(t, "21", sale.TotalProfit)
}

func TestCreateSaleBelowCostRecordsNegativeProfit(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "LOSS", 10, "5", "10")
	price := decimal.NewFromInt(3)

	sale := f.sell(t, time.Now(), "cash", "in-store", SaleLineRequest{Product: p.ID, Quantity: 2, UnitPrice: &price})
	assertDecimal(t, "6", sale.TotalAmount)
	assertDecimal(t, "-4", sale.TotalProfit)
}

func TestCreateSaleRejectsInactiveProduct(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "OFF", 10, "1", "2")
	p.Status = model.ProductInactive
	require.NoError(t, f.products.Save(f.db, p))

	_, err := f.saleService().CreateSale(context.Background(), &CreateSaleRequest{
		Products:      []SaleLineRequest{line(p, 1)},
		PaymentMethod: "cash",
		Channel:       "in-store",
	}, testActor)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, "products[0].product", verr.Field)
	assert.Equal(t, 10, f.stock(t, p.ID))
}

func TestCreateSaleReceiptNumbersIncrease(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "R", 10, "1", "2")

	first := f.sell(t, time.Now(), "cash", "in-store", line(p, 1))
	second := f.sell(t, time.Now(), "cash", "in-store", line(p, 1))
	assert.Equal(t, int64(1), first.ReceiptNumber)
	assert.Equal(t, int64(2), second.ReceiptNumber)
}

func TestCreateSalePublishesEvents(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "EV", 6, "1", "2")

	f.sell(t, time.Now(), "cash", "in-store", line(p, 2))

	events := drainEvents(t, f.hub)
	assert.Equal(t, []string{"sale_created", "stock_update", "low_stock"}, eventTypes(events))
	assert.Equal(t, "sale", events[1].Action)
	require.NotNil(t, events[0].User)
	assert.Equal(t, "Tester", events[0].User.Name)
}

func TestUpdateSaleEditsMetadataOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "U", 10, "5", "10")
	sale := f.sell(t, time.Now(), "cash", "in-store", line(p, 2))
	svc := f.saleService()

	channel := "Instagram"
	customer := "Luis"
	updated, err := svc.UpdateSale(ctx, sale.ID, &UpdateSaleRequest{Channel: &channel, Customer: &customer}, testActor)
	require.NoError(t, err)
	assert.Equal(t, "Instagram", updated.Channel)
	assert.Equal(t, "cash", updated.PaymentMethod)
	assert.Equal(t, "Luis", updated.Customer)
	assertDecimal(t, "20", updated.TotalAmount)
	assert.Len(t, updated.Items, 1)
	assert.Equal(t, 8, f.stock(t, p.ID))

	blank := " "
	_, err = svc.UpdateSale(ctx, sale.ID, &UpdateSaleRequest{PaymentMethod: &blank}, testActor)
	assert.True(t, errors.Is(err, ErrValidation), "got %v", err)

	_, err = svc.UpdateSale(ctx, uuid.New(), &UpdateSaleRequest{Channel: &channel}, testActor)
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
}

func TestDeleteSaleRestockIsExplicit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "D", 10, "5", "10")
	svc := f.saleService()

	kept := f.sell(t, time.Now(), "cash", "in-store", line(p, 3))
	require.NoError(t, svc.DeleteSale(ctx, kept.ID, false, testActor))
	assert.Equal(t, 7, f.stock(t, p.ID))
	_, err := svc.GetSale(ctx, kept.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	restocked := f.sell(t, time.Now(), "cash", "in-store", line(p, 2), line(p, 1))
	assert.Equal(t, 4, f.stock(t, p.ID))
	require.NoError(t, svc.DeleteSale(ctx, restocked.ID, true, testActor))
	assert.Equal(t, 7, f.stock(t, p.ID))

	err = svc.DeleteSale(ctx, restocked.ID, true, testActor)
	assert.True(t, errors.Is(err, ErrNotFound), "second delete must not restock again")
	assert.Equal(t, 7, f.stock(t, p.ID))
}

func TestDeleteSaleRestocksDeletedProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "GONE", 5, "1", "2")
	sale := f.sell(t, time.Now(), "cash", "in-store", line(p, 2))
	require.NoError(t, f.products.Delete(ctx, p.ID, "tester"))

	require.NoError(t, f.saleService().DeleteSale(ctx, sale.ID, true, testActor))

	hist, err := f.products.FindByIDs(ctx, []uuid.UUID{p.ID}, true)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, 5, hist[0].Stock)
}
