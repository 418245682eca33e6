package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"retail-backoffice/internal/model"
	"retail-backoffice/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SaleQuery filters sales for listings and reports. Bounds are inclusive.
type SaleQuery struct {
	DateStart     *time.Time
	DateEnd       *time.Time
	PaymentMethod string
	Channel       string
	ProductID     *uuid.UUID
}

// ProductSales is one row of the by-product rollup.
type ProductSales struct {
	ProductID     uuid.UUID       `json:"productId"`
	ProductName   string          `json:"productName"`
	SKU           string          `json:"sku"`
	TotalQuantity int             `json:"totalQuantity"`
	TotalRevenue  decimal.Decimal `json:"totalRevenue"`
	TotalProfit   decimal.Decimal `json:"totalProfit"`
}

// SalesSummary backs the report header cards.
type SalesSummary struct {
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
	TotalProfit  decimal.Decimal `json:"totalProfit"`
	Count        int             `json:"count"`
}

type ReportService interface {
	ListSales(ctx context.Context, q SaleQuery) ([]model.Sale, error)
	SalesByProduct(ctx context.Context, q SaleQuery) ([]ProductSales, error)
	Summary(ctx context.Context, q SaleQuery) (*SalesSummary, error)
}

type reportService struct {
	saleRepo repository.SaleRepository
}

func NewReportService(sRepo repository.SaleRepository) ReportService {
	return &reportService{saleRepo: sRepo}
}

const dateLayout = "2006-01-02"

// ParseSaleQuery builds a SaleQuery from raw query-string values. Dates take
// YYYY-MM-DD (UTC; an end date covers its whole day) or RFC3339.
func ParseSaleQuery(startDate, endDate, paymentMethod, channel, productID string) (SaleQuery, error) {
	var q SaleQuery
	if startDate = strings.TrimSpace(startDate); startDate != "" {
		t, _, err := parseDate(startDate)
		if err != nil {
			return q, invalid("startDate", "must be YYYY-MM-DD or RFC3339")
		}
		q.DateStart = &t
	}
	if endDate = strings.TrimSpace(endDate); endDate != "" {
		t, dateOnly, err := parseDate(endDate)
		if err != nil {
			return q, invalid("endDate", "must be YYYY-MM-DD or RFC3339")
		}
		if dateOnly {
			t = EndOfDay(t)
		}
		q.DateEnd = &t
	}
	if q.DateStart != nil && q.DateEnd != nil && q.DateEnd.Before(*q.DateStart) {
		return q, invalid("endDate", "must not be before startDate")
	}
	q.PaymentMethod = strings.TrimSpace(paymentMethod)
	q.Channel = strings.TrimSpace(channel)
	if productID = strings.TrimSpace(productID); productID != "" {
		id, err := uuid.Parse(productID)
		if err != nil {
			return q, invalid("productId", "must be a valid id")
		}
		q.ProductID = &id
	}
	return q, nil
}

func parseDate(v string) (time.Time, bool, error) {
	if t, err := time.ParseInLocation(dateLayout, v, time.UTC); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	return t.UTC(), false, err
}

// EndOfDay returns the last representable instant of t's day.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

// StartOfDay truncates t to midnight in its location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func (q SaleQuery) filter() repository.SaleFilter {
	return repository.SaleFilter{
		DateStart:     q.DateStart,
		DateEnd:       q.DateEnd,
		PaymentMethod: q.PaymentMethod,
		Channel:       q.Channel,
		ProductID:     q.ProductID,
	}
}

func (s *reportService) ListSales(ctx context.Context, q SaleQuery) ([]model.Sale, error) {
	sales, err := s.saleRepo.Find(ctx, q.filter())
	if err != nil {
		return nil, err
	}
	if sales == nil {
		sales = []model.Sale{}
	}
	return sales, nil
}

// SalesByProduct groups line items of the matching sales by product. When the
// query names a product only that product's lines are counted. Names and SKUs
// come from the most recent line, so renamed products show their latest label.
func (s *reportService) SalesByProduct(ctx context.Context, q SaleQuery) ([]ProductSales, error) {
	sales, err := s.saleRepo.Find(ctx, q.filter())
	if err != nil {
		return nil, err
	}

	rows := make(map[uuid.UUID]*ProductSales)
	for _, sale := range sales {
		for _, it := range sale.Items {
			if q.ProductID != nil && it.ProductID != *q.ProductID {
				continue
			}
			row, ok := rows[it.ProductID]
			if !ok {
				row = &ProductSales{
					ProductID:    it.ProductID,
					ProductName:  it.ProductName,
					SKU:          it.SKU,
					TotalRevenue: decimal.Zero,
					TotalProfit:  decimal.Zero,
				}
				rows[it.ProductID] = row
			}
			row.TotalQuantity += it.Quantity
			row.TotalRevenue = row.TotalRevenue.Add(it.Subtotal)
			row.TotalProfit = row.TotalProfit.Add(it.Profit)
		}
	}

	out := make([]ProductSales, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].TotalRevenue.Cmp(out[j].TotalRevenue); c != 0 {
			return c > 0
		}
		return out[i].ProductName < out[j].ProductName
	})
	return out, nil
}

func (s *reportService) Summary(ctx context.Context, q SaleQuery) (*SalesSummary, error) {
	sales, err := s.saleRepo.Find(ctx, q.filter())
	if err != nil {
		return nil, err
	}
	sum := &SalesSummary{TotalRevenue: decimal.Zero, TotalProfit: decimal.Zero, Count: len(sales)}
	for _, sale := range sales {
		sum.TotalRevenue = sum.TotalRevenue.Add(sale.TotalAmount)
		sum.TotalProfit = sum.TotalProfit.Add(sale.TotalProfit)
	}
	return sum, nil
}
