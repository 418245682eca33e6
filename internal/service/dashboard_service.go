package service

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"time"

	"retail-backoffice/internal/cache"
	"retail-backoffice/internal/config"
	"retail-backoffice/internal/model"
	"retail-backoffice/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// UncategorizedLabel groups sale lines whose product has no category.
const UncategorizedLabel = "Uncategorized"

type TrendPoint struct {
	Label string          `json:"label"`
	Value decimal.Decimal `json:"value"`
}

type Breakdown struct {
	Key   string          `json:"key"`
	Value decimal.Decimal `json:"value"`
	Count int             `json:"count"`
}

// DashboardStats is the landing view snapshot.
type DashboardStats struct {
	TotalSales           decimal.Decimal     `json:"totalSales"`
	TotalProfit          decimal.Decimal     `json:"totalProfit"`
	SalesCount           int                 `json:"salesCount"`
	WindowDays           int                 `json:"windowDays"` // 0 = all-time
	StockValue           decimal.Decimal     `json:"stockValue"`
	StockValuation       string              `json:"stockValuation"`
	TotalProducts        int                 `json:"totalProducts"`
	LowStockCount        int                 `json:"lowStockCount"`
	LowStockProducts     []model.ProductView `json:"lowStockProducts"`
	SalesTrend           []TrendPoint        `json:"salesTrend"`
	RecentActivity       []model.Sale        `json:"recentActivity"`
	SalesByPaymentMethod []Breakdown         `json:"salesByPaymentMethod"`
	SalesByChannel       []Breakdown         `json:"salesByChannel"`
	SalesByCategory      []Breakdown         `json:"salesByCategory"`
	GeneratedAt          time.Time           `json:"generatedAt"`
}

type DashboardService interface {
	GetDashboardStats(ctx context.Context) (*DashboardStats, error)
}

type dashboardService struct {
	productRepo repository.ProductRepository
	saleRepo    repository.SaleRepository
	cache       cache.Store
	opts        config.Dashboard
	group       singleflight.Group
	now         func() time.Time
}

func NewDashboardService(pRepo repository.ProductRepository, sRepo repository.SaleRepository, store cache.Store, opts config.Dashboard) DashboardService {
	if store == nil {
		store = cache.NoopStore{}
	}
	return &dashboardService{
		productRepo: pRepo,
		saleRepo:    sRepo,
		cache:       store,
		opts:        opts,
		now:         time.Now,
	}
}

// GetDashboardStats serves the cached snapshot of the current generation when
// present. Concurrent misses share a single computation, which is stored
// under the generation read before it started.
func (s *dashboardService) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	key := ""
	if gen, err := cache.DashboardGeneration(ctx, s.cache); err != nil {
		log.Printf("Warning: dashboard cache read failed: %v", err)
	} else {
		key = cache.DashboardStatsKey(gen)
		if raw, ok, err := s.cache.Get(ctx, key); err != nil {
			log.Printf("Warning: dashboard cache read failed: %v", err)
		} else if ok {
			var stats DashboardStats
			if err := json.Unmarshal(raw, &stats); err == nil {
				return &stats, nil
			}
		}
	}

	flightKey := key
	if flightKey == "" {
		flightKey = cache.KeyDashboardStats
	}
	v, err, _ := s.group.Do(flightKey, func() (interface{}, error) {
		stats, err := s.compute(ctx)
		if err != nil {
			return nil, err
		}
		if key == "" || s.opts.CacheTTL <= 0 {
			return stats, nil
		}
		if raw, err := json.Marshal(stats); err == nil {
			if err := s.cache.Set(ctx, key, raw, s.opts.CacheTTL); err != nil {
				log.Printf("Warning: dashboard cache write failed: %v", err)
			}
		}
		return stats, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*DashboardStats), nil
}

func (s *dashboardService) compute(ctx context.Context) (*DashboardStats, error) {
	now := s.now().UTC()
	today := StartOfDay(now)

	trendDays := s.opts.TrendDays
	if trendDays <= 0 {
		trendDays = 7
	}
	trendStart := today.AddDate(0, 0, -(trendDays - 1))

	// One query covers both the KPI window and the trend range.
	var windowStart *time.Time
	loadFrom := &trendStart
	if s.opts.WindowDays > 0 {
		ws := today.AddDate(0, 0, -(s.opts.WindowDays - 1))
		windowStart = &ws
		if ws.Before(trendStart) {
			loadFrom = &ws
		}
	} else {
		loadFrom = nil
	}

	sales, err := s.saleRepo.Find(ctx, repository.SaleFilter{DateStart: loadFrom})
	if err != nil {
		return nil, err
	}
	products, err := s.productRepo.FindAll(ctx, repository.ProductFilter{})
	if err != nil {
		return nil, err
	}
	recentLimit := s.opts.RecentLimit
	if recentLimit <= 0 {
		recentLimit = 5
	}
	recent, err := s.saleRepo.Find(ctx, repository.SaleFilter{Limit: recentLimit})
	if err != nil {
		return nil, err
	}

	stats := &DashboardStats{
		TotalSales:       decimal.Zero,
		TotalProfit:      decimal.Zero,
		WindowDays:       s.opts.WindowDays,
		StockValuation:   s.valuation(),
		TotalProducts:    len(products),
		LowStockProducts: []model.ProductView{},
		RecentActivity:   recent,
		GeneratedAt:      now,
	}
	if stats.RecentActivity == nil {
		stats.RecentActivity = []model.Sale{}
	}

	stats.StockValue = stockValue(products, stats.StockValuation)
	for i := range products {
		if products[i].IsLowStock() {
			stats.LowStockProducts = append(stats.LowStockProducts, products[i].ToView())
		}
	}
	sort.SliceStable(stats.LowStockProducts, func(i, j int) bool {
		return stats.LowStockProducts[i].Stock < stats.LowStockProducts[j].Stock
	})
	stats.LowStockCount = len(stats.LowStockProducts)

	inWindow := make([]model.Sale, 0, len(sales))
	for _, sale := range sales {
		if windowStart == nil || !sale.Date.Before(*windowStart) {
			inWindow = append(inWindow, sale)
		}
	}
	stats.SalesCount = len(inWindow)
	for _, sale := range inWindow {
		stats.TotalSales = stats.TotalSales.Add(sale.TotalAmount)
		stats.TotalProfit = stats.TotalProfit.Add(sale.TotalProfit)
	}

	stats.SalesTrend = dailyTrend(sales, trendStart, trendDays)
	stats.SalesByPaymentMethod = groupSales(inWindow, func(s model.Sale) string { return s.PaymentMethod })
	stats.SalesByChannel = groupSales(inWindow, func(s model.Sale) string { return s.Channel })

	stats.SalesByCategory, err = s.salesByCategory(ctx, inWindow)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *dashboardService) valuation() string {
	if s.opts.StockValuation == config.ValuationPrice {
		return config.ValuationPrice
	}
	return config.ValuationCost
}

// stockValue sums stock × unit value. "cost" measures capital tied up in
// inventory; "price" measures potential revenue.
func stockValue(products []model.Product, basis string) decimal.Decimal {
	total := decimal.Zero
	for _, p := range products {
		unit := p.CostPrice
		if basis == config.ValuationPrice {
			unit = p.PublicPrice
		}
		total = total.Add(unit.Mul(decimal.NewFromInt(int64(p.Stock))))
	}
	return total
}

// dailyTrend buckets sale amounts per UTC day, oldest first, zero-filling gaps.
func dailyTrend(sales []model.Sale, start time.Time, days int) []TrendPoint {
	sums := make(map[string]decimal.Decimal, days)
	for _, sale := range sales {
		d := sale.Date.UTC()
		if d.Before(start) {
			continue
		}
		label := d.Format(dateLayout)
		sums[label] = sums[label].Add(sale.TotalAmount)
	}
	points := make([]TrendPoint, 0, days)
	for i := 0; i < days; i++ {
		label := start.AddDate(0, 0, i).Format(dateLayout)
		v, ok := sums[label]
		if !ok {
			v = decimal.Zero
		}
		points = append(points, TrendPoint{Label: label, Value: v})
	}
	return points
}

func groupSales(sales []model.Sale, key func(model.Sale) string) []Breakdown {
	idx := make(map[string]int)
	var out []Breakdown
	for _, sale := range sales {
		k := key(sale)
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, Breakdown{Key: k, Value: decimal.Zero})
		}
		out[i].Value = out[i].Value.Add(sale.TotalAmount)
		out[i].Count++
	}
	sortBreakdown(out)
	if out == nil {
		out = []Breakdown{}
	}
	return out
}

// salesByCategory sums line subtotals by the product's current category.
// Count is the number of lines.
func (s *dashboardService) salesByCategory(ctx context.Context, sales []model.Sale) ([]Breakdown, error) {
	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, sale := range sales {
		for _, it := range sale.Items {
			if !seen[it.ProductID] {
				seen[it.ProductID] = true
				ids = append(ids, it.ProductID)
			}
		}
	}
	products, err := s.productRepo.FindByIDs(ctx, ids, true)
	if err != nil {
		return nil, err
	}
	category := make(map[uuid.UUID]string, len(products))
	for _, p := range products {
		if p.Category != nil {
			category[p.ID] = p.Category.Name
		}
	}

	idx := make(map[string]int)
	out := []Breakdown{}
	for _, sale := range sales {
		for _, it := range sale.Items {
			name, ok := category[it.ProductID]
			if !ok {
				name = UncategorizedLabel
			}
			i, ok := idx[name]
			if !ok {
				i = len(out)
				idx[name] = i
				out = append(out, Breakdown{Key: name, Value: decimal.Zero})
			}
			out[i].Value = out[i].Value.Add(it.Subtotal)
			out[i].Count++
		}
	}
	sortBreakdown(out)
	return out, nil
}

func sortBreakdown(b []Breakdown) {
	sort.SliceStable(b, func(i, j int) bool {
		if c := b[i].Value.Cmp(b[j].Value); c != 0 {
			return c > 0
		}
		return b[i].Key < b[j].Key
	})
}
