package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Repository exposes the aggregate queries of the dashboard.
type Repository interface {
	Totals(ctx context.Context) (products, suppliers int, err error)
	MonthActivity(ctx context.Context, from, to time.Time) (Activity, error)
	TopStock(ctx context.Context, limit int) ([]ProductStock, error)
	LowStock(ctx context.Context, threshold int64, limit int) ([]LowStockItem, error)
	TopSuppliers(ctx context.Context, limit int) ([]SupplierVolume, error)
	DailyImports(ctx context.Context, from, to time.Time) (map[int]int64, error)
	RecentExports(ctx context.Context, limit int) ([]RecentNote, error)
}

// CacheRecorder counts cache hits and misses.
type CacheRecorder interface {
	RecordCacheLookup(hit bool)
}

// Service builds dashboard summaries through the versioned cache.
type Service struct {
	repo      Repository
	cache     *Cache
	metrics   CacheRecorder
	logger    *slog.Logger
	threshold int64
	group     singleflight.Group
	now       func() time.Time
}

// NewService wires a Repository with a Cache helper. threshold is the
// low-stock level used for products without their own.
func NewService(repo Repository, cache *Cache, metrics CacheRecorder, threshold int64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
		threshold: threshold,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Now is the reference time for month defaults.
func (s *Service) Now() time.Time {
	return s.now()
}

// Summary returns the dashboard for period. Concurrent requests for the
// same key share one load.
func (s *Service) Summary(ctx context.Context, period Period) (Summary, error) {
	key, err := s.cache.BuildKey(ctx, "dashboard", "summary", period.String())
	if err != nil {
		s.logger.Warn("dashboard cache key", slog.Any("error", err))
		return s.load(ctx, period)
	}
	ch := s.group.DoChan(key, func() (any, error) {
		var out Summary
		hit, err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
			return s.load(ctx, period)
		})
		if s.metrics != nil && err == nil {
			s.metrics.RecordCacheLookup(hit)
		}
		return out, err
	})
	select {
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Summary{}, res.Err
		}
		return res.Val.(Summary), nil
	}
}

func (s *Service) load(ctx context.Context, period Period) (Summary, error) {
	summary := Summary{Period: period.String(), GeneratedAt: s.now()}
	var daily map[int]int64
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summary.TotalProducts, summary.TotalSuppliers, err = s.repo.Totals(ctx)
		return wrap("totals", err)
	})
	g.Go(func() error {
		var err error
		summary.Activity, err = s.repo.MonthActivity(ctx, period.Start(), period.End())
		return wrap("activity", err)
	})
	g.Go(func() error {
		var err error
		summary.TopStock, err = s.repo.TopStock(ctx, TopN)
		return wrap("top stock", err)
	})
	g.Go(func() error {
		var err error
		summary.LowStock, err = s.repo.LowStock(ctx, s.threshold, TopN)
		return wrap("low stock", err)
	})
	g.Go(func() error {
		var err error
		summary.TopSuppliers, err = s.repo.TopSuppliers(ctx, TopN)
		return wrap("top suppliers", err)
	})
	g.Go(func() error {
		var err error
		daily, err = s.repo.DailyImports(ctx, period.Start(), period.End())
		return wrap("daily imports", err)
	})
	g.Go(func() error {
		var err error
		summary.RecentExports, err = s.repo.RecentExports(ctx, TopN)
		return wrap("recent exports", err)
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	summary.NetImport = summary.Activity.ImportQuantity - summary.Activity.ExportQuantity
	days := period.Days()
	summary.ImportChart = make([]ChartPoint, 0, days)
	var total int64
	for day := 1; day <= days; day++ {
		summary.ImportChart = append(summary.ImportChart, ChartPoint{Day: day, Quantity: daily[day]})
		total += daily[day]
	}
	summary.AvgDailyImport = math.Round(float64(total)/float64(days)*100) / 100
	for i := range summary.LowStock {
		item := &summary.LowStock[i]
		if item.Threshold > 0 {
			item.Percent = math.Round(float64(item.OnHand)/float64(item.Threshold)*1000) / 10
		}
	}
	if summary.TopStock == nil {
		summary.TopStock = []ProductStock{}
	}
	if summary.LowStock == nil {
		summary.LowStock = []LowStockItem{}
	}
	if summary.TopSuppliers == nil {
		summary.TopSuppliers = []SupplierVolume{}
	}
	if summary.RecentExports == nil {
		summary.RecentExports = []RecentNote{}
	}
	return summary, nil
}

func wrap(part string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("dashboard: %s: %w", part, err)
}
