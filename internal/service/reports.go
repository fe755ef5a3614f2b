package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"billstock/backend/internal/domain"
	"billstock/backend/internal/store"
)

func bucketKey(reportType string, at time.Time) (string, error) {
	switch reportType {
	case domain.ReportDaily:
		return at.UTC().Format("2006-01-02"), nil
	case domain.ReportMonthly:
		return at.UTC().Format("2006-01"), nil
	case domain.ReportYearly:
		return at.UTC().Format("2006"), nil
	}
	return "", fmt.Errorf("%w: report type %q", store.ErrValidation, reportType)
}

type reportEntry struct {
	at     time.Time
	amount decimal.Decimal
	gst    decimal.Decimal
}

func buildPeriodReport(reportType string, entries []reportEntry) (domain.PeriodReport, error) {
	byPeriod := make(map[string]*domain.ReportBucket)
	summary := domain.ReportSummary{TotalAmount: decimal.Zero, TotalGST: decimal.Zero}

	for _, entry := range entries {
		key, err := bucketKey(reportType, entry.at)
		if err != nil {
			return domain.PeriodReport{}, err
		}
		bucket, ok := byPeriod[key]
		if !ok {
			bucket = &domain.ReportBucket{Period: key, TotalAmount: decimal.Zero, TotalGST: decimal.Zero}
			byPeriod[key] = bucket
		}
		bucket.Count++
		bucket.TotalAmount = bucket.TotalAmount.Add(entry.amount)
		bucket.TotalGST = bucket.TotalGST.Add(entry.gst)
		summary.Count++
		summary.TotalAmount = summary.TotalAmount.Add(entry.amount)
		summary.TotalGST = summary.TotalGST.Add(entry.gst)
	}

	buckets := make([]domain.ReportBucket, 0, len(byPeriod))
	for _, bucket := range byPeriod {
		buckets = append(buckets, *bucket)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Period < buckets[j].Period })

	return domain.PeriodReport{Type: reportType, Buckets: buckets, Summary: summary}, nil
}

// SalesReport aggregates sales over the date range into daily, monthly or
// yearly buckets. Results are cached briefly since dashboards poll this.
func (s *Service) SalesReport(ctx context.Context, from *time.Time, to *time.Time, reportType string) (domain.PeriodReport, error) {
	if reportType == "" {
		reportType = domain.ReportDaily
	}
	if _, err := bucketKey(reportType, time.Now()); err != nil {
		return domain.PeriodReport{}, err
	}

	key := reportCacheKey("sales", reportType, from, to)
	if cached, ok, err := s.reportCache.Get(ctx, key); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		s.logger.Warn("report cache read failed", zap.String("key", key), zap.Error(err))
	}

	sales, err := s.repo.ListSales(ctx, domain.SaleFilter{From: from, To: to})
	if err != nil {
		return domain.PeriodReport{}, err
	}
	entries := make([]reportEntry, 0, len(sales))
	for _, sale := range sales {
		entries = append(entries, reportEntry{at: sale.SaleDate, amount: sale.TotalAmount, gst: sale.GSTAmount})
	}
	report, err := buildPeriodReport(reportType, entries)
	if err != nil {
		return domain.PeriodReport{}, err
	}

	if err := s.reportCache.Set(ctx, key, &report, s.reportTTL); err != nil {
		s.logger.Warn("report cache write failed", zap.String("key", key), zap.Error(err))
	}
	return report, nil
}

// PurchasesReport mirrors SalesReport over the purchases table.
func (s *Service) PurchasesReport(ctx context.Context, from *time.Time, to *time.Time, reportType string) (domain.PeriodReport, error) {
	if reportType == "" {
		reportType = domain.ReportDaily
	}
	if _, err := bucketKey(reportType, time.Now()); err != nil {
		return domain.PeriodReport{}, err
	}

	key := reportCacheKey("purchases", reportType, from, to)
	if cached, ok, err := s.reportCache.Get(ctx, key); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		s.logger.Warn("report cache read failed", zap.String("key", key), zap.Error(err))
	}

	purchases, err := s.repo.ListPurchases(ctx, domain.PurchaseFilter{From: from, To: to})
	if err != nil {
		return domain.PeriodReport{}, err
	}
	entries := make([]reportEntry, 0, len(purchases))
	for _, purchase := range purchases {
		entries = append(entries, reportEntry{at: purchase.PurchaseDate, amount: purchase.TotalAmount, gst: purchase.GSTAmount})
	}
	report, err := buildPeriodReport(reportType, entries)
	if err != nil {
		return domain.PeriodReport{}, err
	}

	if err := s.reportCache.Set(ctx, key, &report, s.reportTTL); err != nil {
		s.logger.Warn("report cache write failed", zap.String("key", key), zap.Error(err))
	}
	return report, nil
}

// StockReport values every product at its purchase price and flags the ones
// at or below their low-stock threshold.
func (s *Service) StockReport(ctx context.Context) (domain.StockReport, error) {
	products, err := s.repo.ListProducts(ctx, domain.ProductFilter{})
	if err != nil {
		return domain.StockReport{}, err
	}

	report := domain.StockReport{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Lines:       make([]domain.StockReportLine, 0, len(products)),
	}
	for _, p := range products {
		low := p.StockQuantity <= p.LowStockThreshold
		if low {
			report.LowStockCount++
		}
		report.Lines = append(report.Lines, domain.StockReportLine{
			ProductID:     p.ID,
			Name:          p.Name,
			SKU:           p.SKU,
			StockQuantity: p.StockQuantity,
			Threshold:     p.LowStockThreshold,
			LowStock:      low,
			StockValue:    p.PurchasePrice.Mul(decimal.NewFromInt(int64(p.StockQuantity))).Round(2),
		})
	}
	return report, nil
}

func reportCacheKey(kind string, reportType string, from *time.Time, to *time.Time) string {
	fromKey, toKey := "", ""
	if from != nil {
		fromKey = from.UTC().Format("2006-01-02")
	}
	if to != nil {
		toKey = to.UTC().Format("2006-01-02")
	}
	return fmt.Sprintf("report:%s:%s:%s:%s", kind, reportType, fromKey, toKey)
}
