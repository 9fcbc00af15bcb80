package reports

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/fieldbill/fieldbill/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	LedgerTotals(ctx context.Context, q RollupQuery) (LedgerTotals, error)
	InvoiceTotals(ctx context.Context, from, to time.Time) (InvoiceTotals, error)
}

// Service computes rollups with a redis read-through cache. Concurrent
// misses for the same window collapse onto one computation.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	rdb    *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

func NewService(logger *slog.Logger, repo RepositoryPort, rdb *redis.Client, ttl time.Duration) *Service {
	return &Service{logger: logger, repo: repo, rdb: rdb, ttl: ttl}
}

// Rollup returns ledger and invoice aggregates for the window.
func (s *Service) Rollup(ctx context.Context, q RollupQuery) (Rollup, error) {
	if q.From.IsZero() || q.To.IsZero() {
		return Rollup{}, fmt.Errorf("%w: from and to required", shared.ErrValidation)
	}
	if q.To.Before(q.From) {
		return Rollup{}, fmt.Errorf("%w: to precedes from", shared.ErrValidation)
	}

	key := cacheKey(q)
	if cached, ok := s.fromCache(ctx, key); ok {
		return cached, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		ledger, err := s.repo.LedgerTotals(ctx, q)
		if err != nil {
			return Rollup{}, err
		}
		invoices, err := s.repo.InvoiceTotals(ctx, q.From, q.To)
		if err != nil {
			return Rollup{}, err
		}
		rollup := Rollup{
			From:        q.From,
			To:          q.To,
			WarehouseID: q.WarehouseID,
			Ledger:      ledger,
			Invoices:    invoices,
			GrossMargin: invoices.Subtotal.Sub(ledger.COGS),
			CachedAt:    time.Now().UTC(),
		}
		s.toCache(ctx, key, rollup)
		return rollup, nil
	})
	if err != nil {
		return Rollup{}, err
	}
	return v.(Rollup), nil
}

// WriteCSV emits the rollup as metric,value rows.
func (s *Service) WriteCSV(w io.Writer, rollup Rollup) error {
	cw := csv.NewWriter(w)
	records := [][]string{
		{"metric", "value"},
		{"from", rollup.From.Format(time.RFC3339)},
		{"to", rollup.To.Format(time.RFC3339)},
		{"receipt_qty", rollup.Ledger.ReceiptQty.String()},
		{"receipt_value", rollup.Ledger.ReceiptValue.String()},
		{"issue_qty", rollup.Ledger.IssueQty.String()},
		{"cogs", rollup.Ledger.COGS.String()},
		{"adjust_qty", rollup.Ledger.AdjustQty.String()},
		{"adjust_value", rollup.Ledger.AdjustValue.String()},
		{"movement_count", fmt.Sprintf("%d", rollup.Ledger.MovementCount)},
		{"invoice_count", fmt.Sprintf("%d", rollup.Invoices.Count)},
		{"revenue", rollup.Invoices.Revenue.String()},
		{"subtotal", rollup.Invoices.Subtotal.String()},
		{"tax", rollup.Invoices.Tax.String()},
		{"gross_margin", rollup.GrossMargin.String()},
	}
	for _, rec := range records {
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *Service) fromCache(ctx context.Context, key string) (Rollup, bool) {
	if s.rdb == nil {
		return Rollup{}, false
	}
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("report cache read failed", slog.Any("error", err))
		}
		return Rollup{}, false
	}
	var rollup Rollup
	if err := json.Unmarshal(raw, &rollup); err != nil {
		return Rollup{}, false
	}
	return rollup, true
}

func (s *Service) toCache(ctx context.Context, key string, rollup Rollup) {
	if s.rdb == nil {
		return
	}
	raw, err := json.Marshal(rollup)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		s.logger.Warn("report cache write failed", slog.Any("error", err))
	}
}

func cacheKey(q RollupQuery) string {
	return fmt.Sprintf("reports:rollup:%d:%d:%d", q.From.Unix(), q.To.Unix(), q.WarehouseID)
}
