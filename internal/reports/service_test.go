package reports

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fieldbill/fieldbill/internal/shared"
)

type fakeRepo struct {
	ledgerCalls  int
	invoiceCalls int
}

func (f *fakeRepo) LedgerTotals(ctx context.Context, q RollupQuery) (LedgerTotals, error) {
	f.ledgerCalls++
	return LedgerTotals{
		ReceiptQty:    decimal.RequireFromString("15"),
		ReceiptValue:  decimal.RequireFromString("35.00"),
		IssueQty:      decimal.RequireFromString("12"),
		COGS:          decimal.RequireFromString("26.00"),
		MovementCount: 4,
	}, nil
}

func (f *fakeRepo) InvoiceTotals(ctx context.Context, from, to time.Time) (InvoiceTotals, error) {
	f.invoiceCalls++
	return InvoiceTotals{
		Count:    1,
		Subtotal: decimal.RequireFromString("129.99"),
		Tax:      decimal.RequireFromString("10.40"),
		Revenue:  decimal.RequireFromString("140.39"),
	}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
}

func TestRollupMathAndCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := &fakeRepo{}
	svc := NewService(testLogger(), repo, rdb, time.Minute)
	ctx := context.Background()

	q := RollupQuery{
		From: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC),
	}
	rollup, err := svc.Rollup(ctx, q)
	require.NoError(t, err)
	require.True(t, rollup.GrossMargin.Equal(decimal.RequireFromString("103.99")), "got %s", rollup.GrossMargin)
	require.Equal(t, 1, repo.ledgerCalls)

	// Second query is served from redis, not recomputed.
	again, err := svc.Rollup(ctx, q)
	require.NoError(t, err)
	require.Equal(t, 1, repo.ledgerCalls)
	require.Equal(t, 1, repo.invoiceCalls)
	require.True(t, again.GrossMargin.Equal(rollup.GrossMargin))

	// Expiry forces a recompute.
	mr.FastForward(2 * time.Minute)
	_, err = svc.Rollup(ctx, q)
	require.NoError(t, err)
	require.Equal(t, 2, repo.ledgerCalls)
}

func TestRollupValidation(t *testing.T) {
	svc := NewService(testLogger(), &fakeRepo{}, nil, time.Minute)
	ctx := context.Background()

	_, err := svc.Rollup(ctx, RollupQuery{})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Rollup(ctx, RollupQuery{
		From: time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestWriteCSV(t *testing.T) {
	svc := NewService(testLogger(), &fakeRepo{}, nil, time.Minute)
	rollup, err := svc.Rollup(context.Background(), RollupQuery{
		From: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, svc.WriteCSV(&buf, rollup))
	out := buf.String()
	require.True(t, strings.HasPrefix(out, "metric,value\n"))
	require.Contains(t, out, "cogs,26\n")
	require.Contains(t, out, "revenue,140.39\n")
	require.Contains(t, out, "gross_margin,103.99\n")
}
