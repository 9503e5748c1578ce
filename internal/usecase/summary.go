package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"RiskGate/internal/domain/models"
	domrepo "RiskGate/internal/domain/repository"
	"RiskGate/pkg/util"

	"github.com/shopspring/decimal"
)

// SummaryUseCase buckets a user's ledger records for the back office.
type SummaryUseCase struct {
	ledger    domrepo.TransactionLedger
	loc       *time.Location
	weekStart time.Weekday
}

func NewSummaryUseCase(ledger domrepo.TransactionLedger, loc *time.Location, weekStart time.Weekday) *SummaryUseCase {
	if loc == nil {
		loc = time.UTC
	}
	return &SummaryUseCase{ledger: ledger, loc: loc, weekStart: weekStart}
}

type GetSummaryParams struct {
	UserID string
	From   time.Time
	To     time.Time
	Bucket domrepo.Bucket
	Limit  int
}

type GetSummaryResult struct {
	UserID  string                 `json:"user_id"`
	Bucket  string                 `json:"bucket"`
	From    time.Time              `json:"from"`
	To      time.Time              `json:"to"`
	Count   int                    `json:"count"`
	Buckets []models.SummaryBucket `json:"buckets"`
}

func (uc *SummaryUseCase) GetSummary(ctx context.Context, p GetSummaryParams) (*GetSummaryResult, error) {
	if p.UserID == "" {
		return nil, fmt.Errorf("user_id required")
	}
	if p.From.After(p.To) {
		return nil, fmt.Errorf("from must be <= to")
	}
	if !domrepo.IsValidBucket(p.Bucket) {
		p.Bucket = domrepo.DefaultBucket()
	}
	if p.Limit <= 0 {
		p.Limit = 10000
	}
	if p.Limit > 50000 {
		p.Limit = 50000
	}

	recs, err := uc.ledger.ListByUser(ctx, p.UserID, "", p.From, p.To)
	if err != nil {
		return nil, fmt.Errorf("get summary: %w", err)
	}

	byStart := map[time.Time]*models.SummaryBucket{}
	for _, r := range recs {
		start := uc.bucketStart(r.CreatedAt, p.Bucket)
		b, ok := byStart[start]
		if !ok {
			b = &models.SummaryBucket{Start: start, DepositSum: decimal.Zero, WithdrawalSum: decimal.Zero}
			byStart[start] = b
		}
		switch {
		case r.Status == models.StageFailed:
			b.Failed++
			continue
		case !r.Status.Terminal():
			b.InFlight++
		}
		switch r.Kind {
		case models.KindDeposit:
			b.Deposits++
			b.DepositSum = b.DepositSum.Add(r.Amount)
		case models.KindWithdrawal:
			b.Withdrawals++
			b.WithdrawalSum = b.WithdrawalSum.Add(r.Amount)
		}
	}

	buckets := make([]models.SummaryBucket, 0, len(byStart))
	for _, b := range byStart {
		buckets = append(buckets, *b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Start.Before(buckets[j].Start) })
	if len(buckets) > p.Limit {
		buckets = buckets[:p.Limit]
	}

	return &GetSummaryResult{
		UserID:  p.UserID,
		Bucket:  string(p.Bucket),
		From:    p.From,
		To:      p.To,
		Count:   len(buckets),
		Buckets: buckets,
	}, nil
}

func (uc *SummaryUseCase) bucketStart(t time.Time, b domrepo.Bucket) time.Time {
	switch b {
	case domrepo.Bucket1h:
		t = t.In(uc.loc)
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, uc.loc)
	case domrepo.Bucket1w:
		return util.StartOfWeek(t, uc.loc, uc.weekStart)
	default:
		return util.StartOfDay(t, uc.loc)
	}
}
