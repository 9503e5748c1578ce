package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"RiskGate/internal/domain/models"
	"RiskGate/internal/domain/repository"
	pkgch "RiskGate/pkg/clickhouse"
	applogger "RiskGate/pkg/logger"

	"github.com/shopspring/decimal"
)

const ledgerColumns = "id, user_id, kind, amount, currency, method, status, priority, fees, external_id, failure_reason, risk, created_at, updated_at"

// ClickHouseLedger stores one row per record version in a
// ReplacingMergeTree keyed by (user_id, id); reads use FINAL so only the
// latest version (by updated_at) is visible.
type ClickHouseLedger struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewClickHouseLedger(ch *pkgch.Client, database string, l *applogger.Logger) *ClickHouseLedger {
	if l == nil {
		l = applogger.NewNop()
	}
	return &ClickHouseLedger{db: ch.DB(), table: database + "." + chLedgerTable, l: l}
}

func (s *ClickHouseLedger) Append(ctx context.Context, rec *models.TransactionRecord) error {
	if _, err := s.Get(ctx, rec.ID); err == nil {
		return fmt.Errorf("transaction %s already recorded", rec.ID)
	} else if !errors.Is(err, models.ErrTransactionNotFound) {
		return err
	}
	return s.insert(ctx, rec)
}

// Update writes a new version of the row; the merge keeps the newest.
func (s *ClickHouseLedger) Update(ctx context.Context, id string, upd models.TransactionUpdate) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	upd.Apply(rec)
	if upd.At.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	return s.insert(ctx, rec)
}

func (s *ClickHouseLedger) insert(ctx context.Context, rec *models.TransactionRecord) error {
	risk := ""
	if rec.Risk != nil {
		b, err := json.Marshal(rec.Risk)
		if err != nil {
			return fmt.Errorf("encode risk: %w", err)
		}
		risk = string(b)
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table, ledgerColumns)
	_, err := s.db.ExecContext(ctx, q,
		rec.ID,
		rec.UserID,
		string(rec.Kind),
		rec.Amount,
		rec.Currency,
		rec.Method,
		string(rec.Status),
		string(rec.Priority),
		rec.Fees,
		rec.ExternalID,
		rec.FailureReason,
		risk,
		rec.CreatedAt.UTC(),
		rec.UpdatedAt.UTC(),
	)
	if err != nil {
		s.l.Error("clickhouse ledger insert error",
			applogger.String("transaction_id", rec.ID),
			applogger.String("status", string(rec.Status)),
			applogger.Error(err),
		)
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (s *ClickHouseLedger) Get(ctx context.Context, id string) (*models.TransactionRecord, error) {
	q := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE id = ? LIMIT 1", ledgerColumns, s.table)
	rec, err := scanRecord(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, models.ErrTransactionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return rec, nil
}

func (s *ClickHouseLedger) ListByUser(ctx context.Context, userID string, kind models.Kind, from, to time.Time) ([]models.TransactionRecord, error) {
	start := time.Now()
	q := fmt.Sprintf(`
		SELECT %s
		FROM %s FINAL
		WHERE user_id = ? AND (? = '' OR kind = ?) AND created_at >= ? AND created_at < ?
		ORDER BY created_at ASC
	`, ledgerColumns, s.table)
	rows, err := s.db.QueryContext(ctx, q, userID, string(kind), string(kind), from.UTC(), to.UTC())
	if err != nil {
		s.l.Error("clickhouse ledger query error",
			applogger.String("user_id", userID),
			applogger.String("kind", string(kind)),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]models.TransactionRecord, 0, 64)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse ledger list ok",
		applogger.String("user_id", userID),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(r rowScanner) (*models.TransactionRecord, error) {
	var (
		rec                          models.TransactionRecord
		kind, status, priority, risk string
		amount, fees                 decimal.Decimal
	)
	if err := r.Scan(&rec.ID, &rec.UserID, &kind, &amount, &rec.Currency, &rec.Method, &status, &priority,
		&fees, &rec.ExternalID, &rec.FailureReason, &risk, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Kind = models.Kind(kind)
	rec.Status = models.Stage(status)
	rec.Priority = models.Priority(priority)
	rec.Amount = amount
	rec.Fees = fees
	if risk != "" {
		var a models.RiskAssessment
		if err := json.Unmarshal([]byte(risk), &a); err != nil {
			return nil, fmt.Errorf("decode risk: %w", err)
		}
		rec.Risk = &a
	}
	return &rec, nil
}

var _ repository.TransactionLedger = (*ClickHouseLedger)(nil)
