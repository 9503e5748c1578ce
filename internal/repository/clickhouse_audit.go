package repository

import (
	"context"
	"database/sql"
	"fmt"

	"RiskGate/internal/domain/models"
	"RiskGate/internal/domain/repository"
	pkgch "RiskGate/pkg/clickhouse"
)

type ClickHouseAuditSink struct {
	db    *sql.DB
	table string
}

func NewClickHouseAuditSink(ch *pkgch.Client, database string) *ClickHouseAuditSink {
	return &ClickHouseAuditSink{db: ch.DB(), table: database + "." + chAuditTable}
}

func (s *ClickHouseAuditSink) Record(ctx context.Context, e models.AuditEntry) error {
	q := fmt.Sprintf("INSERT INTO %s (id, transaction_id, user_id, stage, message, error_kind, at) VALUES (?, ?, ?, ?, ?, ?, ?)", s.table)
	if _, err := s.db.ExecContext(ctx, q, e.ID, e.TransactionID, e.UserID, string(e.Stage), e.Message, string(e.ErrorKind), e.At.UTC()); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *ClickHouseAuditSink) ForTransaction(ctx context.Context, txID string) ([]models.AuditEntry, error) {
	q := fmt.Sprintf("SELECT id, transaction_id, user_id, stage, message, error_kind, at FROM %s WHERE transaction_id = ? ORDER BY at ASC", s.table)
	rows, err := s.db.QueryContext(ctx, q, txID)
	if err != nil {
		return nil, fmt.Errorf("get audit trail: %w", err)
	}
	defer rows.Close()

	var out []models.AuditEntry
	for rows.Next() {
		var (
			e           models.AuditEntry
			stage, kind string
		)
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.UserID, &stage, &e.Message, &kind, &e.At); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Stage = models.Stage(stage)
		e.ErrorKind = models.ErrorKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ repository.AuditReader = (*ClickHouseAuditSink)(nil)
