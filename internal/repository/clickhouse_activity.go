package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"RiskGate/internal/domain/models"
	"RiskGate/internal/domain/repository"
	pkgch "RiskGate/pkg/clickhouse"
	applogger "RiskGate/pkg/logger"
)

// ClickHouseActivityLog reads bets and sessions written by the gaming
// platform. The Insert methods exist for seeding and backfills.
type ClickHouseActivityLog struct {
	db       *sql.DB
	bets     string
	sessions string
	l        *applogger.Logger
}

func NewClickHouseActivityLog(ch *pkgch.Client, database string, l *applogger.Logger) *ClickHouseActivityLog {
	if l == nil {
		l = applogger.NewNop()
	}
	return &ClickHouseActivityLog{
		db:       ch.DB(),
		bets:     database + "." + chBetsTable,
		sessions: database + "." + chSessionsTable,
		l:        l,
	}
}

func (s *ClickHouseActivityLog) Bets(ctx context.Context, userID string, from, to time.Time) ([]models.Bet, error) {
	q := fmt.Sprintf(`
		SELECT user_id, game_id, stake, payout, placed_at
		FROM %s
		WHERE user_id = ? AND placed_at >= ? AND placed_at < ?
		ORDER BY placed_at ASC
	`, s.bets)
	rows, err := s.db.QueryContext(ctx, q, userID, from.UTC(), to.UTC())
	if err != nil {
		s.l.Error("clickhouse bets query error", applogger.String("user_id", userID), applogger.Error(err))
		return nil, fmt.Errorf("get bets: %w", err)
	}
	defer rows.Close()

	var out []models.Bet
	for rows.Next() {
		var b models.Bet
		if err := rows.Scan(&b.UserID, &b.GameID, &b.Stake, &b.Payout, &b.PlacedAt); err != nil {
			s.l.Error("clickhouse bets scan error", applogger.String("user_id", userID), applogger.Error(err))
			return nil, fmt.Errorf("scan bet: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *ClickHouseActivityLog) Sessions(ctx context.Context, userID string, from, to time.Time) ([]models.GameSession, error) {
	q := fmt.Sprintf(`
		SELECT user_id, device_id, ip, started_at, ended_at
		FROM %s
		WHERE user_id = ? AND started_at >= ? AND started_at < ?
		ORDER BY started_at ASC
	`, s.sessions)
	rows, err := s.db.QueryContext(ctx, q, userID, from.UTC(), to.UTC())
	if err != nil {
		s.l.Error("clickhouse sessions query error", applogger.String("user_id", userID), applogger.Error(err))
		return nil, fmt.Errorf("get sessions: %w", err)
	}
	defer rows.Close()

	var out []models.GameSession
	for rows.Next() {
		var gs models.GameSession
		if err := rows.Scan(&gs.UserID, &gs.DeviceID, &gs.IP, &gs.StartedAt, &gs.EndedAt); err != nil {
			s.l.Error("clickhouse sessions scan error", applogger.String("user_id", userID), applogger.Error(err))
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, gs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// insertChunkSize bounds the rows sent in one multi-row VALUES insert.
const insertChunkSize = 2000

// InsertBets writes bets in chunks of multi-row VALUES inserts.
func (s *ClickHouseActivityLog) InsertBets(ctx context.Context, bets []models.Bet) error {
	return insertChunked(ctx, s.db, s.bets, "user_id, game_id, stake, payout, placed_at", 5, len(bets), func(i int) []interface{} {
		b := bets[i]
		return []interface{}{b.UserID, b.GameID, b.Stake, b.Payout, b.PlacedAt.UTC()}
	})
}

// InsertSessions writes sessions in chunks of multi-row VALUES inserts.
func (s *ClickHouseActivityLog) InsertSessions(ctx context.Context, sessions []models.GameSession) error {
	return insertChunked(ctx, s.db, s.sessions, "user_id, device_id, ip, started_at, ended_at", 5, len(sessions), func(i int) []interface{} {
		gs := sessions[i]
		return []interface{}{gs.UserID, gs.DeviceID, gs.IP, gs.StartedAt.UTC(), gs.EndedAt.UTC()}
	})
}

func insertChunked(ctx context.Context, db *sql.DB, table, columns string, width, n int, row func(i int) []interface{}) error {
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", width), ", ") + ")"
	for start := 0; start < n; start += insertChunkSize {
		end := start + insertChunkSize
		if end > n {
			end = n
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*width)
		for i := start; i < end; i++ {
			values = append(values, placeholder)
			args = append(args, row(i)...)
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, columns, strings.Join(values, ","))
		if _, err := db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert into %s: %w", table, err)
		}
	}
	return nil
}

var (
	_ repository.ActivityLog    = (*ClickHouseActivityLog)(nil)
	_ repository.ActivityWriter = (*ClickHouseActivityLog)(nil)
)
