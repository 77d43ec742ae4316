package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"FxPulse/internal/domain/models"
)

const chunkSize = 2000

// ClickHouseSchema returns the idempotent DDL for the audit tables in database db.
func ClickHouseSchema(db string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.position_snapshots (
			evaluated_at DateTime64(3), position_id String, owner_id String, pair String, direction String,
			entry_price Float64, stop_loss Float64, take_profit Float64, size Float64, current_price Float64,
			pnl Float64, pnl_percent Float64, pnl_pips Float64, risk_distance Float64, reward_distance Float64,
			risk_reward Nullable(Float64), holding_minutes Int64, trend_strength Float64, reversal_probability Float64,
			recommendation String, recommendation_confidence Float64, model_version String, model_backed UInt8
		) ENGINE=MergeTree ORDER BY (position_id, evaluated_at)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.notification_records (
			sent_at DateTime64(3), id String, notification_id String, subscriber_id String, kind String,
			pair String, timeframe String, position_id String, channel String, success UInt8, failure_reason String
		) ENGINE=MergeTree ORDER BY (subscriber_id, sent_at)`, db),
	}
}

var (
	snapshotColumns     = []string{"evaluated_at", "position_id", "owner_id", "pair", "direction", "entry_price", "stop_loss", "take_profit", "size", "current_price", "pnl", "pnl_percent", "pnl_pips", "risk_distance", "reward_distance", "risk_reward", "holding_minutes", "trend_strength", "reversal_probability", "recommendation", "recommendation_confidence", "model_version", "model_backed"}
	notificationColumns = []string{"sent_at", "id", "notification_id", "subscriber_id", "kind", "pair", "timeframe", "position_id", "channel", "success", "failure_reason"}
)

// ClickHouseAudit appends snapshot history and notification records to ClickHouse.
type ClickHouseAudit struct {
	db       *sql.DB
	database string
}

// NewClickHouseAudit creates the audit writer over db.
func NewClickHouseAudit(db *sql.DB, database string) *ClickHouseAudit {
	return &ClickHouseAudit{db: db, database: database}
}

func (a *ClickHouseAudit) AppendSnapshots(ctx context.Context, snaps []models.PositionSnapshot) error {
	rows := make([][]interface{}, 0, len(snaps))
	for _, s := range snaps {
		rows = append(rows, snapshotRow(s))
	}
	return a.insert(ctx, a.database+".position_snapshots", snapshotColumns, rows)
}

func (a *ClickHouseAudit) AppendNotifications(ctx context.Context, recs []models.NotificationRecord) error {
	rows := make([][]interface{}, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, notificationRow(r))
	}
	return a.insert(ctx, a.database+".notification_records", notificationColumns, rows)
}

// insert writes rows with multi-row VALUES statements to reduce round-trips.
func (a *ClickHouseAudit) insert(ctx context.Context, table string, cols []string, rows [][]interface{}) error {
	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		q, args := buildInsert(table, cols, rows[start:end])
		if _, err := a.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return nil
}

func buildInsert(table string, cols []string, rows [][]interface{}) (string, []interface{}) {
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*len(cols))
	for _, r := range rows {
		values = append(values, placeholder)
		args = append(args, r...)
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, strings.Join(cols, ", "), strings.Join(values, ","))
	return q, args
}

func snapshotRow(s models.PositionSnapshot) []interface{} {
	var rr interface{}
	if s.RiskReward != nil {
		rr = *s.RiskReward
	}
	return []interface{}{
		s.EvaluatedAt, s.ID, s.OwnerID, s.Pair, string(s.Direction),
		s.EntryPrice, s.StopLoss, s.TakeProfit, s.Size, s.CurrentPrice,
		s.PnL, s.PnLPercent, s.PnLPips, s.RiskDistance, s.RewardDistance,
		rr, s.HoldingMinutes, s.TrendStrength, s.ReversalProbability,
		string(s.Recommendation), s.RecommendationConfidence, s.ModelVersion, boolToUInt8(s.ModelBacked),
	}
}

func notificationRow(r models.NotificationRecord) []interface{} {
	return []interface{}{
		r.SentAt, r.ID, r.NotificationID, r.SubscriberID, string(r.Kind),
		r.Pair, string(r.Timeframe), r.PositionID, string(r.Channel), boolToUInt8(r.Success), r.FailureReason,
	}
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
