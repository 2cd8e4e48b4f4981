package pg

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"nordpool-dataplane/internal/model"
)

const tickColumns = `tick_id, contract_id, contract_name, delivery_area,
	delivery_start, delivery_end, order_id, side,
	price::text, volume::text, remaining_volume::text,
	updated_time, priority_time, type, raw_action, aggressor_side,
	revision_number, is_snapshot, is_deleted, root_updated_at, source`

// InsertTicks writes a batch with insert-ignore semantics on tick_id and
// returns how many rows were actually new. Deterministic tick ids make
// re-ingesting an overlap window a no-op.
func (s *Store) InsertTicks(ctx context.Context, ticks []model.Tick) (int64, error) {
	if len(ticks) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, t := range ticks {
		batch.Queue(`
			INSERT INTO ticks (
				tick_id, contract_id, contract_name, delivery_area,
				delivery_start, delivery_end, order_id, side,
				price, volume, remaining_volume,
				updated_time, priority_time, type, raw_action, aggressor_side,
				revision_number, is_snapshot, is_deleted, root_updated_at, source
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
			ON CONFLICT (tick_id) DO NOTHING
		`, t.TickID, t.ContractID, t.ContractName, t.DeliveryArea,
			nullTime(t.DeliveryStart), nullTime(t.DeliveryEnd), t.OrderID, t.Side,
			dec(t.Price), dec(t.Volume), dec(t.RemainingVolume),
			t.UpdatedTime.UTC(), nullTime(t.PriorityTime), string(t.Type), t.RawAction, t.AggressorSide,
			t.RevisionNumber, t.IsSnapshot, t.IsDeleted, nullTime(t.RootUpdatedAt), t.Source)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	var inserted int64
	for range ticks {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("pg insert ticks: %w", err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

func (s *Store) queryTicks(ctx context.Context, sql string, args ...any) ([]model.Tick, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("pg query ticks: %w", err)
	}
	defer rows.Close()

	var out []model.Tick
	for rows.Next() {
		var (
			t                 model.Tick
			ttype             string
			price, vol, rem   string
			dstart, dend      *time.Time
			priority, rootUpd *time.Time
		)
		if err := rows.Scan(&t.TickID, &t.ContractID, &t.ContractName, &t.DeliveryArea,
			&dstart, &dend, &t.OrderID, &t.Side,
			&price, &vol, &rem,
			&t.UpdatedTime, &priority, &ttype, &t.RawAction, &t.AggressorSide,
			&t.RevisionNumber, &t.IsSnapshot, &t.IsDeleted, &rootUpd, &t.Source); err != nil {
			return nil, fmt.Errorf("pg scan tick: %w", err)
		}
		t.Type = model.TickType(ttype)
		t.Price, t.Volume, t.RemainingVolume = parseDec(price), parseDec(vol), parseDec(rem)
		t.DeliveryStart, t.DeliveryEnd = fromNullTime(dstart), fromNullTime(dend)
		t.PriorityTime, t.RootUpdatedAt = fromNullTime(priority), fromNullTime(rootUpd)
		t.UpdatedTime = t.UpdatedTime.UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// TicksForContract returns the event log of a contract up to and including
// the given instant, in replay order.
func (s *Store) TicksForContract(ctx context.Context, contractID string, until time.Time) ([]model.Tick, error) {
	return s.queryTicks(ctx, `
		SELECT `+tickColumns+`
		FROM ticks
		WHERE contract_id = $1 AND updated_time <= $2
		ORDER BY updated_time ASC, revision_number ASC
	`, contractID, until.UTC())
}

// TicksInRange returns a contract's ticks within [from, to].
func (s *Store) TicksInRange(ctx context.Context, contractID string, from, to time.Time) ([]model.Tick, error) {
	return s.queryTicks(ctx, `
		SELECT `+tickColumns+`
		FROM ticks
		WHERE contract_id = $1 AND updated_time >= $2 AND updated_time <= $3
		ORDER BY updated_time ASC, revision_number ASC
	`, contractID, from.UTC(), to.UTC())
}

// RecentTicks returns an area's ticks since the given instant.
func (s *Store) RecentTicks(ctx context.Context, area string, since time.Time) ([]model.Tick, error) {
	return s.queryTicks(ctx, `
		SELECT `+tickColumns+`
		FROM ticks
		WHERE delivery_area = $1 AND updated_time >= $2
		ORDER BY updated_time ASC, revision_number ASC
	`, area, since.UTC())
}

// InsertSnapshots persists native book snapshots; levels travel as JSONB.
func (s *Store) InsertSnapshots(ctx context.Context, snaps []model.BookSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, sn := range snaps {
		bids, err := json.Marshal(sn.Bids)
		if err != nil {
			return fmt.Errorf("pg marshal bids: %w", err)
		}
		asks, err := json.Marshal(sn.Asks)
		if err != nil {
			return fmt.Errorf("pg marshal asks: %w", err)
		}
		batch.Queue(`
			INSERT INTO book_snapshots (
				snapshot_id, contract_id, contract_name, delivery_area,
				delivery_start, delivery_end, ts, revision_number,
				bids, asks, is_native
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT (snapshot_id) DO NOTHING
		`, sn.SnapshotID, sn.ContractID, sn.ContractName, sn.DeliveryArea,
			nullTime(sn.DeliveryStart), nullTime(sn.DeliveryEnd), sn.Timestamp.UTC(), sn.RevisionNumber,
			bids, asks, sn.IsNative)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range snaps {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("pg insert snapshots: %w", err)
		}
	}
	return nil
}
