package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"nordpool-dataplane/internal/model"
)

// UpsertContracts refreshes order-book contract metadata. The archived flag
// is never reset by an upsert; only MarkContractArchived touches it.
func (s *Store) UpsertContracts(ctx context.Context, contracts []model.Contract) error {
	if len(contracts) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range contracts {
		batch.Queue(`
			INSERT INTO contracts (
				contract_id, delivery_area, contract_name,
				delivery_start, delivery_end, open_at, close_at,
				volume_unit, price_unit, is_archived, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,FALSE,NOW())
			ON CONFLICT (contract_id, delivery_area) DO UPDATE SET
				contract_name  = EXCLUDED.contract_name,
				delivery_start = EXCLUDED.delivery_start,
				delivery_end   = EXCLUDED.delivery_end,
				open_at        = EXCLUDED.open_at,
				close_at       = EXCLUDED.close_at,
				volume_unit    = EXCLUDED.volume_unit,
				price_unit     = EXCLUDED.price_unit,
				updated_at     = NOW()
		`, c.ContractID, c.DeliveryArea, c.ContractName,
			c.DeliveryStart.UTC(), c.DeliveryEnd.UTC(), nullTime(c.OpenAt), nullTime(c.CloseAt),
			c.VolumeUnit, c.PriceUnit)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range contracts {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("pg upsert contracts: %w", err)
		}
	}
	return nil
}

// UnarchivedContracts lists an area's contracts delivering on the given UTC
// day that still await historical archival.
func (s *Store) UnarchivedContracts(ctx context.Context, area string, day time.Time) ([]model.Contract, error) {
	d := time.Date(day.UTC().Year(), day.UTC().Month(), day.UTC().Day(), 0, 0, 0, 0, time.UTC)
	rows, err := s.pool.Query(ctx, `
		SELECT contract_id, delivery_area, contract_name,
			delivery_start, delivery_end, open_at, close_at,
			volume_unit, price_unit, is_archived, updated_at
		FROM contracts
		WHERE delivery_area = $1
			AND delivery_start >= $2 AND delivery_start < $3
			AND NOT is_archived
		ORDER BY delivery_start ASC, contract_id ASC
	`, area, d, d.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("pg query contracts: %w", err)
	}
	defer rows.Close()

	var out []model.Contract
	for rows.Next() {
		var (
			c               model.Contract
			openAt, closeAt *time.Time
		)
		if err := rows.Scan(&c.ContractID, &c.DeliveryArea, &c.ContractName,
			&c.DeliveryStart, &c.DeliveryEnd, &openAt, &closeAt,
			&c.VolumeUnit, &c.PriceUnit, &c.IsArchived, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("pg scan contract: %w", err)
		}
		c.OpenAt, c.CloseAt = fromNullTime(openAt), fromNullTime(closeAt)
		c.DeliveryStart, c.DeliveryEnd = c.DeliveryStart.UTC(), c.DeliveryEnd.UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// MarkContractArchived flips the archival flag for one contract.
func (s *Store) MarkContractArchived(ctx context.Context, contractID, area string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE contracts SET is_archived = TRUE, updated_at = NOW()
		WHERE contract_id = $1 AND delivery_area = $2
	`, contractID, area)
	if err != nil {
		return fmt.Errorf("pg mark archived: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pg mark archived: contract %s/%s not found", contractID, area)
	}
	return nil
}
