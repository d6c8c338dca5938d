package pgshipments

import (
	"context"

	"github.com/BearBump/ShipSync/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// Load reads the shipment and its history from one snapshot, so a concurrent
// Save is seen either entirely or not at all.
func (s *Storage) Load(ctx context.Context, id uint64) (models.Shipment, models.StatusHistory, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return models.Shipment{}, nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sh, err := scanShipment(tx.QueryRow(ctx, `SELECT`+shipmentColumns+`
FROM shipments
WHERE id = $1
`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Shipment{}, nil, errors.Wrapf(models.ErrNotFound, "id=%d", id)
	}
	if err != nil {
		return models.Shipment{}, nil, errors.Wrap(err, "select shipment")
	}

	rows, err := tx.Query(ctx, `
SELECT event_time, category, raw_label, location
FROM shipment_events
WHERE shipment_id = $1
ORDER BY position ASC, id ASC
`, id)
	if err != nil {
		return models.Shipment{}, nil, errors.Wrap(err, "select events")
	}
	defer rows.Close()

	var history models.StatusHistory
	for rows.Next() {
		var e models.StatusEvent
		var category, location string
		if err := rows.Scan(&e.Timestamp, &category, &e.RawLabel, &location); err != nil {
			return models.Shipment{}, nil, errors.Wrap(err, "scan event")
		}
		e.Timestamp = e.Timestamp.UTC()
		e.Category = models.ParseStatusCategory(category)
		e.Location = models.StrPtr(location)
		history = append(history, e)
	}
	if rows.Err() != nil {
		return models.Shipment{}, nil, errors.Wrap(rows.Err(), "rows")
	}

	return sh, history, nil
}

// Save persists the reconciliation-owned status fields and the merged history in
// one transaction. The row is updated only if its version still equals sh.Version,
// otherwise models.ErrVersionConflict is returned and nothing changes.
// History is append-only, so existing rows only get their position refreshed.
func (s *Storage) Save(ctx context.Context, id uint64, sh models.Shipment, history models.StatusHistory) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
UPDATE shipments
SET
  last_status_category = $2,
  last_status_text = $3,
  last_location = $4,
  last_updated_at = GREATEST(last_updated_at, $5),
  version = version + 1
WHERE id = $1 AND version = $6
`, id, string(sh.LastStatusCategory), sh.LastStatusText, sh.LastLocation, sh.LastUpdatedAt, sh.Version)
	if err != nil {
		return errors.Wrap(err, "update shipment")
	}
	if tag.RowsAffected() == 0 {
		var stored int64
		err := tx.QueryRow(ctx, `SELECT version FROM shipments WHERE id = $1`, id).Scan(&stored)
		if errors.Is(err, pgx.ErrNoRows) {
			return errors.Wrapf(models.ErrNotFound, "id=%d", id)
		}
		if err != nil {
			return errors.Wrap(err, "select version")
		}
		return errors.Wrapf(models.ErrVersionConflict, "id=%d version=%d stored=%d", id, sh.Version, stored)
	}

	batch := &pgx.Batch{}
	for i, e := range history {
		k := e.Key()
		batch.Queue(`
INSERT INTO shipment_events (
  shipment_id, position, event_time, category, raw_label, location, created_at
)
VALUES ($1,$2,$3,$4,$5,$6, now())
ON CONFLICT (shipment_id, event_time, raw_label, location)
DO UPDATE SET position = EXCLUDED.position
`, id, i, e.Timestamp.UTC(), string(e.Category), e.RawLabel, k.Location)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrap(err, "upsert events")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	return nil
}
