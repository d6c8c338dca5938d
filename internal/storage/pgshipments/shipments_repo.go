package pgshipments

import (
	"context"
	"strings"
	"time"

	"github.com/BearBump/ShipSync/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const shipmentColumns = `
  id, origin_label, destination_label, track_number,
  last_status_category, last_status_text, last_location, last_updated_at,
  next_check_at, check_fail_count, created_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShipment(row rowScanner) (models.Shipment, error) {
	var sh models.Shipment
	var category string
	if err := row.Scan(
		&sh.ID, &sh.OriginLabel, &sh.DestinationLabel, &sh.TrackNumber,
		&category, &sh.LastStatusText, &sh.LastLocation, &sh.LastUpdatedAt,
		&sh.NextCheckAt, &sh.CheckFailCount, &sh.CreatedAt, &sh.Version,
	); err != nil {
		return models.Shipment{}, err
	}
	sh.LastStatusCategory = models.ParseStatusCategory(category)
	if sh.LastUpdatedAt != nil {
		t := sh.LastUpdatedAt.UTC()
		sh.LastUpdatedAt = &t
	}
	sh.NextCheckAt = sh.NextCheckAt.UTC()
	sh.CreatedAt = sh.CreatedAt.UTC()
	return sh, nil
}

func (s *Storage) Create(ctx context.Context, in models.ShipmentCreateInput) (models.Shipment, error) {
	now := time.Now().UTC()

	row := s.db.QueryRow(ctx, `
INSERT INTO shipments (
  origin_label, destination_label, track_number,
  last_status_category, last_status_text, next_check_at, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$6)
RETURNING`+shipmentColumns,
		in.OriginLabel, in.DestinationLabel, models.StrPtr(strings.TrimSpace(in.TrackNumber)),
		string(models.StatusCreated), models.ManualStatusText, now)

	sh, err := scanShipment(row)
	if err != nil {
		return models.Shipment{}, errors.Wrap(err, "insert shipment")
	}
	return sh, nil
}

func (s *Storage) List(ctx context.Context) ([]models.Shipment, error) {
	rows, err := s.db.Query(ctx, `SELECT`+shipmentColumns+`
FROM shipments
ORDER BY created_at DESC, id DESC
`)
	if err != nil {
		return nil, errors.Wrap(err, "select shipments")
	}
	defer rows.Close()

	out := make([]models.Shipment, 0)
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan shipment")
		}
		out = append(out, sh)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) Delete(ctx context.Context, id uint64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM shipments WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete shipment")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(models.ErrNotFound, "id=%d", id)
	}
	return nil
}

// AssignTrackNumber also makes the shipment due right away.
func (s *Storage) AssignTrackNumber(ctx context.Context, id uint64, trackNumber string) (models.Shipment, error) {
	row := s.db.QueryRow(ctx, `
UPDATE shipments
SET track_number = $2, next_check_at = now()
WHERE id = $1
RETURNING`+shipmentColumns, id, models.StrPtr(trackNumber))

	sh, err := scanShipment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Shipment{}, errors.Wrapf(models.ErrNotFound, "id=%d", id)
	}
	if err != nil {
		return models.Shipment{}, errors.Wrap(err, "assign track number")
	}
	return sh, nil
}

// ClaimDueShipments выбирает пачку поставок с трек-номером, готовых к проверке, и "бронирует" их
// на lease, чтобы параллельный воркер их не взял. Использует SELECT ... FOR UPDATE SKIP LOCKED.
func (s *Storage) ClaimDueShipments(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]models.Shipment, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `SELECT`+shipmentColumns+`
FROM shipments
WHERE next_check_at <= $1
  AND track_number IS NOT NULL
  AND track_number <> ''
ORDER BY next_check_at ASC
LIMIT $2
FOR UPDATE SKIP LOCKED
`, now.UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due shipments")
	}

	var picked []models.Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan due shipment")
		}
		picked = append(picked, sh)
	}
	rows.Close()
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	leaseUntil := now.UTC().Add(lease)
	for i := range picked {
		if _, err := tx.Exec(ctx, `UPDATE shipments SET next_check_at = $2 WHERE id = $1`, picked[i].ID, leaseUntil); err != nil {
			return nil, errors.Wrap(err, "lease shipment")
		}
		picked[i].NextCheckAt = leaseUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}

func (s *Storage) ScheduleNextCheck(ctx context.Context, id uint64, at time.Time, failed bool) error {
	tag, err := s.db.Exec(ctx, `
UPDATE shipments
SET
  next_check_at = $2,
  check_fail_count = CASE WHEN $3 THEN check_fail_count + 1 ELSE 0 END
WHERE id = $1
`, id, at.UTC(), failed)
	if err != nil {
		return errors.Wrap(err, "schedule next check")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(models.ErrNotFound, "id=%d", id)
	}
	return nil
}
