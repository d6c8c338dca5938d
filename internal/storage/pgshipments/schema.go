package pgshipments

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS shipments (
  id BIGSERIAL PRIMARY KEY,
  origin_label TEXT NOT NULL,
  destination_label TEXT NOT NULL,
  track_number TEXT NULL,
  last_status_category TEXT NOT NULL,
  last_status_text TEXT NOT NULL,
  last_location TEXT NULL,
  last_updated_at TIMESTAMPTZ NULL,
  next_check_at TIMESTAMPTZ NOT NULL,
  check_fail_count INT NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL,
  version BIGINT NOT NULL DEFAULT 0
)`,
		`ALTER TABLE shipments ADD COLUMN IF NOT EXISTS version BIGINT NOT NULL DEFAULT 0`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_next_check_at ON shipments(next_check_at)`,
		`
CREATE TABLE IF NOT EXISTS shipment_events (
  id BIGSERIAL PRIMARY KEY,
  shipment_id BIGINT NOT NULL REFERENCES shipments(id) ON DELETE CASCADE,
  position INT NOT NULL,
  event_time TIMESTAMPTZ NOT NULL,
  category TEXT NOT NULL,
  raw_label TEXT NOT NULL,
  location TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL
)`,
		// Identity key события: (время, исходная метка, место).
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_shipment_events_identity ON shipment_events(shipment_id, event_time, raw_label, location)`,
		`CREATE INDEX IF NOT EXISTS idx_shipment_events_position ON shipment_events(shipment_id, position)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
